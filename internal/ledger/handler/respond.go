package handler

import (
	"encoding/json"
	"net/http"

	dErrors "veritrail/pkg/domain-errors"
)

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates coded errors into HTTP status codes. Unknown errors
// become opaque 500s so internals never leak to callers.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := http.StatusInternalServerError
	message := "internal server error"

	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		status, message = http.StatusBadRequest, err.Error()
	case dErrors.CodeConflict:
		status, message = http.StatusConflict, err.Error()
	case dErrors.CodeNotFound:
		status, message = http.StatusNotFound, err.Error()
	case dErrors.CodeTimeout:
		status, message = http.StatusGatewayTimeout, "request timed out"
	case dErrors.CodeUnavailable:
		status, message = http.StatusServiceUnavailable, "service unavailable"
	}

	writeJSON(w, status, errorResponse{Code: string(code), Error: message})
}
