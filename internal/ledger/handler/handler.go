package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"veritrail/internal/ledger/models"
	"veritrail/internal/ledger/service"
	"veritrail/internal/platform/middleware"
	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
	"veritrail/pkg/requestcontext"
)

// Service defines the ledger operations the HTTP layer consumes.
type Service interface {
	Append(ctx context.Context, req service.AppendRequest) (*models.LedgerEvent, error)
	Verify(ctx context.Context, entityID id.EntityID) (models.VerificationResult, error)
	List(ctx context.Context, entityID id.EntityID, afterSeq int64, limit int) ([]models.LedgerEvent, int64, error)
}

// Handler exposes the ledger over HTTP. It is a thin translation layer: all
// chain semantics live in the service.
type Handler struct {
	logger      *slog.Logger
	ledger      Service
	idempotency IdempotencyStore
}

// Option configures the Handler.
type Option func(*Handler)

// WithIdempotencyStore enables Idempotency-Key replay on appends.
func WithIdempotencyStore(store IdempotencyStore) Option {
	return func(h *Handler) { h.idempotency = store }
}

// New creates a ledger Handler.
func New(ledger Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{logger: logger, ledger: ledger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the ledger routes with their middleware chain.
func (h *Handler) Register(r chi.Router) {
	ledgerRouter := chi.NewRouter()
	ledgerRouter.Use(middleware.Recovery(h.logger))
	ledgerRouter.Use(middleware.RequestID)
	ledgerRouter.Use(middleware.RequestTime)
	ledgerRouter.Use(middleware.Logger(h.logger))
	ledgerRouter.Use(middleware.Timeout(30 * time.Second))
	ledgerRouter.Use(middleware.ContentTypeJSON)
	ledgerRouter.Post("/ledger/events", h.handleAppend)
	ledgerRouter.Get("/ledger/entities/{entityID}/events", h.handleList)
	ledgerRouter.Get("/ledger/entities/{entityID}/verify", h.handleVerify)

	r.Mount("/", ledgerRouter)
}

type appendRequest struct {
	EventType  string         `json:"event_type"`
	EntityID   string         `json:"entity_id"`
	EntityType string         `json:"entity_type"`
	ActorID    *string        `json:"actor_id"`
	ActorRole  *string        `json:"actor_role"`
	Payload    map[string]any `json:"payload"`
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	idemKey := r.Header.Get("Idempotency-Key")
	if h.idempotency != nil && idemKey != "" {
		if body, ok := h.replayIdempotent(ctx, idemKey); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotency-Replayed", "true")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
	}

	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid append request body",
			"request_id", requestID,
			"error", err.Error(),
		)
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	appendReq, err := h.toAppendRequest(req)
	if err != nil {
		writeError(w, err)
		return
	}

	event, err := h.ledger.Append(ctx, appendReq)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) || dErrors.HasCode(err, dErrors.CodeConflict) {
			h.logger.WarnContext(ctx, "append rejected",
				"request_id", requestID,
				"error", err.Error(),
			)
			writeError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to append ledger event",
			"request_id", requestID,
			"error", err.Error(),
		)
		writeError(w, err)
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeInternal, "encode committed event"))
		return
	}
	if h.idempotency != nil && idemKey != "" {
		h.storeIdempotent(ctx, idemKey, body)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func (h *Handler) toAppendRequest(req appendRequest) (service.AppendRequest, error) {
	entityID, err := id.ParseEntityID(req.EntityID)
	if err != nil {
		return service.AppendRequest{}, err
	}
	appendReq := service.AppendRequest{
		EventType:  req.EventType,
		EntityID:   entityID,
		EntityType: req.EntityType,
		Payload:    req.Payload,
	}
	if req.ActorID != nil {
		actorID, err := id.ParseActorID(*req.ActorID)
		if err != nil {
			return service.AppendRequest{}, err
		}
		appendReq.ActorID = actorID
	}
	if req.ActorRole != nil {
		appendReq.ActorRole = *req.ActorRole
	}
	return appendReq, nil
}

type listResponse struct {
	Events     []models.LedgerEvent `json:"events"`
	NextCursor int64                `json:"next_cursor,omitempty"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entityID, err := id.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var cursor int64
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || cursor < 0 {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "cursor must be a non-negative integer"))
			return
		}
	}
	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
	}

	events, next, err := h.ledger.List(ctx, entityID, cursor, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list ledger events",
			"request_id", requestcontext.RequestID(ctx),
			"entity_id", entityID.String(),
			"error", err.Error(),
		)
		writeError(w, err)
		return
	}
	if events == nil {
		events = []models.LedgerEvent{}
	}
	writeJSON(w, http.StatusOK, listResponse{Events: events, NextCursor: next})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entityID, err := id.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.ledger.Verify(ctx, entityID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to verify chain",
			"request_id", requestcontext.RequestID(ctx),
			"entity_id", entityID.String(),
			"error", err.Error(),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
