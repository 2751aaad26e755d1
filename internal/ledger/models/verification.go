package models

// VerifyStatus is the outcome of walking an entity's chain.
type VerifyStatus string

const (
	StatusValid    VerifyStatus = "valid"
	StatusTampered VerifyStatus = "tampered"
)

// TamperReason names the first violation found while walking a chain.
type TamperReason string

const (
	// ReasonHashMismatch: recomputing the digest from the stored fields did
	// not reproduce the stored hash.
	ReasonHashMismatch TamperReason = "hash_mismatch"
	// ReasonBrokenLink: an event's previous_hash does not equal the
	// preceding event's hash.
	ReasonBrokenLink TamperReason = "broken_link"
	// ReasonOrderViolation: an event's occurred_at precedes its
	// predecessor's.
	ReasonOrderViolation TamperReason = "order_violation"
)

// VerificationResult reports whether a chain is intact. Tampering is data,
// not an error: only infrastructure failures surface as errors.
type VerificationResult struct {
	Status VerifyStatus `json:"status"`
	// BrokenAt is the zero-based chain index of the first event where
	// verification diverged; -1 when the chain is valid.
	BrokenAt int          `json:"broken_at"`
	Reason   TamperReason `json:"reason,omitempty"`
	Detail   string       `json:"detail,omitempty"`
	// Length is the number of events inspected.
	Length int `json:"length"`
}

// Valid builds the result for an intact chain. An empty chain is vacuously
// valid.
func Valid(length int) VerificationResult {
	return VerificationResult{Status: StatusValid, BrokenAt: -1, Length: length}
}

// Tampered builds the result for the first divergence found at index.
func Tampered(index int, reason TamperReason, detail string, length int) VerificationResult {
	return VerificationResult{
		Status:   StatusTampered,
		BrokenAt: index,
		Reason:   reason,
		Detail:   detail,
		Length:   length,
	}
}

// OK reports whether the chain verified intact.
func (r VerificationResult) OK() bool { return r.Status == StatusValid }
