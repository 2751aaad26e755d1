// Package chain implements the hashing and verification core of the
// tamper-evident ledger.
//
// Each event's hash is the hex SHA-256 digest of a canonical JSON envelope
// containing, in fixed field order: event_type, actor_id, actor_role,
// entity_id, entity_type, payload, occurred_at, previous_hash. Absent actor
// fields and the genesis previous_hash are encoded as explicit JSON nulls.
// occurred_at is rendered as RFC 3339 with nanoseconds in UTC. The payload
// map is serialized with encoding/json, which sorts map keys recursively, so
// the envelope is independent of map iteration order. The canonicalization
// format is part of the verifiable contract: any re-implementation must
// reproduce it byte for byte to validate existing chains.
//
// Modifying any hashed field of a committed event, or re-pointing an event's
// previous_hash, is detectable by recomputation from that event onward.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"veritrail/internal/ledger/models"
	dErrors "veritrail/pkg/domain-errors"
)

// envelope is the canonical hash input. Struct field order fixes the key
// order; pointer fields render explicit nulls.
type envelope struct {
	EventType    string         `json:"event_type"`
	ActorID      *string        `json:"actor_id"`
	ActorRole    *string        `json:"actor_role"`
	EntityID     string         `json:"entity_id"`
	EntityType   string         `json:"entity_type"`
	Payload      map[string]any `json:"payload"`
	OccurredAt   string         `json:"occurred_at"`
	PreviousHash *string        `json:"previous_hash"`
}

// Digest computes the event's hash from its content fields and PreviousHash.
// It is a deterministic pure function: the same fields always produce the
// same digest. Returns CodeInvalidInput when the payload cannot be
// canonically serialized.
func Digest(e models.LedgerEvent) (string, error) {
	env := envelope{
		EventType:    e.EventType,
		EntityID:     e.EntityID.String(),
		EntityType:   e.EntityType,
		Payload:      e.Payload,
		OccurredAt:   e.OccurredAt.UTC().Format(time.RFC3339Nano),
		PreviousHash: optional(e.PreviousHash),
	}
	if !e.ActorID.IsNil() {
		env.ActorID = optional(e.ActorID.String())
	}
	env.ActorRole = optional(e.ActorRole)

	canonical, err := json.Marshal(env)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "payload is not canonically serializable")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Verify walks events, which must be ordered by occurred_at with insertion
// order as tiebreak, and reports the first position where the chain is
// broken: a mismatched link, a digest that no longer reproduces the stored
// hash, or an ordering violation. An empty slice is vacuously valid.
func Verify(events []models.LedgerEvent) models.VerificationResult {
	prevHash := ""
	for i, event := range events {
		if event.PreviousHash != prevHash {
			return models.Tampered(i, models.ReasonBrokenLink,
				fmt.Sprintf("previous_hash %q does not match predecessor hash %q", event.PreviousHash, prevHash),
				len(events))
		}
		if i > 0 && event.OccurredAt.Before(events[i-1].OccurredAt) {
			return models.Tampered(i, models.ReasonOrderViolation,
				fmt.Sprintf("occurred_at %s precedes predecessor %s",
					event.OccurredAt.UTC().Format(time.RFC3339Nano),
					events[i-1].OccurredAt.UTC().Format(time.RFC3339Nano)),
				len(events))
		}
		recomputed, err := Digest(event)
		if err != nil {
			// A stored payload that no longer serializes is itself evidence
			// of tampering, not an infrastructure failure.
			return models.Tampered(i, models.ReasonHashMismatch,
				fmt.Sprintf("stored event is not canonically serializable: %v", err),
				len(events))
		}
		if recomputed != event.Hash {
			return models.Tampered(i, models.ReasonHashMismatch,
				fmt.Sprintf("recomputed hash %q does not match stored hash %q", recomputed, event.Hash),
				len(events))
		}
		prevHash = event.Hash
	}
	return models.Valid(len(events))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
