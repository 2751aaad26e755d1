package models

import (
	"encoding/json"
	"time"

	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
)

// Well-known event types. The enumeration is open: callers may record types
// not listed here, these constants just keep spelling consistent across the
// registration, verification, and application workflows that feed the ledger.
const (
	EventStudentRegistered        = "student_registered"
	EventStudentVerified          = "student_verified"
	EventSupervisorApproved       = "supervisor_approved"
	EventInstitutionVerified      = "institution_verified"
	EventEmployerRegistered       = "employer_registered"
	EventApplicationSubmitted     = "application_submitted"
	EventApplicationStatusChanged = "application_status_changed"
)

// LedgerEvent is one immutable record in an entity's hash chain.
//
// Once committed it is never updated or deleted. For a fixed EntityID the
// events form a singly linked list: each event's PreviousHash equals the
// Hash of the event before it, and the first event's PreviousHash is empty.
type LedgerEvent struct {
	// ID is the surrogate key. It is not part of the hash input.
	ID id.EventID
	// Seq is the store-assigned insertion order across the whole table.
	// Not hashed; used as the ordering tiebreak and the pagination cursor.
	Seq int64
	// EventType tags the event, e.g. "application_submitted".
	EventType string
	// ActorID and ActorRole identify who triggered the event. A nil ActorID
	// means the event was system-generated.
	ActorID   id.ActorID
	ActorRole string
	// EntityID and EntityType name the logical subject. EntityID defines the
	// chain partition.
	EntityID   id.EntityID
	EntityType string
	// Payload is the event's business data, stored verbatim and hashed in
	// canonical form. Opaque to the ledger.
	Payload map[string]any
	// OccurredAt is assigned by the server at commit time, never by the
	// caller. Monotonically non-decreasing within an entity's chain.
	OccurredAt time.Time
	// PreviousHash is the Hash of the preceding event for the same EntityID,
	// or empty for the genesis event.
	PreviousHash string
	// Hash is the hex SHA-256 digest over this event's content and
	// PreviousHash. Recomputing it from the stored fields must reproduce the
	// stored value unless the record was tampered with.
	Hash string
}

// MarshalJSON renders the wire form consumed by the HTTP layer and the
// announcement topic: snake_case keys, explicit nulls for absent actor
// fields and for the genesis PreviousHash.
func (e LedgerEvent) MarshalJSON() ([]byte, error) {
	var actorID, actorRole, previousHash *string
	if !e.ActorID.IsNil() {
		s := e.ActorID.String()
		actorID = &s
	}
	if e.ActorRole != "" {
		s := e.ActorRole
		actorRole = &s
	}
	if e.PreviousHash != "" {
		s := e.PreviousHash
		previousHash = &s
	}
	return json.Marshal(wireEvent{
		ID:           e.ID.String(),
		Seq:          e.Seq,
		EventType:    e.EventType,
		ActorID:      actorID,
		ActorRole:    actorRole,
		EntityID:     e.EntityID.String(),
		EntityType:   e.EntityType,
		Payload:      e.Payload,
		OccurredAt:   e.OccurredAt.UTC(),
		PreviousHash: previousHash,
		Hash:         e.Hash,
	})
}

type wireEvent struct {
	ID           string         `json:"id"`
	Seq          int64          `json:"seq"`
	EventType    string         `json:"event_type"`
	ActorID      *string        `json:"actor_id"`
	ActorRole    *string        `json:"actor_role"`
	EntityID     string         `json:"entity_id"`
	EntityType   string         `json:"entity_type"`
	Payload      map[string]any `json:"payload"`
	OccurredAt   time.Time      `json:"occurred_at"`
	PreviousHash *string        `json:"previous_hash"`
	Hash         string         `json:"hash"`
}

// Validate checks the semantic fields a caller supplies to append. Server
// assigned fields (ID, Seq, OccurredAt, hashes) are not the caller's to set.
func (e *LedgerEvent) Validate() error {
	if e.EventType == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "event_type is required")
	}
	if e.EntityID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "entity_id is required")
	}
	if e.EntityType == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "entity_type is required")
	}
	if e.ActorID.IsNil() && e.ActorRole != "" {
		return dErrors.New(dErrors.CodeInvalidInput, "actor_role requires actor_id")
	}
	return nil
}
