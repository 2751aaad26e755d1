// Package domain defines typed identifiers shared across the service.
//
// Distinct UUID types prevent accidentally passing an actor ID where an
// entity ID is expected; the compiler enforces the distinction.
package domain

import (
	"github.com/google/uuid"

	dErrors "veritrail/pkg/domain-errors"
)

// EventID identifies a committed ledger event (surrogate key, not hashed).
type EventID uuid.UUID

// EntityID identifies the logical subject an event is about. It is the
// partition key for chain isolation: chains for distinct entity IDs are
// fully independent.
type EntityID uuid.UUID

// ActorID identifies who triggered an event. The zero value means the event
// was system-generated.
type ActorID uuid.UUID

func (id EventID) String() string  { return uuid.UUID(id).String() }
func (id EntityID) String() string { return uuid.UUID(id).String() }
func (id ActorID) String() string  { return uuid.UUID(id).String() }

func (id EventID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id EntityID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// NewEventID generates a fresh event identifier.
func NewEventID() EventID { return EventID(uuid.New()) }

// ParseEntityID parses an entity ID, rejecting empty, malformed, and nil
// UUIDs. IDs must be valid at trust boundaries.
func ParseEntityID(s string) (EntityID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return EntityID{}, err
	}
	return EntityID(parsed), nil
}

// ParseActorID parses an actor ID with the same invariants as ParseEntityID.
func ParseActorID(s string) (ActorID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return ActorID{}, err
	}
	return ActorID(parsed), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}
