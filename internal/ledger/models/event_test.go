package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
)

func TestLedgerEvent_Validate(t *testing.T) {
	valid := func() LedgerEvent {
		return LedgerEvent{
			EventType:  EventApplicationSubmitted,
			EntityID:   id.EntityID(uuid.New()),
			EntityType: "application",
			ActorID:    id.ActorID(uuid.New()),
			ActorRole:  "student",
		}
	}

	t.Run("accepts a complete event", func(t *testing.T) {
		event := valid()
		require.NoError(t, event.Validate())
	})

	t.Run("accepts a system event with no actor", func(t *testing.T) {
		event := valid()
		event.ActorID = id.ActorID{}
		event.ActorRole = ""
		require.NoError(t, event.Validate())
	})

	cases := map[string]func(*LedgerEvent){
		"missing event_type":    func(e *LedgerEvent) { e.EventType = "" },
		"missing entity_id":     func(e *LedgerEvent) { e.EntityID = id.EntityID{} },
		"missing entity_type":   func(e *LedgerEvent) { e.EntityType = "" },
		"role without actor_id": func(e *LedgerEvent) { e.ActorID = id.ActorID{} },
	}
	for name, mutate := range cases {
		t.Run("rejects "+name, func(t *testing.T) {
			event := valid()
			mutate(&event)
			err := event.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestLedgerEvent_MarshalJSON(t *testing.T) {
	t.Run("genesis system event renders explicit nulls", func(t *testing.T) {
		event := LedgerEvent{
			ID:         id.NewEventID(),
			Seq:        1,
			EventType:  EventStudentRegistered,
			EntityID:   id.EntityID(uuid.New()),
			EntityType: "student",
			Payload:    map[string]any{"source": "signup"},
			OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Hash:       "abc123",
		}

		raw, err := json.Marshal(event)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Nil(t, decoded["actor_id"])
		assert.Nil(t, decoded["actor_role"])
		assert.Nil(t, decoded["previous_hash"])
		assert.Equal(t, "abc123", decoded["hash"])
		assert.Equal(t, event.EntityID.String(), decoded["entity_id"])
	})

	t.Run("chained event carries actor and predecessor", func(t *testing.T) {
		actor := id.ActorID(uuid.New())
		event := LedgerEvent{
			ID:           id.NewEventID(),
			Seq:          2,
			EventType:    EventSupervisorApproved,
			ActorID:      actor,
			ActorRole:    "supervisor",
			EntityID:     id.EntityID(uuid.New()),
			EntityType:   "application",
			Payload:      map[string]any{"step": 2},
			OccurredAt:   time.Now().UTC(),
			PreviousHash: "feed1234",
			Hash:         "beef5678",
		}

		raw, err := json.Marshal(event)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, actor.String(), decoded["actor_id"])
		assert.Equal(t, "supervisor", decoded["actor_role"])
		assert.Equal(t, "feed1234", decoded["previous_hash"])
	})
}
