//go:build integration

package announce_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"veritrail/internal/ledger/announce"
	"veritrail/internal/ledger/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/testutil/containers"
)

// TestKafkaPublisher_RoundTrip runs the full announcement path against a real
// broker: events enqueued on the announcer come out of the topic keyed by
// entity so per-entity order survives partitioning.
func TestKafkaPublisher_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	redpanda := containers.GetManager().GetRedpanda(t)
	const topic = "veritrail.ledger.events.test"

	publisher, err := announce.NewKafkaPublisher(redpanda.Brokers, topic)
	require.NoError(t, err)

	announcer := announce.New(publisher, nil)
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- announcer.Run(runCtx) }()

	entityID := id.EntityID(uuid.New())
	events := make([]models.LedgerEvent, 3)
	for i := range events {
		events[i] = models.LedgerEvent{
			ID:         id.NewEventID(),
			Seq:        int64(i + 1),
			EventType:  models.EventApplicationStatusChanged,
			EntityID:   entityID,
			EntityType: "application",
			Payload:    map[string]any{"step": i},
			OccurredAt: time.Now().UTC().Truncate(time.Microsecond),
			Hash:       uuid.NewString(),
		}
		announcer.Announce(events[i])
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	type wireEvent struct {
		Seq       int64  `json:"seq"`
		EventType string `json:"event_type"`
		EntityID  string `json:"entity_id"`
		Hash      string `json:"hash"`
	}
	consumed := make(map[string]wireEvent, len(events))
	deadline := time.Now().Add(30 * time.Second)
	for len(consumed) < len(events) && time.Now().Before(deadline) {
		fetchCtx, fetchCancel := context.WithTimeout(context.Background(), 5*time.Second)
		fetches := consumer.PollFetches(fetchCtx)
		fetchCancel()
		fetches.EachRecord(func(record *kgo.Record) {
			require.Equal(t, entityID.String(), string(record.Key))
			var event wireEvent
			require.NoError(t, json.Unmarshal(record.Value, &event))
			consumed[event.Hash] = event
		})
	}
	require.Len(t, consumed, len(events))
	for _, want := range events {
		got, ok := consumed[want.Hash]
		require.True(t, ok)
		require.Equal(t, want.EventType, got.EventType)
		require.Equal(t, want.Seq, got.Seq)
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
