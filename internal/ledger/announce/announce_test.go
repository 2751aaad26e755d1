package announce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritrail/internal/ledger/models"
	id "veritrail/pkg/domain"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []models.LedgerEvent
	err       error
	closed    bool
}

func (f *fakePublisher) Publish(_ context.Context, event models.LedgerEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, event)
	return nil
}

func (f *fakePublisher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func testEvent() models.LedgerEvent {
	return models.LedgerEvent{
		ID:         id.NewEventID(),
		EventType:  models.EventStudentVerified,
		EntityID:   id.EntityID(uuid.New()),
		EntityType: "student",
		Hash:       "deadbeef",
	}
}

func TestAnnouncer_PublishesEnqueuedEvents(t *testing.T) {
	pub := &fakePublisher{}
	announcer := New(pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- announcer.Run(ctx) }()

	event := testEvent()
	announcer.Announce(event)

	require.Eventually(t, func() bool { return pub.count() == 1 },
		time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.True(t, pub.closed)
	assert.Equal(t, event.ID, pub.published[0].ID)
}

func TestAnnouncer_DrainsInboxOnShutdown(t *testing.T) {
	pub := &fakePublisher{}
	announcer := New(pub, nil)

	for i := 0; i < 5; i++ {
		announcer.Announce(testEvent())
	}

	// Cancelled before Run starts: everything must go out via the drain.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, announcer.Run(ctx), context.Canceled)

	assert.Equal(t, 5, pub.count())
	assert.True(t, pub.closed)
}

func TestAnnouncer_DropsWhenInboxFull(t *testing.T) {
	pub := &fakePublisher{}
	announcer := New(pub, nil, WithInboxSize(1))

	// No worker running: the second announce finds the inbox full and must
	// return immediately instead of blocking the append path.
	announcer.Announce(testEvent())
	finished := make(chan struct{})
	go func() {
		announcer.Announce(testEvent())
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Announce blocked on a full inbox")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = announcer.Run(ctx)
	assert.Equal(t, 1, pub.count())
}

func TestAnnouncer_PublishFailureDoesNotStopWorker(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	announcer := New(pub, nil)

	announcer.Announce(testEvent())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, announcer.Run(ctx), context.Canceled)
	assert.Zero(t, pub.count())
	assert.True(t, pub.closed)
}
