package service

import (
	"context"
	"sync"

	"veritrail/internal/ledger/models"
	id "veritrail/pkg/domain"
)

// Store is the append-only event store contract the ledger service depends
// on. Implementations must make Insert atomic with respect to the chain-link
// condition: an insert whose PreviousHash no longer matches the current head
// fails with sentinel.ErrConflict and leaves no trace.
type Store interface {
	// Insert commits one event and assigns its Seq.
	Insert(ctx context.Context, event *models.LedgerEvent) error
	// Head returns the most recent event for the entity, or
	// sentinel.ErrNotFound when the chain is empty.
	Head(ctx context.Context, entityID id.EntityID) (*models.LedgerEvent, error)
	// ListByEntity returns up to limit events with Seq > afterSeq in chain
	// order.
	ListByEntity(ctx context.Context, entityID id.EntityID, afterSeq int64, limit int) ([]models.LedgerEvent, error)
	// ChainByEntity returns the entity's full chain from a consistent
	// snapshot.
	ChainByEntity(ctx context.Context, entityID id.EntityID) ([]models.LedgerEvent, error)
	// LockEntity serializes appends for one entity for the duration of the
	// enclosing transaction. Appends for different entities stay parallel.
	LockEntity(ctx context.Context, entityID id.EntityID) error
}

// StoreTx runs fn inside a single atomic unit of work. The head read, hash
// computation, and insert of an append all happen within one RunInTx call,
// released on every exit path, so a failed append leaves no partial write.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Announcer receives committed events for downstream consumers. Must not
// block the append path.
type Announcer interface {
	Announce(event models.LedgerEvent)
}

// inMemoryStoreTx serializes units of work behind a mutex. It gives the
// in-memory store the same "one append at a time commits" behavior a real
// database transaction gives the PostgreSQL store. Default when no
// transactional runner is wired.
type inMemoryStoreTx struct {
	mu sync.Mutex
}

func newInMemoryStoreTx() *inMemoryStoreTx { return &inMemoryStoreTx{} }

func (t *inMemoryStoreTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}
