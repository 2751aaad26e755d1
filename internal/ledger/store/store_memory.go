package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"veritrail/internal/ledger/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// InMemory is a map-backed ledger store with the same compare-and-swap
// semantics as the PostgreSQL store, so services can be tested without a
// database. Safe for concurrent use.
type InMemory struct {
	mu      sync.RWMutex
	chains  map[id.EntityID][]models.LedgerEvent
	nextSeq int64
}

func NewInMemory() *InMemory {
	return &InMemory{chains: make(map[id.EntityID][]models.LedgerEvent)}
}

// Clear drops all stored events. Use between tests.
func (s *InMemory) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains = make(map[id.EntityID][]models.LedgerEvent)
	s.nextSeq = 0
}

// LockEntity is a no-op: callers serialize through the in-memory transaction
// runner, and Insert still enforces the head CAS.
func (s *InMemory) LockEntity(_ context.Context, _ id.EntityID) error {
	return nil
}

// Insert commits one event and assigns its Seq. Mirrors the PostgreSQL
// chain-link constraint: the event's PreviousHash must equal the current head
// hash (or be empty for a first event), otherwise sentinel.ErrConflict.
func (s *InMemory) Insert(_ context.Context, event *models.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[event.EntityID]
	headHash := ""
	if len(chain) > 0 {
		headHash = chain[len(chain)-1].Hash
	}
	if event.PreviousHash != headHash {
		return fmt.Errorf("insert ledger event: %w", sentinel.ErrConflict)
	}

	s.nextSeq++
	event.Seq = s.nextSeq
	stored, err := copyEvent(*event)
	if err != nil {
		return err
	}
	s.chains[event.EntityID] = append(chain, stored)
	return nil
}

func (s *InMemory) Head(_ context.Context, entityID id.EntityID) (*models.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[entityID]
	if len(chain) == 0 {
		return nil, sentinel.ErrNotFound
	}
	head, err := copyEvent(chain[len(chain)-1])
	if err != nil {
		return nil, err
	}
	return &head, nil
}

func (s *InMemory) ListByEntity(_ context.Context, entityID id.EntityID, afterSeq int64, limit int) ([]models.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []models.LedgerEvent
	for _, event := range s.chains[entityID] {
		if event.Seq <= afterSeq {
			continue
		}
		if limit > 0 && len(events) == limit {
			break
		}
		copied, err := copyEvent(event)
		if err != nil {
			return nil, err
		}
		events = append(events, copied)
	}
	return events, nil
}

func (s *InMemory) ChainByEntity(ctx context.Context, entityID id.EntityID) ([]models.LedgerEvent, error) {
	return s.ListByEntity(ctx, entityID, 0, 0)
}

// Corrupt mutates a stored event in place, bypassing the append-only
// contract. Test support for tamper-detection scenarios, the in-memory
// equivalent of an UPDATE issued behind the ledger's back.
func (s *InMemory) Corrupt(entityID id.EntityID, index int, mutate func(*models.LedgerEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[entityID]
	if index < 0 || index >= len(chain) {
		return fmt.Errorf("corrupt event: index %d out of range", index)
	}
	mutate(&chain[index])
	return nil
}

// copyEvent deep-copies via the payload's JSON form, mimicking the isolation
// a row round-trip through the database gives.
func copyEvent(event models.LedgerEvent) (models.LedgerEvent, error) {
	if event.Payload == nil {
		return event, nil
	}
	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return models.LedgerEvent{}, fmt.Errorf("copy event payload: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.LedgerEvent{}, fmt.Errorf("copy event payload: %w", err)
	}
	event.Payload = payload
	return event, nil
}
