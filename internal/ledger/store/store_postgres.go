package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"veritrail/internal/ledger/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
	txcontext "veritrail/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// EnsureSchema creates the ledger table and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

// PostgresStore persists ledger events in PostgreSQL.
//
// Chain linearity is enforced by the ledger_events_chain_link unique index:
// two concurrent appends extending the same head race on the index and the
// loser's insert fails with a unique violation, surfaced as
// sentinel.ErrConflict so the service can retry with the fresh head.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbHandle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) handle(ctx context.Context) dbHandle {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const uniqueViolation = pq.ErrorCode("23505")

// LockEntity serializes appends for one entity by taking a transaction-scoped
// advisory lock on its ID. The lock is released automatically at commit or
// rollback; it must therefore be called inside an enclosing transaction.
// Appends for different entities take different locks and proceed in
// parallel.
func (s *PostgresStore) LockEntity(ctx context.Context, entityID id.EntityID) error {
	if _, ok := txcontext.From(ctx); !ok {
		return fmt.Errorf("lock entity: no transaction in context")
	}
	_, err := s.handle(ctx).ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		entityID.String(),
	)
	if err != nil {
		return fmt.Errorf("lock entity: %w", err)
	}
	return nil
}

// Insert commits one event and assigns its Seq. Returns sentinel.ErrConflict
// when another append for the same entity already extended the same head.
func (s *PostgresStore) Insert(ctx context.Context, event *models.LedgerEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	var actorID any
	if !event.ActorID.IsNil() {
		actorID = uuid.UUID(event.ActorID)
	}

	query := `
		INSERT INTO ledger_events (
			id, event_type, actor_id, actor_role, entity_id, entity_type,
			payload, occurred_at, previous_hash, hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq
	`
	err = s.handle(ctx).QueryRowContext(ctx, query,
		uuid.UUID(event.ID),
		event.EventType,
		actorID,
		nullString(event.ActorRole),
		uuid.UUID(event.EntityID),
		event.EntityType,
		payloadBytes,
		event.OccurredAt,
		nullString(event.PreviousHash),
		event.Hash,
	).Scan(&event.Seq)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("insert ledger event: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

// Head returns the most recently committed event for the entity, ordered by
// occurred_at with insertion order as tiebreak. Returns sentinel.ErrNotFound
// for an entity with no events (genesis case).
func (s *PostgresStore) Head(ctx context.Context, entityID id.EntityID) (*models.LedgerEvent, error) {
	query := selectColumns + `
		WHERE entity_id = $1
		ORDER BY occurred_at DESC, seq DESC
		LIMIT 1
	`
	row := s.handle(ctx).QueryRowContext(ctx, query, uuid.UUID(entityID))
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("query chain head: %w", err)
	}
	return event, nil
}

// ListByEntity returns up to limit events for the entity with seq greater
// than afterSeq, in chain order. Pass afterSeq 0 to start from genesis.
func (s *PostgresStore) ListByEntity(ctx context.Context, entityID id.EntityID, afterSeq int64, limit int) ([]models.LedgerEvent, error) {
	query := selectColumns + `
		WHERE entity_id = $1 AND seq > $2
		ORDER BY occurred_at, seq
		LIMIT $3
	`
	rows, err := s.handle(ctx).QueryContext(ctx, query, uuid.UUID(entityID), afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ChainByEntity returns the entity's full chain in order, read inside a
// single repeatable-read transaction so verification never observes a
// half-committed chain even while appends are in flight.
func (s *PostgresStore) ChainByEntity(ctx context.Context, entityID id.EntityID) ([]models.LedgerEvent, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("begin chain read: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := selectColumns + `
		WHERE entity_id = $1
		ORDER BY occurred_at, seq
	`
	rows, err := tx.QueryContext(ctx, query, uuid.UUID(entityID))
	if err != nil {
		return nil, fmt.Errorf("query entity chain: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit chain read: %w", err)
	}
	return events, nil
}

const selectColumns = `
	SELECT id, seq, event_type, actor_id, actor_role, entity_id, entity_type,
	       payload, occurred_at, previous_hash, hash
	FROM ledger_events
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.LedgerEvent, error) {
	var (
		event        models.LedgerEvent
		eventID      uuid.UUID
		entityID     uuid.UUID
		actorID      *uuid.UUID
		actorRole    sql.NullString
		payloadBytes []byte
		previousHash sql.NullString
	)
	err := row.Scan(
		&eventID,
		&event.Seq,
		&event.EventType,
		&actorID,
		&actorRole,
		&entityID,
		&event.EntityType,
		&payloadBytes,
		&event.OccurredAt,
		&previousHash,
		&event.Hash,
	)
	if err != nil {
		return nil, err
	}

	event.ID = id.EventID(eventID)
	event.EntityID = id.EntityID(entityID)
	if actorID != nil {
		event.ActorID = id.ActorID(*actorID)
	}
	event.ActorRole = actorRole.String
	event.PreviousHash = previousHash.String
	event.OccurredAt = event.OccurredAt.UTC()
	if err := json.Unmarshal(payloadBytes, &event.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal event payload: %w", err)
	}
	return &event, nil
}

func scanEvents(rows *sql.Rows) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
