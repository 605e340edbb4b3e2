package storage

import (
	"context"

	"nft-market-ledger/internal/domain"
)

// SnapshotStore persists full ledger checkpoints. The live ledger is the
// in-memory state machine; the store only ever sees whole snapshots, never
// partial mutations, so a checkpoint is always internally consistent.
type SnapshotStore interface {
	// Save atomically replaces the persisted checkpoint with snap.
	Save(ctx context.Context, snap *domain.Snapshot) error

	// Load returns the latest persisted checkpoint.
	// Returns ErrNotFound when no checkpoint has been saved yet.
	Load(ctx context.Context) (*domain.Snapshot, error)
}

// EventJournal is the append-only archive of the ledger event stream.
type EventJournal interface {
	// Append adds one event. Returns ErrDuplicateKey if its seq exists.
	Append(ctx context.Context, e *domain.Event) error

	// AppendBulk adds multiple events. Fails the entire batch on any duplicate.
	AppendBulk(ctx context.Context, events []*domain.Event) error

	// GetAll retrieves every event, ordered by seq ASC.
	GetAll(ctx context.Context) ([]*domain.Event, error)

	// GetByTokenID retrieves all events touching a token, ordered by seq ASC.
	GetByTokenID(ctx context.Context, tokenID uint64) ([]*domain.Event, error)

	// GetBySeqRange retrieves events with seq within [start, end] (inclusive),
	// ordered by seq ASC.
	GetBySeqRange(ctx context.Context, start, end uint64) ([]*domain.Event, error)
}
