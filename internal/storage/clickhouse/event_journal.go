package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/holiman/uint256"

	"nft-market-ledger/internal/domain"
	"nft-market-ledger/internal/storage"
)

// EventJournal implements storage.EventJournal using ClickHouse.
type EventJournal struct {
	conn *Conn
}

// NewEventJournal creates a new EventJournal.
func NewEventJournal(conn *Conn) *EventJournal {
	return &EventJournal{conn: conn}
}

// Compile-time interface check.
var _ storage.EventJournal = (*EventJournal)(nil)

const eventColumns = `seq, event_id, event_type, token_id, listing_id, actor, counterparty, amount, locator, emitted_at`

// Append adds one event. Returns ErrDuplicateKey if its seq exists.
func (j *EventJournal) Append(ctx context.Context, e *domain.Event) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	// MergeTree does not enforce uniqueness; check before insert to keep
	// append-only semantics.
	exists, err := j.exists(ctx, e.Seq)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO ledger_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err = j.conn.Exec(ctx, query,
		e.Seq,
		e.EventID,
		string(e.Type),
		e.TokenID,
		e.ListingID,
		string(e.Actor),
		string(e.Counterparty),
		amountString(e),
		e.Locator,
		e.EmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// AppendBulk adds multiple events. Fails the entire batch on any duplicate.
func (j *EventJournal) AppendBulk(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	seqs := make([]uint64, 0, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		seqs = append(seqs, e.Seq)
	}

	var count uint64
	err := j.conn.QueryRow(ctx,
		`SELECT count() FROM ledger_events WHERE seq IN (?)`, seqs,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("check batch duplicates: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := j.conn.PrepareBatch(ctx,
		`INSERT INTO ledger_events (`+eventColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err := batch.Append(
			e.Seq,
			e.EventID,
			string(e.Type),
			e.TokenID,
			e.ListingID,
			string(e.Actor),
			string(e.Counterparty),
			amountString(e),
			e.Locator,
			e.EmittedAt,
		)
		if err != nil {
			return fmt.Errorf("append event %d to batch: %w", e.Seq, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetAll retrieves every event, ordered by seq ASC.
func (j *EventJournal) GetAll(ctx context.Context) ([]*domain.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ledger_events
		ORDER BY seq ASC
	`

	rows, err := j.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTokenID retrieves all events touching a token, ordered by seq ASC.
func (j *EventJournal) GetByTokenID(ctx context.Context, tokenID uint64) ([]*domain.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ledger_events
		WHERE token_id = ?
		ORDER BY seq ASC
	`

	rows, err := j.conn.Query(ctx, query, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get events by token: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetBySeqRange retrieves events with seq within [start, end] (inclusive).
func (j *EventJournal) GetBySeqRange(ctx context.Context, start, end uint64) ([]*domain.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ledger_events
		WHERE seq >= ? AND seq <= ?
		ORDER BY seq ASC
	`

	rows, err := j.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get events by seq range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// exists checks whether an event with the given seq is already stored.
func (j *EventJournal) exists(ctx context.Context, seq uint64) (bool, error) {
	var count uint64
	err := j.conn.QueryRow(ctx,
		`SELECT count() FROM ledger_events WHERE seq = ?`, seq,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanEvents scans rows into a slice of Event.
func scanEvents(rows driver.Rows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		var e domain.Event
		var eventType, actor, counterparty, amount string

		err := rows.Scan(
			&e.Seq,
			&e.EventID,
			&eventType,
			&e.TokenID,
			&e.ListingID,
			&actor,
			&counterparty,
			&amount,
			&e.Locator,
			&e.EmittedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Type = domain.EventType(eventType)
		e.Actor = domain.Address(actor)
		e.Counterparty = domain.Address(counterparty)
		if amount != "" {
			e.Amount, err = uint256.FromDecimal(amount)
			if err != nil {
				return nil, fmt.Errorf("parse event amount %q: %w", amount, err)
			}
		}

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}

// amountString renders the event amount for storage; empty when absent.
func amountString(e *domain.Event) string {
	if e.Amount == nil {
		return ""
	}
	return e.Amount.Dec()
}
