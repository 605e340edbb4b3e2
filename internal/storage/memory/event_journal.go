package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"nft-market-ledger/internal/domain"
	"nft-market-ledger/internal/storage"
)

// EventJournal is an in-memory implementation of storage.EventJournal.
type EventJournal struct {
	mu   sync.RWMutex
	data map[uint64]*domain.Event // keyed by seq
}

// NewEventJournal creates a new in-memory event journal.
func NewEventJournal() *EventJournal {
	return &EventJournal{
		data: make(map[uint64]*domain.Event),
	}
}

// Append adds one event. Returns ErrDuplicateKey if its seq exists.
func (j *EventJournal) Append(_ context.Context, e *domain.Event) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.data[e.Seq]; exists {
		return storage.ErrDuplicateKey
	}

	j.data[e.Seq] = copyEvent(e)
	return nil
}

// AppendBulk adds multiple events. Fails the entire batch on any duplicate.
func (j *EventJournal) AppendBulk(_ context.Context, events []*domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := j.data[e.Seq]; exists {
			return storage.ErrDuplicateKey
		}
	}

	for _, e := range events {
		j.data[e.Seq] = copyEvent(e)
	}
	return nil
}

// GetAll retrieves every event, ordered by seq ASC.
func (j *EventJournal) GetAll(_ context.Context) ([]*domain.Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	result := make([]*domain.Event, 0, len(j.data))
	for _, e := range j.data {
		result = append(result, copyEvent(e))
	}
	sortBySeq(result)
	return result, nil
}

// GetByTokenID retrieves all events touching a token, ordered by seq ASC.
func (j *EventJournal) GetByTokenID(_ context.Context, tokenID uint64) ([]*domain.Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*domain.Event
	for _, e := range j.data {
		if e.TokenID != nil && *e.TokenID == tokenID {
			result = append(result, copyEvent(e))
		}
	}
	sortBySeq(result)
	return result, nil
}

// GetBySeqRange retrieves events with seq within [start, end] (inclusive).
func (j *EventJournal) GetBySeqRange(_ context.Context, start, end uint64) ([]*domain.Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*domain.Event
	for seq, e := range j.data {
		if seq >= start && seq <= end {
			result = append(result, copyEvent(e))
		}
	}
	sortBySeq(result)
	return result, nil
}

func sortBySeq(events []*domain.Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Seq < events[j].Seq
	})
}

// copyEvent deep-copies an event so stored records cannot be mutated
// through retained pointers.
func copyEvent(e *domain.Event) *domain.Event {
	eventCopy := *e
	if e.TokenID != nil {
		id := *e.TokenID
		eventCopy.TokenID = &id
	}
	if e.ListingID != nil {
		id := *e.ListingID
		eventCopy.ListingID = &id
	}
	if e.Amount != nil {
		eventCopy.Amount = new(uint256.Int).Set(e.Amount)
	}
	return &eventCopy
}

// Verify interface compliance at compile time.
var _ storage.EventJournal = (*EventJournal)(nil)
