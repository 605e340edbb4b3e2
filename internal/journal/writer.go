// Package journal bridges the ledger's synchronous event stream to the
// durable event journal. The writer buffers events and appends them in
// batches from a background goroutine, so the ledger core never performs
// storage I/O under its lock.
package journal

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"nft-market-ledger/internal/domain"
	"nft-market-ledger/internal/ledger"
	"nft-market-ledger/internal/observability"
	"nft-market-ledger/internal/storage"
)

// WriterConfig configures buffering and flush behavior.
type WriterConfig struct {
	// Buffer is the size of the inbound event channel. When it fills,
	// Publish blocks rather than lose events; the journal is the durable
	// record of the ledger.
	Buffer int
	// BatchSize flushes as soon as this many events are pending.
	BatchSize int
	// FlushInterval flushes whatever is pending on this cadence.
	FlushInterval time.Duration
	// StopTimeout bounds the final drain during Stop.
	StopTimeout time.Duration
}

// DefaultWriterConfig returns default writer configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Buffer:        65536,
		BatchSize:     256,
		FlushInterval: 1 * time.Second,
		StopTimeout:   30 * time.Second,
	}
}

// Writer is the ledger event sink that feeds the journal.
type Writer struct {
	cfg     WriterConfig
	journal storage.EventJournal
	logger  *log.Logger

	events chan *domain.Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewWriter creates a writer. Call Start before registering it as a sink.
func NewWriter(cfg WriterConfig, j storage.EventJournal, logger *log.Logger) *Writer {
	return &Writer{
		cfg:     cfg,
		journal: j,
		logger:  logger,
		events:  make(chan *domain.Event, cfg.Buffer),
		done:    make(chan struct{}),
	}
}

// Compile-time interface check.
var _ ledger.EventSink = (*Writer)(nil)

// Publish queues an event for appending. Blocks if the buffer is full:
// durability wins over latency here, and the buffer absorbs any realistic
// burst long before that happens.
func (w *Writer) Publish(e *domain.Event) {
	select {
	case w.events <- e:
	case <-w.done:
	}
}

// Start launches the flush loop.
func (w *Writer) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop drains the buffer, flushes everything pending, and stops the loop.
// Safe to call more than once.
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
}

// run owns the pending batch. Events accumulate until the batch fills or
// the flush ticker fires; a failed flush keeps the batch for retry.
func (w *Writer) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	var pending []*domain.Event

	for {
		select {
		case e := <-w.events:
			pending = append(pending, e)
			observability.SetJournalBacklog(len(pending) + len(w.events))
			if len(pending) >= w.cfg.BatchSize {
				pending = w.flush(pending)
			}

		case <-ticker.C:
			pending = w.flush(pending)

		case <-w.done:
			// Drain whatever Publish got in before done closed.
			for {
				select {
				case e := <-w.events:
					pending = append(pending, e)
					continue
				default:
				}
				break
			}
			w.finalFlush(pending)
			return
		}
	}
}

// flush appends the pending batch. On failure the batch is kept and retried
// on the next tick; on a duplicate-key conflict it falls back to per-event
// appends so already-journaled events do not wedge the rest.
func (w *Writer) flush(pending []*domain.Event) []*domain.Event {
	if len(pending) == 0 {
		return pending
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushInterval)
	defer cancel()

	start := time.Now()
	err := w.journal.AppendBulk(ctx, pending)
	observability.RecordJournalAppend(time.Since(start).Seconds(), err)

	switch {
	case err == nil:
		observability.SetJournalBacklog(len(w.events))
		return pending[:0]

	case errors.Is(err, storage.ErrDuplicateKey):
		remaining := w.appendIndividually(ctx, pending)
		observability.SetJournalBacklog(len(remaining) + len(w.events))
		return remaining

	default:
		w.logger.Printf("journal flush of %d events failed, will retry: %v", len(pending), err)
		return pending
	}
}

// appendIndividually writes events one at a time, dropping duplicates and
// keeping everything from the first hard failure onward for retry.
func (w *Writer) appendIndividually(ctx context.Context, pending []*domain.Event) []*domain.Event {
	for i, e := range pending {
		err := w.journal.Append(ctx, e)
		if err == nil || errors.Is(err, storage.ErrDuplicateKey) {
			continue
		}
		w.logger.Printf("journal append seq=%d failed, will retry: %v", e.Seq, err)
		return append(pending[:0], pending[i:]...)
	}
	return pending[:0]
}

// finalFlush makes a bounded last attempt to persist everything pending.
func (w *Writer) finalFlush(pending []*domain.Event) {
	if len(pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.StopTimeout)
	defer cancel()

	start := time.Now()
	err := w.journal.AppendBulk(ctx, pending)
	observability.RecordJournalAppend(time.Since(start).Seconds(), err)

	if errors.Is(err, storage.ErrDuplicateKey) {
		pending = w.appendIndividually(ctx, pending)
		err = nil
	}
	if err != nil || len(pending) > 0 {
		w.logger.Printf("journal final flush left %d events unpersisted: %v", len(pending), err)
	}
	observability.SetJournalBacklog(0)
}
