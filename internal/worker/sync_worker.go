package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tally/internal/amqp"
	"tally/internal/backend"
	"tally/internal/core"
	"tally/internal/store"
)

// DefaultClockSkew is how far the publisher's clock may run behind the
// worker's before a change could be wrongly taken as already mirrored.
const DefaultClockSkew = 30 * time.Second

// Consumer delivers ledger change messages until ctx is done.
type Consumer interface {
	ConsumeLedgerChanged(ctx context.Context, handler func(context.Context, *amqp.LedgerChangedMessage) error) error
}

// SyncWorker mirrors the consolidated books of the primary backend into a
// wide-table store, normally a Google Sheet. Each sync rewrites the whole
// sheet, so a message only says which book to refresh.
type SyncWorker struct {
	primary *backend.Backend
	mirror  store.SnapshotStore
	timeout time.Duration
	skew    time.Duration

	mu       sync.Mutex
	syncedAt map[core.Book]time.Time
	now      func() time.Time
}

func NewSyncWorker(primary *backend.Backend, mirror store.SnapshotStore, timeout time.Duration) *SyncWorker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SyncWorker{
		primary:  primary,
		mirror:   mirror,
		timeout:  timeout,
		skew:     DefaultClockSkew,
		syncedAt: map[core.Book]time.Time{},
		now:      time.Now,
	}
}

// SetClockSkew sets how far publisher and worker clocks may disagree.
// Negative values count as zero.
func (w *SyncWorker) SetClockSkew(d time.Duration) {
	w.skew = max(d, 0)
}

// HandleLedgerChanged processes a single change message from AMQP. A
// message published more than the clock skew before the last completed sync
// of its book started is already reflected in the mirror and is skipped.
// The timestamp comes from the publisher's clock, so anything closer than
// that is synced again.
func (w *SyncWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	w.mu.Lock()
	last := w.syncedAt[msg.Book]
	w.mu.Unlock()

	if !last.IsZero() && msg.Timestamp.Before(last.Add(-w.skew)) {
		slog.DebugContext(ctx, "Skipping change already mirrored",
			"book", msg.Book,
			"operation", msg.Operation,
			"published_at", msg.Timestamp)
		return nil
	}

	slog.InfoContext(ctx, "Processing ledger change",
		"book", msg.Book,
		"operation", msg.Operation)
	return w.SyncBook(ctx, msg.Book)
}

// SyncBook copies one book from the primary backend to the mirror.
func (w *SyncWorker) SyncBook(ctx context.Context, book core.Book) error {
	started := w.now()

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	snap, _, err := w.primary.Load(ctx, book)
	if err != nil {
		return fmt.Errorf("load %s from primary: %w", book, err)
	}
	if err := w.mirror.SaveSnapshot(ctx, book, snap); err != nil {
		return fmt.Errorf("save %s to mirror: %w", book, err)
	}

	w.mu.Lock()
	if started.After(w.syncedAt[book]) {
		w.syncedAt[book] = started
	}
	w.mu.Unlock()

	slog.InfoContext(ctx, "Successfully mirrored book",
		"book", book,
		"rows", snap.Len(),
		"categories", len(snap.Categories()))
	return nil
}

// SyncAll mirrors both books. It is run at startup to recover from missed
// messages or worker downtime, and periodically as a backstop.
func (w *SyncWorker) SyncAll(ctx context.Context) error {
	var errs []error
	for _, book := range []core.Book{core.Expenses, core.Income} {
		if err := w.SyncBook(ctx, book); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror book", "book", book, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("sync all: %v", errs)
	}
	return nil
}

// Run performs a startup sync, then consumes messages and resyncs every
// interval until ctx is done. A zero interval disables the periodic resync.
func (w *SyncWorker) Run(ctx context.Context, consumer Consumer, interval time.Duration) error {
	slog.InfoContext(ctx, "Performing startup sync check...")
	if err := w.SyncAll(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed startup sync check", "error", err)
	}

	if interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := w.SyncAll(ctx); err != nil {
						slog.ErrorContext(ctx, "Periodic sync failed", "error", err)
					}
				}
			}
		}()
	}

	return consumer.ConsumeLedgerChanged(ctx, w.HandleLedgerChanged)
}
