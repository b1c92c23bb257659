package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/amqp"
	"tally/internal/backend"
	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/store/memory"
)

type fakeMirror struct {
	mu    sync.Mutex
	saved map[core.Book]ledger.Snapshot
	saves int
	err   error
}

func (m *fakeMirror) LoadSnapshot(_ context.Context, book core.Book) (ledger.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[book], nil
}

func (m *fakeMirror) SaveSnapshot(_ context.Context, book core.Book, s ledger.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.saved == nil {
		m.saved = map[core.Book]ledger.Snapshot{}
	}
	m.saved[book] = s
	m.saves++
	return nil
}

type fakeConsumer struct {
	msgs []*amqp.LedgerChangedMessage
	errs []error
}

func (c *fakeConsumer) ConsumeLedgerChanged(ctx context.Context, handler func(context.Context, *amqp.LedgerChangedMessage) error) error {
	for _, m := range c.msgs {
		c.errs = append(c.errs, handler(ctx, m))
	}
	return context.Canceled
}

func seeded(t *testing.T) *backend.Backend {
	t.Helper()
	m := memory.New(nil)
	add := func(book core.Book, day int, cat, amount string) {
		require.NoError(t, m.AppendEntry(context.Background(), book, core.Entry{
			ID:       cat + amount,
			Date:     core.NewDate(2024, 1, day),
			Category: cat,
			Amount:   decimal.RequireFromString(amount),
		}))
	}
	add(core.Expenses, 1, "Food", "20")
	add(core.Expenses, 1, "Food", "5")
	add(core.Income, 1, "Salary", "1000")
	return &backend.Backend{Type: backend.MemoryBackend, Entries: m, Taxonomy: m}
}

func TestSyncBook_MirrorsConsolidatedSnapshot(t *testing.T) {
	mirror := &fakeMirror{}
	w := NewSyncWorker(seeded(t), mirror, time.Second)

	require.NoError(t, w.SyncBook(context.Background(), core.Expenses))

	got := mirror.saved[core.Expenses]
	assert.True(t, got.Cell(core.NewDate(2024, 1, 1), "Food").Decimal.Equal(decimal.NewFromInt(25)))
	_, ok := mirror.saved[core.Income]
	assert.False(t, ok)
}

func TestHandleLedgerChanged_SkipsStaleMessages(t *testing.T) {
	mirror := &fakeMirror{}
	w := NewSyncWorker(seeded(t), mirror, time.Second)
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	fresh := &amqp.LedgerChangedMessage{Book: core.Expenses, Operation: "submit", Timestamp: clock.Add(-time.Second)}
	require.NoError(t, w.HandleLedgerChanged(context.Background(), fresh))
	assert.Equal(t, 1, mirror.saves)

	// Published well before the sync above started: already mirrored.
	old := &amqp.LedgerChangedMessage{Book: core.Expenses, Operation: "submit", Timestamp: clock.Add(-time.Minute)}
	require.NoError(t, w.HandleLedgerChanged(context.Background(), old))
	assert.Equal(t, 1, mirror.saves)

	later := &amqp.LedgerChangedMessage{Book: core.Expenses, Operation: "delete_cell", Timestamp: clock.Add(time.Second)}
	require.NoError(t, w.HandleLedgerChanged(context.Background(), later))
	assert.Equal(t, 2, mirror.saves)
}

func TestHandleLedgerChanged_LaggingPublisherClock(t *testing.T) {
	mirror := &fakeMirror{}
	w := NewSyncWorker(seeded(t), mirror, time.Second)
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	require.NoError(t, w.SyncBook(context.Background(), core.Expenses))
	require.Equal(t, 1, mirror.saves)

	// The web process clock runs 10s behind: a change made after the sync
	// carries a timestamp from before it.
	lagging := &amqp.LedgerChangedMessage{Book: core.Expenses, Operation: "submit", Timestamp: clock.Add(-10 * time.Second)}
	require.NoError(t, w.HandleLedgerChanged(context.Background(), lagging))
	assert.Equal(t, 2, mirror.saves)

	w.SetClockSkew(0)
	require.NoError(t, w.HandleLedgerChanged(context.Background(), lagging))
	assert.Equal(t, 2, mirror.saves)

	w.SetClockSkew(-time.Second)
	assert.Equal(t, time.Duration(0), w.skew)
}

func TestHandleLedgerChanged_MirrorErrorIsReturned(t *testing.T) {
	mirror := &fakeMirror{err: errors.New("quota exceeded")}
	w := NewSyncWorker(seeded(t), mirror, time.Second)

	err := w.HandleLedgerChanged(context.Background(), amqp.NewLedgerChangedMessage(core.Income, "submit"))
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestRun_StartupSyncThenConsume(t *testing.T) {
	mirror := &fakeMirror{}
	w := NewSyncWorker(seeded(t), mirror, time.Second)
	consumer := &fakeConsumer{msgs: []*amqp.LedgerChangedMessage{
		{Book: core.Income, Operation: "submit", Timestamp: time.Now().Add(time.Hour)},
	}}

	err := w.Run(context.Background(), consumer, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, mirror.saves, "two books at startup plus one message")
	require.Len(t, consumer.errs, 1)
	assert.NoError(t, consumer.errs[0])
}
