package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tally/internal/backend"
	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/log"
)

const (
	// DefaultTimeout bounds every store call made for one user action.
	DefaultTimeout = 7 * time.Second

	viewCacheKey  = "view"
	viewCacheSize = 4
)

// SubmitInput is one form submission, as typed by the user.
type SubmitInput struct {
	Date        string
	Category    string
	Amount      string
	Description string
}

// BookView is everything the UI renders for one book.
type BookView struct {
	Book     core.Book
	Snapshot ledger.Snapshot
	Totals   ledger.Totals
	Shares   []ledger.Share
	Entries  []core.Entry
}

// View is the state of both books plus the form suggestions.
type View struct {
	Expenses  BookView
	Income    BookView
	Remaining decimal.Decimal
	// Categories suggests expense categories: seeds first, then any
	// category already in use.
	Categories []string
	// Sources lists income sources already in use.
	Sources []string
	// EntryIDs is false for wide-table backends, whose entries are
	// synthesized from cells and can only be deleted by value.
	EntryIDs bool
	Backend  string
}

// Book returns the view of b.
func (v View) Book(b core.Book) BookView {
	if b == core.Income {
		return v.Income
	}
	return v.Expenses
}

// Config tunes a LedgerService. Zero values select the defaults.
type Config struct {
	Timeout      time.Duration
	ViewCacheTTL time.Duration
	Publisher    backend.Publisher
	Logger       *log.Logger
}

// LedgerService runs one read-modify-write cycle per user action against
// the configured backend. Mutations are serialized.
type LedgerService struct {
	mu        sync.Mutex
	backend   *backend.Backend
	publisher backend.Publisher
	timeout   time.Duration
	views     *cache.LRUCache[View]
	logger    *log.Logger

	// gen counts writes. A view loaded across a write is not cached.
	gen atomic.Uint64

	now   func() time.Time
	newID func() string
}

func NewLedgerService(b *backend.Backend, cfg Config) *LedgerService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &LedgerService{
		backend:   b,
		publisher: cfg.Publisher,
		timeout:   cfg.Timeout,
		views:     cache.NewLRUCache[View](viewCacheSize, cfg.ViewCacheTTL),
		logger:    logger.WithComponent(log.ComponentLedger),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// ViewCache exposes the view cache so its expired items can be cleaned
// periodically.
func (s *LedgerService) ViewCache() cache.Cleaner {
	return s.views
}

// Backend returns the backend the service runs on.
func (s *LedgerService) Backend() *backend.Backend {
	return s.backend
}

// Submit validates and records one entry, then returns the new view.
func (s *LedgerService) Submit(ctx context.Context, book core.Book, in SubmitInput) (View, error) {
	e, err := ParseSubmitInput(in)
	if err != nil {
		return View{}, err
	}
	if _, err := s.Record(ctx, book, e); err != nil {
		return View{}, err
	}
	return s.View(ctx)
}

// ParseSubmitInput turns raw form values into a validated entry without ID.
func ParseSubmitInput(in SubmitInput) (core.Entry, error) {
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return core.Entry{}, err
	}
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Entry{}, err
	}
	e := core.Entry{
		Date:        date,
		Category:    core.NormalizeCategory(in.Category),
		Amount:      amount,
		Description: core.NormalizeDescription(in.Description),
	}
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}
	return e, nil
}

// Record stores an already parsed entry, assigning its ID and creation time
// when missing. It is the write path of Submit and of workbook imports.
func (s *LedgerService) Record(ctx context.Context, book core.Book, e core.Entry) (core.Entry, error) {
	if !book.IsValid() {
		return core.Entry{}, &core.ValidationError{Field: "book", Reason: "unknown book " + book.String()}
	}
	e.Category = core.NormalizeCategory(e.Category)
	e.Amount = e.Amount.Round(core.AmountPlaces)
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.backend.Snapshots != nil {
		snap, _, err := s.backend.Load(ctx, book)
		if err != nil {
			return core.Entry{}, err
		}
		next, err := ledger.Upsert(snap, e.Date, e.Category, e.Amount)
		if err != nil {
			return core.Entry{}, err
		}
		if err := s.save(ctx, book, next); err != nil {
			return core.Entry{}, err
		}
	} else if err := s.backend.Entries.AppendEntry(ctx, book, e); err != nil {
		return core.Entry{}, s.storeError(err)
	}

	s.changed(ctx, book, log.OpSubmit)
	s.logger.EntryRecorded(ctx, book, e)
	return e, nil
}

// DeleteCell clears one (date, category) cell. On append-only backends every
// entry behind the cell is removed.
func (s *LedgerService) DeleteCell(ctx context.Context, book core.Book, date core.Date, category string) (View, error) {
	category = core.NormalizeCategory(category)
	err := s.mutate(ctx, book, log.OpDeleteCell, func(ctx context.Context, snap ledger.Snapshot, _ []core.Entry) (int, error) {
		next, err := ledger.DeleteCell(snap, date, category)
		if err != nil {
			return 0, err
		}
		if s.backend.Snapshots != nil {
			return 1, s.save(ctx, book, next)
		}
		return s.deleteWhere(ctx, book, core.EntryFilter{Date: date, Category: category})
	})
	if err != nil {
		return View{}, err
	}
	return s.View(ctx)
}

// DeleteCategory removes a whole column. On append-only backends every
// entry of the category is removed.
func (s *LedgerService) DeleteCategory(ctx context.Context, book core.Book, category string) (View, error) {
	category = core.NormalizeCategory(category)
	err := s.mutate(ctx, book, log.OpDeleteCategory, func(ctx context.Context, snap ledger.Snapshot, _ []core.Entry) (int, error) {
		next, err := ledger.DeleteCategory(snap, category)
		if err != nil {
			return 0, err
		}
		if s.backend.Snapshots != nil {
			return 1, s.save(ctx, book, next)
		}
		return s.deleteWhere(ctx, book, core.EntryFilter{Category: category})
	})
	if err != nil {
		return View{}, err
	}
	return s.View(ctx)
}

// DeleteEntry removes exactly one entry by ID. Wide-table backends hold no
// IDs, so every ID is unknown to them.
func (s *LedgerService) DeleteEntry(ctx context.Context, book core.Book, id string) (View, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return View{}, &core.ValidationError{Field: "id", Reason: "empty entry id"}
	}
	err := s.mutate(ctx, book, log.OpDeleteEntry, func(ctx context.Context, _ ledger.Snapshot, entries []core.Entry) (int, error) {
		if s.backend.Entries == nil {
			return 0, &core.NotFoundError{What: "entry", Key: id}
		}
		if _, err := ledger.DeleteEntryByID(entries, id); err != nil {
			return 0, err
		}
		if err := s.backend.Entries.DeleteEntry(ctx, book, id); err != nil {
			return 0, s.storeError(err)
		}
		return 1, nil
	})
	if err != nil {
		return View{}, err
	}
	return s.View(ctx)
}

// DeleteByValue removes every entry matching the filter, duplicates
// included, and reports how many went. On wide-table backends an entry is a
// cell, so a match clears the cell.
func (s *LedgerService) DeleteByValue(ctx context.Context, book core.Book, f core.EntryFilter) (View, int, error) {
	if f.IsEmpty() {
		return View{}, 0, &core.ValidationError{Field: "match", Reason: "at least one of date, category, amount or description is required"}
	}
	var removed int
	err := s.mutate(ctx, book, log.OpDeleteByValue, func(ctx context.Context, snap ledger.Snapshot, entries []core.Entry) (int, error) {
		var matched []core.Entry
		for _, e := range entries {
			if f.Matches(e) {
				matched = append(matched, e)
			}
		}
		if len(matched) == 0 {
			return 0, &core.NotFoundError{What: "entry", Key: describeFilter(f)}
		}

		if s.backend.Snapshots != nil {
			next := snap
			for _, e := range matched {
				var err error
				if next, err = ledger.DeleteCell(next, e.Date, e.Category); err != nil {
					return 0, err
				}
			}
			removed = len(matched)
			return removed, s.save(ctx, book, next)
		}
		n, err := s.deleteWhere(ctx, book, f)
		removed = n
		return n, err
	})
	if err != nil {
		return View{}, 0, err
	}
	v, err := s.View(ctx)
	return v, removed, err
}

// View loads both books and derives totals and shares. Results are cached
// briefly; every mutation purges the cache.
func (s *LedgerService) View(ctx context.Context) (View, error) {
	if v, ok := s.views.Get(viewCacheKey); ok {
		return v, nil
	}
	gen := s.gen.Load()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	expenses, err := s.bookView(ctx, core.Expenses)
	if err != nil {
		return View{}, err
	}
	income, err := s.bookView(ctx, core.Income)
	if err != nil {
		return View{}, err
	}

	var seeds []string
	if s.backend.Taxonomy != nil {
		if seeds, err = s.backend.Taxonomy.SeedCategories(ctx); err != nil {
			s.logger.WarnContext(ctx, "Failed to load seed categories", log.FieldError, err)
		}
	}

	v := View{
		Expenses:   expenses,
		Income:     income,
		Remaining:  income.Totals.Grand.Sub(expenses.Totals.Grand),
		Categories: mergeCategories(seeds, expenses.Snapshot.Categories()),
		Sources:    income.Snapshot.Categories(),
		EntryIDs:   s.backend.HasEntryIDs(),
		Backend:    s.backend.Type.String(),
	}
	s.views.Set(viewCacheKey, v)
	if s.gen.Load() != gen {
		s.views.Delete(viewCacheKey)
	}
	return v, nil
}

// Export returns the entries of a book for download: raw entries on
// append-only backends, one entry per written cell on wide-table ones.
func (s *LedgerService) Export(ctx context.Context, book core.Book) ([]core.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, entries, err := s.backend.Load(ctx, book)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "Exporting book", log.FieldBook, book, "entries", len(entries))
	return entries, nil
}

// Ready reports whether the backend answers.
func (s *LedgerService) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.backend.Ping(ctx)
}

// mutate loads the book, hands it to apply and, when apply wrote anything,
// purges the view cache and publishes the change. A failed load means no
// write is attempted.
func (s *LedgerService) mutate(ctx context.Context, book core.Book, op string,
	apply func(ctx context.Context, snap ledger.Snapshot, entries []core.Entry) (int, error)) error {
	if !book.IsValid() {
		return &core.ValidationError{Field: "book", Reason: "unknown book " + book.String()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snap, entries, err := s.backend.Load(ctx, book)
	if err != nil {
		s.logger.OperationFailed(ctx, "Failed to load book", op, err, log.LogFields{log.FieldBook: book.String()})
		return err
	}

	n, err := apply(ctx, snap, entries)
	if err != nil {
		if n > 0 {
			s.invalidate()
		}
		s.logger.OperationFailed(ctx, "Ledger update failed", op, err,
			log.LogFields{log.FieldBook: book.String(), log.FieldRemoved: n})
		return err
	}

	s.changed(ctx, book, op)
	s.logger.InfoContext(ctx, "Ledger updated",
		log.FieldOperation, op,
		log.FieldBook, book,
		log.FieldRemoved, n)
	return nil
}

func (s *LedgerService) bookView(ctx context.Context, book core.Book) (BookView, error) {
	snap, entries, err := s.backend.Load(ctx, book)
	if err != nil {
		return BookView{}, err
	}
	return BookView{
		Book:     book,
		Snapshot: snap,
		Totals:   ledger.ComputeTotals(snap),
		Shares:   ledger.Shares(snap),
		Entries:  entries,
	}, nil
}

func (s *LedgerService) save(ctx context.Context, book core.Book, snap ledger.Snapshot) error {
	if err := s.backend.Snapshots.SaveSnapshot(ctx, book, snap); err != nil {
		return s.storeError(err)
	}
	return nil
}

func (s *LedgerService) deleteWhere(ctx context.Context, book core.Book, f core.EntryFilter) (int, error) {
	n, err := s.backend.Entries.DeleteWhere(ctx, book, f)
	if err != nil {
		return n, s.storeError(err)
	}
	return n, nil
}

// storeError keeps typed domain errors and reports everything else as the
// backend being unavailable.
func (s *LedgerService) storeError(err error) error {
	if core.IsDomainError(err) {
		return err
	}
	return core.Unavailable(s.backend.Type.String(), err)
}

// changed runs after every successful write.
func (s *LedgerService) changed(ctx context.Context, book core.Book, op string) {
	s.invalidate()
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerChanged(ctx, book, op); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger change",
			log.FieldBook, book,
			log.FieldOperation, op,
			log.FieldError, err)
	}
}

// invalidate drops the cached view. The generation moves first so a View
// still loading the old state never stores it after the purge.
func (s *LedgerService) invalidate() {
	s.gen.Add(1)
	s.views.Purge()
}

func mergeCategories(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range lists {
		for _, c := range list {
			c = core.NormalizeCategory(c)
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func describeFilter(f core.EntryFilter) string {
	var parts []string
	if !f.Date.IsZero() {
		parts = append(parts, f.Date.String())
	}
	if f.Category != "" {
		parts = append(parts, core.NormalizeCategory(f.Category))
	}
	if f.Amount.Valid {
		parts = append(parts, core.FormatAmount(f.Amount.Decimal))
	}
	if f.Description != nil {
		parts = append(parts, fmt.Sprintf("%q", *f.Description))
	}
	return strings.Join(parts, " ")
}
