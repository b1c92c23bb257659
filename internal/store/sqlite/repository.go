package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/store"

	_ "modernc.org/sqlite"
)

const backendName = "sqlite"

// createdLayout has fixed width so created_at sorts as text.
const createdLayout = "2006-01-02T15:04:05.000000000Z"

// Ensure interface conformance
var (
	_ store.EntryStore = (*Repository)(nil)
	_ store.Taxonomy   = (*Repository)(nil)
	_ store.Closer     = (*Repository)(nil)
)

// Repository is an append-only entry store on a SQLite file.
type Repository struct {
	db      *sql.DB
	queries *Queries
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, core.Unavailable(backendName, fmt.Errorf("open sqlite database: %w", err))
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, core.Unavailable(backendName, fmt.Errorf("ping database: %w", err))
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, queries: New(db)}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	return core.Unavailable(backendName, r.db.PingContext(ctx))
}

// AppendEntry implements store.EntryStore
func (r *Repository) AppendEntry(ctx context.Context, book core.Book, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	err := r.queries.CreateEntry(ctx, EntryRow{
		ID:          e.ID,
		Book:        book.String(),
		Date:        e.Date.String(),
		Category:    e.Category,
		Amount:      e.Amount.String(),
		Description: e.Description,
		CreatedAt:   created.UTC().Format(createdLayout),
	})
	if err != nil {
		return core.Unavailable(backendName, fmt.Errorf("create entry: %w", err))
	}

	slog.DebugContext(ctx, "Entry saved to SQLite",
		"id", e.ID,
		"book", book,
		"date", e.Date.String(),
		"category", e.Category,
		"amount", e.Amount.String())
	return nil
}

// ListEntries implements store.EntryStore
func (r *Repository) ListEntries(ctx context.Context, book core.Book) ([]core.Entry, error) {
	rows, err := r.queries.ListEntries(ctx, book.String())
	if err != nil {
		return nil, core.Unavailable(backendName, fmt.Errorf("list entries: %w", err))
	}
	out := make([]core.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := rowToEntry(row)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", row.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// DeleteEntry implements store.EntryStore
func (r *Repository) DeleteEntry(ctx context.Context, book core.Book, id string) error {
	n, err := r.queries.DeleteEntry(ctx, book.String(), id)
	if err != nil {
		return core.Unavailable(backendName, fmt.Errorf("delete entry: %w", err))
	}
	if n == 0 {
		return &core.NotFoundError{What: "entry", Key: id}
	}
	return nil
}

// DeleteWhere implements store.EntryStore. Amounts are compared as decimals,
// so matching happens in Go inside one transaction.
func (r *Repository) DeleteWhere(ctx context.Context, book core.Book, f core.EntryFilter) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, core.Unavailable(backendName, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	rows, err := q.ListEntries(ctx, book.String())
	if err != nil {
		return 0, core.Unavailable(backendName, fmt.Errorf("list entries: %w", err))
	}
	removed := 0
	for _, row := range rows {
		e, err := rowToEntry(row)
		if err != nil {
			return 0, fmt.Errorf("entry %s: %w", row.ID, err)
		}
		if !f.Matches(e) {
			continue
		}
		if _, err := q.DeleteEntry(ctx, book.String(), row.ID); err != nil {
			return 0, core.Unavailable(backendName, fmt.Errorf("delete entry: %w", err))
		}
		removed++
	}
	if err := tx.Commit(); err != nil {
		return 0, core.Unavailable(backendName, fmt.Errorf("commit: %w", err))
	}
	slog.DebugContext(ctx, "Entries deleted by value", "book", book, "count", removed)
	return removed, nil
}

// SeedCategories implements store.Taxonomy
func (r *Repository) SeedCategories(ctx context.Context) ([]string, error) {
	cats, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, core.Unavailable(backendName, fmt.Errorf("list categories: %w", err))
	}
	return cats, nil
}

func rowToEntry(row EntryRow) (core.Entry, error) {
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Entry{}, err
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Entry{}, fmt.Errorf("amount %q: %w", row.Amount, err)
	}
	created, err := time.Parse(createdLayout, row.CreatedAt)
	if err != nil {
		return core.Entry{}, fmt.Errorf("created_at %q: %w", row.CreatedAt, err)
	}
	return core.Entry{
		ID:          row.ID,
		Date:        date,
		Category:    row.Category,
		Amount:      amount,
		Description: row.Description,
		CreatedAt:   created,
	}, nil
}
