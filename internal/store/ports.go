// Package store declares the ports every ledger backend implements.
//
// Backends come in two shapes. Wide-table backends (a local workbook, a
// Google Sheet) hold the consolidated snapshot itself and are rewritten
// whole on every change. Append-only backends (memory, SQLite, MongoDB) hold
// raw entries and the snapshot is rebuilt on read.
package store

import (
	"context"

	"tally/internal/core"
	"tally/internal/ledger"
)

// Ports for outbound adapters.
type (
	// SnapshotStore persists the wide table of a book.
	SnapshotStore interface {
		// LoadSnapshot returns the stored table, or an empty one when the
		// book has never been written.
		LoadSnapshot(ctx context.Context, book core.Book) (ledger.Snapshot, error)
		// SaveSnapshot replaces the stored table.
		SaveSnapshot(ctx context.Context, book core.Book, s ledger.Snapshot) error
	}

	// EntryStore persists raw entries.
	EntryStore interface {
		// ListEntries returns every entry of the book ordered by date, then
		// by creation time.
		ListEntries(ctx context.Context, book core.Book) ([]core.Entry, error)
		AppendEntry(ctx context.Context, book core.Book, e core.Entry) error
		// DeleteEntry removes the entry with the given ID. It returns a
		// NotFoundError when no such entry exists.
		DeleteEntry(ctx context.Context, book core.Book, id string) error
		// DeleteWhere removes every entry matching f and reports how many went.
		DeleteWhere(ctx context.Context, book core.Book, f core.EntryFilter) (int, error)
	}

	// Taxonomy supplies category suggestions for the form.
	Taxonomy interface {
		SeedCategories(ctx context.Context) ([]string, error)
	}

	// Closer is implemented by backends that hold connections.
	Closer interface {
		Close() error
	}
)
