package backend

import (
	"context"
	"errors"
	"log/slog"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/log"
)

// Load reads a book in both shapes: the consolidated snapshot and the entry
// list behind it. Wide-table backends hold no raw entries, so their entries
// are the snapshot flattened one per written cell. A cell the store cannot
// read is reported as a ValidationError naming it; any other failure as a
// StoreUnavailableError.
func (b *Backend) Load(ctx context.Context, book core.Book) (ledger.Snapshot, []core.Entry, error) {
	switch {
	case b.Snapshots != nil:
		s, err := b.Snapshots.LoadSnapshot(ctx, book)
		if err != nil {
			return ledger.Snapshot{}, nil, b.loadError(err)
		}
		return s, ledger.Entries(s), nil
	case b.Entries != nil:
		entries, err := b.Entries.ListEntries(ctx, book)
		if err != nil {
			return ledger.Snapshot{}, nil, core.Unavailable(b.Type.String(), err)
		}
		s, skipped := ledger.ConsolidateChecked(entries)
		for _, sk := range skipped {
			slog.WarnContext(ctx, "Entry left out of the ledger",
				log.FieldBackend, b.Type.String(),
				log.FieldBook, book,
				log.FieldEntryID, sk.Entry.ID,
				log.FieldDate, sk.Entry.Date.String(),
				log.FieldCategory, sk.Entry.Category,
				log.FieldError, sk.Err)
		}
		return s, entries, nil
	default:
		return ledger.Snapshot{}, nil, core.Unavailable(b.Type.String(), errors.New("backend has no store"))
	}
}

func (b *Backend) loadError(err error) error {
	var ve *core.ValidationError
	if errors.As(err, &ve) && !errors.Is(err, core.ErrStoreUnavailable) {
		return err
	}
	return core.Unavailable(b.Type.String(), err)
}

// HasEntryIDs reports whether entries carry stable IDs, which is the case
// for append-only backends only.
func (b *Backend) HasEntryIDs() bool {
	return b.Entries != nil
}

// Ping checks the backend is reachable. Stores with a native health check
// use it; the rest are checked by loading the expenses book.
func (b *Backend) Ping(ctx context.Context) error {
	type pinger interface{ Ping(context.Context) error }
	for _, s := range []any{b.Entries, b.Snapshots} {
		if p, ok := s.(pinger); ok {
			return core.Unavailable(b.Type.String(), p.Ping(ctx))
		}
	}
	_, _, err := b.Load(ctx, core.Expenses)
	return err
}
