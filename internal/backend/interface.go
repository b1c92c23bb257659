package backend

import (
	"context"

	"tally/internal/core"
	"tally/internal/store"
)

// Backend is one configured ledger store. Exactly one of Snapshots and
// Entries is set, depending on the shape the backend holds natively.
type Backend struct {
	Type      BackendType
	Snapshots store.SnapshotStore
	Entries   store.EntryStore
	Taxonomy  store.Taxonomy
}

// Publisher announces ledger changes to the sync worker.
type Publisher interface {
	PublishLedgerChanged(ctx context.Context, book core.Book, operation string) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance, the optional change
// publisher and a cleanup function releasing both.
type BackendResult struct {
	Backend   *Backend
	Publisher Publisher
	Cleanup   CleanupFunc
}

// Close runs the cleanup function, if any.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	// CreateMirror opens the Google Sheet the sync worker writes to.
	CreateMirror(ctx context.Context, config Config) (store.SnapshotStore, error)
}
