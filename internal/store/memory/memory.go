package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/store"
)

// Ensure interface conformance
var (
	_ store.EntryStore = (*Store)(nil)
	_ store.Taxonomy   = (*Store)(nil)
)

// Store keeps entries in process memory. Data is lost on restart.
type Store struct {
	mu    sync.Mutex
	seeds []string
	books map[core.Book][]core.Entry
}

func New(seeds []string) *Store {
	return &Store{seeds: dedupe(seeds), books: map[core.Book][]core.Entry{}}
}

// NewFromFiles seeds category suggestions from base/seed_categories.txt.
func NewFromFiles(base string) *Store {
	seeds := readLines(filepath.Join(base, "seed_categories.txt"))
	if len(seeds) == 0 {
		seeds = []string{"Food", "Gas", "Rent", "Utilities"}
	}
	return New(seeds)
}

// ListEntries returns a copy of the book ordered by date then creation.
func (s *Store) ListEntries(_ context.Context, book core.Book) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.Entry(nil), s.books[book]...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// AppendEntry stores the entry.
func (s *Store) AppendEntry(_ context.Context, book core.Book, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[book] = append(s.books[book], e)
	return nil
}

// DeleteEntry removes one entry by ID.
func (s *Store) DeleteEntry(_ context.Context, book core.Book, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := ledger.DeleteEntryByID(s.books[book], id)
	if err != nil {
		return err
	}
	s.books[book] = out
	return nil
}

// DeleteWhere removes every entry matching f.
func (s *Store) DeleteWhere(_ context.Context, book core.Book, f core.EntryFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, n := ledger.DeleteEntriesByValue(s.books[book], f)
	s.books[book] = out
	return n, nil
}

// SeedCategories returns the configured suggestions.
func (s *Store) SeedCategories(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seeds...), nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

// ReadSeedFile loads category suggestions from base/seed_categories.txt for
// backends that do not store a taxonomy of their own.
func ReadSeedFile(base string) []string {
	return readLines(filepath.Join(base, "seed_categories.txt"))
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = core.NormalizeCategory(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
