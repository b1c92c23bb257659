// Package xlsx stores each book as a wide table on its own sheet of a local
// workbook. Every save rewrites the sheet whole.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/store"
	"tally/internal/store/grid"
)

const backendName = "xlsx"

// defaultSheet is the sheet excelize.NewFile starts with.
const defaultSheet = "Sheet1"

// Ensure interface conformance
var _ store.SnapshotStore = (*Workbook)(nil)

var sheetNames = map[core.Book]string{
	core.Expenses: "Expenses",
	core.Income:   "Income",
}

// Workbook is a SnapshotStore on a single .xlsx file.
type Workbook struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Workbook {
	return &Workbook{path: path}
}

// Path returns the workbook location.
func (w *Workbook) Path() string { return w.path }

// LoadSnapshot reads the book's sheet. A missing file or sheet is an empty
// book.
func (w *Workbook) LoadSnapshot(ctx context.Context, book core.Book) (ledger.Snapshot, error) {
	sheet, ok := sheetNames[book]
	if !ok {
		return ledger.Snapshot{}, &core.ValidationError{Field: "book", Reason: "unknown book " + book.String()}
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := excelize.OpenFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ledger.New(), nil
	}
	if err != nil {
		return ledger.Snapshot{}, core.Unavailable(backendName, fmt.Errorf("open %s: %w", w.path, err))
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return ledger.New(), nil
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return ledger.Snapshot{}, core.Unavailable(backendName, fmt.Errorf("read sheet %s: %w", sheet, err))
	}
	s, err := grid.Decode(rows)
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("decode sheet %s: %w", sheet, err)
	}
	slog.DebugContext(ctx, "Loaded snapshot from workbook", "sheet", sheet, "rows", s.Len())
	return s, nil
}

// SaveSnapshot replaces the book's sheet and writes the file through a
// temporary sibling so a failed write leaves the old file intact.
func (w *Workbook) SaveSnapshot(ctx context.Context, book core.Book, s ledger.Snapshot) error {
	sheet, ok := sheetNames[book]
	if !ok {
		return &core.ValidationError{Field: "book", Reason: "unknown book " + book.String()}
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	fresh := false
	f, err := excelize.OpenFile(w.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f, fresh = excelize.NewFile(), true
	case err != nil:
		return core.Unavailable(backendName, fmt.Errorf("open %s: %w", w.path, err))
	}
	defer f.Close()

	if err := writeSheet(f, sheet, grid.Encode(s), fresh); err != nil {
		return fmt.Errorf("write sheet %s: %w", sheet, err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return core.Unavailable(backendName, fmt.Errorf("create directory: %w", err))
	}
	tmp := w.path + ".tmp"
	if err := writeFile(f, tmp); err != nil {
		os.Remove(tmp)
		return core.Unavailable(backendName, fmt.Errorf("save %s: %w", tmp, err))
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return core.Unavailable(backendName, fmt.Errorf("replace %s: %w", w.path, err))
	}
	slog.DebugContext(ctx, "Saved snapshot to workbook", "path", w.path, "sheet", sheet, "rows", s.Len())
	return nil
}

// writeSheet replaces sheet with values. The new content is built on a
// scratch sheet first, since a workbook cannot drop its last sheet. Other
// sheets are left alone; only the blank default sheet of a workbook created
// by this save is dropped.
func writeSheet(f *excelize.File, sheet string, values [][]any, fresh bool) error {
	const scratch = "tally-scratch"
	if _, err := f.NewSheet(scratch); err != nil {
		return err
	}
	drop := []string{sheet}
	if fresh && sheet != defaultSheet {
		drop = append(drop, defaultSheet)
	}
	for _, name := range drop {
		if idx, err := f.GetSheetIndex(name); err == nil && idx >= 0 {
			if err := f.DeleteSheet(name); err != nil {
				return err
			}
		}
	}
	if err := f.SetSheetName(scratch, sheet); err != nil {
		return err
	}
	index, err := f.GetSheetIndex(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)

	for i, row := range values {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			if v == "" {
				continue
			}
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "A", "A", 12)
}

func writeFile(f *excelize.File, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Write(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
