package importer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tally/internal/core"
)

type recorded struct {
	book  core.Book
	entry core.Entry
}

type fakeRecorder struct {
	got    []recorded
	failAt int
}

func (r *fakeRecorder) Record(_ context.Context, book core.Book, e core.Entry) (core.Entry, error) {
	if r.failAt > 0 && len(r.got)+1 == r.failAt {
		return core.Entry{}, errors.New("store down")
	}
	r.got = append(r.got, recorded{book, e})
	return e, nil
}

func workbook(t *testing.T, sheets map[string][][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			r := row
			require.NoError(t, f.SetSheetRow(name, cell, &r))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestReadXLSX_SingleLegacySheet(t *testing.T) {
	data := workbook(t, map[string][][]any{
		"Sheet1": {
			{"Date", "Food", "Gas"},
			{"2024-01-01", 25, nil},
			{"2024-01-02", nil, 40},
			{"Total", 25, 40},
		},
	})

	sheets, err := ReadXLSX(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	assert.Equal(t, core.Expenses, sheets[0].Book)

	s := sheets[0].Snapshot
	assert.Equal(t, 2, s.Len(), "the Total row is skipped")
	assert.True(t, s.Cell(core.NewDate(2024, 1, 1), "Food").Decimal.Equal(decimal.NewFromInt(25)))
	assert.False(t, s.Cell(core.NewDate(2024, 1, 1), "Gas").Valid, "blank cells stay null")
}

func TestReadXLSX_BooksBySheetName(t *testing.T) {
	data := workbook(t, map[string][][]any{
		"Expenses": {{"Date", "Rent"}, {"2024-02-01", 600}},
		"Income":   {{"Date", "Salary"}, {"2024-02-01", 1000}},
		"Notes":    {{"whatever"}},
	})

	sheets, err := ReadXLSX(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	books := map[core.Book]bool{}
	for _, s := range sheets {
		books[s.Book] = true
	}
	assert.True(t, books[core.Expenses] && books[core.Income])
}

func TestReadXLSX_BadCell(t *testing.T) {
	data := workbook(t, map[string][][]any{
		"Sheet1": {{"Date", "Food"}, {"2024-01-01", "-5"}},
	})
	_, err := ReadXLSX(bytes.NewReader(data))
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.ErrorContains(t, err, "row 2")
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.xlsx")
	require.NoError(t, os.WriteFile(path, workbook(t, map[string][][]any{
		"Sheet1": {{"Date", "Food"}, {"2024-01-01", 3}},
	}), 0o644))

	sheets, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, sheets, 1)

	_, err = ReadFile(filepath.Join(dir, "ledger.ods"))
	assert.Error(t, err)

	txt := filepath.Join(dir, "ledger.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = ReadFile(txt)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestImport_RecordsEveryCell(t *testing.T) {
	data := workbook(t, map[string][][]any{
		"Expenses": {{"Date", "Food", "Gas"}, {"2024-01-01", 25, 0}, {"2024-01-02", nil, 40}},
		"Income":   {{"Date", "Salary"}, {"2024-01-01", 1000}},
	})
	sheets, err := ReadXLSX(bytes.NewReader(data))
	require.NoError(t, err)

	rec := &fakeRecorder{}
	res, err := Import(context.Background(), rec, sheets, "imported")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Entries[core.Expenses], "a zero cell is an entry")
	assert.Equal(t, 1, res.Entries[core.Income])
	for _, r := range rec.got {
		assert.Equal(t, "imported", r.entry.Description)
	}
}

func TestImport_StopsAtFirstFailure(t *testing.T) {
	data := workbook(t, map[string][][]any{
		"Sheet1": {{"Date", "Food"}, {"2024-01-01", 1}, {"2024-01-02", 2}, {"2024-01-03", 3}},
	})
	sheets, err := ReadXLSX(bytes.NewReader(data))
	require.NoError(t, err)

	rec := &fakeRecorder{failAt: 2}
	res, err := Import(context.Background(), rec, sheets, "")
	assert.ErrorContains(t, err, "store down")
	assert.Equal(t, 1, res.Entries[core.Expenses])
}
