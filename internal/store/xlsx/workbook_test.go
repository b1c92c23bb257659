package xlsx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tally/internal/core"
	"tally/internal/ledger"
)

func upsert(t *testing.T, s ledger.Snapshot, day int, cat, amount string) ledger.Snapshot {
	t.Helper()
	out, err := ledger.Upsert(s, core.NewDate(2024, 1, day), cat, decimal.RequireFromString(amount))
	require.NoError(t, err)
	return out
}

func TestWorkbook_MissingFileIsEmpty(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "ledger.xlsx"))
	s, err := w.LoadSnapshot(context.Background(), core.Expenses)
	require.NoError(t, err)
	assert.True(t, s.IsEmpty())
}

func TestWorkbook_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	w := New(filepath.Join(t.TempDir(), "data", "ledger.xlsx"))

	exp := upsert(t, ledger.New(), 1, "Food", "25.5")
	exp = upsert(t, exp, 2, "Gas", "40")
	exp = upsert(t, exp, 3, "Toys", "0")
	require.NoError(t, w.SaveSnapshot(ctx, core.Expenses, exp))

	inc := upsert(t, ledger.New(), 1, "Salary", "1000")
	require.NoError(t, w.SaveSnapshot(ctx, core.Income, inc))

	got, err := w.LoadSnapshot(ctx, core.Expenses)
	require.NoError(t, err)
	assert.True(t, got.Equal(exp))
	assert.True(t, got.Cell(core.NewDate(2024, 1, 3), "Toys").Valid)
	assert.False(t, got.Cell(core.NewDate(2024, 1, 1), "Gas").Valid)

	gotInc, err := w.LoadSnapshot(ctx, core.Income)
	require.NoError(t, err)
	assert.True(t, gotInc.Equal(inc))

	_, err = os.Stat(w.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file must not linger")
}

func TestWorkbook_OverwriteShrinks(t *testing.T) {
	ctx := context.Background()
	w := New(filepath.Join(t.TempDir(), "ledger.xlsx"))

	big := upsert(t, ledger.New(), 1, "Food", "1")
	big = upsert(t, big, 2, "Gas", "2")
	big = upsert(t, big, 3, "Rent", "3")
	require.NoError(t, w.SaveSnapshot(ctx, core.Expenses, big))

	small, err := ledger.DeleteCategory(big, "Rent")
	require.NoError(t, err)
	small, err = ledger.DeleteCell(small, core.NewDate(2024, 1, 2), "Gas")
	require.NoError(t, err)
	require.NoError(t, w.SaveSnapshot(ctx, core.Expenses, small))

	got, err := w.LoadSnapshot(ctx, core.Expenses)
	require.NoError(t, err)
	assert.True(t, got.Equal(small), "stale rows and columns must be gone")
}

func TestWorkbook_NumericCells(t *testing.T) {
	ctx := context.Background()
	w := New(filepath.Join(t.TempDir(), "ledger.xlsx"))
	require.NoError(t, w.SaveSnapshot(ctx, core.Expenses, upsert(t, ledger.New(), 1, "Food", "12.5")))

	f, err := excelize.OpenFile(w.Path())
	require.NoError(t, err)
	defer f.Close()

	typ, err := f.GetCellType("Expenses", "B2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, typ)
	assert.NotEqual(t, excelize.CellTypeInlineString, typ)

	v, err := f.GetCellValue("Expenses", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Date", v)
	assert.Equal(t, []string{"Expenses"}, f.GetSheetList(), "the default sheet is dropped")
}

func TestWorkbook_KeepsOtherSheets(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Date", "Food"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"2023-05-01", 42}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	w := New(path)
	require.NoError(t, w.SaveSnapshot(ctx, core.Expenses, upsert(t, ledger.New(), 1, "Gas", "10")))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.ElementsMatch(t, []string{"Sheet1", "Expenses"}, f.GetSheetList())
	v, err := f.GetCellValue("Sheet1", "B2")
	require.NoError(t, err)
	assert.Equal(t, "42", v)
}

func TestWorkbook_ReadsHandEditedCells(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Income"))
	require.NoError(t, f.SetSheetRow("Income", "A1", &[]any{"Date", "Salary", "Bonus"}))
	require.NoError(t, f.SetSheetRow("Income", "A2", &[]any{"2024-01-31", 1500000, "1,234.50"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	s, err := New(path).LoadSnapshot(ctx, core.Income)
	require.NoError(t, err)
	day := core.NewDate(2024, 1, 31)
	assert.Equal(t, "1500000", s.Cell(day, "Salary").Decimal.String())
	assert.Equal(t, "1234.5", s.Cell(day, "Bonus").Decimal.String())
}

func TestWorkbook_LargeAmountsRoundTrip(t *testing.T) {
	ctx := context.Background()
	w := New(filepath.Join(t.TempDir(), "ledger.xlsx"))
	inc := upsert(t, ledger.New(), 31, "Salary", "1500000")
	inc = upsert(t, inc, 30, "Bonus", "2500000.75")
	require.NoError(t, w.SaveSnapshot(ctx, core.Income, inc))

	got, err := w.LoadSnapshot(ctx, core.Income)
	require.NoError(t, err)
	assert.True(t, got.Equal(inc))
}
