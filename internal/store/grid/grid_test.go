package grid

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
	"tally/internal/ledger"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := ledger.Consolidate([]core.Entry{
		{Date: core.NewDate(2024, 1, 1), Category: "Food", Amount: decimal.RequireFromString("25.50")},
		{Date: core.NewDate(2024, 1, 2), Category: "Gas", Amount: decimal.RequireFromString("40")},
		{Date: core.NewDate(2024, 1, 3), Category: "Toys", Amount: decimal.Zero},
	})

	values := Encode(s)
	require.Len(t, values, 4)
	assert.Equal(t, []any{"Date", "Food", "Gas", "Toys"}, values[0])
	assert.Equal(t, []any{"2024-01-01", 25.5, "", ""}, values[1])

	back, err := Decode(Strings(values))
	require.NoError(t, err)
	assert.True(t, back.Equal(s))
	assert.True(t, back.Cell(core.NewDate(2024, 1, 3), "Toys").Valid, "zero survives as a value")
	assert.False(t, back.Cell(core.NewDate(2024, 1, 1), "Gas").Valid, "blank stays null")
}

func TestDecodeSkipsTotalAndBlankRows(t *testing.T) {
	rows := [][]string{
		{"Date", "Food", "Gas"},
		{"2024-01-01", "20", ""},
		{"", "", ""},
		{"2024-01-01", "5", "3"},
		{"Total", "25", "3"},
	}
	s, err := Decode(rows)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "25", s.Cell(core.NewDate(2024, 1, 1), "Food").Decimal.String())
	assert.Equal(t, "3", s.Cell(core.NewDate(2024, 1, 1), "Gas").Decimal.String())
}

func TestDecodeDateColumnAnywhere(t *testing.T) {
	s, err := Decode([][]string{
		{"food", "date"},
		{"1,5", "2024-02-01"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Food"}, s.Categories())
	assert.Equal(t, "1.5", s.Cell(core.NewDate(2024, 2, 1), "Food").Decimal.String())
}

func TestDecodeEmptyAndHeaderOnly(t *testing.T) {
	s, err := Decode(nil)
	require.NoError(t, err)
	assert.True(t, s.IsEmpty())

	s, err = Decode([][]string{{"Date", "Rent"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Rent"}, s.Categories())
	assert.Equal(t, 0, s.Len())
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([][]string{{"Date", "Food"}, {"yesterday", "1"}})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = Decode([][]string{{"Date", "Food"}, {"2024-01-01", "-4"}})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Contains(t, err.Error(), "row 2")
}

func TestParseDateCell(t *testing.T) {
	tests := []struct {
		in   string
		want core.Date
	}{
		{"2024-03-05", core.NewDate(2024, 3, 5)},
		{"2024-03-05 00:00:00", core.NewDate(2024, 3, 5)},
		{"03-05-24", core.NewDate(2024, 3, 5)},
		{"3/5/2024", core.NewDate(2024, 3, 5)},
		{"45356", core.NewDate(2024, 3, 5)},
	}
	for _, tt := range tests {
		got, err := ParseDateCell(tt.in)
		if err != nil {
			t.Fatalf("ParseDateCell(%q): %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseDateCell(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestStringsWritesPlainNumbers(t *testing.T) {
	got := Strings([][]any{{"Date", "Salary", "Bonus", "Note"}, {"2024-01-31", 1500000.0, float32(0.5), nil}})
	assert.Equal(t, []string{"2024-01-31", "1500000", "0.5", ""}, got[1])

	s := ledger.New()
	s, err := ledger.Upsert(s, core.NewDate(2024, 1, 31), "Salary", decimal.RequireFromString("1234567.89"))
	require.NoError(t, err)
	back, err := Decode(Strings(Encode(s)))
	require.NoError(t, err)
	assert.True(t, back.Equal(s))
}

func TestParseAmountCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "", false},
		{"12.5", "12.5", true},
		{"12,5", "12.5", true},
		{"1,234.50", "1234.5", true},
		{"1.234,50", "1234.5", true},
		{"1 234,50", "1234.5", true},
		{"1,234,567", "1234567", true},
		{"€ 12.50", "12.5", true},
		{"1.5e+06", "1500000", true},
		{"0", "0", true},
	}
	for _, tt := range tests {
		got, ok, err := ParseAmountCell(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got.String(), tt.in)
		}
	}

	_, _, err := ParseAmountCell("-1.5e3")
	assert.ErrorIs(t, err, core.ErrValidation)
	_, _, err = ParseAmountCell("twelve")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestDecodeErrorNamesCell(t *testing.T) {
	_, err := Decode([][]string{
		{"Date", "Food", "Gas"},
		{"2024-01-01", "1", ""},
		{"2024-01-02", "", "abc"},
	})
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, `cell at row 3, column "Gas"`, ve.Field)
	assert.Contains(t, ve.Reason, `"abc"`)

	_, err = Decode([][]string{{"Date", "Food"}, {"someday", "1"}})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, `cell at row 2, column "Date"`, ve.Field)
}
