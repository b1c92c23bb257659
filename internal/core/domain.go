package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format of a ledger date.
const DateLayout = "2006-01-02"

const (
	Expenses Book = "expenses"
	Income   Book = "income"
)

type (
	// Book selects one of the independently consolidated ledgers.
	Book string

	Date struct {
		time.Time
	}

	// Entry is a single raw submission. Entries are never edited; a correction
	// is a new entry.
	Entry struct {
		ID          string
		Date        Date
		Category    string // income source when the book is Income
		Amount      decimal.Decimal
		Description string
		CreatedAt   time.Time
	}

	// EntryFilter matches entries by value. Unset fields match anything.
	EntryFilter struct {
		Date        Date
		Category    string
		Amount      decimal.NullDecimal
		Description *string
	}
)

// String implements fmt.Stringer
func (b Book) String() string {
	return string(b)
}

// IsValid returns true if the book is known
func (b Book) IsValid() bool {
	switch b {
	case Expenses, Income:
		return true
	default:
		return false
	}
}

// ParseBook maps a form/query value to a Book, defaulting to Expenses.
func ParseBook(s string) (Book, error) {
	switch b := Book(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return Expenses, nil
	case Expenses, Income:
		return b, nil
	default:
		return "", &ValidationError{Field: "book", Reason: "unknown book " + s}
	}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return &ValidationError{Field: "date", Reason: "date cannot be zero"}
	}
	return nil
}

// Before orders dates by calendar day.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// Equal reports whether both dates fall on the same calendar day.
func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

func (e Entry) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if NormalizeCategory(e.Category) == "" {
		return ErrEmptyCategory
	}
	if e.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if len(e.Description) > 200 {
		return &ValidationError{Field: "description", Reason: "description too long (max 200 characters)"}
	}
	return nil
}

// Matches reports whether e satisfies every set field of f.
func (f EntryFilter) Matches(e Entry) bool {
	if !f.Date.IsZero() && !f.Date.Equal(e.Date) {
		return false
	}
	if f.Category != "" && NormalizeCategory(f.Category) != NormalizeCategory(e.Category) {
		return false
	}
	if f.Amount.Valid && !f.Amount.Decimal.Equal(e.Amount) {
		return false
	}
	if f.Description != nil && strings.TrimSpace(*f.Description) != strings.TrimSpace(e.Description) {
		return false
	}
	return true
}

// IsEmpty reports whether the filter would match every entry.
func (f EntryFilter) IsEmpty() bool {
	return f.Date.IsZero() && f.Category == "" && !f.Amount.Valid && f.Description == nil
}
