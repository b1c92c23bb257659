package gsheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/store"
	"tally/internal/store/grid"
)

const backendName = "gsheets"

// Ensure interface conformance
var _ store.SnapshotStore = (*Client)(nil)

// Options configures a Client.
type Options struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
	ExpensesSheet   string // default "Expenses"
	IncomeSheet     string // default "Income"
	// YearPrefix names sheets "<year> <name>" for the current year.
	YearPrefix bool
}

// valuesAPI is the slice of the Sheets API the client needs.
type valuesAPI interface {
	sheetTitles(ctx context.Context, spreadsheetID string) ([]string, error)
	addSheet(ctx context.Context, spreadsheetID, title string) error
	get(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	clear(ctx context.Context, spreadsheetID, rng string) error
	update(ctx context.Context, spreadsheetID, rng string, values [][]any) error
}

// Client stores each book as a wide table on its own sheet.
type Client struct {
	api           valuesAPI
	spreadsheetID string
	sheets        map[core.Book]string
}

// New connects to the Sheets API with service-account credentials.
func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(&serviceAPI{svc: svc}, spreadsheetID, opts, time.Now().Year()), nil
}

func newClient(api valuesAPI, spreadsheetID string, opts Options, year int) *Client {
	expenses := strings.TrimSpace(opts.ExpensesSheet)
	if expenses == "" {
		expenses = "Expenses"
	}
	income := strings.TrimSpace(opts.IncomeSheet)
	if income == "" {
		income = "Income"
	}
	if opts.YearPrefix {
		expenses = yearPrefixedName(expenses, year)
		income = yearPrefixedName(income, year)
	}
	return &Client{
		api:           api,
		spreadsheetID: spreadsheetID,
		sheets:        map[core.Book]string{core.Expenses: expenses, core.Income: income},
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Inline JSON wins over a file; GOOGLE_APPLICATION_CREDENTIALS is the fallback.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(opts.CredentialsJSON)
	serviceAccountFile := strings.TrimSpace(opts.CredentialsFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// SheetName returns the sheet backing the book.
func (c *Client) SheetName(book core.Book) string {
	return c.sheets[book]
}

// LoadSnapshot reads the book's sheet. A missing sheet is an empty book.
func (c *Client) LoadSnapshot(ctx context.Context, book core.Book) (ledger.Snapshot, error) {
	sheet, err := c.sheet(book)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	exists, err := c.hasSheet(ctx, sheet)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	if !exists {
		return ledger.New(), nil
	}

	rng := quoteSheet(sheet)
	values, err := c.api.get(ctx, c.spreadsheetID, rng)
	if err != nil {
		return ledger.Snapshot{}, core.Unavailable(backendName, fmt.Errorf("read %s: %w", rng, err))
	}
	s, err := grid.Decode(grid.Strings(values))
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("decode %s: %w", rng, err)
	}
	return s, nil
}

// SaveSnapshot clears the book's sheet and writes the table back whole.
func (c *Client) SaveSnapshot(ctx context.Context, book core.Book, s ledger.Snapshot) error {
	sheet, err := c.sheet(book)
	if err != nil {
		return err
	}
	exists, err := c.hasSheet(ctx, sheet)
	if err != nil {
		return err
	}
	if !exists {
		if err := c.api.addSheet(ctx, c.spreadsheetID, sheet); err != nil {
			return core.Unavailable(backendName, fmt.Errorf("add sheet %s: %w", sheet, err))
		}
		slog.InfoContext(ctx, "Created sheet", "sheet", sheet)
	}

	rng := quoteSheet(sheet)
	if err := c.api.clear(ctx, c.spreadsheetID, rng); err != nil {
		return core.Unavailable(backendName, fmt.Errorf("clear %s: %w", rng, err))
	}
	values := grid.Encode(s)
	if err := c.api.update(ctx, c.spreadsheetID, rng+"!A1", values); err != nil {
		return core.Unavailable(backendName, fmt.Errorf("update %s: %w", rng, err))
	}
	slog.DebugContext(ctx, "Saved snapshot", "sheet", sheet, "rows", s.Len(), "columns", len(s.Categories()))
	return nil
}

func (c *Client) sheet(book core.Book) (string, error) {
	name, ok := c.sheets[book]
	if !ok {
		return "", &core.ValidationError{Field: "book", Reason: "unknown book " + book.String()}
	}
	return name, nil
}

func (c *Client) hasSheet(ctx context.Context, title string) (bool, error) {
	titles, err := c.api.sheetTitles(ctx, c.spreadsheetID)
	if err != nil {
		return false, core.Unavailable(backendName, fmt.Errorf("list sheets: %w", err))
	}
	for _, t := range titles {
		if t == title {
			return true, nil
		}
	}
	return false, nil
}

// quoteSheet wraps a sheet title for use in A1 notation.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// serviceAPI adapts *gsheet.Service to valuesAPI.
type serviceAPI struct {
	svc *gsheet.Service
}

func (a *serviceAPI) sheetTitles(ctx context.Context, id string) ([]string, error) {
	resp, err := a.svc.Spreadsheets.Get(id).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			out = append(out, sh.Properties.Title)
		}
	}
	return out, nil
}

func (a *serviceAPI) addSheet(ctx context.Context, id, title string) error {
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	_, err := a.svc.Spreadsheets.BatchUpdate(id, req).Context(ctx).Do()
	return err
}

func (a *serviceAPI) get(ctx context.Context, id, rng string) ([][]any, error) {
	resp, err := a.svc.Spreadsheets.Values.Get(id, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (a *serviceAPI) clear(ctx context.Context, id, rng string) error {
	_, err := a.svc.Spreadsheets.Values.Clear(id, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (a *serviceAPI) update(ctx context.Context, id, rng string, values [][]any) error {
	vr := &gsheet.ValueRange{Values: values}
	_, err := a.svc.Spreadsheets.Values.Update(id, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}
