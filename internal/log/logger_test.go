package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSONIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf, Component: ComponentLedger})
	l.InfoContext(context.Background(), "hello", FieldBook, "expenses")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if rec[FieldComponent] != ComponentLedger || rec[FieldBook] != "expenses" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestNew_TextHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelWarn, Format: "text", Output: &buf, Component: ComponentApp})
	l.InfoContext(context.Background(), "quiet")
	l.WarnContext(context.Background(), "loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestContextCarriesLogger(t *testing.T) {
	l := New(Config{Format: "json", Output: &bytes.Buffer{}, Component: ComponentHTTP})
	ctx := NewContext(context.Background(), l.With(FieldRequestID, "req-1"))

	if got := FromContext(ctx); got.Component() != ComponentHTTP {
		t.Fatalf("logger not propagated: %+v", got)
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("missing logger should fall back to the default")
	}
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	buf.Reset()
	return rec
}

func TestRequestFinishedLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf, Component: ComponentHTTP})
	r := httptest.NewRequest(http.MethodPost, "/ui/expenses?x=1", nil)

	tests := map[int]string{200: "INFO", 422: "WARN", 503: "ERROR"}
	for status, level := range tests {
		l.RequestFinished(context.Background(), r, status, 15*time.Millisecond, "203.0.113.7")
		rec := decodeRecord(t, &buf)
		if rec["level"] != level || rec[FieldStatusCode] != float64(status) {
			t.Errorf("status %d: unexpected record %v", status, rec)
		}
		if rec[FieldComponent] != ComponentHTTP || rec[FieldPath] != "/ui/expenses" || rec[FieldDuration] != float64(15) {
			t.Errorf("status %d: missing request fields %v", status, rec)
		}
	}
}

func TestEntryRecorded(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json", Output: &buf, Component: ComponentLedger})
	e := core.Entry{ID: "e1", Date: core.NewDate(2024, 3, 1), Category: "Food", Amount: decimal.RequireFromString("12.5")}

	l.EntryRecorded(context.Background(), core.Expenses, e)
	rec := decodeRecord(t, &buf)
	want := map[string]any{
		FieldOperation: OpSubmit,
		FieldBook:      "expenses",
		FieldEntryID:   "e1",
		FieldDate:      "2024-03-01",
		FieldAmount:    "12.50",
		FieldComponent: ComponentLedger,
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %v", k, rec[k], v)
		}
	}
}

func TestOperationFailed(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json", Output: &buf, Component: ComponentLedger})
	ctx := context.Background()

	l.OperationFailed(ctx, "Delete failed", OpDeleteCell, &core.NotFoundError{What: "cell", Key: "2024-01-01 Food"}, nil)
	rec := decodeRecord(t, &buf)
	if rec["level"] != "WARN" || rec[FieldErrorType] != ErrorTypeNotFound || rec[FieldOperation] != OpDeleteCell {
		t.Errorf("unexpected record %v", rec)
	}

	l.OperationFailed(ctx, "Load failed", OpView, core.Unavailable("gsheets", errors.New("timeout")), NewFields().WithComponent(ComponentBackend))
	rec = decodeRecord(t, &buf)
	if rec["level"] != "ERROR" || rec[FieldErrorType] != ErrorTypeUnavailable || rec[FieldComponent] != ComponentBackend {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&core.ValidationError{Field: "amount", Reason: "negative"}, ErrorTypeValidation},
		{fmt.Errorf("wrapped: %w", &core.NotFoundError{What: "entry", Key: "x"}), ErrorTypeNotFound},
		{core.Unavailable("mongo", errors.New("refused")), ErrorTypeUnavailable},
		{errors.New("boom"), ErrorTypeInternal},
	}
	for _, tt := range tests {
		if got := ErrorType(tt.err); got != tt.want {
			t.Errorf("ErrorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
