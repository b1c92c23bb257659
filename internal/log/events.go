package log

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tally/internal/core"
)

// RequestStarted logs an incoming request at debug level.
func (l *Logger) RequestStarted(ctx context.Context, r *http.Request, clientIP string) {
	f := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP)
	l.emit(ctx, slog.LevelDebug, "HTTP request started", f)
}

// RequestFinished logs a served request. 4xx responses log as warnings
// and 5xx as errors.
func (l *Logger) RequestFinished(ctx context.Context, r *http.Request, status int, elapsed time.Duration, clientIP string) {
	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	f := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(status, elapsed.Milliseconds(), status < 400).
		WithClientIP(clientIP)
	l.emit(ctx, level, "HTTP request completed", f)
}

// EntryRecorded logs one stored entry.
func (l *Logger) EntryRecorded(ctx context.Context, book core.Book, e core.Entry) {
	f := NewFields().
		WithOperation(OpSubmit).
		WithEntry(book.String(), e.ID, e.Date.String(), e.Category, core.FormatAmount(e.Amount))
	l.emit(ctx, slog.LevelInfo, "Ledger entry recorded", f)
}

// OperationFailed logs a failed ledger operation. Validation and not-found
// errors are the caller's doing and log as warnings.
func (l *Logger) OperationFailed(ctx context.Context, msg, op string, err error, f LogFields) {
	if f == nil {
		f = NewFields()
	}
	kind := ErrorType(err)
	f = f.WithOperation(op).WithError(err)
	f[FieldErrorType] = kind

	level := slog.LevelError
	if kind == ErrorTypeValidation || kind == ErrorTypeNotFound {
		level = slog.LevelWarn
	}
	l.emit(ctx, level, msg, f)
}

// ErrorType classifies err into one of the ErrorType constants.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, core.ErrValidation):
		return ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, core.ErrStoreUnavailable):
		return ErrorTypeUnavailable
	default:
		return ErrorTypeInternal
	}
}

func (l *Logger) emit(ctx context.Context, level slog.Level, msg string, f LogFields) {
	if _, ok := f[FieldComponent]; !ok && l.component != "" {
		f = f.WithComponent(l.component)
	}
	l.Logger.Log(ctx, level, msg, f.ToSlice()...)
}
