package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"tally/internal/core"
	"tally/internal/export"
	"tally/internal/log"
	"tally/internal/services"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if resp := RequireMethod(r, http.MethodGet, http.MethodHead); resp != nil {
		resp.Write(w)
		return
	}
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	book, err := core.ParseBook(r.URL.Query().Get("book"))
	if err != nil {
		book = core.Expenses
	}

	status := http.StatusOK
	v, err := s.ledger.View(r.Context())
	data := newIndexData(v, book, s.now())
	if err != nil {
		// The form still renders; the partials report the failure themselves.
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to load ledger view",
			log.FieldOperation, log.OpView, log.FieldError, err)
		status = StatusFor(err)
		data.Error = "Categories could not be loaded: the ledger store is unavailable"
	}
	s.render(w, r, status, "index.html", data, nil)
}

// handleLedger renders the wide table, totals, shares and entries of one book.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	book, err := core.ParseBook(r.URL.Query().Get("book"))
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}

	v, err := s.ledger.View(r.Context())
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to load ledger view",
			log.FieldOperation, log.OpView, log.FieldBook, book, log.FieldError, err)
		s.render(w, r, StatusFor(err), "ledger", ledgerData{
			Book:  book.String(),
			Title: bookTitle(book),
			Error: "The ledger could not be loaded. Try again in a moment.",
		}, nil)
		return
	}
	s.render(w, r, http.StatusOK, "ledger", newLedgerData(v, book), nil)
}

// handleSubmit records one entry from the form.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	p, resp := ParseBody(r)
	if resp != nil {
		resp.Write(w)
		return
	}
	book, err := core.ParseBook(p.Get("book"))
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}

	in := ParseSubmit(p)
	if _, err := s.ledger.Submit(r.Context(), book, in); err != nil {
		s.logFailure(r, log.OpSubmit, book, err)
		DomainErrorResponse(err).Write(w)
		return
	}

	msg := fmt.Sprintf("Recorded %s in %s on %s", in.Amount, core.NormalizeCategory(in.Category), in.Date)
	NewHTMXResponse().
		TriggerLedgerChanged(book).
		TriggerFormReset().
		TriggerSuccessNotification(msg).
		Message(NotificationSuccess, msg).
		Write(w)
}

// handleDeleteEntry removes one entry by id, or every entry matching the
// submitted values when no id is given.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, log.OpDeleteEntry, func(p *RequestBodyParser, book core.Book) (services.View, string, error) {
		if id := p.Get("id"); id != "" {
			v, err := s.ledger.DeleteEntry(r.Context(), book, id)
			return v, "Entry deleted", err
		}
		f, err := ParseFilter(p)
		if err != nil {
			return services.View{}, "", err
		}
		v, n, err := s.ledger.DeleteByValue(r.Context(), book, f)
		return v, "Deleted " + strconv.Itoa(n) + " matching " + plural(n, "entry", "entries"), err
	})
}

func (s *Server) handleDeleteCell(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, log.OpDeleteCell, func(p *RequestBodyParser, book core.Book) (services.View, string, error) {
		date, err := ParseDateField(p, "date")
		if err != nil {
			return services.View{}, "", err
		}
		category := p.Get("category")
		if core.NormalizeCategory(category) == "" {
			return services.View{}, "", core.ErrEmptyCategory
		}
		v, err := s.ledger.DeleteCell(r.Context(), book, date, category)
		return v, "Cleared " + core.NormalizeCategory(category) + " on " + date.String(), err
	})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, log.OpDeleteCategory, func(p *RequestBodyParser, book core.Book) (services.View, string, error) {
		category := p.Get("category")
		if core.NormalizeCategory(category) == "" {
			return services.View{}, "", core.ErrEmptyCategory
		}
		v, err := s.ledger.DeleteCategory(r.Context(), book, category)
		return v, "Removed column " + core.NormalizeCategory(category), err
	})
}

// handleDelete runs one delete and answers with the refreshed ledger
// partial, retargeted at the book's section. Failures leave the page as it
// is and raise a notification.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, op string,
	del func(p *RequestBodyParser, book core.Book) (services.View, string, error)) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	p, resp := ParseBody(r)
	if resp != nil {
		resp.Write(w)
		return
	}
	book, err := core.ParseBook(p.Get("book"))
	if err != nil {
		deleteFailed(err).Write(w)
		return
	}

	v, msg, err := del(p, book)
	if err != nil {
		s.logFailure(r, op, book, err)
		deleteFailed(err).Write(w)
		return
	}

	s.render(w, r, http.StatusOK, "ledger", newLedgerData(v, book), NewHTMXResponse().
		Header("HX-Retarget", "#ledger-"+book.String()).
		Header("HX-Reswap", "outerHTML").
		TriggerLedgerChanged(book).
		TriggerSuccessNotification(msg))
}

func deleteFailed(err error) *HTMXResponseBuilder {
	resp := DomainErrorResponse(err).Header("HX-Reswap", "none")
	if StatusFor(err) == http.StatusNotFound {
		return resp
	}
	return resp.TriggerErrorNotification(UserMessage(err))
}

// handleExport downloads a book as xlsx or csv.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}
	q := r.URL.Query()
	book, err := core.ParseBook(q.Get("book"))
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}

	entries, err := s.ledger.Export(r.Context(), book)
	if err != nil {
		s.logFailure(r, log.OpExport, book, err)
		DomainErrorResponse(err).Write(w)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, book, entries); err != nil {
		s.logFailure(r, log.OpExport, book, err)
		DomainErrorResponse(err).Write(w)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.FileName(book, s.now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// render executes a template into a buffer so a failure never leaves a
// half-written page. resp, when set, contributes headers and triggers.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any, resp *HTMXResponseBuilder) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldOperation, log.OpRender, "template", name, log.FieldError, err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	if resp == nil {
		resp = NewHTMXResponse()
	}
	resp.Status(status).BodyHTML(buf.String()).Write(w)
}

func (s *Server) logFailure(r *http.Request, op string, book core.Book, err error) {
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentLedger)
	args := []any{log.FieldOperation, op, log.FieldBook, book, log.FieldError, err}
	if core.IsDomainError(err) && StatusFor(err) != http.StatusServiceUnavailable {
		logger.WarnContext(r.Context(), "Ledger request rejected", args...)
		return
	}
	logger.ErrorContext(r.Context(), "Ledger request failed", args...)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
