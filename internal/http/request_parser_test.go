package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tally/internal/core"
)

func newParser(t *testing.T, contentType, body string) *RequestBodyParser {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/entries", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return p
}

func TestRequestBodyParser_Form(t *testing.T) {
	p := newParser(t, "application/x-www-form-urlencoded", "category=%20Food%20&amount=12.50&note=a%01b")

	if p.IsJSON() {
		t.Error("form body reported as JSON")
	}
	if got := p.Get("category"); got != "Food" {
		t.Errorf("category = %q", got)
	}
	if got := p.Get("note"); got != "ab" {
		t.Errorf("control characters not stripped: %q", got)
	}
	if got := p.Get("missing"); got != "" {
		t.Errorf("missing = %q", got)
	}
}

func TestRequestBodyParser_JSON(t *testing.T) {
	p := newParser(t, "application/json", `{"category":"Rent","amount":12.5,"book":"income"}`)

	if !p.IsJSON() {
		t.Fatal("JSON body not detected")
	}
	tests := map[string]string{"category": "Rent", "amount": "12.5", "book": "income", "absent": ""}
	for key, want := range tests {
		if got := p.Get(key); got != want {
			t.Errorf("Get(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestRequestBodyParser_Errors(t *testing.T) {
	t.Run("malformed JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/entries", strings.NewReader(`{"category":`))
		req.Header.Set("Content-Type", "application/json")
		if err := NewRequestBodyParser(req).Parse(); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("too large", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/entries", strings.NewReader("a="+strings.Repeat("x", maxBodyBytes)))
		_, resp := ParseBody(req)
		if resp == nil {
			t.Fatal("expected rejection")
		}
		rr := httptest.NewRecorder()
		resp.Write(rr)
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d", rr.Code)
		}
	})
	t.Run("empty body", func(t *testing.T) {
		p := newParser(t, "", "")
		if p.Get("anything") != "" {
			t.Error("empty body returned a value")
		}
	})
}

func TestRequireMethod(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/entries", nil)
	if resp := RequirePOST(req); resp == nil {
		t.Fatal("GET accepted by RequirePOST")
	}
	if resp := RequireMethod(req, http.MethodPost, http.MethodGet); resp != nil {
		t.Fatal("GET rejected although allowed")
	}
}

func TestParseSubmit(t *testing.T) {
	p := newParser(t, "application/x-www-form-urlencoded", "date=2024-01-02&category=food&amount=3,50&description=lunch")
	in := ParseSubmit(p)
	if in.Date != "2024-01-02" || in.Category != "food" || in.Amount != "3,50" || in.Description != "lunch" {
		t.Errorf("ParseSubmit() = %+v", in)
	}
}

func TestParseDateField(t *testing.T) {
	p := newParser(t, "application/x-www-form-urlencoded", "date=2024-02-29&bad=2024-13-01")

	d, err := ParseDateField(p, "date")
	if err != nil || d.String() != "2024-02-29" {
		t.Fatalf("ParseDateField() = %v, %v", d, err)
	}
	if _, err := ParseDateField(p, "bad"); !errors.Is(err, core.ErrValidation) {
		t.Errorf("bad date error = %v", err)
	}
	if _, err := ParseDateField(p, "missing"); !errors.Is(err, core.ErrValidation) {
		t.Errorf("missing date error = %v", err)
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantEmpty bool
		wantErr   bool
		check     func(t *testing.T, f core.EntryFilter)
	}{
		{
			name:      "nothing set",
			body:      "date=&category=&amount=&description=",
			wantEmpty: true,
		},
		{
			name: "all values",
			body: "date=2024-01-02&category=food&amount=12.5&description=lunch",
			check: func(t *testing.T, f core.EntryFilter) {
				if f.Date.String() != "2024-01-02" || f.Category != "Food" {
					t.Errorf("filter = %+v", f)
				}
				if !f.Amount.Valid || f.Amount.Decimal.String() != "12.5" {
					t.Errorf("amount = %+v", f.Amount)
				}
				if f.Description == nil || *f.Description != "lunch" {
					t.Errorf("description = %v", f.Description)
				}
			},
		},
		{
			name: "blank description on request",
			body: "amount=4&description=&blank_description=on",
			check: func(t *testing.T, f core.EntryFilter) {
				if f.Description == nil || *f.Description != "" {
					t.Errorf("description = %v", f.Description)
				}
			},
		},
		{name: "bad amount", body: "amount=abc", wantErr: true},
		{name: "bad date", body: "date=yesterday", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(newParser(t, "application/x-www-form-urlencoded", tt.body))
			if tt.wantErr {
				if !errors.Is(err, core.ErrValidation) {
					t.Fatalf("error = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFilter: %v", err)
			}
			if f.IsEmpty() != tt.wantEmpty {
				t.Errorf("IsEmpty() = %v, want %v", f.IsEmpty(), tt.wantEmpty)
			}
			if tt.check != nil {
				tt.check(t, f)
			}
		})
	}
}
