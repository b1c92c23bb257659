// This file parses request bodies and query strings into ledger arguments.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/services"
)

// maxBodyBytes caps form and JSON bodies.
const maxBodyBytes = 64 << 10

// RequestBodyParser reads a body once and serves values from it, whether
// it was sent form-encoded (htmx) or as a JSON object.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most maxBodyBytes of r's body.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errBodyTooLarge
	}
	return p
}

type parseError string

func (e parseError) Error() string { return string(e) }

const errBodyTooLarge = parseError("request body too large")

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}
	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized value, or "" when the key is absent.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// ParseBody parses the body or returns a 400 response.
func ParseBody(r *http.Request) (*RequestBodyParser, *HTMXResponseBuilder) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		if err == errBodyTooLarge {
			return nil, ErrorResponse(http.StatusRequestEntityTooLarge, "Request too large")
		}
		return nil, BadRequestError("Malformed request")
	}
	return p, nil
}

// ParseSubmit collects the entry form fields.
func ParseSubmit(p *RequestBodyParser) services.SubmitInput {
	return services.SubmitInput{
		Date:        p.Get("date"),
		Category:    p.Get("category"),
		Amount:      p.Get("amount"),
		Description: p.Get("description"),
	}
}

// ParseDateField parses a required YYYY-MM-DD field.
func ParseDateField(p *RequestBodyParser, key string) (core.Date, error) {
	v := p.Get(key)
	if v == "" {
		return core.Date{}, &core.ValidationError{Field: key, Reason: "required"}
	}
	return core.ParseDate(v)
}

// ParseFilter builds a value match from the optional date, category,
// amount and description fields. A blank description matches anything
// unless blank_description is set, which matches entries without one.
func ParseFilter(p *RequestBodyParser) (core.EntryFilter, error) {
	var f core.EntryFilter
	if v := p.Get("date"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return f, err
		}
		f.Date = d
	}
	f.Category = core.NormalizeCategory(p.Get("category"))
	if v := p.Get("amount"); v != "" {
		amt, err := core.ParseAmount(v)
		if err != nil {
			return f, err
		}
		f.Amount = decimal.NewNullDecimal(amt)
	}
	if desc := p.Get("description"); desc != "" || isTruthy(p.Get("blank_description")) {
		f.Description = &desc
	}
	return f, nil
}

func isTruthy(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b || v == "on"
}
