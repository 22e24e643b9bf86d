// Package http serves the JSON API, the ledger page and health endpoints.
//
// This file holds the request parsing helpers shared by the handlers.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"kicho/internal/core"
	"kicho/internal/storage"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// errBadParameter marks malformed query or path parameters (400).
var errBadParameter = errors.New("invalid parameter")

// parseFiscalYear reads ?fiscal_year=, defaulting to the fiscal year that
// contains now.
func parseFiscalYear(query url.Values, cal core.FiscalCalendar, now time.Time) (int, error) {
	v := strings.TrimSpace(query.Get("fiscal_year"))
	if v == "" {
		return cal.FiscalYear(core.Date{Time: now}), nil
	}
	fy, err := strconv.Atoi(v)
	if err != nil || fy < 1900 || fy > 9999 {
		return 0, fmt.Errorf("%w: fiscal_year %q", errBadParameter, v)
	}
	return fy, nil
}

// parseTransactionFilter reads the optional fiscal_year and account_id
// filters of the transaction list.
func parseTransactionFilter(query url.Values) (storage.TransactionFilter, error) {
	var f storage.TransactionFilter
	if v := strings.TrimSpace(query.Get("fiscal_year")); v != "" {
		fy, err := strconv.Atoi(v)
		if err != nil || fy < 1900 || fy > 9999 {
			return f, fmt.Errorf("%w: fiscal_year %q", errBadParameter, v)
		}
		f.FiscalYear = fy
	}
	if v := strings.TrimSpace(query.Get("account_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return f, fmt.Errorf("%w: account_id %q", errBadParameter, v)
		}
		f.AccountID = id
	}
	return f, nil
}

// parseAccountIDParam reads the {accountID} path parameter.
func parseAccountIDParam(r *http.Request) (int64, error) {
	v := chi.URLParam(r, "accountID")
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: account id %q", errBadParameter, v)
	}
	return id, nil
}

// RequestBodyParser reads a JSON or form-encoded body once and exposes its
// top-level fields as strings.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads at most maxBodyBytes of the request body.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := bytes.TrimSpace(p.body)
	if len(body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if body[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(body))
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
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
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput drops control characters other than tab and newlines and
// trims surrounding whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}

// parseTransaction builds a transaction from the parsed body. Field errors
// are returned as core validation errors; the full check happens in the
// service.
func parseTransaction(p *RequestBodyParser) (core.Transaction, error) {
	t := core.Transaction{
		Type:          core.TransactionType(strings.ToUpper(p.Get("type"))),
		PaymentMethod: core.PaymentMethod(p.Get("payment_method")),
		TaxCategory:   core.TaxCategory(p.Get("tax_category")),
		ClientName:    p.Get("client_name"),
		Description:   p.Get("description"),
		Memo:          p.Get("memo"),
	}

	date, err := core.ParseDate(p.Get("date"))
	if err != nil {
		return core.Transaction{}, err
	}
	t.Date = date

	if v := p.Get("account_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("account_id %q: %w", v, core.ErrInvalidAccount)
		}
		t.AccountID = id
	}

	amount, err := core.ParseMoney(p.Get("amount"))
	if err != nil {
		return core.Transaction{}, err
	}
	t.Amount = amount
	return t, nil
}
