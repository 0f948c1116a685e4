// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request
// data: the month selector shared by the page and the API, and a body
// parser that accepts either JSON or form-encoded records.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finance/internal/core"
)

// maxBodyBytes bounds every request body the handlers read.
const maxBodyBytes = 1 << 20

// ParsePeriod reads year and month, or month_select=YYYY-MM, from the query.
// Missing values default to fallback; present but malformed values are an
// error.
func ParsePeriod(query url.Values, fallback core.Period) (core.Period, error) {
	if v := strings.TrimSpace(query.Get("month_select")); v != "" {
		return core.ParsePeriod(v)
	}

	year, month := fallback.Year, fallback.Month
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, core.ErrInvalidPeriod
		}
		year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, core.ErrInvalidPeriod
		}
		month = m
	}
	return core.NewPeriod(year, month)
}

// RequirePeriod is ParsePeriod without defaults: both year and month must be
// present.
func RequirePeriod(query url.Values) (core.Period, error) {
	if strings.TrimSpace(query.Get("year")) == "" || strings.TrimSpace(query.Get("month")) == "" {
		return core.Period{}, missingField("year and month")
	}
	return ParsePeriod(query, core.Period{})
}

// ParseMonthParams is the lenient form used by the page: any invalid
// selector falls back to the month of now.
func ParseMonthParams(query url.Values, now time.Time) core.Period {
	current := core.PeriodOf(now)
	p, err := ParsePeriod(query, current)
	if err != nil {
		return current
	}
	return p
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads at most maxBodyBytes once and stores them.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
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

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
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

// recordInput is the raw, untyped shape of a record in a request.
type recordInput struct {
	ID            string
	Type          string
	Date          string
	Category      string
	Description   string
	Amount        string
	PaymentMethod string
	Tags          string
	Mood          string
	NeedOrWant    string
}

// readRecordInput collects the record fields. typeKey names the field that
// carries the kind: "type" in the API, "form_type" in the page form.
func readRecordInput(p *RequestBodyParser, typeKey string) recordInput {
	return recordInput{
		ID:            p.Get("id"),
		Type:          p.Get(typeKey),
		Date:          p.Get("date"),
		Category:      p.Get("category"),
		Description:   p.Get("description"),
		Amount:        p.Get("amount"),
		PaymentMethod: p.Get("payment_method"),
		Tags:          p.Get("tags"),
		Mood:          p.Get("mood"),
		NeedOrWant:    p.Get("need_or_want"),
	}
}

// require fails with the first empty value among the named fields.
func (in recordInput) require(fields ...string) error {
	values := map[string]string{
		"id":     in.ID,
		"type":   in.Type,
		"date":   in.Date,
		"amount": in.Amount,
	}
	for _, f := range fields {
		if values[f] == "" {
			return missingField(f)
		}
	}
	return nil
}

// kindAndID parses the identity of an existing record.
func (in recordInput) kindAndID() (core.Kind, int64, error) {
	kind, err := core.ParseKind(in.Type)
	if err != nil {
		return "", 0, err
	}
	id, err := strconv.ParseInt(in.ID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, &core.ValidationError{Field: "id", Message: "id must be a positive integer"}
	}
	return kind, id, nil
}

// toRecord converts and validates the input. The id is left zero.
func (in recordInput) toRecord() (core.Record, error) {
	kind, err := core.ParseKind(in.Type)
	if err != nil {
		return core.Record{}, err
	}
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return core.Record{}, err
	}
	amount, err := core.ParseMoney(in.Amount)
	if err != nil {
		return core.Record{}, err
	}

	rec := core.Record{
		Kind:        kind,
		Date:        date,
		Category:    in.Category,
		Description: in.Description,
		Amount:      amount,
	}
	if kind == core.KindExpense {
		rec.Details = &core.ExpenseDetails{
			PaymentMethod: in.PaymentMethod,
			Tags:          in.Tags,
			Mood:          in.Mood,
			NeedOrWant:    in.NeedOrWant,
		}
	}
	if err := rec.Validate(); err != nil {
		return core.Record{}, err
	}
	return rec, nil
}

func missingField(name string) error {
	return &core.ValidationError{Field: name, Message: fmt.Sprintf("missing required field: %s", name)}
}

// bodyError maps a body read or decode failure to a client error.
func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return &core.ValidationError{Field: "body", Message: "request body too large"}
	}
	return &core.ValidationError{Field: "body", Message: msgBadBody}
}
