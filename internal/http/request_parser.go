package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finex/internal/core"
)

// maxFormBytes bounds urlencoded and JSON bodies. Receipts use their own
// multipart limit.
const maxFormBytes = 64 << 10

// CategoryPalette is the preset color choice of the category form.
var CategoryPalette = []string{
	"#10b981", "#3b82f6", "#8b5cf6", "#f59e0b", "#ef4444",
	"#06b6d4", "#ec4899", "#14b8a6", "#f97316", "#6366f1",
}

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month time.Month
}

// ParseMonthParams extracts year and month from query parameters. Missing
// or out-of-range values fall back to now.
func ParseMonthParams(query url.Values, now time.Time) MonthParams {
	params := MonthParams{Year: now.Year(), Month: now.Month()}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil && y >= 1970 && y <= 9999 {
			params.Year = y
		}
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 1 && m <= 12 {
			params.Month = time.Month(m)
		}
	}

	return params
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once, up to maxFormBytes, and stores it for subsequent
// parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
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

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	// Fall back to form parsing
	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
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

// stringValue converts a decoded JSON value to string.
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

// parseBody reads and parses the request body in one step.
func parseBody(r *http.Request) (*RequestBodyParser, error) {
	p := NewRequestBodyParser(r)
	return p, p.Parse()
}

// parseCategoryType reads an income/expense selector, defaulting to expense.
func parseCategoryType(s string) core.CategoryType {
	if core.CategoryType(s) == core.Income {
		return core.Income
	}
	return core.Expense
}

// ParseTransactionForm builds a transaction from the form fields type,
// categoryId, amount, date, note and receiptId. The amount accepts grouped
// input such as "1.500.000". Errors are core validation sentinels.
func ParseTransactionForm(p *RequestBodyParser, id string, now time.Time) (core.Transaction, error) {
	t := core.Transaction{
		ID:         id,
		Type:       parseCategoryType(p.Get("type")),
		CategoryID: p.Get("categoryId"),
		Note:       p.Get("note"),
		ReceiptID:  p.Get("receiptId"),
		Amount:     core.Money{Amount: core.ParseAmount(p.Get("amount"))},
	}
	if t.CategoryID == "" {
		return t, core.ErrEmptyCategory
	}
	if err := t.Amount.Validate(); err != nil {
		return t, err
	}
	date, err := parseDate(p.Get("date"), now)
	if err != nil {
		return t, err
	}
	t.Date = date
	return t, t.Validate()
}

// ParseCategoryForm builds a category from the form fields name, type,
// color and icon. An empty color picks the first palette entry.
func ParseCategoryForm(p *RequestBodyParser, id string) (core.Category, error) {
	c := core.Category{
		ID:    id,
		Name:  p.Get("name"),
		Type:  parseCategoryType(p.Get("type")),
		Color: strings.ToLower(p.Get("color")),
		Icon:  p.Get("icon"),
	}
	if c.Color == "" {
		c.Color = CategoryPalette[0]
	}
	return c, c.Validate()
}
