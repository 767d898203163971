package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// InvoicePatch is the closed schema for partial metadata updates. Unknown
// fields are rejected at decode time; immutable fields (content hash,
// idempotency key, blob location, timestamps) are simply not part of it.
type InvoicePatch struct {
	Status   *string  `json:"status"`
	Supplier *string  `json:"supplier"`
	Amount   *float64 `json:"amount"`
	Currency *string  `json:"currency"`
	DueDate  *string  `json:"due_date"`
	Note     *string  `json:"note"`
}

// DecodeInvoicePatch reads a patch body with a closed field set.
func DecodeInvoicePatch(r io.Reader) (InvoicePatch, error) {
	var patch InvoicePatch
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		return InvoicePatch{}, WrapError(ErrInvalidInput, "decode patch", err)
	}
	// A trailing second JSON value is malformed input, not extra data to ignore.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return InvoicePatch{}, WrapError(ErrInvalidInput, "decode patch", errors.New("unexpected trailing data"))
	}
	return patch, nil
}

func (p *InvoicePatch) IsEmpty() bool {
	return p.Status == nil && p.Supplier == nil && p.Amount == nil &&
		p.Currency == nil && p.DueDate == nil && p.Note == nil
}

// dueDateLayouts are the accepted inbound date formats. Persisted values
// always use the canonical ISO date layout.
var dueDateLayouts = []string{"2006-01-02", time.RFC3339, "02.01.2006", "01/02/2006"}

const canonicalDateLayout = "2006-01-02"

// Normalize validates the patch and rewrites values into their persisted
// form: status must be a known state, currency is a three-letter code
// upper-cased, due_date is canonicalized to an ISO date string.
func (p *InvoicePatch) Normalize() error {
	if p.Status != nil {
		status, err := ParseStatus(*p.Status)
		if err != nil {
			return err
		}
		s := string(status)
		p.Status = &s
	}
	if p.Currency != nil {
		code := strings.ToUpper(strings.TrimSpace(*p.Currency))
		if len(code) != 3 {
			return WrapError(ErrInvalidInput, "normalize currency", fmt.Errorf("currency must be a 3-letter code, got %q", *p.Currency))
		}
		p.Currency = &code
	}
	if p.DueDate != nil {
		normalized, err := normalizeDueDate(*p.DueDate)
		if err != nil {
			return err
		}
		p.DueDate = &normalized
	}
	return nil
}

func normalizeDueDate(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(canonicalDateLayout), nil
		}
	}
	return "", WrapError(ErrInvalidInput, "normalize due date", fmt.Errorf("unparseable date %q", raw))
}
