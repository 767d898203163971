package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

type InvoiceStatus string

const (
	StatusUploaded   InvoiceStatus = "uploaded"
	StatusProcessing InvoiceStatus = "processing"
	StatusParsed     InvoiceStatus = "parsed"
	StatusFailed     InvoiceStatus = "failed"
)

// ParseStatus validates a raw status string coming from a patch body.
func ParseStatus(s string) (InvoiceStatus, error) {
	status := InvoiceStatus(strings.TrimSpace(s))
	switch status {
	case StatusUploaded, StatusProcessing, StatusParsed, StatusFailed:
		return status, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse status", errors.New("unknown status "+s))
	}
}

// InvoiceRecord is the canonical metadata entity for one uploaded invoice.
// TenantID, InvoiceID, ContentHash, IdempotencyKey and BlobLocation are set
// once at creation and never mutated afterwards; Status moves only through
// the workflow transition table.
type InvoiceRecord struct {
	TenantID         string        `json:"tenant_id"`
	InvoiceID        string        `json:"invoice_id"`
	Status           InvoiceStatus `json:"status"`
	ContentHash      string        `json:"content_hash,omitempty"`
	IdempotencyKey   string        `json:"idempotency_key,omitempty"`
	BlobLocation     string        `json:"blob_location,omitempty"`
	ByteSize         int64         `json:"byte_size"`
	OriginalFilename string        `json:"original_filename,omitempty"`
	Supplier         string        `json:"supplier,omitempty"`
	Amount           *float64      `json:"amount,omitempty"`
	Currency         string        `json:"currency,omitempty"`
	DueDate          string        `json:"due_date,omitempty"`
	Note             string        `json:"note,omitempty"`
	ParseError       string        `json:"parse_error,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// RelevantTime is the timestamp the dedup window is measured against.
func (r *InvoiceRecord) RelevantTime() time.Time {
	if r.CreatedAt.After(r.UpdatedAt) {
		return r.CreatedAt
	}
	return r.UpdatedAt
}

// RecordFields is the payload of a merge-upsert. Nil fields are left
// untouched by the write; CreatedAt is applied only when the record has
// none yet (first write wins), UpdatedAt is refreshed on every write.
type RecordFields struct {
	Status           *InvoiceStatus
	ContentHash      *string
	IdempotencyKey   *string
	BlobLocation     *string
	ByteSize         *int64
	OriginalFilename *string
	Supplier         *string
	Amount           *float64
	Currency         *string
	DueDate          *string
	Note             *string
	ParseError       *string
	CreatedAt        *time.Time
	UpdatedAt        time.Time
}

// ApplyTo overlays the non-nil fields onto a copy of the record.
func (f RecordFields) ApplyTo(rec InvoiceRecord) InvoiceRecord {
	if f.Status != nil {
		rec.Status = *f.Status
	}
	if f.ContentHash != nil {
		rec.ContentHash = *f.ContentHash
	}
	if f.IdempotencyKey != nil {
		rec.IdempotencyKey = *f.IdempotencyKey
	}
	if f.BlobLocation != nil {
		rec.BlobLocation = *f.BlobLocation
	}
	if f.ByteSize != nil {
		rec.ByteSize = *f.ByteSize
	}
	if f.OriginalFilename != nil {
		rec.OriginalFilename = *f.OriginalFilename
	}
	if f.Supplier != nil {
		rec.Supplier = *f.Supplier
	}
	if f.Amount != nil {
		amount := *f.Amount
		rec.Amount = &amount
	}
	if f.Currency != nil {
		rec.Currency = *f.Currency
	}
	if f.DueDate != nil {
		rec.DueDate = *f.DueDate
	}
	if f.Note != nil {
		rec.Note = *f.Note
	}
	if f.ParseError != nil {
		rec.ParseError = *f.ParseError
	}
	if f.CreatedAt != nil && rec.CreatedAt.IsZero() {
		rec.CreatedAt = *f.CreatedAt
	}
	rec.UpdatedAt = f.UpdatedAt
	return rec
}

// Secondary lookup fields the record store must support equality queries on.
const (
	FieldIdempotencyKey = "idempotency_key"
	FieldContentHash    = "content_hash"
)

var (
	tenantIDPattern  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)
	invoiceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{8,128}$`)
)

// ValidateTenantID checks the tenant namespace grammar. The value arrives
// pre-authenticated; this guards against it being used as a path segment.
func ValidateTenantID(raw string) (string, error) {
	t := strings.TrimSpace(raw)
	if !tenantIDPattern.MatchString(t) {
		return "", WrapError(ErrInvalidInput, "validate tenant id", errors.New("invalid tenant id format"))
	}
	return t, nil
}

// ValidateInvoiceID checks the invoice id grammar (uuid hex and similar
// simple tokens; no slashes or whitespace).
func ValidateInvoiceID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if !invoiceIDPattern.MatchString(id) {
		return "", WrapError(ErrInvalidInput, "validate invoice id", errors.New("invalid invoice id format"))
	}
	return id, nil
}
