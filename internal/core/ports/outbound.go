package ports

import (
	"context"
	"io"
	"time"

	"github.com/advmus/invoicevault/internal/core/domain"
)

// RecordStore persists and reads invoice metadata records. All operations
// are scoped to a single tenant namespace; cross-tenant reads do not exist.
//
// UpsertMerge must be atomic per (tenant, invoice) key relative to other
// writers of the same key: untouched fields survive concurrent writes and
// CreatedAt is applied only when the record has none yet.
type RecordStore interface {
	Get(ctx context.Context, tenantID, invoiceID string) (*domain.InvoiceRecord, error)
	UpsertMerge(ctx context.Context, tenantID, invoiceID string, fields domain.RecordFields) (*domain.InvoiceRecord, error)
	// QueryByField performs an equality lookup on a secondary field
	// (domain.FieldIdempotencyKey or domain.FieldContentHash). The store
	// offers equality filtering only; callers order and window-filter the
	// candidates themselves.
	QueryByField(ctx context.Context, tenantID, field, value string, limit int) ([]domain.InvoiceRecord, error)
	ListRecent(ctx context.Context, tenantID string, limit int) ([]domain.InvoiceRecord, error)
}

// BlobInfo describes a stored invoice binary.
type BlobInfo struct {
	InvoiceID        string
	Location         string
	ByteSize         int64
	ContentType      string
	OriginalFilename string
	UpdatedAt        time.Time
	Metadata         map[string]string
}

// BlobStore stores the invoice binaries. It is the authoritative source of
// which invoices exist; the record store is a derived, rebuildable index.
type BlobStore interface {
	Put(ctx context.Context, tenantID, invoiceID string, data io.Reader, contentType string, metadata map[string]string) (*BlobInfo, error)
	// GetStream fails with a domain.ErrNotFound kind when the blob is absent.
	GetStream(ctx context.Context, tenantID, invoiceID string) (io.ReadCloser, *BlobInfo, error)
	List(ctx context.Context, tenantID string) ([]BlobInfo, error)
}

// MessageQueue hands freshly ingested invoices to the parse worker.
type MessageQueue interface {
	PublishInvoiceIngested(ctx context.Context, tenantID, invoiceID string) error
	SubscribeInvoiceIngested(ctx context.Context, handler func(ctx context.Context, tenantID, invoiceID string) error) error
}

// InvoiceParser extracts business fields from a stored invoice binary.
type InvoiceParser interface {
	Parse(ctx context.Context, data io.ReaderAt, size int64) (domain.ParsedInvoice, error)
}
