package ports

import (
	"context"
	"io"

	"github.com/advmus/invoicevault/internal/core/domain"
)

// IngestInput is one upload request. Body must be seekable: the
// fingerprinter scans the full stream and rewinds it before the blob write
// re-reads the same bytes. Callers with a non-seekable source buffer first.
type IngestInput struct {
	TenantID         string
	Body             io.ReadSeeker
	OriginalFilename string
	ContentType      string
	IdempotencyKey   string
}

// IngestResult distinguishes a fresh record from an idempotent replay of a
// previous successful upload.
type IngestResult struct {
	Record       *domain.InvoiceRecord
	Deduplicated bool
}

// InvoiceIngestor is the inbound contract for upload orchestration.
type InvoiceIngestor interface {
	Ingest(ctx context.Context, in IngestInput) (*IngestResult, error)
}

// InvoiceDirectory is the inbound read/patch model over invoice metadata
// and binaries.
type InvoiceDirectory interface {
	Get(ctx context.Context, tenantID, invoiceID string) (*domain.InvoiceRecord, error)
	List(ctx context.Context, tenantID string, limit int) ([]domain.InvoiceRecord, error)
	Patch(ctx context.Context, tenantID, invoiceID string, patch domain.InvoicePatch) (*domain.InvoiceRecord, error)
	Open(ctx context.Context, tenantID, invoiceID string) (io.ReadCloser, *BlobInfo, error)
}

// InvoiceProcessor is the inbound contract for asynchronous invoice parsing.
type InvoiceProcessor interface {
	ProcessByID(ctx context.Context, tenantID, invoiceID string) error
}
