package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/advmus/invoicevault/internal/core/domain"
	"github.com/advmus/invoicevault/internal/core/ports"
)

const maxFilenameLength = 200

// IngestInvoiceUseCase is the ingestion orchestrator: it validates the
// declared media type, fingerprints the stream, resolves dedup, and
// persists blob before record so a failed ingestion can only leave an
// orphan blob behind (healed later by listing reconciliation), never a
// record without its blob.
type IngestInvoiceUseCase struct {
	records ports.RecordStore
	blobs   ports.BlobStore
	queue   ports.MessageQueue
	dedup   *DedupResolver
	now     func() time.Time
}

func NewIngestInvoiceUseCase(
	records ports.RecordStore,
	blobs ports.BlobStore,
	queue ports.MessageQueue,
	dedup *DedupResolver,
) *IngestInvoiceUseCase {
	return &IngestInvoiceUseCase{
		records: records,
		blobs:   blobs,
		queue:   queue,
		dedup:   dedup,
		now:     time.Now,
	}
}

func (uc *IngestInvoiceUseCase) Ingest(ctx context.Context, in ports.IngestInput) (*ports.IngestResult, error) {
	tenantID, err := domain.ValidateTenantID(in.TenantID)
	if err != nil {
		return nil, err
	}

	filename := sanitizeFilename(in.OriginalFilename)
	if !declaresPDF(in.ContentType, filename) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate upload", domain.ErrUnsupportedMedia)
	}

	contentHash, err := Fingerprint(in.Body)
	if err != nil {
		return nil, fmt.Errorf("fingerprint upload: %w", err)
	}

	decision, err := uc.dedup.Resolve(ctx, tenantID, in.IdempotencyKey, contentHash)
	if err != nil {
		return nil, fmt.Errorf("resolve dedup: %w", err)
	}
	switch decision.Kind {
	case DedupReturnExisting:
		// Idempotent fast path: no new blob, no new record, same result
		// no matter how often the client retries.
		return &ports.IngestResult{Record: decision.Existing, Deduplicated: true}, nil
	case DedupRejectDuplicate:
		return nil, fmt.Errorf("resolve dedup: %w", &domain.DuplicateError{ExistingInvoiceID: decision.Existing.InvoiceID})
	}

	invoiceID := newInvoiceID()
	idempotencyKey := strings.TrimSpace(in.IdempotencyKey)
	now := uc.now().UTC()

	metadata := map[string]string{
		"tenant_id":   tenantID,
		"invoice_id":  invoiceID,
		"uploaded_at": now.Format(time.RFC3339),
	}
	if filename != "" {
		metadata["original_filename"] = filename
	}
	if idempotencyKey != "" {
		metadata["idempotency_key"] = idempotencyKey
	}

	// Blob first: it is the durability-establishing write. If it fails,
	// nothing is observable to a concurrent lister.
	blob, err := uc.blobs.Put(ctx, tenantID, invoiceID, in.Body, "application/pdf", metadata)
	if err != nil {
		return nil, fmt.Errorf("store invoice blob: %w", err)
	}

	status := domain.StatusUploaded
	fields := domain.RecordFields{
		Status:       &status,
		ContentHash:  &contentHash,
		BlobLocation: &blob.Location,
		ByteSize:     &blob.ByteSize,
		CreatedAt:    &now,
		UpdatedAt:    now,
	}
	if filename != "" {
		fields.OriginalFilename = &filename
	}
	if idempotencyKey != "" {
		fields.IdempotencyKey = &idempotencyKey
	}

	record, err := uc.records.UpsertMerge(ctx, tenantID, invoiceID, fields)
	if err != nil {
		// Orphan blob state: the listing reconciliation path resurfaces
		// it from the blob store later.
		return nil, fmt.Errorf("persist invoice record: %w", err)
	}

	if err := uc.queue.PublishInvoiceIngested(ctx, tenantID, invoiceID); err != nil {
		// The upload is durable at this point; parsing is enrichment, so a
		// broken queue must not turn a successful ingestion into an error.
		slog.Warn("publish invoice ingested failed",
			"tenant_id", tenantID,
			"invoice_id", invoiceID,
			"error", err,
		)
	}

	return &ports.IngestResult{Record: record}, nil
}

// newInvoiceID returns a 32-char hex token, collision-resistant enough
// that no store-side existence check is performed.
func newInvoiceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func declaresPDF(contentType, filename string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "application/pdf" || ct == "application/x-pdf" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	base = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, base)
	if len(base) > maxFilenameLength {
		base = base[:maxFilenameLength]
	}
	return base
}
