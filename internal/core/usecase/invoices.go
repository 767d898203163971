package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/advmus/invoicevault/internal/core/domain"
	"github.com/advmus/invoicevault/internal/core/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// InvoiceDirectoryService serves reads, patches and downloads over the
// two stores. It also owns the listing reconciliation path that rebuilds
// the record store from the blob store when the index has fallen behind.
type InvoiceDirectoryService struct {
	records   ports.RecordStore
	blobs     ports.BlobStore
	listLimit int
	now       func() time.Time

	onReconcile func(synthesized int)
}

func NewInvoiceDirectoryService(records ports.RecordStore, blobs ports.BlobStore, listLimit int) *InvoiceDirectoryService {
	if listLimit <= 0 {
		listLimit = defaultListLimit
	}
	return &InvoiceDirectoryService{
		records:   records,
		blobs:     blobs,
		listLimit: listLimit,
		now:       time.Now,
	}
}

// OnReconcile registers a hook invoked after a listing reconciliation run,
// with the number of synthesized records. Used for metrics.
func (s *InvoiceDirectoryService) OnReconcile(fn func(synthesized int)) {
	s.onReconcile = fn
}

func (s *InvoiceDirectoryService) Get(ctx context.Context, tenantID, invoiceID string) (*domain.InvoiceRecord, error) {
	tenantID, invoiceID, err := validateIDs(tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.records.Get(ctx, tenantID, invoiceID)
}

// List returns the most recently updated records. When the record store
// comes back empty it enumerates the blob store instead (the blob store
// is authoritative for which invoices exist), synthesizes one minimal
// record per blob and upserts it, self-healing a wiped or never-populated
// index. Reconciliation is idempotent: merge-upserts preserve created_at
// and touched fields of any record that does exist by the time we write.
func (s *InvoiceDirectoryService) List(ctx context.Context, tenantID string, limit int) ([]domain.InvoiceRecord, error) {
	tenantID, err := domain.ValidateTenantID(tenantID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxListLimit {
		limit = s.listLimit
	}

	records, err := s.records.ListRecent(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list invoice records: %w", err)
	}
	if len(records) > 0 {
		return records, nil
	}

	blobs, err := s.blobs.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("enumerate invoice blobs: %w", err)
	}
	if len(blobs) == 0 {
		return records, nil
	}

	slog.Info("record store empty, rebuilding from blob store",
		"tenant_id", tenantID,
		"blobs", len(blobs),
	)

	rebuilt := make([]domain.InvoiceRecord, 0, len(blobs))
	for i := range blobs {
		record, err := s.records.UpsertMerge(ctx, tenantID, blobs[i].InvoiceID, s.synthesizeFields(&blobs[i]))
		if err != nil {
			return nil, fmt.Errorf("backfill record for blob %s: %w", blobs[i].InvoiceID, err)
		}
		rebuilt = append(rebuilt, *record)
	}
	if s.onReconcile != nil {
		s.onReconcile(len(rebuilt))
	}

	sort.Slice(rebuilt, func(i, j int) bool {
		return rebuilt[i].UpdatedAt.After(rebuilt[j].UpdatedAt)
	})
	if len(rebuilt) > limit {
		rebuilt = rebuilt[:limit]
	}
	return rebuilt, nil
}

// synthesizeFields builds a minimal uploaded record from blob metadata.
// Timestamps are best-effort: the blob's last update time when present.
func (s *InvoiceDirectoryService) synthesizeFields(blob *ports.BlobInfo) domain.RecordFields {
	status := domain.StatusUploaded
	created := blob.UpdatedAt
	if created.IsZero() {
		created = s.now().UTC()
	}
	fields := domain.RecordFields{
		Status:       &status,
		BlobLocation: &blob.Location,
		ByteSize:     &blob.ByteSize,
		CreatedAt:    &created,
		UpdatedAt:    created,
	}
	if blob.OriginalFilename != "" {
		fields.OriginalFilename = &blob.OriginalFilename
	}
	return fields
}

// Patch validates and applies a partial update. Status changes go through
// the workflow transition table; business fields merge unconditionally.
// The returned view is the existing record overlaid with the accepted
// updates, not a second store round-trip.
func (s *InvoiceDirectoryService) Patch(ctx context.Context, tenantID, invoiceID string, patch domain.InvoicePatch) (*domain.InvoiceRecord, error) {
	tenantID, invoiceID, err := validateIDs(tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := patch.Normalize(); err != nil {
		return nil, err
	}

	existing, err := s.records.Get(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}

	fields := domain.RecordFields{
		Supplier:  patch.Supplier,
		Amount:    patch.Amount,
		Currency:  patch.Currency,
		DueDate:   patch.DueDate,
		Note:      patch.Note,
		UpdatedAt: s.now().UTC(),
	}
	if patch.Status != nil {
		requested := domain.InvoiceStatus(*patch.Status)
		if err := domain.ValidateTransition(existing.Status, requested); err != nil {
			return nil, fmt.Errorf("validate status transition: %w", err)
		}
		if requested != existing.Status {
			fields.Status = &requested
		}
	}

	if _, err := s.records.UpsertMerge(ctx, tenantID, invoiceID, fields); err != nil {
		return nil, fmt.Errorf("persist invoice patch: %w", err)
	}

	merged := fields.ApplyTo(*existing)
	return &merged, nil
}

// Open streams the invoice binary. It goes straight to the blob store, so
// downloads work even for invoices the record store never indexed.
func (s *InvoiceDirectoryService) Open(ctx context.Context, tenantID, invoiceID string) (io.ReadCloser, *ports.BlobInfo, error) {
	tenantID, invoiceID, err := validateIDs(tenantID, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	return s.blobs.GetStream(ctx, tenantID, invoiceID)
}

func validateIDs(tenantID, invoiceID string) (string, string, error) {
	tenant, err := domain.ValidateTenantID(tenantID)
	if err != nil {
		return "", "", err
	}
	invoice, err := domain.ValidateInvoiceID(invoiceID)
	if err != nil {
		return "", "", err
	}
	return tenant, invoice, nil
}
