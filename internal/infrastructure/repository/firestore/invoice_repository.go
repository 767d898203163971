package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/advmus/invoicevault/internal/core/domain"
)

// NewClient centralizes Firestore client construction. Credentials come
// from ADC (local gcloud login or the runtime service account).
func NewClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return client, nil
}

// InvoiceRepository is the Firestore-backed record store. Documents live
// under tenants/<tenant>/invoices/<invoice>; merge-upserts run inside a
// transaction so created_at stays first-write-wins under concurrent
// writers to the same document.
type InvoiceRepository struct {
	client *firestore.Client
}

func NewInvoiceRepository(client *firestore.Client) *InvoiceRepository {
	return &InvoiceRepository{client: client}
}

func (r *InvoiceRepository) invoices(tenantID string) *firestore.CollectionRef {
	return r.client.Collection("tenants").Doc(tenantID).Collection("invoices")
}

// invoiceDoc is the Firestore persistence shape of a record.
type invoiceDoc struct {
	TenantID         string    `firestore:"tenant_id"`
	InvoiceID        string    `firestore:"invoice_id"`
	Status           string    `firestore:"status,omitempty"`
	ContentHash      string    `firestore:"content_hash,omitempty"`
	IdempotencyKey   string    `firestore:"idempotency_key,omitempty"`
	BlobLocation     string    `firestore:"blob_location,omitempty"`
	ByteSize         int64     `firestore:"byte_size,omitempty"`
	OriginalFilename string    `firestore:"original_filename,omitempty"`
	Supplier         string    `firestore:"supplier,omitempty"`
	Amount           *float64  `firestore:"amount,omitempty"`
	Currency         string    `firestore:"currency,omitempty"`
	DueDate          string    `firestore:"due_date,omitempty"`
	Note             string    `firestore:"note,omitempty"`
	ParseError       string    `firestore:"parse_error,omitempty"`
	CreatedAt        time.Time `firestore:"created_at,omitempty"`
	UpdatedAt        time.Time `firestore:"updated_at,omitempty"`
}

func (d *invoiceDoc) toRecord() domain.InvoiceRecord {
	return domain.InvoiceRecord{
		TenantID:         d.TenantID,
		InvoiceID:        d.InvoiceID,
		Status:           domain.InvoiceStatus(d.Status),
		ContentHash:      d.ContentHash,
		IdempotencyKey:   d.IdempotencyKey,
		BlobLocation:     d.BlobLocation,
		ByteSize:         d.ByteSize,
		OriginalFilename: d.OriginalFilename,
		Supplier:         d.Supplier,
		Amount:           d.Amount,
		Currency:         d.Currency,
		DueDate:          d.DueDate,
		Note:             d.Note,
		ParseError:       d.ParseError,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func (r *InvoiceRepository) Get(ctx context.Context, tenantID, invoiceID string) (*domain.InvoiceRecord, error) {
	snap, err := r.invoices(tenantID).Doc(invoiceID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.WrapError(domain.ErrNotFound, "get invoice", fmt.Errorf("invoice %s not found", invoiceID))
		}
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "get invoice", err)
	}
	return decodeSnapshot(snap)
}

func (r *InvoiceRepository) UpsertMerge(ctx context.Context, tenantID, invoiceID string, fields domain.RecordFields) (*domain.InvoiceRecord, error) {
	ref := r.invoices(tenantID).Doc(invoiceID)

	var merged domain.InvoiceRecord
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing := domain.InvoiceRecord{TenantID: tenantID, InvoiceID: invoiceID}
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if snap != nil && snap.Exists() {
			rec, err := decodeSnapshot(snap)
			if err != nil {
				return err
			}
			existing = *rec
		}

		merged = fields.ApplyTo(existing)
		if merged.CreatedAt.IsZero() {
			merged.CreatedAt = fields.UpdatedAt
		}
		return tx.Set(ref, mergeData(tenantID, invoiceID, fields, existing.CreatedAt.IsZero()), firestore.MergeAll)
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "upsert invoice", err)
	}
	return &merged, nil
}

// mergeData builds the partial document for a MergeAll set: only fields
// the writer actually touched, plus created_at on the first write.
func mergeData(tenantID, invoiceID string, fields domain.RecordFields, firstWrite bool) map[string]any {
	data := map[string]any{
		"tenant_id":  tenantID,
		"invoice_id": invoiceID,
		"updated_at": fields.UpdatedAt,
	}
	if firstWrite && fields.CreatedAt != nil {
		data["created_at"] = *fields.CreatedAt
	} else if firstWrite {
		data["created_at"] = fields.UpdatedAt
	}
	if fields.Status != nil {
		data["status"] = string(*fields.Status)
	}
	if fields.ContentHash != nil {
		data["content_hash"] = *fields.ContentHash
	}
	if fields.IdempotencyKey != nil {
		data["idempotency_key"] = *fields.IdempotencyKey
	}
	if fields.BlobLocation != nil {
		data["blob_location"] = *fields.BlobLocation
	}
	if fields.ByteSize != nil {
		data["byte_size"] = *fields.ByteSize
	}
	if fields.OriginalFilename != nil {
		data["original_filename"] = *fields.OriginalFilename
	}
	if fields.Supplier != nil {
		data["supplier"] = *fields.Supplier
	}
	if fields.Amount != nil {
		data["amount"] = *fields.Amount
	}
	if fields.Currency != nil {
		data["currency"] = *fields.Currency
	}
	if fields.DueDate != nil {
		data["due_date"] = *fields.DueDate
	}
	if fields.Note != nil {
		data["note"] = *fields.Note
	}
	if fields.ParseError != nil {
		data["parse_error"] = *fields.ParseError
	}
	return data
}

func (r *InvoiceRepository) QueryByField(ctx context.Context, tenantID, field, value string, limit int) ([]domain.InvoiceRecord, error) {
	switch field {
	case domain.FieldIdempotencyKey, domain.FieldContentHash:
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "query invoices", fmt.Errorf("unsupported query field %q", field))
	}
	if limit <= 0 {
		limit = 1
	}

	// Equality filter only; no OrderBy, so no composite index is needed.
	// Callers window-filter and order the candidates themselves.
	iter := r.invoices(tenantID).Where(field, "==", value).Limit(limit).Documents(ctx)
	return collect(iter, "query invoices")
}

func (r *InvoiceRepository) ListRecent(ctx context.Context, tenantID string, limit int) ([]domain.InvoiceRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	iter := r.invoices(tenantID).OrderBy("updated_at", firestore.Desc).Limit(limit).Documents(ctx)
	return collect(iter, "list invoices")
}

func collect(iter *firestore.DocumentIterator, operation string) ([]domain.InvoiceRecord, error) {
	defer iter.Stop()

	var out []domain.InvoiceRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrBackendUnavailable, operation, err)
		}
		rec, err := decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
}

func decodeSnapshot(snap *firestore.DocumentSnapshot) (*domain.InvoiceRecord, error) {
	var doc invoiceDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "decode invoice document", err)
	}
	rec := doc.toRecord()
	if rec.InvoiceID == "" {
		rec.InvoiceID = snap.Ref.ID
	}
	return &rec, nil
}
