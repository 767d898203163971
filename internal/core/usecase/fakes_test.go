package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/advmus/invoicevault/internal/core/domain"
	"github.com/advmus/invoicevault/internal/core/ports"
)

// recordStoreFake is an in-memory record store with merge-upsert
// semantics matching the real adapters.
type recordStoreFake struct {
	records map[string]map[string]domain.InvoiceRecord

	getErr    error
	upsertErr error
	queryErr  error
	listErr   error

	upsertCalls int
}

func newRecordStoreFake() *recordStoreFake {
	return &recordStoreFake{records: make(map[string]map[string]domain.InvoiceRecord)}
}

func (f *recordStoreFake) seed(rec domain.InvoiceRecord) {
	tenant := f.records[rec.TenantID]
	if tenant == nil {
		tenant = make(map[string]domain.InvoiceRecord)
		f.records[rec.TenantID] = tenant
	}
	tenant[rec.InvoiceID] = rec
}

func (f *recordStoreFake) Get(_ context.Context, tenantID, invoiceID string) (*domain.InvoiceRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[tenantID][invoiceID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get invoice", fmt.Errorf("invoice %s not found", invoiceID))
	}
	out := rec
	return &out, nil
}

func (f *recordStoreFake) UpsertMerge(_ context.Context, tenantID, invoiceID string, fields domain.RecordFields) (*domain.InvoiceRecord, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upsertCalls++

	existing, ok := f.records[tenantID][invoiceID]
	if !ok {
		existing = domain.InvoiceRecord{TenantID: tenantID, InvoiceID: invoiceID}
	}
	merged := fields.ApplyTo(existing)
	f.seed(merged)
	out := merged
	return &out, nil
}

func (f *recordStoreFake) QueryByField(_ context.Context, tenantID, field, value string, limit int) ([]domain.InvoiceRecord, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []domain.InvoiceRecord
	for _, rec := range f.records[tenantID] {
		var match bool
		switch field {
		case domain.FieldIdempotencyKey:
			match = rec.IdempotencyKey == value
		case domain.FieldContentHash:
			match = rec.ContentHash == value
		default:
			return nil, domain.WrapError(domain.ErrInvalidInput, "query invoices", fmt.Errorf("unsupported query field %q", field))
		}
		if match {
			out = append(out, rec)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *recordStoreFake) ListRecent(_ context.Context, tenantID string, limit int) ([]domain.InvoiceRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.InvoiceRecord
	for _, rec := range f.records[tenantID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type blobStoreFake struct {
	contents map[string][]byte
	infos    map[string]ports.BlobInfo

	putErr  error
	getErr  error
	listErr error

	putCalls int
}

func newBlobStoreFake() *blobStoreFake {
	return &blobStoreFake{
		contents: make(map[string][]byte),
		infos:    make(map[string]ports.BlobInfo),
	}
}

func blobKey(tenantID, invoiceID string) string { return tenantID + "/" + invoiceID }

func (f *blobStoreFake) Put(_ context.Context, tenantID, invoiceID string, data io.Reader, contentType string, metadata map[string]string) (*ports.BlobInfo, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.putCalls++

	raw, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}
	info := ports.BlobInfo{
		InvoiceID:        invoiceID,
		Location:         "fake://" + blobKey(tenantID, invoiceID),
		ByteSize:         int64(len(raw)),
		ContentType:      contentType,
		OriginalFilename: metadata["original_filename"],
		Metadata:         metadata,
	}
	f.contents[blobKey(tenantID, invoiceID)] = raw
	f.infos[blobKey(tenantID, invoiceID)] = info
	out := info
	return &out, nil
}

func (f *blobStoreFake) GetStream(_ context.Context, tenantID, invoiceID string) (io.ReadCloser, *ports.BlobInfo, error) {
	if f.getErr != nil {
		return nil, nil, f.getErr
	}
	raw, ok := f.contents[blobKey(tenantID, invoiceID)]
	if !ok {
		return nil, nil, domain.WrapError(domain.ErrNotFound, "open blob", fmt.Errorf("invoice pdf %s not found", invoiceID))
	}
	info := f.infos[blobKey(tenantID, invoiceID)]
	return io.NopCloser(bytes.NewReader(raw)), &info, nil
}

func (f *blobStoreFake) List(_ context.Context, tenantID string) ([]ports.BlobInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []ports.BlobInfo
	prefix := tenantID + "/"
	for key, info := range f.infos {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceID < out[j].InvoiceID })
	return out, nil
}

type queueFake struct {
	published []string
	pubErr    error
}

func (f *queueFake) PublishInvoiceIngested(_ context.Context, tenantID, invoiceID string) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.published = append(f.published, tenantID+"/"+invoiceID)
	return nil
}

func (f *queueFake) SubscribeInvoiceIngested(context.Context, func(context.Context, string, string) error) error {
	return errors.New("not implemented")
}

type parserFake struct {
	parsed domain.ParsedInvoice
	err    error
}

func (f *parserFake) Parse(context.Context, io.ReaderAt, int64) (domain.ParsedInvoice, error) {
	if f.err != nil {
		return domain.ParsedInvoice{}, f.err
	}
	return f.parsed, nil
}
