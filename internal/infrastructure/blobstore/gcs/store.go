package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/advmus/invoicevault/internal/core/domain"
	"github.com/advmus/invoicevault/internal/core/ports"
)

// Store keeps invoice binaries in a GCS bucket under
// tenants/<tenant>/invoices/<invoice>.pdf, with upload context stored as
// object metadata. No local disk is involved.
type Store struct {
	client *storage.Client
	bucket string
}

// New builds the store. Credentials come from ADC; set credentialsJSON to
// provide an explicit service-account key (e.g. locally).
func New(ctx context.Context, bucket, credentialsJSON string) (*Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func invoicesPrefix(tenantID string) string {
	return fmt.Sprintf("tenants/%s/invoices/", tenantID)
}

func objectName(tenantID, invoiceID string) string {
	return invoicesPrefix(tenantID) + invoiceID + ".pdf"
}

func (s *Store) Put(ctx context.Context, tenantID, invoiceID string, data io.Reader, contentType string, metadata map[string]string) (*ports.BlobInfo, error) {
	name := objectName(tenantID, invoiceID)
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata

	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "write blob", err)
	}
	if err := w.Close(); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "finalize blob", err)
	}

	attrs := w.Attrs()
	return s.blobInfo(invoiceID, name, attrs), nil
}

func (s *Store) GetStream(ctx context.Context, tenantID, invoiceID string) (io.ReadCloser, *ports.BlobInfo, error) {
	name := objectName(tenantID, invoiceID)
	obj := s.client.Bucket(s.bucket).Object(name)

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil, domain.WrapError(domain.ErrNotFound, "open blob", fmt.Errorf("invoice pdf %s not found", invoiceID))
		}
		return nil, nil, domain.WrapError(domain.ErrBackendUnavailable, "stat blob", err)
	}

	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil, domain.WrapError(domain.ErrNotFound, "open blob", fmt.Errorf("invoice pdf %s not found", invoiceID))
		}
		return nil, nil, domain.WrapError(domain.ErrBackendUnavailable, "open blob", err)
	}
	return reader, s.blobInfo(invoiceID, name, attrs), nil
}

func (s *Store) List(ctx context.Context, tenantID string) ([]ports.BlobInfo, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: invoicesPrefix(tenantID)})

	var out []ports.BlobInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrBackendUnavailable, "list blobs", err)
		}
		if !strings.HasSuffix(attrs.Name, ".pdf") {
			continue
		}
		invoiceID := strings.TrimSuffix(path.Base(attrs.Name), ".pdf")
		out = append(out, *s.blobInfo(invoiceID, attrs.Name, attrs))
	}
}

func (s *Store) blobInfo(invoiceID, name string, attrs *storage.ObjectAttrs) *ports.BlobInfo {
	info := &ports.BlobInfo{
		InvoiceID: invoiceID,
		Location:  fmt.Sprintf("gs://%s/%s", s.bucket, name),
	}
	if attrs == nil {
		return info
	}
	info.ByteSize = attrs.Size
	info.ContentType = attrs.ContentType
	info.UpdatedAt = attrs.Updated
	info.Metadata = attrs.Metadata
	if attrs.Metadata != nil {
		info.OriginalFilename = attrs.Metadata["original_filename"]
	}
	return info
}
