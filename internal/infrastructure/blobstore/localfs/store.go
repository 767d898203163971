package localfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/advmus/invoicevault/internal/core/domain"
	"github.com/advmus/invoicevault/internal/core/ports"
)

// Store keeps invoice binaries on local disk for development and tests:
// <base>/<tenant>/invoices/<invoice>.pdf with a JSON sidecar carrying the
// metadata a bucket would hold on the object.
type Store struct {
	basePath string
}

func New(basePath string) (*Store, error) {
	if basePath == "" {
		basePath = "./data/invoices"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

type sidecar struct {
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (s *Store) invoicesDir(tenantID string) string {
	return filepath.Join(s.basePath, tenantID, "invoices")
}

func (s *Store) blobPath(tenantID, invoiceID string) string {
	return filepath.Join(s.invoicesDir(tenantID), invoiceID+".pdf")
}

func (s *Store) Put(_ context.Context, tenantID, invoiceID string, data io.Reader, contentType string, metadata map[string]string) (*ports.BlobInfo, error) {
	dir := s.invoicesDir(tenantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "create tenant dir", err)
	}

	path := s.blobPath(tenantID, invoiceID)
	f, err := os.Create(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "create blob file", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "write blob file", err)
	}

	side := sidecar{ContentType: contentType, Metadata: metadata}
	raw, err := json.Marshal(side)
	if err != nil {
		return nil, fmt.Errorf("marshal blob sidecar: %w", err)
	}
	if err := os.WriteFile(path+".meta.json", raw, 0o644); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "write blob sidecar", err)
	}

	return s.stat(tenantID, invoiceID)
}

func (s *Store) GetStream(_ context.Context, tenantID, invoiceID string) (io.ReadCloser, *ports.BlobInfo, error) {
	info, err := s.stat(tenantID, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.blobPath(tenantID, invoiceID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, domain.WrapError(domain.ErrNotFound, "open blob", fmt.Errorf("invoice pdf %s not found", invoiceID))
		}
		return nil, nil, domain.WrapError(domain.ErrBackendUnavailable, "open blob", err)
	}
	return f, info, nil
}

func (s *Store) List(_ context.Context, tenantID string) ([]ports.BlobInfo, error) {
	entries, err := os.ReadDir(s.invoicesDir(tenantID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "list blobs", err)
	}

	var out []ports.BlobInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".pdf") {
			continue
		}
		info, err := s.stat(tenantID, strings.TrimSuffix(name, ".pdf"))
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, nil
}

func (s *Store) stat(tenantID, invoiceID string) (*ports.BlobInfo, error) {
	path := s.blobPath(tenantID, invoiceID)
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrNotFound, "stat blob", fmt.Errorf("invoice pdf %s not found", invoiceID))
		}
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "stat blob", err)
	}

	info := &ports.BlobInfo{
		InvoiceID: invoiceID,
		Location:  path,
		ByteSize:  fi.Size(),
		UpdatedAt: fi.ModTime().UTC(),
	}

	// Sidecar is best-effort; a blob without one is still downloadable.
	if raw, err := os.ReadFile(path + ".meta.json"); err == nil {
		var side sidecar
		if err := json.Unmarshal(raw, &side); err == nil {
			info.ContentType = side.ContentType
			info.Metadata = side.Metadata
			if side.Metadata != nil {
				info.OriginalFilename = side.Metadata["original_filename"]
			}
		}
	}
	return info, nil
}
