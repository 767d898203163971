package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/advmus/invoicevault/internal/core/domain"
	"github.com/advmus/invoicevault/internal/core/ports"
)

func newIngestFixture() (*IngestInvoiceUseCase, *recordStoreFake, *blobStoreFake, *queueFake) {
	records := newRecordStoreFake()
	blobs := newBlobStoreFake()
	queue := &queueFake{}
	uc := NewIngestInvoiceUseCase(records, blobs, queue, newTestResolver(records))
	uc.now = fixedNow
	return uc, records, blobs, queue
}

func pdfUpload(body string) ports.IngestInput {
	return ports.IngestInput{
		TenantID:         "acme",
		Body:             strings.NewReader(body),
		OriginalFilename: "march.pdf",
		ContentType:      "application/pdf",
	}
}

func TestIngestSuccessCreatesRecordAndPublishes(t *testing.T) {
	uc, records, blobs, queue := newIngestFixture()

	result, err := uc.Ingest(context.Background(), pdfUpload("%PDF-1.4 body"))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Deduplicated {
		t.Fatal("fresh upload must not be marked deduplicated")
	}

	rec := result.Record
	if rec.Status != domain.StatusUploaded {
		t.Fatalf("expected status uploaded, got %s", rec.Status)
	}
	if len(rec.InvoiceID) != 32 {
		t.Fatalf("expected 32-char invoice id, got %q", rec.InvoiceID)
	}
	if rec.ContentHash == "" || rec.BlobLocation == "" {
		t.Fatalf("hash and blob location must be set: %+v", rec)
	}
	if rec.OriginalFilename != "march.pdf" {
		t.Fatalf("filename not carried: %q", rec.OriginalFilename)
	}
	if rec.CreatedAt.IsZero() || !rec.CreatedAt.Equal(rec.UpdatedAt) {
		t.Fatalf("fresh record timestamps wrong: %v / %v", rec.CreatedAt, rec.UpdatedAt)
	}

	if blobs.putCalls != 1 {
		t.Fatalf("expected one blob write, got %d", blobs.putCalls)
	}
	if string(blobs.contents["acme/"+rec.InvoiceID]) != "%PDF-1.4 body" {
		t.Fatal("blob content does not match upload")
	}
	if stored, _ := records.Get(context.Background(), "acme", rec.InvoiceID); stored == nil {
		t.Fatal("record not persisted")
	}
	if len(queue.published) != 1 || queue.published[0] != "acme/"+rec.InvoiceID {
		t.Fatalf("expected one published event, got %v", queue.published)
	}
}

func TestIngestAcceptsPDFByExtensionOnly(t *testing.T) {
	uc, _, _, _ := newIngestFixture()

	in := pdfUpload("%PDF")
	in.ContentType = "application/octet-stream"
	if _, err := uc.Ingest(context.Background(), in); err != nil {
		t.Fatalf("octet-stream with .pdf name must pass, got %v", err)
	}
}

func TestIngestRejectsNonPDF(t *testing.T) {
	uc, records, blobs, _ := newIngestFixture()

	in := ports.IngestInput{
		TenantID:         "acme",
		Body:             strings.NewReader("hello"),
		OriginalFilename: "notes.txt",
		ContentType:      "text/plain",
	}
	_, err := uc.Ingest(context.Background(), in)
	if !domain.IsKind(err, domain.ErrUnsupportedMedia) {
		t.Fatalf("expected unsupported-media kind, got %v", err)
	}
	if blobs.putCalls != 0 || records.upsertCalls != 0 {
		t.Fatal("rejected upload must not touch the stores")
	}
}

func TestIngestRejectsBadTenant(t *testing.T) {
	uc, _, _, _ := newIngestFixture()

	in := pdfUpload("%PDF")
	in.TenantID = "../etc"
	if _, err := uc.Ingest(context.Background(), in); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid-input kind, got %v", err)
	}
}

func TestIngestIdempotentReplaySkipsWrites(t *testing.T) {
	uc, records, blobs, queue := newIngestFixture()
	existing := domain.InvoiceRecord{
		TenantID:       "acme",
		InvoiceID:      "inv-prior-0001",
		Status:         domain.StatusParsed,
		IdempotencyKey: "req-7",
		ContentHash:    "whatever",
		CreatedAt:      fixedNow().Add(-time.Hour),
		UpdatedAt:      fixedNow().Add(-time.Hour),
	}
	records.seed(existing)

	in := pdfUpload("%PDF new bytes")
	in.IdempotencyKey = "req-7"
	result, err := uc.Ingest(context.Background(), in)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !result.Deduplicated {
		t.Fatal("replay must be flagged deduplicated")
	}
	if result.Record.InvoiceID != existing.InvoiceID {
		t.Fatalf("replay must return the original record, got %s", result.Record.InvoiceID)
	}
	if blobs.putCalls != 0 || len(queue.published) != 0 {
		t.Fatal("replay must not write blobs or publish events")
	}
}

func TestIngestRecentDuplicateRejectedWithExistingID(t *testing.T) {
	uc, records, blobs, _ := newIngestFixture()

	body := "%PDF same content"
	hash, err := Fingerprint(strings.NewReader(body))
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	recent := fixedNow().Add(-5 * time.Minute)
	records.seed(domain.InvoiceRecord{
		TenantID:    "acme",
		InvoiceID:   "inv-dup-000001",
		Status:      domain.StatusUploaded,
		ContentHash: hash,
		CreatedAt:   recent,
		UpdatedAt:   recent,
	})

	_, err = uc.Ingest(context.Background(), pdfUpload(body))
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict kind, got %v", err)
	}
	var dup *domain.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected *DuplicateError, got %T", err)
	}
	if dup.ExistingInvoiceID != "inv-dup-000001" {
		t.Fatalf("duplicate error must name the existing invoice, got %s", dup.ExistingInvoiceID)
	}
	if blobs.putCalls != 0 {
		t.Fatal("rejected duplicate must not write a blob")
	}
}

func TestIngestBlobFailureLeavesNoRecord(t *testing.T) {
	uc, records, blobs, queue := newIngestFixture()
	blobs.putErr = domain.WrapError(domain.ErrBackendUnavailable, "write blob", errors.New("bucket down"))

	_, err := uc.Ingest(context.Background(), pdfUpload("%PDF"))
	if !domain.IsKind(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected backend-unavailable kind, got %v", err)
	}
	if records.upsertCalls != 0 {
		t.Fatal("record must not be written when the blob write fails")
	}
	if len(queue.published) != 0 {
		t.Fatal("no event without a durable upload")
	}
}

func TestIngestQueueFailureIsNotFatal(t *testing.T) {
	uc, _, _, queue := newIngestFixture()
	queue.pubErr = errors.New("nats down")

	result, err := uc.Ingest(context.Background(), pdfUpload("%PDF"))
	if err != nil {
		t.Fatalf("queue failure must not fail the upload, got %v", err)
	}
	if result.Record.Status != domain.StatusUploaded {
		t.Fatalf("expected uploaded record, got %s", result.Record.Status)
	}
}

func TestSanitizeFilenameStripsPathAndControls(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd.pdf": "passwd.pdf",
		"march\x00 2026.pdf":   "march 2026.pdf",
		"  plain.pdf  ":        "plain.pdf",
	}
	for input, want := range cases {
		if got := sanitizeFilename(input); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", input, got, want)
		}
	}
	long := strings.Repeat("a", 300) + ".pdf"
	if got := sanitizeFilename(long); len(got) != maxFilenameLength {
		t.Fatalf("long filename not capped: %d chars", len(got))
	}
}

func TestDeclaresPDF(t *testing.T) {
	if !declaresPDF("application/pdf; charset=binary", "x.bin") {
		t.Fatal("content type with parameters must match")
	}
	if !declaresPDF("", "Invoice.PDF") {
		t.Fatal("pdf extension must match case-insensitively")
	}
	if declaresPDF("text/plain", "notes.txt") {
		t.Fatal("plain text must not match")
	}
}
