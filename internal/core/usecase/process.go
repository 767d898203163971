package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/advmus/invoicevault/internal/core/domain"
	"github.com/advmus/invoicevault/internal/core/ports"
)

// ProcessInvoiceUseCase is the worker pipeline: it drives one invoice
// through uploaded -> processing -> parsed (or failed), extracting business
// fields from the PDF along the way. Every status change is validated
// against the workflow transition table.
type ProcessInvoiceUseCase struct {
	records ports.RecordStore
	blobs   ports.BlobStore
	parser  ports.InvoiceParser
	now     func() time.Time
}

func NewProcessInvoiceUseCase(records ports.RecordStore, blobs ports.BlobStore, parser ports.InvoiceParser) *ProcessInvoiceUseCase {
	return &ProcessInvoiceUseCase{
		records: records,
		blobs:   blobs,
		parser:  parser,
		now:     time.Now,
	}
}

func (uc *ProcessInvoiceUseCase) ProcessByID(ctx context.Context, tenantID, invoiceID string) error {
	record, err := uc.records.Get(ctx, tenantID, invoiceID)
	if err != nil {
		return fmt.Errorf("fetch invoice record: %w", err)
	}

	if record.Status != domain.StatusUploaded {
		// Redelivered or concurrently claimed message; the workflow forbids
		// reprocessing, so this is a clean skip rather than an error.
		slog.Info("skipping invoice not in uploaded status",
			"tenant_id", tenantID,
			"invoice_id", invoiceID,
			"status", record.Status,
		)
		return nil
	}

	if err := uc.transition(ctx, tenantID, invoiceID, record.Status, domain.StatusProcessing, nil); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	parsed, err := uc.parse(ctx, tenantID, invoiceID)
	if err != nil {
		if failErr := uc.markFailed(ctx, tenantID, invoiceID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	fields := parsedFields(parsed)
	if err := uc.transition(ctx, tenantID, invoiceID, domain.StatusProcessing, domain.StatusParsed, &fields); err != nil {
		return fmt.Errorf("set status=parsed: %w", err)
	}
	return nil
}

func (uc *ProcessInvoiceUseCase) parse(ctx context.Context, tenantID, invoiceID string) (domain.ParsedInvoice, error) {
	stream, info, err := uc.blobs.GetStream(ctx, tenantID, invoiceID)
	if err != nil {
		return domain.ParsedInvoice{}, fmt.Errorf("open invoice blob: %w", err)
	}
	defer stream.Close()

	// The PDF reader needs random access; invoices are small enough to
	// buffer whole.
	raw, err := io.ReadAll(stream)
	if err != nil {
		return domain.ParsedInvoice{}, fmt.Errorf("read invoice blob: %w", err)
	}
	size := info.ByteSize
	if size <= 0 {
		size = int64(len(raw))
	}

	parsed, err := uc.parser.Parse(ctx, bytes.NewReader(raw), size)
	if err != nil {
		return domain.ParsedInvoice{}, fmt.Errorf("parse invoice pdf: %w", err)
	}
	return parsed, nil
}

func (uc *ProcessInvoiceUseCase) transition(ctx context.Context, tenantID, invoiceID string, from, to domain.InvoiceStatus, extra *domain.RecordFields) error {
	if err := domain.ValidateTransition(from, to); err != nil {
		return err
	}
	fields := domain.RecordFields{UpdatedAt: uc.now().UTC()}
	if extra != nil {
		fields = *extra
		fields.UpdatedAt = uc.now().UTC()
	}
	fields.Status = &to
	if _, err := uc.records.UpsertMerge(ctx, tenantID, invoiceID, fields); err != nil {
		return fmt.Errorf("persist status %s: %w", to, err)
	}
	return nil
}

func (uc *ProcessInvoiceUseCase) markFailed(ctx context.Context, tenantID, invoiceID string, processErr error) error {
	message := processErr.Error()
	fields := domain.RecordFields{ParseError: &message}
	return uc.transition(ctx, tenantID, invoiceID, domain.StatusProcessing, domain.StatusFailed, &fields)
}

// parsedFields maps extracted values onto record fields. Extraction misses
// stay nil so the merge-upsert leaves earlier values alone.
func parsedFields(parsed domain.ParsedInvoice) domain.RecordFields {
	var fields domain.RecordFields
	if parsed.Supplier != "" {
		fields.Supplier = &parsed.Supplier
	}
	if parsed.Amount != nil {
		fields.Amount = parsed.Amount
	}
	if parsed.Currency != "" {
		fields.Currency = &parsed.Currency
	}
	if parsed.DueDate != "" {
		fields.DueDate = &parsed.DueDate
	}
	return fields
}
