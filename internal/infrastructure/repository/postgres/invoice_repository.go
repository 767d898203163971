package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/advmus/invoicevault/internal/core/domain"
	"github.com/advmus/invoicevault/internal/infrastructure/resilience"
)

// InvoiceRepository is the postgres-backed record store. Merge semantics
// live in a single INSERT ... ON CONFLICT statement, which gives the
// per-key atomicity the merge-upsert contract requires without explicit
// transactions.
type InvoiceRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// WithExecutor enables retry/circuit-breaker handling around store calls.
func (r *InvoiceRepository) WithExecutor(executor *resilience.Executor) *InvoiceRepository {
	r.executor = executor
	return r
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *InvoiceRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS invoices (
	tenant_id TEXT NOT NULL,
	invoice_id TEXT NOT NULL,
	status TEXT,
	content_hash TEXT,
	idempotency_key TEXT,
	blob_location TEXT,
	byte_size BIGINT,
	original_filename TEXT,
	supplier TEXT,
	amount DOUBLE PRECISION,
	currency TEXT,
	due_date TEXT,
	note TEXT,
	parse_error TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, invoice_id)
);

CREATE INDEX IF NOT EXISTS idx_invoices_idempotency_key ON invoices(tenant_id, idempotency_key);
CREATE INDEX IF NOT EXISTS idx_invoices_content_hash ON invoices(tenant_id, content_hash);
CREATE INDEX IF NOT EXISTS idx_invoices_updated_at ON invoices(tenant_id, updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const invoiceColumns = `tenant_id, invoice_id, status, content_hash, idempotency_key, blob_location, byte_size, original_filename, supplier, amount, currency, due_date, note, parse_error, created_at, updated_at`

func (r *InvoiceRepository) Get(ctx context.Context, tenantID, invoiceID string) (*domain.InvoiceRecord, error) {
	var record *domain.InvoiceRecord
	err := r.execute(ctx, "postgres.get", func(ctx context.Context) error {
		row := r.db.QueryRowContext(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE tenant_id = $1 AND invoice_id = $2
`, tenantID, invoiceID)

		rec, err := scanInvoice(row)
		if err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get invoice", fmt.Errorf("invoice %s not found", invoiceID))
		}
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "get invoice", err)
	}
	return record, nil
}

func (r *InvoiceRepository) UpsertMerge(ctx context.Context, tenantID, invoiceID string, fields domain.RecordFields) (*domain.InvoiceRecord, error) {
	createdAt := fields.UpdatedAt
	if fields.CreatedAt != nil {
		createdAt = *fields.CreatedAt
	}

	var record *domain.InvoiceRecord
	err := r.execute(ctx, "postgres.upsert_merge", func(ctx context.Context) error {
		row := r.db.QueryRowContext(ctx, `
INSERT INTO invoices (`+invoiceColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (tenant_id, invoice_id) DO UPDATE SET
	status = COALESCE(EXCLUDED.status, invoices.status),
	content_hash = COALESCE(EXCLUDED.content_hash, invoices.content_hash),
	idempotency_key = COALESCE(EXCLUDED.idempotency_key, invoices.idempotency_key),
	blob_location = COALESCE(EXCLUDED.blob_location, invoices.blob_location),
	byte_size = COALESCE(EXCLUDED.byte_size, invoices.byte_size),
	original_filename = COALESCE(EXCLUDED.original_filename, invoices.original_filename),
	supplier = COALESCE(EXCLUDED.supplier, invoices.supplier),
	amount = COALESCE(EXCLUDED.amount, invoices.amount),
	currency = COALESCE(EXCLUDED.currency, invoices.currency),
	due_date = COALESCE(EXCLUDED.due_date, invoices.due_date),
	note = COALESCE(EXCLUDED.note, invoices.note),
	parse_error = COALESCE(EXCLUDED.parse_error, invoices.parse_error),
	created_at = invoices.created_at,
	updated_at = EXCLUDED.updated_at
RETURNING `+invoiceColumns+`
`,
			tenantID, invoiceID,
			statusArg(fields.Status), fields.ContentHash, fields.IdempotencyKey,
			fields.BlobLocation, fields.ByteSize, fields.OriginalFilename,
			fields.Supplier, fields.Amount, fields.Currency, fields.DueDate,
			fields.Note, fields.ParseError, createdAt, fields.UpdatedAt,
		)

		rec, err := scanInvoice(row)
		if err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "upsert invoice", err)
	}
	return record, nil
}

// queryColumns whitelists the secondary lookup fields; anything else is a
// caller bug, not a store error.
var queryColumns = map[string]string{
	domain.FieldIdempotencyKey: "idempotency_key",
	domain.FieldContentHash:    "content_hash",
}

func (r *InvoiceRepository) QueryByField(ctx context.Context, tenantID, field, value string, limit int) ([]domain.InvoiceRecord, error) {
	column, ok := queryColumns[field]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "query invoices", fmt.Errorf("unsupported query field %q", field))
	}
	if limit <= 0 {
		limit = 1
	}

	var records []domain.InvoiceRecord
	err := r.execute(ctx, "postgres.query_by_field", func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE tenant_id = $1 AND `+column+` = $2
LIMIT $3
`, tenantID, value, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		records, err = collectInvoices(rows)
		return err
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "query invoices", err)
	}
	return records, nil
}

func (r *InvoiceRepository) ListRecent(ctx context.Context, tenantID string, limit int) ([]domain.InvoiceRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []domain.InvoiceRecord
	err := r.execute(ctx, "postgres.list_recent", func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE tenant_id = $1
ORDER BY updated_at DESC
LIMIT $2
`, tenantID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		records, err = collectInvoices(rows)
		return err
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "list invoices", err)
	}
	return records, nil
}

func (r *InvoiceRepository) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if r.executor == nil {
		return fn(ctx)
	}
	return r.executor.Execute(ctx, operation, fn, classifyPostgresError)
}

func classifyPostgresError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*domain.InvoiceRecord, error) {
	var (
		rec              domain.InvoiceRecord
		status           sql.NullString
		contentHash      sql.NullString
		idempotencyKey   sql.NullString
		blobLocation     sql.NullString
		byteSize         sql.NullInt64
		originalFilename sql.NullString
		supplier         sql.NullString
		amount           sql.NullFloat64
		currency         sql.NullString
		dueDate          sql.NullString
		note             sql.NullString
		parseError       sql.NullString
	)

	err := row.Scan(
		&rec.TenantID, &rec.InvoiceID, &status, &contentHash, &idempotencyKey,
		&blobLocation, &byteSize, &originalFilename, &supplier, &amount,
		&currency, &dueDate, &note, &parseError, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = domain.InvoiceStatus(status.String)
	rec.ContentHash = contentHash.String
	rec.IdempotencyKey = idempotencyKey.String
	rec.BlobLocation = blobLocation.String
	rec.ByteSize = byteSize.Int64
	rec.OriginalFilename = originalFilename.String
	rec.Supplier = supplier.String
	if amount.Valid {
		v := amount.Float64
		rec.Amount = &v
	}
	rec.Currency = currency.String
	rec.DueDate = dueDate.String
	rec.Note = note.String
	rec.ParseError = parseError.String
	return &rec, nil
}

func collectInvoices(rows *sql.Rows) ([]domain.InvoiceRecord, error) {
	var out []domain.InvoiceRecord
	for rows.Next() {
		rec, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func statusArg(status *domain.InvoiceStatus) *string {
	if status == nil {
		return nil
	}
	s := string(*status)
	return &s
}
