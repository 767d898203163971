package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/advmus/invoicevault/internal/config"
	"github.com/advmus/invoicevault/internal/core/domain"
	"github.com/advmus/invoicevault/internal/core/ports"
	"github.com/advmus/invoicevault/internal/observability/metrics"
)

const (
	tenantHeader         = "X-Tenant-Id"
	idempotencyKeyHeader = "X-Idempotency-Key"
)

type Router struct {
	service   string
	ingestor  ports.InvoiceIngestor
	directory ports.InvoiceDirectory
	metrics   *metrics.APIMetrics
	cfg       config.Config
}

func NewRouter(
	service string,
	ingestor ports.InvoiceIngestor,
	directory ports.InvoiceDirectory,
	apiMetrics *metrics.APIMetrics,
	cfg config.Config,
) *Router {
	return &Router{
		service:   service,
		ingestor:  ingestor,
		directory: directory,
		metrics:   apiMetrics,
		cfg:       cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/v1/invoices", rt.listInvoices)
	mux.HandleFunc("/v1/invoices/upload", rt.uploadInvoice)
	mux.HandleFunc("/v1/invoices/export", rt.exportInvoices)
	mux.HandleFunc("/v1/invoices/", rt.invoiceSubtree)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, 2*time.Second)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = rt.metrics.Middleware(rt.service, handler)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r)
		return
	}
	tenantID, ok := rt.tenant(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	result, err := rt.ingestor.Ingest(r.Context(), ports.IngestInput{
		TenantID:         tenantID,
		Body:             file,
		OriginalFilename: header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		IdempotencyKey:   r.Header.Get(idempotencyKeyHeader),
	})
	if err != nil {
		outcome := "error"
		var dup *domain.DuplicateError
		if errors.As(err, &dup) {
			outcome = "duplicate_rejected"
			rt.metrics.RecordDedupDecision(rt.service, "reject_duplicate")
		}
		rt.metrics.RecordIngest(rt.service, outcome, 0)
		writeError(w, r, err)
		return
	}

	if result.Deduplicated {
		rt.metrics.RecordIngest(rt.service, "idempotent_hit", 0)
		rt.metrics.RecordDedupDecision(rt.service, "return_existing")
		writeJSON(w, http.StatusOK, result.Record)
		return
	}
	rt.metrics.RecordIngest(rt.service, "created", result.Record.ByteSize)
	rt.metrics.RecordDedupDecision(rt.service, "proceed")
	writeJSON(w, http.StatusCreated, result.Record)
}

func (rt *Router) listInvoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}
	tenantID, ok := rt.tenant(w, r)
	if !ok {
		return
	}

	records, err := rt.directory.List(r.Context(), tenantID, limitParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"invoices": records,
		"count":    len(records),
	})
}

// invoiceSubtree serves /v1/invoices/{invoice_id} and
// /v1/invoices/{invoice_id}/download.
func (rt *Router) invoiceSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/invoices/")
	if invoiceID, found := strings.CutSuffix(rest, "/download"); found {
		rt.downloadInvoice(w, r, invoiceID)
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		writeErrorMessage(w, r, http.StatusNotFound, "not_found", "unknown route")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rt.getInvoice(w, r, rest)
	case http.MethodPatch:
		rt.patchInvoice(w, r, rest)
	default:
		writeMethodNotAllowed(w, r)
	}
}

func (rt *Router) getInvoice(w http.ResponseWriter, r *http.Request, invoiceID string) {
	tenantID, ok := rt.tenant(w, r)
	if !ok {
		return
	}
	record, err := rt.directory.Get(r.Context(), tenantID, invoiceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) patchInvoice(w http.ResponseWriter, r *http.Request, invoiceID string) {
	tenantID, ok := rt.tenant(w, r)
	if !ok {
		return
	}

	patch, err := domain.DecodeInvoicePatch(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if patch.IsEmpty() {
		writeErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "patch body contains no fields")
		return
	}

	record, err := rt.directory.Patch(r.Context(), tenantID, invoiceID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) downloadInvoice(w http.ResponseWriter, r *http.Request, invoiceID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r)
		return
	}
	tenantID, ok := rt.tenant(w, r)
	if !ok {
		return
	}

	stream, info, err := rt.directory.Open(r.Context(), tenantID, invoiceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer stream.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	filename := info.OriginalFilename
	if filename == "" {
		filename = invoiceID + ".pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(filename, `"`, "")+`"`)
	if info.ByteSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.ByteSize, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, stream)
}

func (rt *Router) tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := strings.TrimSpace(r.Header.Get(tenantHeader))
	if tenantID == "" {
		writeErrorMessage(w, r, http.StatusBadRequest, "invalid_request", "header "+tenantHeader+" is required")
		return "", false
	}
	return tenantID, true
}

func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
