package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIMetrics is the per-process registry for the HTTP API: generic
// request metrics plus ingestion-specific counters.
type APIMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	ingestTotal           *prometheus.CounterVec
	ingestBytes           *prometheus.HistogramVec
	dedupDecisionsTotal   *prometheus.CounterVec
	reconcileRunsTotal    *prometheus.CounterVec
	reconcileSynthesized  *prometheus.CounterVec
	exportRowsPerDocument *prometheus.HistogramVec
}

func NewAPIMetrics(service string) *APIMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iv",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "iv",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "iv",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iv",
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Total upload attempts by outcome.",
		},
		[]string{"service", "outcome"},
	)
	ingestBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "iv",
			Subsystem: "ingest",
			Name:      "upload_bytes",
			Help:      "Distribution of accepted upload sizes in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"service"},
	)
	dedupDecisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iv",
			Subsystem: "ingest",
			Name:      "dedup_decisions_total",
			Help:      "Total deduplication decisions by kind.",
		},
		[]string{"service", "decision"},
	)
	reconcileRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iv",
			Subsystem: "listing",
			Name:      "reconcile_runs_total",
			Help:      "Total listing reconciliations against the blob store.",
		},
		[]string{"service"},
	)
	reconcileSynthesized := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iv",
			Subsystem: "listing",
			Name:      "reconcile_synthesized_total",
			Help:      "Total invoice records synthesized from orphaned blobs.",
		},
		[]string{"service"},
	)
	exportRowsPerDocument := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "iv",
			Subsystem: "export",
			Name:      "rows_per_document",
			Help:      "Distribution of invoice rows per exported spreadsheet.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		ingestTotal,
		ingestBytes,
		dedupDecisionsTotal,
		reconcileRunsTotal,
		reconcileSynthesized,
		exportRowsPerDocument,
	)

	return &APIMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		ingestTotal:           ingestTotal,
		ingestBytes:           ingestBytes,
		dedupDecisionsTotal:   dedupDecisionsTotal,
		reconcileRunsTotal:    reconcileRunsTotal,
		reconcileSynthesized:  reconcileSynthesized,
		exportRowsPerDocument: exportRowsPerDocument,
	}
}

func (m *APIMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *APIMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses per-invoice routes so metric cardinality stays
// bounded regardless of how many invoices exist.
func normalizePath(path string) string {
	switch {
	case strings.HasSuffix(path, "/download") && strings.HasPrefix(path, "/v1/invoices/"):
		return "/v1/invoices/{invoice_id}/download"
	case strings.HasPrefix(path, "/v1/invoices/") && path != "/v1/invoices/upload" && path != "/v1/invoices/export":
		return "/v1/invoices/{invoice_id}"
	default:
		return path
	}
}

func (m *APIMetrics) RecordIngest(service, outcome string, byteSize int64) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.ingestTotal.WithLabelValues(service, outcome).Inc()
	if outcome == "created" && byteSize > 0 {
		m.ingestBytes.WithLabelValues(service).Observe(float64(byteSize))
	}
}

func (m *APIMetrics) RecordDedupDecision(service, decision string) {
	if decision == "" {
		decision = "unknown"
	}
	m.dedupDecisionsTotal.WithLabelValues(service, decision).Inc()
}

func (m *APIMetrics) RecordReconcile(service string, synthesized int) {
	m.reconcileRunsTotal.WithLabelValues(service).Inc()
	if synthesized > 0 {
		m.reconcileSynthesized.WithLabelValues(service).Add(float64(synthesized))
	}
}

func (m *APIMetrics) RecordExport(service string, rows int) {
	m.exportRowsPerDocument.WithLabelValues(service).Observe(float64(rows))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
