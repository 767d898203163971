package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/advmus/invoicevault/internal/bootstrap"
	"github.com/advmus/invoicevault/internal/config"
	"github.com/advmus/invoicevault/internal/observability/logging"
	"github.com/advmus/invoicevault/internal/observability/metrics"
)

const serviceName = "invoice-worker"

func main() {
	cfg := config.Load()
	logging.Setup(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsHandler(workerMetrics),
	}
	go func() {
		log.Printf("worker metrics listening on :%s", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = app.Queue.SubscribeInvoiceIngested(ctx, func(handlerCtx context.Context, tenantID, invoiceID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		workerMetrics.StartInvoice()
		start := time.Now()
		err := app.ProcessUC.ProcessByID(processCtx, tenantID, invoiceID)
		workerMetrics.FinishInvoice(serviceName, time.Since(start), err)
		return err
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func metricsHandler(m *metrics.WorkerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", m.Handler())
	return mux
}
