package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/advmus/invoicevault/internal/adapters/http"
	"github.com/advmus/invoicevault/internal/bootstrap"
	"github.com/advmus/invoicevault/internal/config"
	"github.com/advmus/invoicevault/internal/observability/logging"
	"github.com/advmus/invoicevault/internal/observability/metrics"
)

const serviceName = "invoice-api"

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

	apiMetrics := metrics.NewAPIMetrics(serviceName)
	app.Directory.OnReconcile(func(synthesized int) {
		apiMetrics.RecordReconcile(serviceName, synthesized)
	})

	router := httpadapter.NewRouter(serviceName, app.IngestUC, app.Directory, apiMetrics, cfg).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}
