package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/advmus/invoicevault/internal/config"
	"github.com/advmus/invoicevault/internal/core/ports"
	"github.com/advmus/invoicevault/internal/core/usecase"
	"github.com/advmus/invoicevault/internal/infrastructure/blobstore/gcs"
	"github.com/advmus/invoicevault/internal/infrastructure/blobstore/localfs"
	"github.com/advmus/invoicevault/internal/infrastructure/parser/pdfparse"
	"github.com/advmus/invoicevault/internal/infrastructure/queue/nats"
	firestorerepo "github.com/advmus/invoicevault/internal/infrastructure/repository/firestore"
	"github.com/advmus/invoicevault/internal/infrastructure/repository/postgres"
	"github.com/advmus/invoicevault/internal/infrastructure/resilience"
)

type App struct {
	Config config.Config

	Records ports.RecordStore
	Blobs   ports.BlobStore
	Queue   ports.MessageQueue

	IngestUC  ports.InvoiceIngestor
	Directory *usecase.InvoiceDirectoryService
	ProcessUC ports.InvoiceProcessor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	executor := resilience.NewExecutor(resilience.DefaultConfig())
	var closers []func()

	records, err := newRecordStore(ctx, cfg, executor, &closers)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	blobs, err := newBlobStore(ctx, cfg, &closers)
	if err != nil {
		closeAll(closers)
		return nil, err
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	closers = append(closers, queue.Close)

	dedup := usecase.NewDedupResolver(
		records,
		time.Duration(cfg.DedupWindowMinutes)*time.Minute,
		cfg.DedupCandidateLimit,
	)

	return &App{
		Config:  cfg,
		Records: records,
		Blobs:   blobs,
		Queue:   queue,

		IngestUC:  usecase.NewIngestInvoiceUseCase(records, blobs, queue, dedup),
		Directory: usecase.NewInvoiceDirectoryService(records, blobs, cfg.ListLimit),
		ProcessUC: usecase.NewProcessInvoiceUseCase(records, blobs, pdfparse.New()),

		closeFn: func() { closeAll(closers) },
	}, nil
}

func newRecordStore(ctx context.Context, cfg config.Config, executor *resilience.Executor, closers *[]func()) (ports.RecordStore, error) {
	switch cfg.RecordStoreDriver {
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		*closers = append(*closers, func() { _ = db.Close() })

		repo := postgres.NewInvoiceRepository(db).WithExecutor(executor)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	case "firestore":
		client, err := firestorerepo.NewClient(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return nil, fmt.Errorf("open firestore: %w", err)
		}
		*closers = append(*closers, func() { _ = client.Close() })
		return firestorerepo.NewInvoiceRepository(client), nil
	default:
		return nil, fmt.Errorf("unknown record store driver %q", cfg.RecordStoreDriver)
	}
}

func newBlobStore(ctx context.Context, cfg config.Config, closers *[]func()) (ports.BlobStore, error) {
	switch cfg.BlobStoreDriver {
	case "gcs":
		store, err := gcs.New(ctx, cfg.GCSBucket, cfg.GCSCredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		*closers = append(*closers, func() { _ = store.Close() })
		return store, nil
	case "localfs":
		store, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob store driver %q", cfg.BlobStoreDriver)
	}
}

func closeAll(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
