// Package server initializes and runs the FynnCloud storage core: it wires
// the database, the chosen storage backend, the orchestration services, and
// the HTTP transport, then drives them under a single cancellation context.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thilojaeggi/fynncloud-backend/internal/clock"
	"github.com/thilojaeggi/fynncloud-backend/internal/logging"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/config"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/httpapi"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/repositories/repomanager"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/service"
	"github.com/thilojaeggi/fynncloud-backend/internal/server/storage"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// sweepInterval is how often the expiry sweeper scans for abandoned
// multipart sessions.
const sweepInterval = 5 * time.Minute

// sweepBatchLimit bounds how many expired sessions a single sweep pass reclaims.
const sweepBatchLimit = 100

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	httpSrv   *http.Server
	multipart *service.MultipartCoordinator
}

func NewApp(c *config.Config) (*App, error) {
	slogHandler := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogHandler)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("repository manager init error: %w", err)
	}
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	provider, err := newStorageProvider(context.Background(), c)
	if err != nil {
		return nil, fmt.Errorf("storage provider init error: %w", err)
	}

	realClock := clock.Real{}

	var sink service.SyncEventSink = service.NoopSyncEventSink{}

	filesRepo := rm.Files(db)
	quotaLedger := rm.Quota(db)
	multipartRepo := rm.Multipart(db)
	transactor := service.NewDBTransactor(db, rm)

	storageService := service.New(provider, quotaLedger, filesRepo, transactor, realClock, logger, sink)
	multipartCoordinator := service.NewMultipartCoordinator(
		provider, quotaLedger, filesRepo, multipartRepo, realClock, logger, sink,
		[]byte(c.UploadTokenSecret), c.UploadTokenValidityDuration, c.MaxChunkSize,
	)

	authCtx := &httpapi.BearerAuthContext{SecretKey: []byte(c.UploadTokenSecret)}
	srv := httpapi.NewServer(storageService, multipartCoordinator, authCtx, logger)

	httpSrv := &http.Server{
		Addr:    c.EndpointAddrHTTP,
		Handler: srv.NewRouter(),
	}

	return &App{config: c, logger: logger, db: db, httpSrv: httpSrv, multipart: multipartCoordinator}, nil
}

func newStorageProvider(ctx context.Context, c *config.Config) (storage.Provider, error) {
	switch c.StorageBackend {
	case "s3":
		return storage.NewS3(ctx, c.S3Region, c.S3RootUser, c.S3RootPassword, c.S3Bucket, c.S3BaseEndpoint)
	default:
		return storage.NewLocal(c.LocalStorageRoot)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run drives the HTTP listener and the periodic expiry sweeper under one
// errgroup: either goroutine returning an error cancels the shared context
// and tears down the other, so the process exits on the first real failure
// instead of hanging on a half-dead server.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")
	app.initSignalHandler(cancelFunc)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info(ctx, "http listener starting", "addr", app.config.EndpointAddrHTTP)
		err := app.httpSrv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.httpSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				n, err := app.multipart.SweepExpired(ctx, sweepBatchLimit)
				if err != nil {
					app.logger.Error(ctx, "expiry sweep failed", "error", err.Error())
					continue
				}
				if n > 0 {
					app.logger.Info(ctx, "expiry sweep reclaimed sessions", "count", n)
				}
			}
		}
	})

	return g.Wait()
}
