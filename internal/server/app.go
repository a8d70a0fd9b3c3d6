// Package server wires the filevault components together and runs the HTTP
// API, the gRPC health service and the quota reconciler until a shutdown
// signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/auth"
	"github.com/dmitrijs2005/filevault/internal/server/blobstore"
	"github.com/dmitrijs2005/filevault/internal/server/config"
	"github.com/dmitrijs2005/filevault/internal/server/httpapi"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filevault/internal/server/services"
	"github.com/robfig/cron/v3"

	gs "github.com/dmitrijs2005/filevault/internal/server/grpc"
)

const closeTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	blobs      blobstore.Store
	httpServer *httpapi.Server
	grpcServer *gs.HealthServer
	reconciler *services.QuotaReconciler
}

// NewApp validates the configuration and builds every component. Key
// material problems are reported before any connection is opened.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(c.LogLevel, c.LogFile)

	if err := c.Validate(); err != nil {
		return nil, err
	}

	cipher, err := cryptox.NewCipherContext(c.EncryptionSecret)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewCapabilityIssuer([]byte(c.SecretKey), c.DownloadTokenTTL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	blobs, err := blobstore.New(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	directory := services.NewDirectoryService(db, rm, []byte(c.SecretKey), c.AccessTokenTTL)
	files := services.NewFileService(db, rm, directory, blobs, cipher, tokens, c, logger)
	reconciler := services.NewQuotaReconciler(db, rm, c.ReconcileFix, logger)

	return &App{
		config:     c,
		logger:     logger,
		db:         db,
		blobs:      blobs,
		httpServer: httpapi.NewServer(c.EndpointAddrHTTP, files, directory, []byte(c.SecretKey), logger),
		grpcServer: gs.NewHealthServer(c.EndpointAddrGRPC, logger, db.PingContext),
		reconciler: reconciler,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startServer(ctx context.Context, cancelFunc context.CancelFunc, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	scheduler := cron.New()
	if err := app.reconciler.Schedule(ctx, scheduler, app.config.ReconcileSchedule); err != nil {
		app.logger.Error(ctx, "reconciler not scheduled", "error", err)
	}
	scheduler.Start()

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startServer(ctx, cancelFunc, "http", app.httpServer.Run)
	}()
	go func() {
		defer wg.Done()
		app.startServer(ctx, cancelFunc, "grpc", app.grpcServer.Run)
	}()

	wg.Wait()

	<-scheduler.Stop().Done()
	app.close()
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := app.blobs.Close(ctx); err != nil {
		app.logger.Error(ctx, "closing blob store", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}
}
