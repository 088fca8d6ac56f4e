// Package server initializes and runs the vault application: it opens the
// database, runs migrations, wires storage, policy and services, and handles
// graceful shutdown. Transport (HTTP routing, request validation, session
// middleware) is a collaborator that calls into the exposed services.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vkarpenko/filevault/internal/logging"
	"github.com/vkarpenko/filevault/internal/server/access"
	"github.com/vkarpenko/filevault/internal/server/audit"
	"github.com/vkarpenko/filevault/internal/server/config"
	"github.com/vkarpenko/filevault/internal/server/repositories/repomanager"
	"github.com/vkarpenko/filevault/internal/server/services"
	"github.com/vkarpenko/filevault/internal/server/storage"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	PrincipalService *services.PrincipalService
	VaultService     *services.VaultService
	ShareCoordinator *services.ShareCoordinator
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	store, err := storage.NewS3Storage(ctx, storage.S3Options{
		User:         cfg.S3RootUser,
		Password:     cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	sink := audit.NewLogSink(logger)
	policy := access.NewPolicy(rm.Grants(db))

	coordinator := services.NewShareCoordinator(db, rm, policy, sink, logger)
	vault := services.NewVaultService(db, rm, store, policy, coordinator, sink, logger)
	principals := services.NewPrincipalService(db, rm, sink, cfg)

	return &App{
		config:           cfg,
		logger:           logger,
		db:               db,
		PrincipalService: principals,
		VaultService:     vault,
		ShareCoordinator: coordinator,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until the context is cancelled or a termination signal arrives,
// then closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "addr", app.config.EndpointAddr)

	app.initSignalHandler(cancelFunc)

	<-ctx.Done()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing db", "error", err.Error())
	}
	app.logger.Info(ctx, "App stopped")
}
