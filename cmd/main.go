package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/okian/battle/internal/adapters/archive"
	"github.com/okian/battle/internal/adapters/http/api"
	"github.com/okian/battle/internal/adapters/questionbank"
	"github.com/okian/battle/internal/adapters/repository"
	service "github.com/okian/battle/internal/app"
	"github.com/okian/battle/internal/config"
	"github.com/okian/battle/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if cfg.LogFormat != "" && cfg.LogFormat != "text" {
		if err := logger.InitWith(cfg.LogFormat, os.Stdout); err != nil {
			os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
			os.Exit(1)
		}
	}
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "battle server exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := seedQuestions(ctx, cfg, store, log); err != nil {
		return err
	}

	opts := []service.Option{service.WithConfig(cfg), service.WithLogger(log.Named("service"))}
	if cfg.ArchiveEnabled {
		sink, err := archive.NewS3Sink(ctx, archive.S3Config{
			Bucket:          cfg.ArchiveBucket,
			Endpoint:        cfg.ArchiveEndpoint,
			Region:          cfg.ArchiveRegion,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			SecretAccessKey: cfg.ArchiveSecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("archive sink: %w", err)
		}
		opts = append(opts, service.WithArchiveSink(sink))
	}

	svc := service.New(store, opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	gin.SetMode(cfg.GinMode)
	apiServer := api.NewServer(svc, svc, api.WithPprof(cfg.PprofEnabled), api.WithLogger(log.Named("http")))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("storage", cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down server...")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "service shutdown failed", logger.Error(err))
	}
	log.Info(shutdownCtx, "server stopped")
	return runErr
}

// openStore builds the configured store. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, func(), error) {
	switch cfg.Storage {
	case config.StorageMemory:
		log.Warn(ctx, "using in-memory storage; state is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	case config.StoragePostgres:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime())

		store := repository.NewGormStore(db, repository.WithLogger(log.Named("store")))
		if err := store.Migrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		closeFn := func() {
			if err := sqlDB.Close(); err != nil {
				log.Warn(context.Background(), "close database", logger.Error(err))
			}
		}
		return store, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

// seedQuestions loads the configured bank into an empty question table.
func seedQuestions(ctx context.Context, cfg *config.Config, store repository.Store, log logger.Logger) error {
	if cfg.QuestionBankPath == "" {
		return nil
	}
	qs, err := questionbank.Load(cfg.QuestionBankPath)
	if err != nil {
		return fmt.Errorf("question bank: %w", err)
	}
	n, err := questionbank.Seed(ctx, store, qs)
	if err != nil {
		return fmt.Errorf("seed questions: %w", err)
	}
	log.Info(ctx, "question bank loaded", logger.String("path", cfg.QuestionBankPath), logger.Int("seeded", n), logger.Int("available", len(qs)))
	return nil
}
