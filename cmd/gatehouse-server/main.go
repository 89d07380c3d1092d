// Package main is the entry point for the Gatehouse server.
// Gatehouse is the access-control backend for a content site: share links,
// group keys, session gates and exam-prep entitlements.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/access"
	"github.com/paragon-edu/gatehouse/internal/auth"
	memorycache "github.com/paragon-edu/gatehouse/internal/cache/memory"
	rediscache "github.com/paragon-edu/gatehouse/internal/cache/redis"
	"github.com/paragon-edu/gatehouse/internal/config"
	"github.com/paragon-edu/gatehouse/internal/handler"
	"github.com/paragon-edu/gatehouse/internal/lock"
	"github.com/paragon-edu/gatehouse/internal/metrics"
	"github.com/paragon-edu/gatehouse/internal/repository"
	"github.com/paragon-edu/gatehouse/internal/repository/postgres"
	"github.com/paragon-edu/gatehouse/internal/repository/sqlite"
	"github.com/paragon-edu/gatehouse/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	logger := newLogger(cfg.Logging)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("driver", cfg.Database.Driver).
		Msg("starting Gatehouse server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	repos, dbHealth, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer dbHealth.Close()

	// Cache and distributed lock. Redis backs both in multi-replica
	// deployments; the in-process fallbacks are correct for one replica.
	var linkCache repository.Cache
	var locker lock.Locker
	if cfg.Redis.Enabled {
		rc, err := rediscache.NewCache(ctx, cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer rc.Close()
		linkCache = rc
		locker = lock.NewRedisLocker(rc.Client())
	} else {
		mc := memorycache.NewCache()
		defer mc.Stop()
		linkCache = mc
		locker = lock.NewMemoryLocker()
	}

	var m *metrics.Metrics
	var recorder access.DecisionRecorder
	if cfg.Metrics.Enabled {
		m = metrics.New()
		recorder = m
	}

	evaluator := access.NewEvaluator(repos.AccessLink, linkCache, cfg.Links.CacheTTL, recorder, logger)
	linkSvc := service.NewLinkService(repos.AccessLink, evaluator, cfg.Auth.BcryptCost, cfg.Links.DefaultTTLHours, logger)
	prepSvc := service.NewPrepAccessService(repos.PrepAccess, logger)
	userSvc := service.NewUserService(repos.User, cfg.Auth.BcryptCost, logger)

	codec := auth.NewSessionCodec(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	ownerGate := auth.NewOwnerGate(cfg.Auth.OwnerKey)
	if !ownerGate.Enabled() {
		logger.Warn().Msg("no owner key configured, administrative endpoints are disabled")
	}

	router := handler.NewRouter(handler.RouterConfig{
		AuthHandler:       handler.NewAuthHandler(userSvc, codec, cfg.Auth.SessionTTL, m, logger),
		LinkHandler:       handler.NewLinkHandler(linkSvc, evaluator, logger),
		PrepAccessHandler: handler.NewPrepAccessHandler(prepSvc, logger),
		UserHandler:       handler.NewUserHandler(userSvc, logger),
		SessionCodec:      codec,
		OwnerGate:         ownerGate,
		Database:          dbHealth,
		Metrics:           m,
		MetricsEnabled:    cfg.Metrics.Enabled,
		MetricsPath:       cfg.Metrics.Path,
		Logger:            logger,
	})

	if cfg.Housekeeping.Enabled {
		housekeeper := service.NewHousekeeper(repos.AccessLink, repos.PrepAccess, locker, m, logger, service.HousekeepingConfig{
			Interval:         cfg.Housekeeping.Interval,
			VisitorRetention: cfg.Housekeeping.VisitorRetention,
			LockTTL:          cfg.Housekeeping.LockTTL,
		})
		housekeeper.Start()
		defer housekeeper.Stop()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// openDatabase connects to the configured backend, runs migrations and
// builds the repository bundle.
func openDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repository.Repositories, repository.DatabaseHealth, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqliteConfig(cfg.Database), logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return &repository.Repositories{
			AccessLink: sqlite.NewAccessLinkRepository(db),
			PrepAccess: sqlite.NewPrepAccessRepository(db),
			User:       sqlite.NewUserRepository(db),
		}, db, nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return &repository.Repositories{
			AccessLink: postgres.NewAccessLinkRepository(db),
			PrepAccess: postgres.NewPrepAccessRepository(db),
			User:       postgres.NewUserRepository(db),
		}, db, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

// sqliteConfig maps application config onto the sqlite connection config.
func sqliteConfig(cfg config.DatabaseConfig) sqlite.Config {
	sc := sqlite.DefaultConfig(cfg.Path)
	if cfg.JournalMode != "" {
		sc.JournalMode = cfg.JournalMode
	}
	if cfg.BusyTimeout > 0 {
		sc.BusyTimeout = cfg.BusyTimeout
	}
	if cfg.SynchronousMode != "" {
		sc.SynchronousMode = cfg.SynchronousMode
	}
	return sc
}

// newLogger builds the process logger from configuration.
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out *os.File
	switch cfg.Output {
	case "stderr":
		out = os.Stderr
	default:
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat
	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
