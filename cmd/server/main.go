// Package main provides the entry point for the publication dedup service.
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

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/rimdb/publication-dedup-service/internal/config"
	"github.com/rimdb/publication-dedup-service/internal/database"
	"github.com/rimdb/publication-dedup-service/internal/dedup"
	"github.com/rimdb/publication-dedup-service/internal/events"
	"github.com/rimdb/publication-dedup-service/internal/merge"
	"github.com/rimdb/publication-dedup-service/internal/nondup"
	"github.com/rimdb/publication-dedup-service/internal/observability"
	"github.com/rimdb/publication-dedup-service/internal/repository"
	httpserver "github.com/rimdb/publication-dedup-service/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("publication-dedup-service starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	// Repositories.
	pubRepo := repository.NewPgPublicationRepository(db)
	grpRepo := repository.NewPgGroupRepository(db)
	ndRepo := repository.NewPgNonDuplicateRepository(db)

	// Core components.
	grouper := dedup.NewGrouper(grpRepo, logger, metrics)
	coordinator := merge.NewCoordinator(db, func(tx pgx.Tx) merge.Store {
		return repository.NewPgMergeStore(tx)
	}, logger, metrics)
	registry := nondup.NewRegistry(ndRepo, logger, metrics)

	emitter := events.NewKafkaEmitter(cfg.Kafka, logger)
	defer func() {
		if closeErr := emitter.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close event emitter")
		}
	}()

	srv := httpserver.NewServer(
		httpserver.Config{
			Address:        cfg.Server.HTTPAddress(),
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			IdleTimeout:    2 * cfg.Server.ReadTimeout,
			MetricsEnabled: cfg.Metrics.Enabled,
			MetricsPath:    cfg.Metrics.Path,
		},
		grouper,
		coordinator,
		registry,
		pubRepo,
		grpRepo,
		emitter,
		db,
		logger,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Periodic grouping scans, when configured.
	if cfg.Grouping.Interval > 0 {
		go runPeriodicGrouping(ctx, cfg.Grouping, grouper, emitter, logger)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	logger.Info().Msg("publication-dedup-service stopped")
	return nil
}

// runPeriodicGrouping runs grouping scans on a fixed interval until the
// context is cancelled. A scan already in progress elsewhere is skipped.
func runPeriodicGrouping(
	ctx context.Context,
	cfg config.GroupingConfig,
	grouper *dedup.Grouper,
	emitter events.Emitter,
	logger zerolog.Logger,
) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		scanCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		res, err := grouper.GroupDuplicates(scanCtx)
		cancel()
		if err != nil {
			logger.Error().Err(err).Msg("periodic grouping scan failed")
			continue
		}

		if emitErr := emitter.GroupsRebuilt(ctx, events.GroupsRebuiltEvent{
			Scanned:     res.Scanned,
			Classes:     res.Classes,
			Grouped:     res.Grouped,
			Pruned:      res.Pruned,
			Failures:    res.Failures,
			CompletedAt: time.Now().UTC(),
		}); emitErr != nil {
			logger.Error().Err(emitErr).Msg("failed to publish rebuild event")
		}
	}
}
