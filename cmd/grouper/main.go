// Package main provides a one-shot CLI that runs a full duplicate grouping
// scan and exits. Suitable for cron jobs and operational reruns.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rimdb/publication-dedup-service/internal/config"
	"github.com/rimdb/publication-dedup-service/internal/database"
	"github.com/rimdb/publication-dedup-service/internal/dedup"
	"github.com/rimdb/publication-dedup-service/internal/domain"
	"github.com/rimdb/publication-dedup-service/internal/events"
	"github.com/rimdb/publication-dedup-service/internal/observability"
	"github.com/rimdb/publication-dedup-service/internal/repository"
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
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "grouper-cli").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Grouping.Timeout)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	grpRepo := repository.NewPgGroupRepository(db)
	grouper := dedup.NewGrouper(grpRepo, logger, nil)

	emitter := events.NewKafkaEmitter(cfg.Kafka, logger)
	defer func() {
		if closeErr := emitter.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close event emitter")
		}
	}()

	res, err := grouper.GroupDuplicates(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrGroupingInProgress) {
			logger.Warn().Msg("another grouping scan is already running")
			return nil
		}
		return fmt.Errorf("grouping scan: %w", err)
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

	if res.Failures > 0 {
		return fmt.Errorf("grouping scan finished with %d failed classes", res.Failures)
	}
	return nil
}
