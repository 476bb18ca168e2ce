// Package events publishes dedup lifecycle events to Kafka so downstream
// systems (search indexing, profile pages, reporting) can react to merges and
// grouping scans.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/rimdb/publication-dedup-service/internal/config"
)

// PublicationsMergedEvent is published after a merge commits.
type PublicationsMergedEvent struct {
	TargetID  uuid.UUID   `json:"target_id"`
	SourceIDs []uuid.UUID `json:"source_ids"`
	MergedAt  time.Time   `json:"merged_at"`
}

// GroupsRebuiltEvent is published after a grouping scan completes.
type GroupsRebuiltEvent struct {
	Scanned     int       `json:"scanned"`
	Classes     int       `json:"classes"`
	Grouped     int       `json:"grouped"`
	Pruned      int64     `json:"pruned"`
	Failures    int       `json:"failures"`
	CompletedAt time.Time `json:"completed_at"`
}

// Emitter publishes dedup lifecycle events.
type Emitter interface {
	PublicationsMerged(ctx context.Context, event PublicationsMergedEvent) error
	GroupsRebuilt(ctx context.Context, event GroupsRebuiltEvent) error
	Close() error
}

// KafkaEmitter publishes events to Kafka topics.
type KafkaEmitter struct {
	merged  *kafka.Writer
	rebuilt *kafka.Writer
	logger  zerolog.Logger
}

// NewKafkaEmitter creates an emitter from Kafka configuration. When Kafka is
// disabled it returns a no-op emitter so callers never need to branch.
func NewKafkaEmitter(cfg config.KafkaConfig, logger zerolog.Logger) Emitter {
	if !cfg.Enabled {
		return NopEmitter{}
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			RequiredAcks: kafka.RequireAll,
		}
	}

	return &KafkaEmitter{
		merged:  newWriter(cfg.MergedTopic),
		rebuilt: newWriter(cfg.GroupsRebuiltTopic),
		logger:  logger.With().Str("component", "events").Logger(),
	}
}

// PublicationsMerged publishes a merge event keyed by the target publication.
func (e *KafkaEmitter) PublicationsMerged(ctx context.Context, event PublicationsMergedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling merge event: %w", err)
	}

	err = e.merged.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TargetID.String()),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publishing merge event: %w", err)
	}

	e.logger.Debug().
		Str("target_id", event.TargetID.String()).
		Int("source_count", len(event.SourceIDs)).
		Msg("published merge event")
	return nil
}

// GroupsRebuilt publishes a grouping scan completion event.
func (e *KafkaEmitter) GroupsRebuilt(ctx context.Context, event GroupsRebuiltEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling rebuild event: %w", err)
	}

	err = e.rebuilt.WriteMessages(ctx, kafka.Message{Value: value})
	if err != nil {
		return fmt.Errorf("publishing rebuild event: %w", err)
	}

	e.logger.Debug().
		Int("scanned", event.Scanned).
		Int("grouped", event.Grouped).
		Msg("published rebuild event")
	return nil
}

// Close flushes and closes the underlying writers.
func (e *KafkaEmitter) Close() error {
	mergedErr := e.merged.Close()
	rebuiltErr := e.rebuilt.Close()
	if mergedErr != nil {
		return mergedErr
	}
	return rebuiltErr
}

// NopEmitter discards all events. Used when Kafka is disabled.
type NopEmitter struct{}

func (NopEmitter) PublicationsMerged(context.Context, PublicationsMergedEvent) error { return nil }
func (NopEmitter) GroupsRebuilt(context.Context, GroupsRebuiltEvent) error           { return nil }
func (NopEmitter) Close() error                                                      { return nil }
