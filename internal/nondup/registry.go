// Package nondup maintains the registry of publications a curator has
// confirmed to be distinct works. Grouping and merging consult it so that a
// reviewed pair is never re-flagged or collapsed.
package nondup

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rimdb/publication-dedup-service/internal/domain"
	"github.com/rimdb/publication-dedup-service/internal/observability"
)

// Store is the persistence surface the registry needs.
type Store interface {
	CreateGroup(ctx context.Context, publicationIDs []uuid.UUID) (*domain.NonDuplicateGroup, error)
	GetGroup(ctx context.Context, id uuid.UUID) (*domain.NonDuplicateGroup, error)
	DeleteGroup(ctx context.Context, id uuid.UUID) error
	GroupsContaining(ctx context.Context, publicationID uuid.UUID) ([]*domain.NonDuplicateGroup, error)
}

// Registry records and answers non-duplicate confirmations.
type Registry struct {
	store   Store
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewRegistry creates a registry. metrics may be nil.
func NewRegistry(store Store, logger zerolog.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		store:   store,
		logger:  logger.With().Str("component", "nondup").Logger(),
		metrics: metrics,
	}
}

// ConfirmNotDuplicates records that the given publications are distinct
// works. At least two distinct publication IDs are required.
func (r *Registry) ConfirmNotDuplicates(ctx context.Context, publicationIDs []uuid.UUID) (*domain.NonDuplicateGroup, error) {
	distinct := dedupe(publicationIDs)
	if len(distinct) < 2 {
		return nil, domain.NewValidationError("publication_ids", "at least two distinct publications are required")
	}

	group, err := r.store.CreateGroup(ctx, distinct)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordNonDuplicateGroupCreated()
	r.logger.Info().
		Stringer("group_id", group.ID).
		Int("members", len(distinct)).
		Msg("non-duplicate group recorded")
	return group, nil
}

// ExcludedFrom returns every publication confirmed distinct from the given
// one, across all groups it belongs to.
func (r *Registry) ExcludedFrom(ctx context.Context, publicationID uuid.UUID) ([]uuid.UUID, error) {
	groups, err := r.store.GroupsContaining(ctx, publicationID)
	if err != nil {
		return nil, err
	}

	seen := map[uuid.UUID]bool{publicationID: true}
	var out []uuid.UUID
	for _, g := range groups {
		for _, id := range g.PublicationIDs {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// Get returns a non-duplicate group with its members.
func (r *Registry) Get(ctx context.Context, groupID uuid.UUID) (*domain.NonDuplicateGroup, error) {
	return r.store.GetGroup(ctx, groupID)
}

// Delete removes a non-duplicate group, releasing its members for future
// grouping and merging.
func (r *Registry) Delete(ctx context.Context, groupID uuid.UUID) error {
	if _, err := r.store.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if err := r.store.DeleteGroup(ctx, groupID); err != nil {
		return err
	}
	r.metrics.RecordNonDuplicateGroupDeleted()
	r.logger.Info().Stringer("group_id", groupID).Msg("non-duplicate group deleted")
	return nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
