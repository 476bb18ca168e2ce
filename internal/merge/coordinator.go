package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/rimdb/publication-dedup-service/internal/domain"
	"github.com/rimdb/publication-dedup-service/internal/observability"
)

// Store defines the persistence operations the merge transaction drives. An
// implementation is bound to a single database transaction; every method's
// effects are committed or rolled back together.
type Store interface {
	// GetPublicationsForUpdate loads the given publications with their
	// imports, taking row locks so concurrent merges over overlapping sets
	// serialize. Missing IDs are simply absent from the result.
	GetPublicationsForUpdate(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Publication, error)

	// ExcludedPublicationIDs returns every publication that co-occurs with
	// the given one in any non-duplicate group.
	ExcludedPublicationIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)

	// ReassignImports points every import owned by the from publications at
	// the to publication.
	ReassignImports(ctx context.Context, from []uuid.UUID, to uuid.UUID) error

	// ListAuthorships returns the publication's authorships.
	ListAuthorships(ctx context.Context, publicationID uuid.UUID) ([]*domain.Authorship, error)

	// UpdateAuthorship persists changed authorship fields, including a
	// changed publication_id when an authorship is transferred wholesale.
	UpdateAuthorship(ctx context.Context, a *domain.Authorship) error

	// DeleteAuthorship removes an authorship whose state has been folded into
	// another.
	DeleteAuthorship(ctx context.Context, id uuid.UUID) error

	// ReassignWaiver moves the from authorship's waiver to the to authorship,
	// unless the to authorship already has one.
	ReassignWaiver(ctx context.Context, from, to uuid.UUID) error

	// ReassignDeposits moves all ScholarSphere deposits from one authorship
	// to another.
	ReassignDeposits(ctx context.Context, from, to uuid.UUID) error

	// ReassignNonDuplicateMemberships repoints non-duplicate group
	// memberships from the merged-away publications to the target, dropping
	// rows that would duplicate an existing target membership.
	ReassignNonDuplicateMemberships(ctx context.Context, from []uuid.UUID, to uuid.UUID) error

	// DeletePublications removes the merged-away publications.
	DeletePublications(ctx context.Context, ids []uuid.UUID) error

	// UpdatePublication persists the target's reconciled fields.
	UpdatePublication(ctx context.Context, p *domain.Publication) error
}

// StoreFactory binds a Store to the given transaction.
type StoreFactory func(tx pgx.Tx) Store

// TxRunner runs a function inside a database transaction, rolling back when
// the function returns an error. *database.DB satisfies it.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Coordinator executes publication merges. Merge is the single mutating entry
// point; everything it does happens inside one transaction, so a failure at
// any step leaves no trace.
type Coordinator struct {
	db      TxRunner
	stores  StoreFactory
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewCoordinator creates a merge coordinator. metrics may be nil.
func NewCoordinator(db TxRunner, stores StoreFactory, logger zerolog.Logger, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		db:      db,
		stores:  stores,
		logger:  logger.With().Str("component", "merge").Logger(),
		metrics: metrics,
		now:     time.Now,
	}
}

// Merge folds the source publications into the target: imports and
// non-duplicate memberships are reassigned, authorships are transferred and
// reconciled per user, scalar fields are resolved by the field merge
// policies, the sources are deleted, and the target is made visible.
//
// The target may appear in sources; such entries are no-ops. If any two
// members of the merge set are confirmed non-duplicates, the whole operation
// aborts with a domain.NonDuplicateMergeError before mutating anything. Any
// other failure rolls the entire transaction back.
func (c *Coordinator) Merge(ctx context.Context, targetID uuid.UUID, sourceIDs []uuid.UUID) error {
	sources := dedupeSources(targetID, sourceIDs)
	if len(sources) == 0 {
		c.logger.Debug().Stringer("target", targetID).Msg("merge set empty after removing self-references")
		return nil
	}

	log := observability.WithMergeContext(c.logger, targetID, len(sources))
	start := c.now()

	err := c.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		return c.mergeInTx(ctx, c.stores(tx), targetID, sources)
	})

	switch {
	case err == nil:
		c.metrics.RecordMergeCompleted(len(sources), c.now().Sub(start).Seconds())
		log.Info().Msg("merge completed")
	case isNonDuplicateMerge(err):
		c.metrics.RecordMergeBlocked()
		log.Warn().Err(err).Msg("merge blocked by non-duplicate group")
	default:
		c.metrics.RecordMergeFailed()
		log.Error().Err(err).Msg("merge failed, transaction rolled back")
	}
	return err
}

// mergeInTx is the transaction body.
func (c *Coordinator) mergeInTx(ctx context.Context, st Store, targetID uuid.UUID, sources []uuid.UUID) error {
	all := append([]uuid.UUID{targetID}, sources...)

	// Lock in a stable order so overlapping merges cannot deadlock.
	locked := append([]uuid.UUID(nil), all...)
	sort.Slice(locked, func(i, j int) bool { return locked[i].String() < locked[j].String() })

	pubs, err := st.GetPublicationsForUpdate(ctx, locked)
	if err != nil {
		return fmt.Errorf("locking merge set: %w", err)
	}
	for _, id := range all {
		if _, ok := pubs[id]; !ok {
			return domain.NewNotFoundError("publication", id.String())
		}
	}

	// Policy gate: no two members of the merge set may be confirmed
	// non-duplicates. Checked before any mutation.
	if err := c.checkNonDuplicates(ctx, st, all); err != nil {
		return err
	}

	if err := st.ReassignImports(ctx, sources, targetID); err != nil {
		return fmt.Errorf("reassigning imports: %w", err)
	}

	if err := c.transferAuthorships(ctx, st, targetID, sources); err != nil {
		return err
	}

	if err := st.ReassignNonDuplicateMemberships(ctx, sources, targetID); err != nil {
		return fmt.Errorf("reassigning non-duplicate memberships: %w", err)
	}

	if err := st.DeletePublications(ctx, sources); err != nil {
		return fmt.Errorf("deleting merged publications: %w", err)
	}

	target := pubs[targetID]
	for _, id := range sources {
		ApplyFieldPolicies(target, pubs[id])
		// The source's import rows now belong to the target, so the next
		// pairwise application must see them as the target's provenance.
		target.Imports = append(target.Imports, pubs[id].Imports...)
	}
	// Merging always surfaces the record.
	target.Visible = true
	now := c.now()
	target.UpdatedByUserAt = &now

	if err := st.UpdatePublication(ctx, target); err != nil {
		return fmt.Errorf("updating merge target: %w", err)
	}
	return nil
}

// checkNonDuplicates aborts when any pair in the merge set shares a
// non-duplicate group.
func (c *Coordinator) checkNonDuplicates(ctx context.Context, st Store, all []uuid.UUID) error {
	members := make(map[uuid.UUID]bool, len(all))
	for _, id := range all {
		members[id] = true
	}
	for _, id := range all {
		excluded, err := st.ExcludedPublicationIDs(ctx, id)
		if err != nil {
			return fmt.Errorf("loading non-duplicate exclusions: %w", err)
		}
		for _, ex := range excluded {
			if members[ex] && ex != id {
				return &domain.NonDuplicateMergeError{PublicationID: id, ConflictsWith: ex}
			}
		}
	}
	return nil
}

// transferAuthorships moves every source authorship to the target, matching
// on user. An authorship for a user the target does not know is transferred
// wholesale, keeping its waiver and deposits attached. An authorship for a
// user the target already has is folded into the target's record field by
// field, then deleted.
func (c *Coordinator) transferAuthorships(ctx context.Context, st Store, targetID uuid.UUID, sources []uuid.UUID) error {
	targetAuths, err := st.ListAuthorships(ctx, targetID)
	if err != nil {
		return fmt.Errorf("listing target authorships: %w", err)
	}

	byUser := make(map[uuid.UUID]*domain.Authorship, len(targetAuths))
	// preExisting marks authorships the target held before this merge; their
	// profile visibility and position take precedence over incoming values.
	preExisting := make(map[uuid.UUID]bool, len(targetAuths))
	for _, a := range targetAuths {
		byUser[a.UserID] = a
		preExisting[a.ID] = true
	}

	for _, srcID := range sources {
		srcAuths, err := st.ListAuthorships(ctx, srcID)
		if err != nil {
			return fmt.Errorf("listing authorships of %s: %w", srcID, err)
		}
		for _, sa := range srcAuths {
			existing, ok := byUser[sa.UserID]
			if !ok {
				sa.PublicationID = targetID
				if err := st.UpdateAuthorship(ctx, sa); err != nil {
					return fmt.Errorf("transferring authorship %s: %w", sa.ID, err)
				}
				byUser[sa.UserID] = sa
				continue
			}

			reconcileAuthorship(existing, sa, preExisting[existing.ID])

			if err := st.ReassignWaiver(ctx, sa.ID, existing.ID); err != nil {
				return fmt.Errorf("reassigning waiver of authorship %s: %w", sa.ID, err)
			}
			if err := st.ReassignDeposits(ctx, sa.ID, existing.ID); err != nil {
				return fmt.Errorf("reassigning deposits of authorship %s: %w", sa.ID, err)
			}
			if err := st.UpdateAuthorship(ctx, existing); err != nil {
				return fmt.Errorf("updating authorship %s: %w", existing.ID, err)
			}
			if err := st.DeleteAuthorship(ctx, sa.ID); err != nil {
				return fmt.Errorf("deleting merged authorship %s: %w", sa.ID, err)
			}
		}
	}
	return nil
}

// reconcileAuthorship folds an incoming authorship into the kept one.
//
// confirmed is OR-ed. Role and ORCID identifier come from whichever side the
// owner touched most recently. The open-access notification timestamp keeps
// the latest non-nil value. Profile visibility and position keep the values
// of a pre-existing target authorship unless unset; when the kept authorship
// itself arrived through this merge, visibility is OR-ed and a missing
// position is filled in.
func reconcileAuthorship(kept, incoming *domain.Authorship, keptPreExisting bool) {
	kept.Confirmed = kept.Confirmed || incoming.Confirmed

	if ownerUpdatedAfter(incoming, kept) {
		kept.Role = incoming.Role
		kept.ORCIDResourceIdentifier = incoming.ORCIDResourceIdentifier
		kept.UpdatedByOwnerAt = incoming.UpdatedByOwnerAt
	} else {
		if kept.Role == nil {
			kept.Role = incoming.Role
		}
		if kept.ORCIDResourceIdentifier == nil {
			kept.ORCIDResourceIdentifier = incoming.ORCIDResourceIdentifier
		}
	}

	if laterTime(incoming.OpenAccessNotificationSentAt, kept.OpenAccessNotificationSentAt) {
		kept.OpenAccessNotificationSentAt = incoming.OpenAccessNotificationSentAt
	}

	if keptPreExisting {
		if kept.PositionInProfile == nil {
			kept.PositionInProfile = incoming.PositionInProfile
		}
	} else {
		kept.VisibleInProfile = kept.VisibleInProfile || incoming.VisibleInProfile
		if kept.PositionInProfile == nil {
			kept.PositionInProfile = incoming.PositionInProfile
		}
	}
}

// ownerUpdatedAfter reports whether a's owner-edit timestamp is strictly more
// recent than b's. A nil timestamp is treated as never edited.
func ownerUpdatedAfter(a, b *domain.Authorship) bool {
	if a.UpdatedByOwnerAt == nil {
		return false
	}
	if b.UpdatedByOwnerAt == nil {
		return true
	}
	return a.UpdatedByOwnerAt.After(*b.UpdatedByOwnerAt)
}

// laterTime reports whether a is a non-nil time later than b (or b is nil).
func laterTime(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	return b == nil || a.After(*b)
}

// dedupeSources removes duplicates and self-references from the merge set,
// preserving order.
func dedupeSources(targetID uuid.UUID, sourceIDs []uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]bool{targetID: true}
	out := make([]uuid.UUID, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func isNonDuplicateMerge(err error) bool {
	return errors.Is(err, domain.ErrNonDuplicateMerge)
}
