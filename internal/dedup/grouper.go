package dedup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rimdb/publication-dedup-service/internal/domain"
	"github.com/rimdb/publication-dedup-service/internal/observability"
)

// Store defines the persistence operations needed by the grouping engine.
//
// AssignGroup and ClearGroups must each run in their own transaction so that a
// failure while processing one equivalence class cannot corrupt groupings that
// were already written for other classes.
type Store interface {
	// ListForGrouping returns every publication with the fields the grouping
	// key is built from, plus its current duplicate_group_id.
	ListForGrouping(ctx context.Context) ([]*domain.Publication, error)

	// AssignGroup points every listed publication at groupID, creating the
	// group row first when create is true. Runs in a single transaction.
	AssignGroup(ctx context.Context, groupID uuid.UUID, create bool, publicationIDs []uuid.UUID) error

	// ClearGroups sets duplicate_group_id to NULL for the listed publications.
	ClearGroups(ctx context.Context, publicationIDs []uuid.UUID) error

	// PruneGroups deletes every duplicate group left with fewer than two
	// members, clearing the membership of single-member groups first.
	// Returns the number of groups deleted.
	PruneGroups(ctx context.Context) (int64, error)

	// TryLockGrouping attempts to take the grouping scan lock. Returns false
	// when another scan already holds it.
	TryLockGrouping(ctx context.Context) (bool, error)

	// UnlockGrouping releases the grouping scan lock.
	UnlockGrouping(ctx context.Context) error
}

// Result summarizes one grouping scan.
type Result struct {
	// Scanned is the number of publications examined.
	Scanned int

	// Classes is the number of equivalence classes of size >= 2.
	Classes int

	// Grouped is the number of publications assigned to a group this run.
	Grouped int

	// Cleared is the number of publications whose stale group reference was
	// removed this run.
	Cleared int

	// Pruned is the number of empty or single-member groups deleted.
	Pruned int64

	// Failures is the number of classes skipped because their transaction
	// failed. Failed classes keep their prior grouping state.
	Failures int
}

// Grouper is the duplicate grouping engine. GroupDuplicates performs a full,
// idempotent re-scan: running it twice produces the same groups and the same
// membership as running it once.
type Grouper struct {
	store   Store
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewGrouper creates a new grouping engine. metrics may be nil.
func NewGrouper(store Store, logger zerolog.Logger, metrics *observability.Metrics) *Grouper {
	return &Grouper{
		store:   store,
		logger:  logger.With().Str("component", "grouper").Logger(),
		metrics: metrics,
	}
}

// GroupDuplicates scans all publications, partitions them into equivalence
// classes by grouping key, and ensures each class of size >= 2 is covered by
// exactly one duplicate group containing exactly that set.
//
// Publications already correctly grouped are left untouched. Publications
// whose computed class no longer matches their current group are reassigned.
// Singleton classes never get a group. Classes are processed in their own
// transactions; a failure in one class is logged and the scan continues.
//
// Returns domain.ErrGroupingInProgress when another scan holds the lock.
func (g *Grouper) GroupDuplicates(ctx context.Context) (Result, error) {
	start := time.Now()

	locked, err := g.store.TryLockGrouping(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("acquiring grouping lock: %w", err)
	}
	if !locked {
		return Result{}, domain.ErrGroupingInProgress
	}
	defer func() {
		if err := g.store.UnlockGrouping(ctx); err != nil {
			g.logger.Error().Err(err).Msg("failed to release grouping lock")
		}
	}()

	pubs, err := g.store.ListForGrouping(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing publications for grouping: %w", err)
	}

	res := Result{Scanned: len(pubs)}

	classes := make(map[Key][]*domain.Publication)
	groupSizes := make(map[uuid.UUID]int)
	for _, p := range pubs {
		if p.DuplicateGroupID != nil {
			groupSizes[*p.DuplicateGroupID]++
		}
		k := KeyFor(p)
		if k.Zero() {
			continue
		}
		classes[k] = append(classes[k], p)
	}

	// Publications whose class is a singleton (or whose title is blank) must
	// not reference a group.
	grouped := make(map[uuid.UUID]bool)

	// A group ID may be claimed by at most one class per scan. Without this, a
	// previously grouped set that split into two classes could converge both
	// classes back onto the old group.
	claimed := make(map[uuid.UUID]bool)

	for key, members := range classes {
		if len(members) < 2 {
			continue
		}
		res.Classes++
		for _, p := range members {
			grouped[p.ID] = true
		}

		changed, err := g.syncClass(ctx, members, groupSizes, claimed)
		if err != nil {
			res.Failures++
			g.metrics.RecordGroupingClassFailure()
			g.logger.Error().Err(err).
				Str("grouping_key", key.String()).
				Int("members", len(members)).
				Msg("failed to sync duplicate class, keeping prior state")
			continue
		}
		res.Grouped += changed
	}

	// Clear stale references on publications that should not be grouped.
	var stale []uuid.UUID
	for _, p := range pubs {
		if p.DuplicateGroupID != nil && !grouped[p.ID] {
			stale = append(stale, p.ID)
		}
	}
	if len(stale) > 0 {
		if err := g.store.ClearGroups(ctx, stale); err != nil {
			res.Failures++
			g.logger.Error().Err(err).Int("publications", len(stale)).
				Msg("failed to clear stale group references")
		} else {
			res.Cleared = len(stale)
		}
	}

	pruned, err := g.store.PruneGroups(ctx)
	if err != nil {
		res.Failures++
		g.logger.Error().Err(err).Msg("failed to prune degenerate groups")
	}
	res.Pruned = pruned
	g.metrics.RecordGroupsPruned(pruned)

	outcome := "ok"
	if res.Failures > 0 {
		outcome = "partial"
	}
	g.metrics.RecordGroupingRun(outcome, res.Scanned, time.Since(start).Seconds())
	g.logger.Info().
		Int("scanned", res.Scanned).
		Int("classes", res.Classes).
		Int("grouped", res.Grouped).
		Int("cleared", res.Cleared).
		Int64("pruned", res.Pruned).
		Int("failures", res.Failures).
		Msg("grouping scan complete")

	return res, nil
}

// syncClass ensures one equivalence class shares a single duplicate group.
// Returns the number of publications whose assignment changed.
func (g *Grouper) syncClass(ctx context.Context, members []*domain.Publication, groupSizes map[uuid.UUID]int, claimed map[uuid.UUID]bool) (int, error) {
	target, create := chooseGroup(members, claimed)
	claimed[target] = true

	// No-op when every member already points at the target group and the
	// group holds nothing but this class.
	if !create && groupSizes[target] == len(members) {
		aligned := true
		for _, p := range members {
			if p.DuplicateGroupID == nil || *p.DuplicateGroupID != target {
				aligned = false
				break
			}
		}
		if aligned {
			return 0, nil
		}
	}

	ids := make([]uuid.UUID, 0, len(members))
	changed := 0
	for _, p := range members {
		ids = append(ids, p.ID)
		if p.DuplicateGroupID == nil || *p.DuplicateGroupID != target {
			changed++
		}
	}

	if err := g.store.AssignGroup(ctx, target, create, ids); err != nil {
		return 0, err
	}
	if create {
		g.metrics.RecordGroupCreated()
	}
	groupLogger := observability.WithGroupContext(g.logger, target, len(members))
	groupLogger.Debug().
		Bool("created", create).
		Int("reassigned", changed).
		Msg("duplicate class synced")
	return changed, nil
}

// chooseGroup picks the group a class should converge on: the smallest
// unclaimed existing group ID among its members, so repeated runs make the
// same choice, or a fresh ID when no member is grouped yet.
func chooseGroup(members []*domain.Publication, claimed map[uuid.UUID]bool) (uuid.UUID, bool) {
	var existing []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, p := range members {
		if p.DuplicateGroupID != nil && !seen[*p.DuplicateGroupID] && !claimed[*p.DuplicateGroupID] {
			seen[*p.DuplicateGroupID] = true
			existing = append(existing, *p.DuplicateGroupID)
		}
	}
	if len(existing) == 0 {
		return uuid.New(), true
	}
	sort.Slice(existing, func(i, j int) bool {
		return existing[i].String() < existing[j].String()
	})
	return existing[0], false
}
