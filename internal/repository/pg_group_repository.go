package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rimdb/publication-dedup-service/internal/database"
	"github.com/rimdb/publication-dedup-service/internal/dedup"
	"github.com/rimdb/publication-dedup-service/internal/domain"
)

// groupingLockKey is the advisory lock key serializing grouping scans. Spells
// "pubdedup" in ASCII.
const groupingLockKey int64 = 0x7075626465647570

// Compile-time interface verification.
var (
	_ GroupRepository = (*PgGroupRepository)(nil)
	_ dedup.Store     = (*PgGroupRepository)(nil)
)

// PgGroupRepository is a PostgreSQL implementation of GroupRepository.
//
// It holds the full *database.DB rather than a DBTX because AssignGroup runs
// each class in its own transaction and the grouping lock is a session
// advisory lock.
type PgGroupRepository struct {
	db *database.DB
}

// NewPgGroupRepository creates a new PostgreSQL duplicate group repository.
func NewPgGroupRepository(db *database.DB) *PgGroupRepository {
	return &PgGroupRepository{db: db}
}

// ListForGrouping returns every publication with the fields the grouping key
// is built from, plus its current duplicate_group_id.
func (r *PgGroupRepository) ListForGrouping(ctx context.Context) ([]*domain.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list publications for grouping: %w", err)
	}
	defer rows.Close()

	return scanPublications(rows)
}

// AssignGroup points every listed publication at groupID, creating the group
// row first when create is true. Runs in a single transaction.
func (r *PgGroupRepository) AssignGroup(ctx context.Context, groupID uuid.UUID, create bool, publicationIDs []uuid.UUID) error {
	if len(publicationIDs) == 0 {
		return domain.NewValidationError("publication_ids", "at least one publication is required")
	}

	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if create {
			_, err := tx.Exec(ctx,
				`INSERT INTO duplicate_publication_groups (id, created_at, updated_at) VALUES ($1, NOW(), NOW())`,
				groupID)
			if err != nil {
				return fmt.Errorf("failed to create duplicate group: %w", err)
			}
		}

		_, err := tx.Exec(ctx,
			`UPDATE publications SET duplicate_group_id = $1, updated_at = NOW()
			 WHERE id = ANY($2) AND (duplicate_group_id IS DISTINCT FROM $1)`,
			groupID, publicationIDs)
		if err != nil {
			return fmt.Errorf("failed to assign duplicate group: %w", err)
		}
		return nil
	})
}

// ClearGroups sets duplicate_group_id to NULL for the listed publications.
func (r *PgGroupRepository) ClearGroups(ctx context.Context, publicationIDs []uuid.UUID) error {
	if len(publicationIDs) == 0 {
		return nil
	}

	_, err := r.db.Exec(ctx,
		`UPDATE publications SET duplicate_group_id = NULL, updated_at = NOW() WHERE id = ANY($1)`,
		publicationIDs)
	if err != nil {
		return fmt.Errorf("failed to clear duplicate group references: %w", err)
	}
	return nil
}

// PruneGroups deletes every duplicate group left with fewer than two members,
// clearing the membership of single-member groups first. Returns the number
// of groups deleted.
func (r *PgGroupRepository) PruneGroups(ctx context.Context) (int64, error) {
	var pruned int64
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE publications SET duplicate_group_id = NULL, updated_at = NOW()
			WHERE duplicate_group_id IN (
				SELECT duplicate_group_id FROM publications
				WHERE duplicate_group_id IS NOT NULL
				GROUP BY duplicate_group_id
				HAVING COUNT(*) < 2
			)`)
		if err != nil {
			return fmt.Errorf("failed to detach single-member groups: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			DELETE FROM duplicate_publication_groups g
			WHERE NOT EXISTS (
				SELECT 1 FROM publications p WHERE p.duplicate_group_id = g.id
			)`)
		if err != nil {
			return fmt.Errorf("failed to prune duplicate groups: %w", err)
		}
		pruned = tag.RowsAffected()
		return nil
	})
	return pruned, err
}

// TryLockGrouping attempts to take the grouping scan advisory lock.
func (r *PgGroupRepository) TryLockGrouping(ctx context.Context) (bool, error) {
	return r.db.AcquireAdvisoryLock(ctx, groupingLockKey)
}

// UnlockGrouping releases the grouping scan advisory lock.
func (r *PgGroupRepository) UnlockGrouping(ctx context.Context) error {
	return r.db.ReleaseAdvisoryLock(ctx, groupingLockKey)
}

// ListGroups returns duplicate groups with their member publications, newest
// first.
func (r *PgGroupRepository) ListGroups(ctx context.Context, limit, offset int) ([]*domain.DuplicateGroup, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, created_at, updated_at FROM duplicate_publication_groups
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicate groups: %w", err)
	}
	defer rows.Close()

	var groups []*domain.DuplicateGroup
	byID := make(map[uuid.UUID]*domain.DuplicateGroup)
	for rows.Next() {
		var g domain.DuplicateGroup
		if err := rows.Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate group: %w", err)
		}
		groups = append(groups, &g)
		byID[g.ID] = &g
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read duplicate groups: %w", err)
	}
	if len(groups) == 0 {
		return groups, nil
	}

	ids := make([]uuid.UUID, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}

	memberRows, err := r.db.Query(ctx,
		`SELECT `+publicationColumns+` FROM publications
		 WHERE duplicate_group_id = ANY($1) ORDER BY created_at`,
		ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	defer memberRows.Close()

	members, err := scanPublications(memberRows)
	if err != nil {
		return nil, err
	}
	for _, p := range members {
		if g, ok := byID[*p.DuplicateGroupID]; ok {
			g.Publications = append(g.Publications, p)
		}
	}

	return groups, nil
}

// GetGroup returns one duplicate group with its member publications.
func (r *PgGroupRepository) GetGroup(ctx context.Context, id uuid.UUID) (*domain.DuplicateGroup, error) {
	if id == uuid.Nil {
		return nil, domain.NewValidationError("id", "group ID is required")
	}

	var g domain.DuplicateGroup
	err := r.db.QueryRow(ctx,
		`SELECT id, created_at, updated_at FROM duplicate_publication_groups WHERE id = $1`, id).
		Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("duplicate group", id.String())
		}
		return nil, fmt.Errorf("failed to get duplicate group: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+publicationColumns+` FROM publications
		 WHERE duplicate_group_id = $1 ORDER BY created_at`,
		id)
	if err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	defer rows.Close()

	g.Publications, err = scanPublications(rows)
	if err != nil {
		return nil, err
	}
	return &g, nil
}
