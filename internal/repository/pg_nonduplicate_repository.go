package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rimdb/publication-dedup-service/internal/database"
	"github.com/rimdb/publication-dedup-service/internal/domain"
	"github.com/rimdb/publication-dedup-service/internal/nondup"
)

// Compile-time interface verification.
var (
	_ NonDuplicateRepository = (*PgNonDuplicateRepository)(nil)
	_ nondup.Store           = (*PgNonDuplicateRepository)(nil)
)

// PgNonDuplicateRepository is a PostgreSQL implementation of
// NonDuplicateRepository. It holds *database.DB because CreateGroup writes
// the group row and its memberships in one transaction.
type PgNonDuplicateRepository struct {
	db *database.DB
}

// NewPgNonDuplicateRepository creates a new PostgreSQL non-duplicate group repository.
func NewPgNonDuplicateRepository(db *database.DB) *PgNonDuplicateRepository {
	return &PgNonDuplicateRepository{db: db}
}

// CreateGroup inserts a non-duplicate group with the given members.
// Membership rows referencing missing publications fail the whole insert.
func (r *PgNonDuplicateRepository) CreateGroup(ctx context.Context, publicationIDs []uuid.UUID) (*domain.NonDuplicateGroup, error) {
	if len(publicationIDs) < 2 {
		return nil, domain.NewValidationError("publication_ids", "at least two publications are required")
	}

	group := &domain.NonDuplicateGroup{
		ID:             uuid.New(),
		PublicationIDs: publicationIDs,
	}

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO non_duplicate_publication_groups (id, created_at, updated_at)
			 VALUES ($1, NOW(), NOW()) RETURNING created_at, updated_at`,
			group.ID).Scan(&group.CreatedAt, &group.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create non-duplicate group: %w", err)
		}

		for _, pubID := range publicationIDs {
			_, err := tx.Exec(ctx,
				`INSERT INTO non_duplicate_publication_group_memberships
				 (id, non_duplicate_group_id, publication_id, created_at)
				 VALUES ($1, $2, $3, NOW())`,
				uuid.New(), group.ID, pubID)
			if err != nil {
				return fmt.Errorf("failed to add group member %s: %w", pubID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// GetGroup returns a non-duplicate group with its member publication IDs.
func (r *PgNonDuplicateRepository) GetGroup(ctx context.Context, id uuid.UUID) (*domain.NonDuplicateGroup, error) {
	if id == uuid.Nil {
		return nil, domain.NewValidationError("id", "group ID is required")
	}

	var g domain.NonDuplicateGroup
	err := r.db.QueryRow(ctx,
		`SELECT id, created_at, updated_at FROM non_duplicate_publication_groups WHERE id = $1`, id).
		Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("non-duplicate group", id.String())
		}
		return nil, fmt.Errorf("failed to get non-duplicate group: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT publication_id FROM non_duplicate_publication_group_memberships
		 WHERE non_duplicate_group_id = $1 ORDER BY created_at`,
		id)
	if err != nil {
		return nil, fmt.Errorf("failed to load group memberships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pubID uuid.UUID
		if err := rows.Scan(&pubID); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		g.PublicationIDs = append(g.PublicationIDs, pubID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read memberships: %w", err)
	}
	return &g, nil
}

// DeleteGroup removes a non-duplicate group and its memberships.
func (r *PgNonDuplicateRepository) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return domain.NewValidationError("id", "group ID is required")
	}

	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM non_duplicate_publication_group_memberships WHERE non_duplicate_group_id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete group memberships: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM non_duplicate_publication_groups WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete non-duplicate group: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.NewNotFoundError("non-duplicate group", id.String())
		}
		return nil
	})
}

// GroupsContaining returns every non-duplicate group the publication belongs
// to, members included.
func (r *PgNonDuplicateRepository) GroupsContaining(ctx context.Context, publicationID uuid.UUID) ([]*domain.NonDuplicateGroup, error) {
	if publicationID == uuid.Nil {
		return nil, domain.NewValidationError("publication_id", "publication ID is required")
	}

	rows, err := r.db.Query(ctx, `
		SELECT g.id, g.created_at, g.updated_at, m.publication_id
		FROM non_duplicate_publication_groups g
		JOIN non_duplicate_publication_group_memberships m ON m.non_duplicate_group_id = g.id
		WHERE g.id IN (
			SELECT non_duplicate_group_id FROM non_duplicate_publication_group_memberships
			WHERE publication_id = $1
		)
		ORDER BY g.created_at, m.created_at`,
		publicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load non-duplicate groups: %w", err)
	}
	defer rows.Close()

	var groups []*domain.NonDuplicateGroup
	byID := make(map[uuid.UUID]*domain.NonDuplicateGroup)
	for rows.Next() {
		var (
			g     domain.NonDuplicateGroup
			pubID uuid.UUID
		)
		if err := rows.Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt, &pubID); err != nil {
			return nil, fmt.Errorf("failed to scan group membership: %w", err)
		}
		group, ok := byID[g.ID]
		if !ok {
			group = &g
			byID[g.ID] = group
			groups = append(groups, group)
		}
		group.PublicationIDs = append(group.PublicationIDs, pubID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read non-duplicate groups: %w", err)
	}
	return groups, nil
}
