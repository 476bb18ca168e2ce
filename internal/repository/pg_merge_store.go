package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rimdb/publication-dedup-service/internal/domain"
	"github.com/rimdb/publication-dedup-service/internal/merge"
)

// Compile-time interface verification.
var _ merge.Store = (*PgMergeStore)(nil)

// PgMergeStore is the PostgreSQL implementation of merge.Store. It is bound
// to a single transaction; create one per merge via NewPgMergeStore inside
// database.DB.WithTransaction.
type PgMergeStore struct {
	tx DBTX
}

// NewPgMergeStore creates a merge store bound to the given transaction.
func NewPgMergeStore(tx pgx.Tx) *PgMergeStore {
	return &PgMergeStore{tx: tx}
}

// GetPublicationsForUpdate loads the given publications with row locks,
// journal entities, and imports.
func (s *PgMergeStore) GetPublicationsForUpdate(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications WHERE id = ANY($1) FOR UPDATE`

	rows, err := s.tx.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lock publications: %w", err)
	}
	defer rows.Close()

	pubs, err := scanPublications(rows)
	if err != nil {
		return nil, err
	}

	if err := loadJournals(ctx, s.tx, pubs); err != nil {
		return nil, err
	}
	if err := loadImports(ctx, s.tx, pubs); err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*domain.Publication, len(pubs))
	for _, p := range pubs {
		byID[p.ID] = p
	}
	return byID, nil
}

// ExcludedPublicationIDs returns every publication sharing a non-duplicate
// group with the given one.
func (s *PgMergeStore) ExcludedPublicationIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT DISTINCT m.publication_id
		FROM non_duplicate_publication_group_memberships m
		WHERE m.non_duplicate_group_id IN (
			SELECT non_duplicate_group_id FROM non_duplicate_publication_group_memberships
			WHERE publication_id = $1
		)
		AND m.publication_id <> $1`,
		id)
	if err != nil {
		return nil, fmt.Errorf("failed to load non-duplicate exclusions: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var pubID uuid.UUID
		if err := rows.Scan(&pubID); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion: %w", err)
		}
		out = append(out, pubID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read exclusions: %w", err)
	}
	return out, nil
}

// ReassignImports points every import owned by the from publications at to.
// The (source, source_identifier) uniqueness survives because an import row
// moves wholesale, never splits.
func (s *PgMergeStore) ReassignImports(ctx context.Context, from []uuid.UUID, to uuid.UUID) error {
	_, err := s.tx.Exec(ctx,
		`UPDATE publication_imports SET publication_id = $1, updated_at = NOW()
		 WHERE publication_id = ANY($2)`,
		to, from)
	if err != nil {
		return fmt.Errorf("failed to reassign imports: %w", err)
	}
	return nil
}

// ListAuthorships returns the publication's authorships ordered by author number.
func (s *PgMergeStore) ListAuthorships(ctx context.Context, publicationID uuid.UUID) ([]*domain.Authorship, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT id, user_id, publication_id, author_number, confirmed, role,
			orcid_resource_identifier, open_access_notification_sent_at,
			updated_by_owner_at, visible_in_profile, position_in_profile,
			created_at, updated_at
		FROM authorships
		WHERE publication_id = $1
		ORDER BY author_number`,
		publicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list authorships: %w", err)
	}
	defer rows.Close()

	var auths []*domain.Authorship
	for rows.Next() {
		var a domain.Authorship
		err := rows.Scan(
			&a.ID, &a.UserID, &a.PublicationID, &a.AuthorNumber, &a.Confirmed, &a.Role,
			&a.ORCIDResourceIdentifier, &a.OpenAccessNotificationSentAt,
			&a.UpdatedByOwnerAt, &a.VisibleInProfile, &a.PositionInProfile,
			&a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan authorship: %w", err)
		}
		auths = append(auths, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read authorships: %w", err)
	}
	return auths, nil
}

// UpdateAuthorship persists the authorship's mutable fields, including a
// changed publication_id.
func (s *PgMergeStore) UpdateAuthorship(ctx context.Context, a *domain.Authorship) error {
	tag, err := s.tx.Exec(ctx, `
		UPDATE authorships SET
			publication_id = $2,
			author_number = $3,
			confirmed = $4,
			role = $5,
			orcid_resource_identifier = $6,
			open_access_notification_sent_at = $7,
			updated_by_owner_at = $8,
			visible_in_profile = $9,
			position_in_profile = $10,
			updated_at = NOW()
		WHERE id = $1`,
		a.ID, a.PublicationID, a.AuthorNumber, a.Confirmed, a.Role,
		a.ORCIDResourceIdentifier, a.OpenAccessNotificationSentAt,
		a.UpdatedByOwnerAt, a.VisibleInProfile, a.PositionInProfile,
	)
	if err != nil {
		return fmt.Errorf("failed to update authorship: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("authorship", a.ID.String())
	}
	return nil
}

// DeleteAuthorship removes an authorship. Its waiver and deposits must have
// been reassigned first.
func (s *PgMergeStore) DeleteAuthorship(ctx context.Context, id uuid.UUID) error {
	_, err := s.tx.Exec(ctx, `DELETE FROM authorships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete authorship: %w", err)
	}
	return nil
}

// ReassignWaiver moves the from authorship's waiver to the to authorship
// unless the destination already has one, in which case the incoming waiver
// is dropped.
func (s *PgMergeStore) ReassignWaiver(ctx context.Context, from, to uuid.UUID) error {
	_, err := s.tx.Exec(ctx, `
		UPDATE waivers SET authorship_id = $1, updated_at = NOW()
		WHERE authorship_id = $2
		AND NOT EXISTS (SELECT 1 FROM waivers WHERE authorship_id = $1)`,
		to, from)
	if err != nil {
		return fmt.Errorf("failed to reassign waiver: %w", err)
	}

	// Drop a waiver left behind when the destination already had one.
	_, err = s.tx.Exec(ctx, `DELETE FROM waivers WHERE authorship_id = $1`, from)
	if err != nil {
		return fmt.Errorf("failed to remove superseded waiver: %w", err)
	}
	return nil
}

// ReassignDeposits moves all ScholarSphere deposits between authorships.
func (s *PgMergeStore) ReassignDeposits(ctx context.Context, from, to uuid.UUID) error {
	_, err := s.tx.Exec(ctx,
		`UPDATE scholarsphere_deposits SET authorship_id = $1, updated_at = NOW()
		 WHERE authorship_id = $2`,
		to, from)
	if err != nil {
		return fmt.Errorf("failed to reassign deposits: %w", err)
	}
	return nil
}

// ReassignNonDuplicateMemberships repoints memberships from the merged-away
// publications to the target, dropping rows that would duplicate an existing
// target membership in the same group.
func (s *PgMergeStore) ReassignNonDuplicateMemberships(ctx context.Context, from []uuid.UUID, to uuid.UUID) error {
	_, err := s.tx.Exec(ctx, `
		UPDATE non_duplicate_publication_group_memberships m
		SET publication_id = $1
		WHERE m.publication_id = ANY($2)
		AND NOT EXISTS (
			SELECT 1 FROM non_duplicate_publication_group_memberships t
			WHERE t.non_duplicate_group_id = m.non_duplicate_group_id
			AND t.publication_id = $1
		)`,
		to, from)
	if err != nil {
		return fmt.Errorf("failed to reassign non-duplicate memberships: %w", err)
	}

	_, err = s.tx.Exec(ctx,
		`DELETE FROM non_duplicate_publication_group_memberships WHERE publication_id = ANY($1)`,
		from)
	if err != nil {
		return fmt.Errorf("failed to remove duplicated memberships: %w", err)
	}
	return nil
}

// DeletePublications removes the merged-away publications.
func (s *PgMergeStore) DeletePublications(ctx context.Context, ids []uuid.UUID) error {
	_, err := s.tx.Exec(ctx, `DELETE FROM publications WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to delete publications: %w", err)
	}
	return nil
}

// UpdatePublication persists the target's reconciled fields.
func (s *PgMergeStore) UpdatePublication(ctx context.Context, p *domain.Publication) error {
	tag, err := s.tx.Exec(ctx, `
		UPDATE publications SET
			title = $2,
			secondary_title = $3,
			publication_type = $4,
			status = $5,
			journal_id = $6,
			journal_title = $7,
			publisher_name = $8,
			volume = $9,
			issue = $10,
			edition = $11,
			page_range = $12,
			url = $13,
			issn = $14,
			isbn = $15,
			doi = $16,
			abstract = $17,
			authors_et_al = $18,
			published_on = $19,
			total_scopus_citations = $20,
			open_access_url = $21,
			scholarsphere_open_access_url = $22,
			user_submitted_open_access_url = $23,
			visible = $24,
			updated_by_user_at = $25,
			updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.Title, p.SecondaryTitle, p.PublicationType, p.Status,
		p.JournalID, p.JournalTitle, p.PublisherName,
		p.Volume, p.Issue, p.Edition, p.PageRange, p.URL, p.ISSN, p.ISBN, p.DOI, p.Abstract,
		p.AuthorsEtAl, p.PublishedOn, p.TotalScopusCitations,
		p.OpenAccessURL, p.ScholarsphereOpenAccessURL, p.UserSubmittedOpenAccessURL,
		p.Visible, p.UpdatedByUserAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update publication: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("publication", p.ID.String())
	}
	return nil
}
