package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rimdb/publication-dedup-service/internal/domain"
)

// Compile-time interface verification.
var _ PublicationRepository = (*PgPublicationRepository)(nil)

// publicationColumns is the canonical publications column list used by every
// query that scans a full publication row.
const publicationColumns = `
	id, title, secondary_title, publication_type, status,
	journal_id, journal_title, publisher_name,
	volume, issue, edition, page_range, url, issn, isbn, doi, abstract,
	authors_et_al, published_on, total_scopus_citations,
	open_access_url, scholarsphere_open_access_url, user_submitted_open_access_url,
	visible, duplicate_group_id,
	created_at, updated_at, updated_by_user_at`

// PgPublicationRepository is a PostgreSQL implementation of PublicationRepository.
type PgPublicationRepository struct {
	db DBTX
}

// NewPgPublicationRepository creates a new PostgreSQL publication repository.
func NewPgPublicationRepository(db DBTX) *PgPublicationRepository {
	return &PgPublicationRepository{db: db}
}

// GetByID loads a publication with its journal entity and imports.
func (r *PgPublicationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Publication, error) {
	if id == uuid.Nil {
		return nil, domain.NewValidationError("id", "publication ID is required")
	}

	query := `SELECT ` + publicationColumns + ` FROM publications WHERE id = $1`

	row := r.db.QueryRow(ctx, query, id)
	pub, err := scanPublication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("publication", id.String())
		}
		return nil, fmt.Errorf("failed to get publication: %w", err)
	}

	if err := loadJournals(ctx, r.db, []*domain.Publication{pub}); err != nil {
		return nil, err
	}
	if err := loadImports(ctx, r.db, []*domain.Publication{pub}); err != nil {
		return nil, err
	}

	return pub, nil
}

// ListByGroup loads the members of a duplicate group, imports included.
func (r *PgPublicationRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.Publication, error) {
	if groupID == uuid.Nil {
		return nil, domain.NewValidationError("group_id", "group ID is required")
	}

	query := `SELECT ` + publicationColumns + `
		FROM publications
		WHERE duplicate_group_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	pubs, err := scanPublications(rows)
	if err != nil {
		return nil, err
	}

	if err := loadJournals(ctx, r.db, pubs); err != nil {
		return nil, err
	}
	if err := loadImports(ctx, r.db, pubs); err != nil {
		return nil, err
	}

	return pubs, nil
}

// scanPublication scans one full publication row.
func scanPublication(row pgx.Row) (*domain.Publication, error) {
	var p domain.Publication
	err := row.Scan(
		&p.ID, &p.Title, &p.SecondaryTitle, &p.PublicationType, &p.Status,
		&p.JournalID, &p.JournalTitle, &p.PublisherName,
		&p.Volume, &p.Issue, &p.Edition, &p.PageRange, &p.URL, &p.ISSN, &p.ISBN, &p.DOI, &p.Abstract,
		&p.AuthorsEtAl, &p.PublishedOn, &p.TotalScopusCitations,
		&p.OpenAccessURL, &p.ScholarsphereOpenAccessURL, &p.UserSubmittedOpenAccessURL,
		&p.Visible, &p.DuplicateGroupID,
		&p.CreatedAt, &p.UpdatedAt, &p.UpdatedByUserAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// scanPublications scans all rows of a full-column publication query.
func scanPublications(rows pgx.Rows) ([]*domain.Publication, error) {
	var pubs []*domain.Publication
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan publication: %w", err)
		}
		pubs = append(pubs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read publications: %w", err)
	}
	return pubs, nil
}

// loadJournals attaches journal entities to publications that reference one.
func loadJournals(ctx context.Context, db DBTX, pubs []*domain.Publication) error {
	var journalIDs []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, p := range pubs {
		if p.JournalID != nil && !seen[*p.JournalID] {
			seen[*p.JournalID] = true
			journalIDs = append(journalIDs, *p.JournalID)
		}
	}
	if len(journalIDs) == 0 {
		return nil
	}

	query := `SELECT id, title, publisher_name, created_at, updated_at
		FROM journals WHERE id = ANY($1)`

	rows, err := db.Query(ctx, query, journalIDs)
	if err != nil {
		return fmt.Errorf("failed to load journals: %w", err)
	}
	defer rows.Close()

	journals := make(map[uuid.UUID]*domain.Journal, len(journalIDs))
	for rows.Next() {
		var j domain.Journal
		if err := rows.Scan(&j.ID, &j.Title, &j.PublisherName, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan journal: %w", err)
		}
		journals[j.ID] = &j
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read journals: %w", err)
	}

	for _, p := range pubs {
		if p.JournalID != nil {
			p.Journal = journals[*p.JournalID]
		}
	}
	return nil
}

// loadImports attaches import rows to the given publications.
func loadImports(ctx context.Context, db DBTX, pubs []*domain.Publication) error {
	if len(pubs) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(pubs))
	byID := make(map[uuid.UUID]*domain.Publication, len(pubs))
	for i, p := range pubs {
		ids[i] = p.ID
		byID[p.ID] = p
	}

	query := `SELECT id, publication_id, source, source_identifier, created_at, updated_at
		FROM publication_imports
		WHERE publication_id = ANY($1)
		ORDER BY created_at`

	rows, err := db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to load imports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var imp domain.PublicationImport
		if err := rows.Scan(&imp.ID, &imp.PublicationID, &imp.Source, &imp.SourceIdentifier, &imp.CreatedAt, &imp.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan import: %w", err)
		}
		if p, ok := byID[imp.PublicationID]; ok {
			p.Imports = append(p.Imports, imp)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read imports: %w", err)
	}
	return nil
}
