//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rimdb/publication-dedup-service/internal/domain"
	"github.com/rimdb/publication-dedup-service/internal/merge"
	"github.com/rimdb/publication-dedup-service/internal/repository"
)

func newTestCoordinator() *merge.Coordinator {
	return merge.NewCoordinator(testDB, func(tx pgx.Tx) merge.Store {
		return repository.NewPgMergeStore(tx)
	}, zerolog.Nop(), nil)
}

func TestMerge_Integration(t *testing.T) {
	cleanAll(t)
	ctx := context.Background()
	coordinator := newTestCoordinator()
	pubRepo := repository.NewPgPublicationRepository(testDB)

	target := insertPublication(t, &domain.Publication{
		Title:  "Deep Learning for Protein Folding",
		Status: domain.StatusInPress,
	})
	source := insertPublication(t, &domain.Publication{
		Title:       "Deep Learning for Protein Folding",
		Status:      domain.StatusPublished,
		DOI:         strPtr("10.1000/plm.2020.42"),
		Volume:      strPtr("8"),
		PublishedOn: datePtr(2020, 11, 15),
	})
	insertImport(t, target, domain.SourceActivityInsight, "ai-1001")
	insertImport(t, source, domain.SourceWebOfScience, "wos-2002")

	sharedUser := insertUser(t, "abc123")
	uniqueUser := insertUser(t, "xyz789")

	// Shared user authored both records; the source copy carries owner edits.
	insertAuthorship(t, &domain.Authorship{
		UserID: sharedUser, PublicationID: target,
		AuthorNumber: 1, VisibleInProfile: true,
	})
	insertAuthorship(t, &domain.Authorship{
		UserID: sharedUser, PublicationID: source,
		AuthorNumber: 1, Confirmed: true,
		Role:             strPtr("Primary Author"),
		UpdatedByOwnerAt: datePtr(2023, 2, 1),
		VisibleInProfile: true,
	})
	// The second user only authored the source record.
	insertAuthorship(t, &domain.Authorship{
		UserID: uniqueUser, PublicationID: source,
		AuthorNumber: 2, VisibleInProfile: true,
	})

	err := coordinator.Merge(ctx, target, []uuid.UUID{source})
	require.NoError(t, err)

	merged, err := pubRepo.GetByID(ctx, target)
	require.NoError(t, err)

	// Field policies: advanced status, present DOI and volume win.
	assert.Equal(t, domain.StatusPublished, merged.Status)
	require.NotNil(t, merged.DOI)
	assert.Equal(t, "10.1000/plm.2020.42", *merged.DOI)
	require.NotNil(t, merged.Volume)
	assert.Equal(t, "8", *merged.Volume)
	require.NotNil(t, merged.PublishedOn)
	assert.True(t, merged.Visible)
	assert.NotNil(t, merged.UpdatedByUserAt)

	// Provenance from both records survives on the target.
	sources := make([]domain.Source, 0, len(merged.Imports))
	for _, imp := range merged.Imports {
		sources = append(sources, imp.Source)
	}
	assert.ElementsMatch(t, []domain.Source{domain.SourceActivityInsight, domain.SourceWebOfScience}, sources)

	// The source record is gone.
	_, err = pubRepo.GetByID(ctx, source)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, countRows(t, "publications"))

	// Authorships collapsed onto the target: one reconciled row for the shared
	// user, one transferred row for the unique user.
	assert.Equal(t, 2, countRows(t, "authorships"))

	var confirmed bool
	var role *string
	err = testDB.QueryRow(ctx,
		`SELECT confirmed, role FROM authorships WHERE user_id = $1 AND publication_id = $2`,
		sharedUser, target).Scan(&confirmed, &role)
	require.NoError(t, err)
	assert.True(t, confirmed, "confirmation is sticky across the merge")
	require.NotNil(t, role)
	assert.Equal(t, "Primary Author", *role, "owner-edited fields win")

	var gotPub uuid.UUID
	err = testDB.QueryRow(ctx,
		`SELECT publication_id FROM authorships WHERE user_id = $1`, uniqueUser).Scan(&gotPub)
	require.NoError(t, err)
	assert.Equal(t, target, gotPub)
}

func TestMerge_BlockedByNonDuplicateGroup(t *testing.T) {
	cleanAll(t)
	ctx := context.Background()
	coordinator := newTestCoordinator()
	ndRepo := repository.NewPgNonDuplicateRepository(testDB)

	target := insertPublication(t, &domain.Publication{Title: "Alpha Study"})
	source := insertPublication(t, &domain.Publication{Title: "Alpha Study"})

	_, err := ndRepo.CreateGroup(ctx, []uuid.UUID{target, source})
	require.NoError(t, err)

	err = coordinator.Merge(ctx, target, []uuid.UUID{source})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNonDuplicateMerge)

	// Nothing was mutated.
	assert.Equal(t, 2, countRows(t, "publications"))
	assert.Nil(t, groupIDOf(t, source))
}

func TestMerge_MissingSource(t *testing.T) {
	cleanAll(t)
	ctx := context.Background()
	coordinator := newTestCoordinator()

	target := insertPublication(t, &domain.Publication{Title: "Beta Study"})

	err := coordinator.Merge(ctx, target, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, countRows(t, "publications"))
}

func TestMerge_WaiverCollision(t *testing.T) {
	cleanAll(t)
	ctx := context.Background()
	coordinator := newTestCoordinator()

	target := insertPublication(t, &domain.Publication{Title: "Gamma Study"})
	source := insertPublication(t, &domain.Publication{Title: "Gamma Study"})
	user := insertUser(t, "waiver-user")

	targetAuth := insertAuthorship(t, &domain.Authorship{
		UserID: user, PublicationID: target, AuthorNumber: 1, VisibleInProfile: true,
	})
	sourceAuth := insertAuthorship(t, &domain.Authorship{
		UserID: user, PublicationID: source, AuthorNumber: 1, VisibleInProfile: true,
	})

	_, err := testDB.Exec(ctx,
		`INSERT INTO waivers (authorship_id, reason) VALUES ($1, 'kept'), ($2, 'dropped')`,
		targetAuth, sourceAuth)
	require.NoError(t, err)

	require.NoError(t, coordinator.Merge(ctx, target, []uuid.UUID{source}))

	// One waiver per authorship: the target's survives, the source's is gone.
	assert.Equal(t, 1, countRows(t, "waivers"))
	var reason string
	err = testDB.QueryRow(ctx,
		`SELECT w.reason FROM waivers w JOIN authorships a ON a.id = w.authorship_id
		 WHERE a.user_id = $1 AND a.publication_id = $2`, user, target).Scan(&reason)
	require.NoError(t, err)
	assert.Equal(t, "kept", reason)
}

func TestMerge_RepointsNonDuplicateMemberships(t *testing.T) {
	cleanAll(t)
	ctx := context.Background()
	coordinator := newTestCoordinator()
	ndRepo := repository.NewPgNonDuplicateRepository(testDB)

	target := insertPublication(t, &domain.Publication{Title: "Delta Study"})
	source := insertPublication(t, &domain.Publication{Title: "Delta Study"})
	other := insertPublication(t, &domain.Publication{Title: "Unrelated Work"})

	// The source is marked not-a-duplicate of a third publication. That fact
	// must survive the merge, attached to the target.
	group, err := ndRepo.CreateGroup(ctx, []uuid.UUID{source, other})
	require.NoError(t, err)

	require.NoError(t, coordinator.Merge(ctx, target, []uuid.UUID{source}))

	got, err := ndRepo.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{target, other}, got.PublicationIDs)
}
