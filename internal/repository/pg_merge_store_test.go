package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rimdb/publication-dedup-service/internal/domain"
)

// anyArgs returns n pgxmock.AnyArg matchers, for Execs whose argument values
// are not what the test asserts.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPgMergeStore_GetPublicationsForUpdate(t *testing.T) {
	t.Run("locks and loads the merge set", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		store := &PgMergeStore{tx: mock}
		ctx := context.Background()

		targetID := uuid.New()
		sourceID := uuid.New()
		now := time.Now().UTC()
		ids := []uuid.UUID{sourceID, targetID}

		mock.ExpectQuery(`FROM publications WHERE id = ANY\(\$1\) FOR UPDATE`).
			WithArgs(ids).
			WillReturnRows(pgxmock.NewRows(pubRowColumns).
				AddRow(minimalPubRow(targetID, "Target", now)...).
				AddRow(minimalPubRow(sourceID, "Source", now)...))

		mock.ExpectQuery(`FROM publication_imports`).
			WithArgs([]uuid.UUID{targetID, sourceID}).
			WillReturnRows(pgxmock.NewRows([]string{
				"id", "publication_id", "source", "source_identifier", "created_at", "updated_at",
			}).AddRow(uuid.New(), sourceID, domain.SourceWebOfScience, "wos-9", now, now))

		pubs, err := store.GetPublicationsForUpdate(ctx, ids)
		require.NoError(t, err)
		require.Len(t, pubs, 2)
		assert.Equal(t, "Target", pubs[targetID].Title)
		require.Len(t, pubs[sourceID].Imports, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing publications are absent, not an error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		store := &PgMergeStore{tx: mock}

		missing := uuid.New()
		mock.ExpectQuery(`FROM publications WHERE id = ANY\(\$1\) FOR UPDATE`).
			WithArgs([]uuid.UUID{missing}).
			WillReturnRows(pgxmock.NewRows(pubRowColumns))

		pubs, err := store.GetPublicationsForUpdate(context.Background(), []uuid.UUID{missing})
		require.NoError(t, err)
		assert.Empty(t, pubs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgMergeStore_ExcludedPublicationIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := &PgMergeStore{tx: mock}

	pubID := uuid.New()
	otherA := uuid.New()
	otherB := uuid.New()

	mock.ExpectQuery(`SELECT DISTINCT m.publication_id`).
		WithArgs(pubID).
		WillReturnRows(pgxmock.NewRows([]string{"publication_id"}).
			AddRow(otherA).
			AddRow(otherB))

	excluded, err := store.ExcludedPublicationIDs(context.Background(), pubID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{otherA, otherB}, excluded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgMergeStore_ReassignImports(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := &PgMergeStore{tx: mock}

	targetID := uuid.New()
	sources := []uuid.UUID{uuid.New(), uuid.New()}

	mock.ExpectExec(`UPDATE publication_imports SET publication_id = \$1`).
		WithArgs(targetID, sources).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	require.NoError(t, store.ReassignImports(context.Background(), sources, targetID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgMergeStore_ListAuthorships(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := &PgMergeStore{tx: mock}

	pubID := uuid.New()
	authID := uuid.New()
	userID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM authorships\s+WHERE publication_id = \$1`).
		WithArgs(pubID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "publication_id", "author_number", "confirmed", "role",
			"orcid_resource_identifier", "open_access_notification_sent_at",
			"updated_by_owner_at", "visible_in_profile", "position_in_profile",
			"created_at", "updated_at",
		}).AddRow(authID, userID, pubID, 1, true, nil, nil, nil, nil, true, nil, now, now))

	auths, err := store.ListAuthorships(context.Background(), pubID)
	require.NoError(t, err)
	require.Len(t, auths, 1)
	assert.Equal(t, authID, auths[0].ID)
	assert.Equal(t, userID, auths[0].UserID)
	assert.True(t, auths[0].Confirmed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgMergeStore_UpdateAuthorship(t *testing.T) {
	t.Run("updates existing authorship", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		store := &PgMergeStore{tx: mock}

		a := &domain.Authorship{ID: uuid.New(), UserID: uuid.New(), PublicationID: uuid.New(), AuthorNumber: 2}

		mock.ExpectExec(`UPDATE authorships SET`).
			WithArgs(
				a.ID, a.PublicationID, a.AuthorNumber, a.Confirmed, a.Role,
				a.ORCIDResourceIdentifier, a.OpenAccessNotificationSentAt,
				a.UpdatedByOwnerAt, a.VisibleInProfile, a.PositionInProfile,
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, store.UpdateAuthorship(context.Background(), a))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found when no row updated", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		store := &PgMergeStore{tx: mock}

		a := &domain.Authorship{ID: uuid.New()}
		mock.ExpectExec(`UPDATE authorships SET`).
			WithArgs(
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = store.UpdateAuthorship(context.Background(), a)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgMergeStore_ReassignWaiver(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := &PgMergeStore{tx: mock}

	from := uuid.New()
	to := uuid.New()

	// Conditional move first, then cleanup of a superseded waiver.
	mock.ExpectExec(`UPDATE waivers SET authorship_id = \$1`).
		WithArgs(to, from).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM waivers WHERE authorship_id = \$1`).
		WithArgs(from).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, store.ReassignWaiver(context.Background(), from, to))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgMergeStore_ReassignNonDuplicateMemberships(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := &PgMergeStore{tx: mock}

	to := uuid.New()
	from := []uuid.UUID{uuid.New()}

	mock.ExpectExec(`UPDATE non_duplicate_publication_group_memberships m`).
		WithArgs(to, from).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM non_duplicate_publication_group_memberships`).
		WithArgs(from).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, store.ReassignNonDuplicateMemberships(context.Background(), from, to))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgMergeStore_DeletePublications(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := &PgMergeStore{tx: mock}

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	mock.ExpectExec(`DELETE FROM publications WHERE id = ANY\(\$1\)`).
		WithArgs(ids).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, store.DeletePublications(context.Background(), ids))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgMergeStore_UpdatePublication(t *testing.T) {
	t.Run("updates the target row", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		store := &PgMergeStore{tx: mock}

		p := &domain.Publication{ID: uuid.New(), Title: "Merged", Status: domain.StatusPublished, Visible: true}
		mock.ExpectExec(`UPDATE publications SET`).
			WithArgs(anyArgs(25)...).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, store.UpdatePublication(context.Background(), p))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found when target vanished", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		store := &PgMergeStore{tx: mock}

		p := &domain.Publication{ID: uuid.New()}
		mock.ExpectExec(`UPDATE publications SET`).
			WithArgs(anyArgs(25)...).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = store.UpdatePublication(context.Background(), p)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
