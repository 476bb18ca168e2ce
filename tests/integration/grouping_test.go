//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rimdb/publication-dedup-service/internal/dedup"
	"github.com/rimdb/publication-dedup-service/internal/domain"
	"github.com/rimdb/publication-dedup-service/internal/repository"
)

func strPtr(s string) *string { return &s }

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func TestGrouping_Integration(t *testing.T) {
	cleanAll(t)
	ctx := context.Background()

	repo := repository.NewPgGroupRepository(testDB)
	grouper := dedup.NewGrouper(repo, zerolog.Nop(), nil)

	journal := strPtr("Journal of Materials Science")
	a := insertPublication(t, &domain.Publication{
		Title:        "Fatigue Behavior of Additively Manufactured Alloys",
		JournalTitle: journal,
		Volume:       strPtr("12"),
		Issue:        strPtr("3"),
	})
	b := insertPublication(t, &domain.Publication{
		Title:        "Fatigue behavior of additively manufactured alloys!",
		JournalTitle: journal,
		Volume:       strPtr("12"),
		Issue:        strPtr("3"),
	})
	// Same title but a different volume, so it forms its own class.
	c := insertPublication(t, &domain.Publication{
		Title:        "Fatigue Behavior of Additively Manufactured Alloys",
		JournalTitle: journal,
		Volume:       strPtr("13"),
		Issue:        strPtr("3"),
	})

	res, err := grouper.GroupDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 1, res.Classes)
	assert.Equal(t, 2, res.Grouped)
	assert.Zero(t, res.Failures)

	gidA, gidB := groupIDOf(t, a), groupIDOf(t, b)
	require.NotNil(t, gidA)
	require.NotNil(t, gidB)
	assert.Equal(t, *gidA, *gidB, "matching publications must share a group")
	assert.Nil(t, groupIDOf(t, c), "singleton classes must not be grouped")
	assert.Equal(t, 1, countRows(t, "duplicate_publication_groups"))

	t.Run("rescan is idempotent", func(t *testing.T) {
		res, err := grouper.GroupDuplicates(ctx)
		require.NoError(t, err)
		assert.Zero(t, res.Grouped)
		assert.Zero(t, res.Cleared)
		assert.Zero(t, res.Pruned)

		gidA2 := groupIDOf(t, a)
		require.NotNil(t, gidA2)
		assert.Equal(t, *gidA, *gidA2, "group identity must be stable across runs")
	})

	t.Run("edited publication leaves its group", func(t *testing.T) {
		// Changing b's volume moves it out of a's equivalence class.
		_, err := testDB.Exec(ctx,
			`UPDATE publications SET volume = '99' WHERE id = $1`, b)
		require.NoError(t, err)

		res, err := grouper.GroupDuplicates(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Cleared, "both former members lose the reference")
		assert.EqualValues(t, 1, res.Pruned, "the emptied group is deleted")

		assert.Nil(t, groupIDOf(t, a))
		assert.Nil(t, groupIDOf(t, b))
		assert.Zero(t, countRows(t, "duplicate_publication_groups"))
	})
}

func TestGrouping_PublisherFallback(t *testing.T) {
	cleanAll(t)
	ctx := context.Background()

	grouper := dedup.NewGrouper(repository.NewPgGroupRepository(testDB), zerolog.Nop(), nil)

	// No journal title on either side; the publisher substitutes as venue.
	a := insertPublication(t, &domain.Publication{
		Title:         "Open Problems in Network Tomography",
		PublisherName: strPtr("ACM"),
		PublishedOn:   datePtr(2021, time.May, 1),
	})
	b := insertPublication(t, &domain.Publication{
		Title:         "Open problems in network tomography",
		PublisherName: strPtr("acm"),
		PublishedOn:   datePtr(2021, time.May, 1),
	})

	_, err := grouper.GroupDuplicates(ctx)
	require.NoError(t, err)

	gidA, gidB := groupIDOf(t, a), groupIDOf(t, b)
	require.NotNil(t, gidA)
	require.NotNil(t, gidB)
	assert.Equal(t, *gidA, *gidB)
}

func TestGrouping_LockBlocksConcurrentScan(t *testing.T) {
	cleanAll(t)
	ctx := context.Background()

	// Hold the scan advisory lock on a pinned connection. Pinning keeps the
	// holder out of the pool, so the grouper's attempt lands on a different
	// session and must fail.
	const scanLockKey int64 = 0x7075626465647570

	conn, err := testDB.Pool().Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()

	var held bool
	require.NoError(t, conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", scanLockKey).Scan(&held))
	require.True(t, held)
	defer func() {
		_, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", scanLockKey)
		require.NoError(t, err)
	}()

	grouper := dedup.NewGrouper(repository.NewPgGroupRepository(testDB), zerolog.Nop(), nil)
	_, err = grouper.GroupDuplicates(ctx)
	assert.ErrorIs(t, err, domain.ErrGroupingInProgress)
}

func TestGrouping_ClearsWithoutTouchingOtherGroups(t *testing.T) {
	cleanAll(t)
	ctx := context.Background()

	grouper := dedup.NewGrouper(repository.NewPgGroupRepository(testDB), zerolog.Nop(), nil)

	mk := func(title, vol string) uuid.UUID {
		return insertPublication(t, &domain.Publication{
			Title:        title,
			JournalTitle: strPtr("Annals of Testing"),
			Volume:       strPtr(vol),
		})
	}
	a1, a2 := mk("First Shared Work", "1"), mk("First Shared Work", "1")
	b1, b2 := mk("Second Shared Work", "2"), mk("Second Shared Work", "2")

	_, err := grouper.GroupDuplicates(ctx)
	require.NoError(t, err)

	gidB := groupIDOf(t, b1)
	require.NotNil(t, gidB)

	// Breaking apart class A must leave class B untouched.
	_, err = testDB.Exec(ctx, `UPDATE publications SET volume = '7' WHERE id = $1`, a2)
	require.NoError(t, err)

	_, err = grouper.GroupDuplicates(ctx)
	require.NoError(t, err)

	assert.Nil(t, groupIDOf(t, a1))
	assert.Nil(t, groupIDOf(t, a2))
	gidB1, gidB2 := groupIDOf(t, b1), groupIDOf(t, b2)
	require.NotNil(t, gidB1)
	require.NotNil(t, gidB2)
	assert.Equal(t, *gidB, *gidB1)
	assert.Equal(t, *gidB1, *gidB2)
}
