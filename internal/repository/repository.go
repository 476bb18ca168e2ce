// Package repository provides data access interfaces and implementations
// for the publication dedup service.
//
// # Overview
//
// This package defines repository interfaces and their PostgreSQL
// implementations following the repository pattern to abstract data
// persistence from the grouping, merging, and registry logic.
//
// # Repository Interfaces
//
// The package provides the following repository interfaces:
//
//   - PublicationRepository: Read access to publications and their imports
//   - GroupRepository: Duplicate group persistence driven by the grouping engine
//   - NonDuplicateRepository: Non-duplicate group persistence for the registry
//
// The merge transaction store (merge.Store) has no pool-level interface; it is
// constructed per transaction with NewPgMergeStore.
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use by multiple
// goroutines. The underlying pgxpool handles connection pooling and
// synchronization.
//
// # Error Handling
//
// All methods return domain-specific errors from the domain package.
// Wrap database errors with context using fmt.Errorf with %w verb.
// Common errors include:
//
//   - domain.ErrNotFound: Resource does not exist
//   - domain.ErrInvalidInput: Invalid parameters provided
//
// # Transactions
//
// Use the DBTX interface to support both pool and transaction contexts.
// Pass a transaction from database.DB.WithTransaction for atomic operations.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/rimdb/publication-dedup-service/internal/database"
	"github.com/rimdb/publication-dedup-service/internal/domain"
)

// DBTX is the database interface supporting both pool and transaction contexts.
// This allows repositories to work with both direct pool connections and transactions.
type DBTX = database.DBTX

// PublicationRepository provides read access to publications.
type PublicationRepository interface {
	// GetByID loads a publication with its journal entity and imports.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Publication, error)

	// ListByGroup loads the members of a duplicate group, imports included.
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.Publication, error)
}

// GroupRepository persists duplicate groups. Its write methods are driven by
// the grouping engine (it satisfies dedup.Store); the read methods back the
// admin API.
type GroupRepository interface {
	ListForGrouping(ctx context.Context) ([]*domain.Publication, error)
	AssignGroup(ctx context.Context, groupID uuid.UUID, create bool, publicationIDs []uuid.UUID) error
	ClearGroups(ctx context.Context, publicationIDs []uuid.UUID) error
	PruneGroups(ctx context.Context) (int64, error)
	TryLockGrouping(ctx context.Context) (bool, error)
	UnlockGrouping(ctx context.Context) error

	// ListGroups returns duplicate groups with their member publications,
	// newest first.
	ListGroups(ctx context.Context, limit, offset int) ([]*domain.DuplicateGroup, error)

	// GetGroup returns one duplicate group with its member publications.
	GetGroup(ctx context.Context, id uuid.UUID) (*domain.DuplicateGroup, error)
}

// NonDuplicateRepository persists non-duplicate groups (it satisfies
// nondup.Store).
type NonDuplicateRepository interface {
	CreateGroup(ctx context.Context, publicationIDs []uuid.UUID) (*domain.NonDuplicateGroup, error)
	GetGroup(ctx context.Context, id uuid.UUID) (*domain.NonDuplicateGroup, error)
	DeleteGroup(ctx context.Context, id uuid.UUID) error
	GroupsContaining(ctx context.Context, publicationID uuid.UUID) ([]*domain.NonDuplicateGroup, error)
}
