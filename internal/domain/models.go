// Package domain provides domain models and business logic for the
// publication deduplication service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PublicationStatus represents the publication lifecycle state.
// These values must match the database enum publication_status.
type PublicationStatus string

const (
	StatusPublished PublicationStatus = "Published"
	StatusInPress   PublicationStatus = "In Press"
)

// Rank orders statuses by how advanced they are. Published outranks In Press.
func (s PublicationStatus) Rank() int {
	switch s {
	case StatusPublished:
		return 2
	case StatusInPress:
		return 1
	default:
		return 0
	}
}

// Source identifies the external system a publication record was imported from.
// These values must match the database enum import_source.
type Source string

const (
	SourcePure            Source = "Pure"
	SourceActivityInsight Source = "Activity Insight"
	SourceWebOfScience    Source = "Web of Science"
)

// Trusted reports whether the source is the high-trust system whose field
// values win during merge reconciliation.
func (s Source) Trusted() bool {
	return s == SourcePure
}

// Valid reports whether the source is one of the known import sources.
func (s Source) Valid() bool {
	switch s {
	case SourcePure, SourceActivityInsight, SourceWebOfScience:
		return true
	default:
		return false
	}
}

// PublicationTypeOther is the generic fallback publication type. Merge policies
// treat it as less specific than any other type.
const PublicationTypeOther = "Other"

// Journal is a normalized journal entity. Publications reference it by ID when
// their journal has been matched against the journal registry; otherwise they
// carry free-text journal_title/publisher_name fields.
type Journal struct {
	ID            uuid.UUID
	Title         string
	PublisherName *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Publication is the canonical unit of a research output.
//
// A publication belongs to at most one DuplicateGroup at a time. It is created
// by import, mutated by merges and field edits, and destroyed when merged away.
type Publication struct {
	ID             uuid.UUID
	Title          string
	SecondaryTitle *string

	PublicationType string
	Status          PublicationStatus

	// Journal reference: either a normalized Journal entity or free text.
	JournalID     *uuid.UUID
	Journal       *Journal
	JournalTitle  *string
	PublisherName *string

	Volume    *string
	Issue     *string
	Edition   *string
	PageRange *string
	URL       *string
	ISSN      *string
	ISBN      *string
	DOI       *string
	Abstract  *string

	AuthorsEtAl          bool
	PublishedOn          *time.Time
	TotalScopusCitations *int

	// Open-access URLs by provenance.
	OpenAccessURL              *string
	ScholarsphereOpenAccessURL *string
	UserSubmittedOpenAccessURL *string

	Visible          bool
	DuplicateGroupID *uuid.UUID

	// Imports is the loaded set of PublicationImport rows for this publication.
	// Merge policies consult it to decide source trust.
	Imports []PublicationImport

	CreatedAt       time.Time
	UpdatedAt       time.Time
	UpdatedByUserAt *time.Time
}

// ImportedFrom reports whether any of the publication's imports came from the
// given source.
func (p *Publication) ImportedFrom(s Source) bool {
	for _, imp := range p.Imports {
		if imp.Source == s {
			return true
		}
	}
	return false
}

// PreferredJournalTitle returns the linked journal entity's title when one is
// present, falling back to the free-text journal_title field.
func (p *Publication) PreferredJournalTitle() string {
	if p.Journal != nil {
		return p.Journal.Title
	}
	if p.JournalTitle != nil {
		return *p.JournalTitle
	}
	return ""
}

// PublicationImport records that a publication was sourced from an external
// system. Duplicate imports across sources are expected and preserved; the
// (source, source_identifier) pair is unique.
type PublicationImport struct {
	ID               uuid.UUID
	PublicationID    uuid.UUID
	Source           Source
	SourceIdentifier string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Authorship links a user to a publication with per-authorship state.
// Scoped uniquely by (user_id, publication_id).
type Authorship struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	PublicationID uuid.UUID

	AuthorNumber            int
	Confirmed               bool
	Role                    *string
	ORCIDResourceIdentifier *string

	OpenAccessNotificationSentAt *time.Time
	UpdatedByOwnerAt             *time.Time

	VisibleInProfile  bool
	PositionInProfile *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Waiver is an open-access policy waiver attached to a single authorship.
type Waiver struct {
	ID           uuid.UUID
	AuthorshipID uuid.UUID
	Reason       *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ScholarsphereDeposit records a deposit of the publication's file into the
// institutional repository on behalf of one authorship.
type ScholarsphereDeposit struct {
	ID           uuid.UUID
	AuthorshipID uuid.UUID
	Status       string
	DepositedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DuplicateGroup is a system-computed cluster of publications believed to be
// the same work. Membership is recomputed, not incrementally patched, on each
// grouping run; publications point at their group via duplicate_group_id.
type DuplicateGroup struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time

	// Publications is the loaded membership, populated by list queries.
	Publications []*Publication
}

// NonDuplicateGroup is a human-confirmed set of publications that look similar
// but are not the same work. Co-members of a group must never be merged.
type NonDuplicateGroup struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time

	PublicationIDs []uuid.UUID
}

// NonDuplicateGroupMembership is the join row linking a publication to a
// non-duplicate group.
type NonDuplicateGroupMembership struct {
	ID                  uuid.UUID
	NonDuplicateGroupID uuid.UUID
	PublicationID       uuid.UUID
	CreatedAt           time.Time
}
