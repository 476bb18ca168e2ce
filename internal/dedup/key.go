// Package dedup implements duplicate detection for publications: a normalized
// grouping key and a full-scan grouping engine that clusters publications
// sharing a key into duplicate groups.
package dedup

import (
	"strings"
	"unicode"

	"github.com/rimdb/publication-dedup-service/internal/domain"
)

// Key is the normalized grouping key for a publication. Two publications are
// duplicate candidates exactly when their keys are equal. The key is a plain
// comparable struct so it can be used directly as a map key.
type Key struct {
	Title       string
	Venue       string
	Volume      string
	Issue       string
	PublishedOn string
}

// Zero reports whether the key carries no usable title. Publications without a
// title never group with anything.
func (k Key) Zero() bool {
	return k.Title == ""
}

// String returns a loggable rendering of the key.
func (k Key) String() string {
	return strings.Join([]string{k.Title, k.Venue, k.Volume, k.Issue, k.PublishedOn}, "|")
}

// KeyFor derives the grouping key from a publication's title, journal or
// publisher, volume, issue, and publication date.
//
// The venue component uses journal_title when present and falls back to
// publisher_name. This makes a publication whose journal_title is "Journal 1"
// group with one whose publisher_name is "Journal 1" and journal_title is
// empty. The cross-field match is a deliberate policy: upstream systems
// disagree about which field a venue name lands in.
func KeyFor(p *domain.Publication) Key {
	k := Key{
		Title: NormalizeText(p.Title),
		Venue: NormalizeText(venueOf(p)),
	}
	if p.Volume != nil {
		k.Volume = NormalizeText(*p.Volume)
	}
	if p.Issue != nil {
		k.Issue = NormalizeText(*p.Issue)
	}
	if p.PublishedOn != nil {
		k.PublishedOn = p.PublishedOn.Format("2006-01-02")
	}
	return k
}

// venueOf returns the free-text journal title, or the publisher name when the
// journal title is absent.
func venueOf(p *domain.Publication) string {
	if p.JournalTitle != nil && strings.TrimSpace(*p.JournalTitle) != "" {
		return *p.JournalTitle
	}
	if p.PublisherName != nil {
		return *p.PublisherName
	}
	return ""
}

// NormalizeText normalizes a text field for duplicate comparison:
//   - Converts to lowercase
//   - Drops every character that is not a letter, digit, or space
//   - Collapses runs of whitespace to a single space
//   - Trims leading and trailing whitespace
func NormalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var sb strings.Builder
	sb.Grow(len(s))
	prevSpace := false

	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
				prevSpace = true
			}
		}
		// Punctuation and symbols are dropped.
	}

	return strings.TrimRight(sb.String(), " ")
}

// TitlesMatch reports whether two raw titles are equal after normalization.
func TitlesMatch(a, b string) bool {
	return NormalizeText(a) != "" && NormalizeText(a) == NormalizeText(b)
}

// TitlesMatchLoosely reports whether two raw titles are equal after
// normalization, or one is a substring of the other. This looser check is only
// used by the DOI merge gate, never by the grouping engine.
func TitlesMatchLoosely(a, b string) bool {
	na, nb := NormalizeText(a), NormalizeText(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}
