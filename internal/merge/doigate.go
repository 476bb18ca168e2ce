package merge

import (
	"strings"

	"github.com/rimdb/publication-dedup-service/internal/dedup"
	"github.com/rimdb/publication-dedup-service/internal/domain"
)

// journalArticleTypes are the publication types that describe a journal
// article. They are mutually compatible for the DOI merge gate.
var journalArticleTypes = map[string]bool{
	"Journal Article":              true,
	"Academic Journal Article":     true,
	"In-house Journal Article":     true,
	"Professional Journal Article": true,
	"Trade Journal Article":        true,
}

// OkToMergeOnDOI is the pre-merge eligibility check used when two publications
// share a DOI. A DOI match alone is not enough to auto-merge; the records must
// also agree on everything they both know:
//
//   - titles equal after normalization, or one a substring of the other;
//   - journal titles match, treating an entity-linked journal's title as
//     equivalent to the free-text field;
//   - volume, issue, edition, page_range and issn agree wherever both sides
//     carry a value;
//   - publication types are compatible: journal-article subtypes are mutually
//     compatible, and the generic fallback type is compatible with anything.
//
// Any disagreement on a field where both sides are non-blank blocks the merge.
func OkToMergeOnDOI(a, b *domain.Publication) bool {
	if blank(a.DOI) || blank(b.DOI) {
		return false
	}
	if strings.TrimSpace(*a.DOI) != strings.TrimSpace(*b.DOI) {
		return false
	}
	if !dedup.TitlesMatchLoosely(a.Title, b.Title) {
		return false
	}
	if dedup.NormalizeText(a.PreferredJournalTitle()) != dedup.NormalizeText(b.PreferredJournalTitle()) {
		return false
	}
	if !agreeWhenBothPresent(a.Volume, b.Volume) {
		return false
	}
	if !agreeWhenBothPresent(a.Issue, b.Issue) {
		return false
	}
	if !agreeWhenBothPresent(a.Edition, b.Edition) {
		return false
	}
	if !agreeWhenBothPresent(a.PageRange, b.PageRange) {
		return false
	}
	if !issnsAgree(a.ISSN, b.ISSN) {
		return false
	}
	return typesCompatible(a.PublicationType, b.PublicationType)
}

// agreeWhenBothPresent reports whether two optional fields agree. A field that
// is blank on either side never blocks.
func agreeWhenBothPresent(a, b *string) bool {
	if blank(a) || blank(b) {
		return true
	}
	return dedup.NormalizeText(*a) == dedup.NormalizeText(*b)
}

// issnsAgree compares ISSNs after normalization so that "ISSN: 1234-5678" and
// "12345678 (print)" agree.
func issnsAgree(a, b *string) bool {
	if blank(a) || blank(b) {
		return true
	}
	return NormalizeISSN(*a) == NormalizeISSN(*b)
}

// typesCompatible reports whether two publication types may describe the same
// work.
func typesCompatible(a, b string) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" || a == domain.PublicationTypeOther || b == domain.PublicationTypeOther {
		return true
	}
	return journalArticleTypes[a] && journalArticleTypes[b]
}
