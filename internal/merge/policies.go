// Package merge implements publication merging: the deterministic field
// reconciliation policies, the DOI-based auto-merge eligibility gate, and the
// transaction coordinator that folds source publications into a target.
package merge

import (
	"regexp"
	"strings"

	"github.com/rimdb/publication-dedup-service/internal/domain"
)

// fieldPolicy resolves one field or field cluster on the target, given a
// source publication being merged into it. Policies are pure: they mutate only
// the target struct and perform no I/O.
type fieldPolicy struct {
	name  string
	apply func(target, source *domain.Publication)
}

// fieldPolicies is applied in order for every (target, source) pair. The
// journal cluster owns all three venue fields, so no later policy may touch
// journal_title or publisher_name.
var fieldPolicies = []fieldPolicy{
	{name: "title", apply: mergeTitle},
	{name: "journal", apply: mergeJournal},
	{name: "published_on", apply: mergePublishedOn},
	{name: "status", apply: mergeStatus},
	{name: "volume", apply: func(t, s *domain.Publication) { t.Volume = preferPresent(t.Volume, s.Volume) }},
	{name: "issue", apply: func(t, s *domain.Publication) { t.Issue = preferPresent(t.Issue, s.Issue) }},
	{name: "edition", apply: func(t, s *domain.Publication) { t.Edition = preferPresent(t.Edition, s.Edition) }},
	{name: "page_range", apply: func(t, s *domain.Publication) { t.PageRange = preferLonger(t.PageRange, s.PageRange) }},
	{name: "url", apply: func(t, s *domain.Publication) { t.URL = preferPresent(t.URL, s.URL) }},
	{name: "issn", apply: mergeISSN},
	{name: "isbn", apply: func(t, s *domain.Publication) { t.ISBN = preferPresent(t.ISBN, s.ISBN) }},
	{name: "doi", apply: func(t, s *domain.Publication) { t.DOI = preferPresent(t.DOI, s.DOI) }},
	{name: "publication_type", apply: mergePublicationType},
	{name: "abstract", apply: func(t, s *domain.Publication) { t.Abstract = preferLonger(t.Abstract, s.Abstract) }},
	{name: "authors_et_al", apply: func(t, s *domain.Publication) { t.AuthorsEtAl = t.AuthorsEtAl || s.AuthorsEtAl }},
	{name: "total_scopus_citations", apply: mergeCitations},
	{name: "open_access_urls", apply: mergeOpenAccessURLs},
}

// ApplyFieldPolicies reconciles every mergeable field of target against
// source, leaving the winning values on target. It never nulls out a present
// value in favor of another present value without picking one.
func ApplyFieldPolicies(target, source *domain.Publication) {
	for _, p := range fieldPolicies {
		p.apply(target, source)
	}
}

// mergeTitle resolves the title/secondary_title cluster. A title imported from
// the high-trust source wins; otherwise the longer combined title wins. The
// secondary title is folded into the main title and always nulled afterwards.
func mergeTitle(t, s *domain.Publication) {
	ct := combinedTitle(t)
	cs := combinedTitle(s)

	switch {
	case t.ImportedFrom(domain.SourcePure):
		t.Title = ct
	case s.ImportedFrom(domain.SourcePure):
		t.Title = cs
	case len(cs) > len(ct):
		t.Title = cs
	default:
		t.Title = ct
	}
	t.SecondaryTitle = nil
}

// combinedTitle appends a publication's secondary title to its title unless
// the secondary title is already contained in it.
func combinedTitle(p *domain.Publication) string {
	if p.SecondaryTitle == nil {
		return p.Title
	}
	sub := strings.TrimSpace(*p.SecondaryTitle)
	if sub == "" || strings.Contains(p.Title, sub) {
		return p.Title
	}
	return p.Title + ": " + sub
}

// mergeJournal resolves the journal cluster: a linked journal entity beats
// free text, and once an entity is chosen the free-text duplicates are nulled.
func mergeJournal(t, s *domain.Publication) {
	switch {
	case t.JournalID != nil:
		// Keep the target's entity.
	case s.JournalID != nil:
		t.JournalID = s.JournalID
		t.Journal = s.Journal
	default:
		t.JournalTitle = preferPresent(t.JournalTitle, s.JournalTitle)
		t.PublisherName = preferPresent(t.PublisherName, s.PublisherName)
		return
	}
	t.JournalTitle = nil
	t.PublisherName = nil
}

// mergePublishedOn keeps the earlier of two publication dates. Earlier dates
// usually reflect the original or first-recorded publication.
func mergePublishedOn(t, s *domain.Publication) {
	if s.PublishedOn == nil {
		return
	}
	if t.PublishedOn == nil || s.PublishedOn.Before(*t.PublishedOn) {
		d := *s.PublishedOn
		t.PublishedOn = &d
	}
}

// mergeStatus keeps the more advanced status. Published outranks In Press.
func mergeStatus(t, s *domain.Publication) {
	if s.Status.Rank() > t.Status.Rank() {
		t.Status = s.Status
	}
}

// mergePublicationType keeps the more specific type: the generic fallback
// loses to anything else, and otherwise the longer type name wins as a
// specificity heuristic.
func mergePublicationType(t, s *domain.Publication) {
	switch {
	case s.PublicationType == "" || s.PublicationType == domain.PublicationTypeOther:
		// Keep the target's type.
	case t.PublicationType == "" || t.PublicationType == domain.PublicationTypeOther:
		t.PublicationType = s.PublicationType
	case len(s.PublicationType) > len(t.PublicationType):
		t.PublicationType = s.PublicationType
	}
}

// mergeCitations prefers a present citation count. Counts from different
// sources are expected to be close, so either is acceptable when both exist.
func mergeCitations(t, s *domain.Publication) {
	if t.TotalScopusCitations == nil && s.TotalScopusCitations != nil {
		n := *s.TotalScopusCitations
		t.TotalScopusCitations = &n
	}
}

// mergeOpenAccessURLs fills each per-source open-access URL that the target is
// missing.
func mergeOpenAccessURLs(t, s *domain.Publication) {
	t.OpenAccessURL = preferPresent(t.OpenAccessURL, s.OpenAccessURL)
	t.ScholarsphereOpenAccessURL = preferPresent(t.ScholarsphereOpenAccessURL, s.ScholarsphereOpenAccessURL)
	t.UserSubmittedOpenAccessURL = preferPresent(t.UserSubmittedOpenAccessURL, s.UserSubmittedOpenAccessURL)
}

// issnDigits matches the first eight-digit run of an ISSN, with or without the
// conventional hyphen.
var issnDigits = regexp.MustCompile(`([0-9]{4})-?([0-9]{4})`)

// mergeISSN picks the less noisy raw ISSN and normalizes it. When both sides
// carry a value, the shorter raw string is preferred before normalizing; this
// is a heuristic for inputs without descriptive annotations.
func mergeISSN(t, s *domain.Publication) {
	raw := preferPresent(t.ISSN, s.ISSN)
	if blank(t.ISSN) || blank(s.ISSN) {
		// Only one side present (or neither).
	} else if len(strings.TrimSpace(*s.ISSN)) < len(strings.TrimSpace(*t.ISSN)) {
		raw = s.ISSN
	} else {
		raw = t.ISSN
	}
	if raw == nil {
		t.ISSN = nil
		return
	}
	n := NormalizeISSN(*raw)
	t.ISSN = &n
}

// NormalizeISSN extracts the first eight-digit sequence from a raw ISSN field
// and formats it as ####-####, stripping descriptive text such as "ISSN:" or
// "(print)" annotations. Fields holding several ISSNs yield the first. Inputs
// without an eight-digit run are returned trimmed but otherwise untouched.
func NormalizeISSN(raw string) string {
	m := issnDigits.FindStringSubmatch(raw)
	if m == nil {
		return strings.TrimSpace(raw)
	}
	return m[1] + "-" + m[2]
}

// preferPresent keeps the target's value when present, otherwise adopts the
// source's.
func preferPresent(t, s *string) *string {
	if !blank(t) {
		return t
	}
	if !blank(s) {
		v := *s
		return &v
	}
	return t
}

// preferLonger keeps whichever value is longer, treating absent as shortest.
func preferLonger(t, s *string) *string {
	if blank(s) {
		return t
	}
	if blank(t) || len(*s) > len(*t) {
		v := *s
		return &v
	}
	return t
}

func blank(v *string) bool {
	return v == nil || strings.TrimSpace(*v) == ""
}
