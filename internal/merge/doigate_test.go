package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rimdb/publication-dedup-service/internal/domain"
)

func doiPub(mutate ...func(*domain.Publication)) *domain.Publication {
	p := &domain.Publication{
		Title:           "A Shared Work",
		PublicationType: "Academic Journal Article",
		DOI:             strPtr("10.1000/shared"),
		JournalTitle:    strPtr("Journal of Sharing"),
		Volume:          strPtr("4"),
		Issue:           strPtr("2"),
	}
	for _, m := range mutate {
		m(p)
	}
	return p
}

func TestOkToMergeOnDOI(t *testing.T) {
	tests := []struct {
		name string
		a    *domain.Publication
		b    *domain.Publication
		want bool
	}{
		{
			name: "identical records merge",
			a:    doiPub(),
			b:    doiPub(),
			want: true,
		},
		{
			name: "missing doi blocks",
			a:    doiPub(func(p *domain.Publication) { p.DOI = nil }),
			b:    doiPub(),
			want: false,
		},
		{
			name: "different doi blocks",
			a:    doiPub(),
			b:    doiPub(func(p *domain.Publication) { p.DOI = strPtr("10.1000/other") }),
			want: false,
		},
		{
			name: "doi whitespace tolerated",
			a:    doiPub(),
			b:    doiPub(func(p *domain.Publication) { p.DOI = strPtr("  10.1000/shared ") }),
			want: true,
		},
		{
			name: "subtitle extension of title allowed",
			a:    doiPub(),
			b:    doiPub(func(p *domain.Publication) { p.Title = "A Shared Work: Extended Report" }),
			want: true,
		},
		{
			name: "unrelated title blocks",
			a:    doiPub(),
			b:    doiPub(func(p *domain.Publication) { p.Title = "Completely Different" }),
			want: false,
		},
		{
			name: "different journal blocks",
			a:    doiPub(),
			b:    doiPub(func(p *domain.Publication) { p.JournalTitle = strPtr("Another Journal") }),
			want: false,
		},
		{
			name: "entity journal title compared against free text",
			a:    doiPub(),
			b: doiPub(func(p *domain.Publication) {
				p.JournalTitle = nil
				p.Journal = &domain.Journal{Title: "Journal of Sharing"}
			}),
			want: true,
		},
		{
			name: "volume disagreement blocks",
			a:    doiPub(),
			b:    doiPub(func(p *domain.Publication) { p.Volume = strPtr("5") }),
			want: false,
		},
		{
			name: "missing volume on one side allowed",
			a:    doiPub(),
			b:    doiPub(func(p *domain.Publication) { p.Volume = nil }),
			want: true,
		},
		{
			name: "issue disagreement blocks",
			a:    doiPub(),
			b:    doiPub(func(p *domain.Publication) { p.Issue = strPtr("9") }),
			want: false,
		},
		{
			name: "page range disagreement blocks",
			a:    doiPub(func(p *domain.Publication) { p.PageRange = strPtr("1-10") }),
			b:    doiPub(func(p *domain.Publication) { p.PageRange = strPtr("11-20") }),
			want: false,
		},
		{
			name: "issn annotations equalized",
			a:    doiPub(func(p *domain.Publication) { p.ISSN = strPtr("ISSN: 1234-5678") }),
			b:    doiPub(func(p *domain.Publication) { p.ISSN = strPtr("12345678 (print)") }),
			want: true,
		},
		{
			name: "different issn blocks",
			a:    doiPub(func(p *domain.Publication) { p.ISSN = strPtr("1234-5678") }),
			b:    doiPub(func(p *domain.Publication) { p.ISSN = strPtr("8765-4321") }),
			want: false,
		},
		{
			name: "journal article subtypes compatible",
			a:    doiPub(func(p *domain.Publication) { p.PublicationType = "Journal Article" }),
			b:    doiPub(func(p *domain.Publication) { p.PublicationType = "Trade Journal Article" }),
			want: true,
		},
		{
			name: "generic type compatible with anything",
			a:    doiPub(func(p *domain.Publication) { p.PublicationType = domain.PublicationTypeOther }),
			b:    doiPub(func(p *domain.Publication) { p.PublicationType = "Book" }),
			want: true,
		},
		{
			name: "disjoint specific types block",
			a:    doiPub(func(p *domain.Publication) { p.PublicationType = "Book" }),
			b:    doiPub(func(p *domain.Publication) { p.PublicationType = "Journal Article" }),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OkToMergeOnDOI(tt.a, tt.b))
		})
	}
}
