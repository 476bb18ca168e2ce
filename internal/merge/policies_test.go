package merge

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rimdb/publication-dedup-service/internal/domain"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func importedFrom(src domain.Source) []domain.PublicationImport {
	return []domain.PublicationImport{{
		ID:               uuid.New(),
		Source:           src,
		SourceIdentifier: "ext-1",
	}}
}

func TestMergeTitle(t *testing.T) {
	tests := []struct {
		name          string
		target        domain.Publication
		source        domain.Publication
		wantTitle     string
		wantSecondary *string
	}{
		{
			name:      "longer combined title wins",
			target:    domain.Publication{Title: "Short"},
			source:    domain.Publication{Title: "Short", SecondaryTitle: strPtr("Extra Detail")},
			wantTitle: "Short: Extra Detail",
		},
		{
			name:      "target title kept on tie",
			target:    domain.Publication{Title: "Alpha Beta"},
			source:    domain.Publication{Title: "Gamma Delt"},
			wantTitle: "Alpha Beta",
		},
		{
			name: "trusted target title wins even when shorter",
			target: domain.Publication{
				Title:   "Short",
				Imports: importedFrom(domain.SourcePure),
			},
			source:    domain.Publication{Title: "Short: With A Much Longer Subtitle"},
			wantTitle: "Short",
		},
		{
			name:   "trusted source title wins",
			target: domain.Publication{Title: "Short: With A Much Longer Subtitle"},
			source: domain.Publication{
				Title:   "Short",
				Imports: importedFrom(domain.SourcePure),
			},
			wantTitle: "Short",
		},
		{
			name:      "secondary title already contained is not repeated",
			target:    domain.Publication{Title: "A Study: Of Everything", SecondaryTitle: strPtr("Of Everything")},
			source:    domain.Publication{Title: "A Study"},
			wantTitle: "A Study: Of Everything",
		},
		{
			name:      "secondary title always nulled",
			target:    domain.Publication{Title: "Main", SecondaryTitle: strPtr("Sub")},
			source:    domain.Publication{Title: "M"},
			wantTitle: "Main: Sub",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, source := tt.target, tt.source
			mergeTitle(&target, &source)
			assert.Equal(t, tt.wantTitle, target.Title)
			assert.Nil(t, target.SecondaryTitle)
		})
	}
}

func TestMergeJournal(t *testing.T) {
	jidT := uuid.New()
	jidS := uuid.New()

	t.Run("target entity kept over source entity", func(t *testing.T) {
		target := domain.Publication{JournalID: &jidT, JournalTitle: strPtr("Free Text")}
		source := domain.Publication{JournalID: &jidS}
		mergeJournal(&target, &source)
		require.NotNil(t, target.JournalID)
		assert.Equal(t, jidT, *target.JournalID)
		assert.Nil(t, target.JournalTitle)
		assert.Nil(t, target.PublisherName)
	})

	t.Run("source entity beats target free text", func(t *testing.T) {
		j := &domain.Journal{ID: jidS, Title: "Entity Journal"}
		target := domain.Publication{JournalTitle: strPtr("Free Text"), PublisherName: strPtr("Pub")}
		source := domain.Publication{JournalID: &jidS, Journal: j}
		mergeJournal(&target, &source)
		require.NotNil(t, target.JournalID)
		assert.Equal(t, jidS, *target.JournalID)
		assert.Same(t, j, target.Journal)
		assert.Nil(t, target.JournalTitle)
		assert.Nil(t, target.PublisherName)
	})

	t.Run("free text filled from source when no entity anywhere", func(t *testing.T) {
		target := domain.Publication{}
		source := domain.Publication{JournalTitle: strPtr("J"), PublisherName: strPtr("P")}
		mergeJournal(&target, &source)
		assert.Nil(t, target.JournalID)
		require.NotNil(t, target.JournalTitle)
		assert.Equal(t, "J", *target.JournalTitle)
		require.NotNil(t, target.PublisherName)
		assert.Equal(t, "P", *target.PublisherName)
	})
}

func TestMergePublishedOn(t *testing.T) {
	earlier := datePtr(2019, time.March, 1)
	later := datePtr(2020, time.March, 1)

	t.Run("earlier source date wins", func(t *testing.T) {
		target := domain.Publication{PublishedOn: later}
		source := domain.Publication{PublishedOn: earlier}
		mergePublishedOn(&target, &source)
		assert.True(t, target.PublishedOn.Equal(*earlier))
	})

	t.Run("earlier target date kept", func(t *testing.T) {
		target := domain.Publication{PublishedOn: earlier}
		source := domain.Publication{PublishedOn: later}
		mergePublishedOn(&target, &source)
		assert.True(t, target.PublishedOn.Equal(*earlier))
	})

	t.Run("nil source leaves target", func(t *testing.T) {
		target := domain.Publication{PublishedOn: later}
		mergePublishedOn(&target, &domain.Publication{})
		assert.True(t, target.PublishedOn.Equal(*later))
	})

	t.Run("nil target adopts source", func(t *testing.T) {
		target := domain.Publication{}
		source := domain.Publication{PublishedOn: earlier}
		mergePublishedOn(&target, &source)
		require.NotNil(t, target.PublishedOn)
		assert.True(t, target.PublishedOn.Equal(*earlier))
	})
}

func TestMergeStatus(t *testing.T) {
	t.Run("published beats in press", func(t *testing.T) {
		target := domain.Publication{Status: domain.StatusInPress}
		source := domain.Publication{Status: domain.StatusPublished}
		mergeStatus(&target, &source)
		assert.Equal(t, domain.StatusPublished, target.Status)
	})

	t.Run("published never downgraded", func(t *testing.T) {
		target := domain.Publication{Status: domain.StatusPublished}
		source := domain.Publication{Status: domain.StatusInPress}
		mergeStatus(&target, &source)
		assert.Equal(t, domain.StatusPublished, target.Status)
	})
}

func TestMergePublicationType(t *testing.T) {
	tests := []struct {
		name   string
		target string
		source string
		want   string
	}{
		{"generic source loses", "Academic Journal Article", "Other", "Academic Journal Article"},
		{"generic target loses", "Other", "Journal Article", "Journal Article"},
		{"longer type wins", "Journal Article", "Academic Journal Article", "Academic Journal Article"},
		{"shorter source loses", "Academic Journal Article", "Journal Article", "Academic Journal Article"},
		{"empty source loses", "Book", "", "Book"},
		{"empty target adopts", "", "Book", "Book"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := domain.Publication{PublicationType: tt.target}
			source := domain.Publication{PublicationType: tt.source}
			mergePublicationType(&target, &source)
			assert.Equal(t, tt.want, target.PublicationType)
		})
	}
}

func TestMergeISSN(t *testing.T) {
	tests := []struct {
		name   string
		target *string
		source *string
		want   *string
	}{
		{"only target", strPtr("1234-5678"), nil, strPtr("1234-5678")},
		{"only source", nil, strPtr("12345678"), strPtr("1234-5678")},
		{"shorter raw wins", strPtr("ISSN: 1234-5678 (print)"), strPtr("8765-4321"), strPtr("8765-4321")},
		{"target kept on tie", strPtr("1111-2222"), strPtr("3333-4444"), strPtr("1111-2222")},
		{"neither", nil, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := domain.Publication{ISSN: tt.target}
			source := domain.Publication{ISSN: tt.source}
			mergeISSN(&target, &source)
			if tt.want == nil {
				assert.Nil(t, target.ISSN)
				return
			}
			require.NotNil(t, target.ISSN)
			assert.Equal(t, *tt.want, *target.ISSN)
		})
	}
}

func TestNormalizeISSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1234-5678", "1234-5678"},
		{"12345678", "1234-5678"},
		{"ISSN: 1234-5678", "1234-5678"},
		{"1234-5678 (print), 8765-4321 (online)", "1234-5678"},
		{"  no digits here  ", "no digits here"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeISSN(tt.in))
		})
	}
}

func TestApplyFieldPolicies(t *testing.T) {
	target := domain.Publication{
		Title:       "A Work",
		Status:      domain.StatusInPress,
		PageRange:   strPtr("1-5"),
		AuthorsEtAl: false,
	}
	source := domain.Publication{
		Title:                "A Work: Full Subtitle Edition",
		Status:               domain.StatusPublished,
		Volume:               strPtr("7"),
		PageRange:            strPtr("1-50"),
		DOI:                  strPtr("10.1000/xyz"),
		Abstract:             strPtr("An abstract."),
		AuthorsEtAl:          true,
		TotalScopusCitations: intPtr(12),
		OpenAccessURL:        strPtr("https://oa.example/1"),
		PublishedOn:          datePtr(2018, time.June, 2),
	}

	ApplyFieldPolicies(&target, &source)

	assert.Equal(t, "A Work: Full Subtitle Edition", target.Title)
	assert.Equal(t, domain.StatusPublished, target.Status)
	assert.Equal(t, "7", *target.Volume)
	assert.Equal(t, "1-50", *target.PageRange)
	assert.Equal(t, "10.1000/xyz", *target.DOI)
	assert.Equal(t, "An abstract.", *target.Abstract)
	assert.True(t, target.AuthorsEtAl)
	assert.Equal(t, 12, *target.TotalScopusCitations)
	assert.Equal(t, "https://oa.example/1", *target.OpenAccessURL)
	assert.True(t, target.PublishedOn.Equal(time.Date(2018, time.June, 2, 0, 0, 0, 0, time.UTC)))
}
