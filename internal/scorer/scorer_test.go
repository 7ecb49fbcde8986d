package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahermangesh/Leads/internal/model"
)

var defaultWeights = model.Weights{Contact: 0.30, Research: 0.30, Relevance: 0.25, Social: 0.15}

func ptr[T any](v T) *T { return &v }

func fullResearch() *model.ResearchResult {
	return &model.ResearchResult{
		Summary:      "Bakery",
		Industry:     "food",
		PainPoints:   []string{"a", "b", "c"},
		ValueProps:   []string{"d", "e", "f"},
		Completeness: 1,
		Mode:         model.ResearchFull,
	}
}

func TestNew_RejectsBadWeights(t *testing.T) {
	_, err := New(model.Weights{Contact: 0.5, Research: 0.5, Relevance: 0.5}, 60)
	assert.Error(t, err)

	_, err = New(model.Weights{Contact: 1.2, Research: -0.2}, 60)
	assert.Error(t, err)

	s, err := New(defaultWeights, 60)
	require.NoError(t, err)
	assert.Equal(t, 60, s.Threshold())
}

func TestScore_ThresholdBoundaryInclusive(t *testing.T) {
	s, err := New(model.Weights{Contact: 0.5, Research: 0.5}, 60)
	require.NoError(t, err)

	tests := []struct {
		name      string
		contact   float64
		research  float64
		total     int
		qualified bool
	}{
		{"exactly threshold", 0.6, 0.6, 60, true},
		{"just below", 0.58, 0.6, 59, false},
		{"above", 0.9, 0.8, 85, true},
		{"nothing", 0, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bd := s.Score(
				[]model.Contact{{Address: "a@b.co", Confidence: tt.contact}},
				&model.ResearchResult{Completeness: tt.research},
				model.Source{},
			)
			assert.Equal(t, tt.total, bd.Total)
			assert.Equal(t, tt.qualified, bd.Qualified)
			assert.Equal(t, 60, bd.Threshold)
		})
	}
}

func TestScore_ZeroContactsReflectsOtherSignals(t *testing.T) {
	s, err := New(defaultWeights, 60)
	require.NoError(t, err)

	bd := s.Score(nil, fullResearch(), model.Source{Name: "Bakery"})

	assert.Equal(t, 0.0, bd.Signals.Contact)
	assert.Equal(t, 1.0, bd.Signals.Research)
	assert.Equal(t, 1.0, bd.Signals.Relevance)
	assert.Equal(t, 55, bd.Total)
	assert.False(t, bd.Qualified)
}

func TestScore_Reproducible(t *testing.T) {
	s, err := New(defaultWeights, 60)
	require.NoError(t, err)

	contacts := []model.Contact{{Address: "x@y.co", Confidence: 0.73}, {Address: "z@y.co", Confidence: 0.41}}
	src := model.Source{Phone: ptr("555-0100"), Rating: ptr(4.6), SocialLinks: []string{"https://fb.com/x"}}

	first := s.Score(contacts, fullResearch(), src)
	for range 100 {
		assert.Equal(t, first, s.Score(contacts, fullResearch(), src))
	}
}

func TestSignals(t *testing.T) {
	tests := []struct {
		name     string
		contacts []model.Contact
		research *model.ResearchResult
		src      model.Source
		want     model.Signals
	}{
		{
			name:     "max contact confidence",
			contacts: []model.Contact{{Confidence: 0.4}, {Confidence: 0.9}, {Confidence: 0.7}},
			want:     model.Signals{Contact: 0.9},
		},
		{
			name:     "relevance saturates",
			research: &model.ResearchResult{Completeness: 0.6, PainPoints: []string{"a", "b"}, ValueProps: []string{"c"}},
			want:     model.Signals{Research: 0.6, Relevance: 0.5},
		},
		{
			name: "social indicators",
			src: model.Source{
				Phone:   ptr("555"),
				Address: ptr("1 Main St"),
				Rating:  ptr(3.9),
			},
			want: model.Signals{Social: 0.5},
		},
		{
			name: "social caps at one",
			src: model.Source{
				SocialLinks: []string{"a", "b", "c"},
				Phone:       ptr("555"),
				Rating:      ptr(4.0),
			},
			want: model.Signals{Social: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Signals(tt.contacts, tt.research, tt.src))
		})
	}
}

func TestSignals_RepeatedProfileCountsOnce(t *testing.T) {
	src := model.NormalizeSource(model.RawLead{
		Name:        "Acme",
		SocialLinks: []string{"https://facebook.com/acme", "facebook.com/acme", "https://www.facebook.com/acme", "https://facebook.com/acme/"},
	})
	assert.InDelta(t, 0.25, Signals(nil, nil, src).Social, 1e-9)

	// Profiles found on the website raise the signal once merged.
	src.SocialLinks = model.MergeLinks(src.SocialLinks, "https://instagram.com/acme", "https://facebook.com/acme")
	assert.InDelta(t, 0.5, Signals(nil, nil, src).Social, 1e-9)
}

func TestTotal_DefaultWeightsBoundary(t *testing.T) {
	// contact and research alone at full strength land exactly on 60.
	assert.Equal(t, 60, Total(model.Signals{Contact: 1, Research: 1}, defaultWeights))
}
