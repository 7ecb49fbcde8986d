package research

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/oracle"
	"github.com/ahermangesh/Leads/internal/resilience"
	"github.com/ahermangesh/Leads/internal/scrape"
)

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) Generate(ctx context.Context, prompt string, cfg oracle.Config) (string, error) {
	args := m.Called(ctx, prompt, cfg)
	return args.String(0), args.Error(1)
}

const fullJSON = "```json\n" + `{
  "business_summary": "Family dental practice in Austin.",
  "industry": "  Dental   Care ",
  "services_products": ["cleanings", "implants"],
  "target_audience": "Local families",
  "pain_points": ["Phone-only booking", " "],
  "unique_value_proposition": ["Same-day appointments"],
  "outreach_angles": ["Online booking"],
  "business_size": "Small",
  "red_flags": []
}` + "\n```"

func testEngine(o oracle.Oracle) *Engine {
	p := resilience.NewPolicy(resilience.PolicyConfig{
		Retry: resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	return NewEngine(o, p, Config{MaxContentChars: 2000, MaxAttempts: 3})
}

func dentalInput() Input {
	return Input{
		Name:    "Bright Smiles",
		Website: "https://brightsmiles.example",
		Pages: []*scrape.Page{{
			URL:         "https://brightsmiles.example/",
			Title:       "Bright Smiles Dental",
			Description: "Gentle dentist for the whole family",
			Headings:    []string{"Free estimate on implants"},
			Text:        "Our dental team offers cleanings. Call for appointment.",
		}},
	}
}

func TestResearch_Full(t *testing.T) {
	o := &mockOracle{}
	o.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Bright Smiles") && strings.Contains(p, "Title: Bright Smiles Dental")
	}), mock.MatchedBy(func(c oracle.Config) bool { return c.JSON })).Return(fullJSON, nil).Once()

	r, err := testEngine(o).Research(context.Background(), dentalInput())

	require.NoError(t, err)
	assert.Equal(t, model.ResearchFull, r.Mode)
	assert.Equal(t, "dental care", r.Industry)
	assert.Equal(t, []string{"Phone-only booking"}, r.PainPoints)
	assert.Equal(t, []string{"Same-day appointments"}, r.ValueProps)
	assert.Equal(t, "small", r.BusinessSize)
	assert.Equal(t, 1.0, r.Completeness)
	assert.Equal(t, fullJSON, r.RawOutput)
	o.AssertExpectations(t)
}

func TestResearch_MalformedThenValid(t *testing.T) {
	o := &mockOracle{}
	o.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("I cannot help with that", nil).Twice()
	o.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(fullJSON, nil).Once()

	ctx, tally := resilience.WithTally(context.Background())
	r, err := testEngine(o).Research(ctx, dentalInput())

	require.NoError(t, err)
	assert.Equal(t, model.ResearchFull, r.Mode)
	assert.Equal(t, 2, tally.Retries())
	o.AssertNumberOfCalls(t, "Generate", 3)
}

func TestResearch_MalformedExhaustedFallsBack(t *testing.T) {
	o := &mockOracle{}
	o.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(`{"foo": 1}`, nil)

	r, err := testEngine(o).Research(context.Background(), dentalInput())

	require.Error(t, err)
	var pd *resilience.PartialDataError
	require.ErrorAs(t, err, &pd)
	assert.Equal(t, resilience.PartialDegradedResearch, pd.Kind)
	require.NotNil(t, r)
	assert.True(t, r.Degraded())
	assert.Equal(t, "dental", r.Industry)
	o.AssertNumberOfCalls(t, "Generate", 3)
}

func TestResearch_TransientExhaustedFallsBack(t *testing.T) {
	o := &mockOracle{}
	o.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return("", resilience.NewTransientError(eris.New("overloaded"), 529))

	r, err := testEngine(o).Research(context.Background(), dentalInput())

	assert.True(t, resilience.IsPartial(err))
	require.NotNil(t, r)
	assert.True(t, r.Degraded())
}

func TestResearch_PermanentFails(t *testing.T) {
	o := &mockOracle{}
	o.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return("", resilience.NewPermanentError(eris.New("invalid x-api-key"), model.ReasonAuthFailed))

	r, err := testEngine(o).Research(context.Background(), dentalInput())

	assert.Nil(t, r)
	require.Error(t, err)
	code, ok := resilience.PermanentCode(err)
	require.True(t, ok)
	assert.Equal(t, model.ReasonAuthFailed, code)
	o.AssertNumberOfCalls(t, "Generate", 1)
}

func TestResearch_NoContentSkipsOracle(t *testing.T) {
	o := &mockOracle{}

	r, err := testEngine(o).Research(context.Background(), Input{Name: "Ghost LLC"})

	assert.True(t, resilience.IsPartial(err))
	require.NotNil(t, r)
	assert.Equal(t, "Ghost LLC", r.Summary)
	assert.InDelta(t, 0.2, r.Completeness, 1e-9)
	o.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestHeuristic(t *testing.T) {
	r := Heuristic(dentalInput())

	assert.Equal(t, model.ResearchDegraded, r.Mode)
	assert.Equal(t, "Bright Smiles Dental. Gentle dentist for the whole family", r.Summary)
	assert.Equal(t, "dental", r.Industry)
	assert.Equal(t, []string{"Free estimates"}, r.ValueProps)
	assert.Equal(t, []string{"Bookings handled by phone only"}, r.PainPoints)
	// summary, industry, pains, props present; no target audience
	assert.InDelta(t, 0.8, r.Completeness, 1e-9)
	assert.Equal(t, r, Heuristic(dentalInput()))
}

func TestAggregate_Bounded(t *testing.T) {
	pages := []*scrape.Page{
		{URL: "https://a.example/", Text: strings.Repeat("a", 300)},
		{URL: "https://a.example/about", Text: strings.Repeat("b", 300)},
	}

	out := Aggregate(pages, 100)
	assert.Len(t, out, 100)
	assert.True(t, strings.HasPrefix(out, "## https://a.example/\n"))
}

func TestParse(t *testing.T) {
	_, err := Parse("not json")
	assert.True(t, resilience.IsMalformed(err))

	r, err := Parse(`Here you go: {"business_summary": "Plumbers", "industry": "Home Services"} thanks`)
	require.NoError(t, err)
	assert.Equal(t, "home services", r.Industry)
	assert.InDelta(t, 0.4, r.Completeness, 1e-9)
}
