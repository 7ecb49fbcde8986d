package notion

import (
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahermangesh/Leads/internal/model"
)

func TestRawLeadFromPage(t *testing.T) {
	page := notionapi.Page{
		ID: "page-1",
		Properties: notionapi.Properties{
			PropName: &notionapi.TitleProperty{
				Title: []notionapi.RichText{{PlainText: " Acme "}, {PlainText: "Plumbing"}},
			},
			PropWebsite: &notionapi.URLProperty{URL: " https://acme.com "},
			PropPhone:   &notionapi.PhoneNumberProperty{PhoneNumber: "555-010-2030"},
			PropAddress: &notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{PlainText: "1 Main St"}},
			},
			PropRating: &notionapi.NumberProperty{Number: 4.5},
			PropSocial: &notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{PlainText: "https://fb.com/acme, https://x.com/acme"}},
			},
		},
	}

	raw := RawLeadFromPage(page)
	assert.Equal(t, "Acme Plumbing", raw.Name)
	assert.Equal(t, "https://acme.com", raw.Website)
	assert.Equal(t, "555-010-2030", raw.Phone)
	assert.Equal(t, "1 Main St", raw.Address)
	assert.Equal(t, "4.5", raw.Rating)
	assert.Equal(t, []string{"https://fb.com/acme", "https://x.com/acme"}, raw.SocialLinks)
	assert.Equal(t, "page-1", raw.ExternalID)
}

func TestRawLeadFromPage_WrongTypesIgnored(t *testing.T) {
	page := notionapi.Page{
		ID: "page-2",
		Properties: notionapi.Properties{
			PropName:    &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: "wrong type"}}},
			PropWebsite: &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: "wrong type"}}},
		},
	}

	raw := RawLeadFromPage(page)
	assert.Empty(t, raw.Name)
	assert.Empty(t, raw.Website)
	assert.Empty(t, raw.Rating)
}

func TestLeadProperties_Create(t *testing.T) {
	site := "https://acme.com"
	lead := &model.Lead{
		Campaign: "spring",
		Source:   model.Source{Name: "Acme", Website: &site},
		State:    model.StateAwaitingApproval,
		Contacts: []model.Contact{{Address: "jane@acme.com", Confidence: 0.9}},
		Research: &model.ResearchResult{Industry: "plumbing"},
		Score:    &model.ScoreBreakdown{Total: 74},
		Draft:    &model.Draft{Strategy: model.StrategyPainPoint, Tone: model.ToneCasual},
	}

	props := LeadProperties(lead, true, time.Now())

	status, ok := props[PropStatus].(notionapi.StatusProperty)
	require.True(t, ok)
	assert.Equal(t, "AwaitingApproval", status.Status.Name)
	assert.Contains(t, props, PropName)
	assert.Equal(t, notionapi.URLProperty{URL: site}, props[PropWebsite])
	assert.Equal(t, notionapi.NumberProperty{Number: 74}, props[PropScore])
	assert.Equal(t, notionapi.EmailProperty{Email: "jane@acme.com"}, props[PropEmail])
	strategy, ok := props[PropStrategy].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "pain_point / casual", strategy.RichText[0].Text.Content)
}

func TestLeadProperties_UpdateKeepsTitle(t *testing.T) {
	lead := &model.Lead{
		Source:  model.Source{Name: "Acme"},
		State:   model.StateFailed,
		Failure: &model.Failure{Reason: model.ReasonFetchFailed},
	}

	props := LeadProperties(lead, false, time.Now())
	assert.NotContains(t, props, PropName)
	assert.NotContains(t, props, PropScore)
	reason, ok := props[PropReason].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "fetch_failed", reason.RichText[0].Text.Content)
}
