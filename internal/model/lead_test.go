package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSource_AllFields(t *testing.T) {
	t.Parallel()

	src := NormalizeSource(RawLead{
		Name:        "  Acme Plumbing ",
		Website:     "acme-plumbing.com/",
		Phone:       "(555) 010-2030",
		Address:     "1 Main St, Springfield",
		Rating:      "4.6",
		SocialLinks: []string{"https://facebook.com/acme", "not a url"},
	})

	assert.Equal(t, "Acme Plumbing", src.Name)
	require.NotNil(t, src.Website)
	assert.Equal(t, "https://acme-plumbing.com", *src.Website)
	require.NotNil(t, src.Phone)
	require.NotNil(t, src.Address)
	require.NotNil(t, src.Rating)
	assert.InDelta(t, 4.6, *src.Rating, 1e-9)
	assert.Equal(t, []string{"https://facebook.com/acme"}, src.SocialLinks)
}

func TestNormalizeSource_MalformedFieldsAreAbsent(t *testing.T) {
	t.Parallel()

	src := NormalizeSource(RawLead{
		Name:    "Nowhere LLC",
		Website: "ftp://files",
		Phone:   "12",
		Rating:  "five stars",
	})

	assert.Nil(t, src.Website)
	assert.Nil(t, src.Phone)
	assert.Nil(t, src.Address)
	assert.Nil(t, src.Rating)
	assert.Empty(t, src.SocialLinks)
}

func TestNormalizeSource_DedupesSocialLinks(t *testing.T) {
	t.Parallel()

	src := NormalizeSource(RawLead{
		Name: "Acme",
		SocialLinks: []string{
			"https://facebook.com/acme",
			"facebook.com/acme",
			"https://www.facebook.com/acme/",
			"HTTPS://Facebook.com/Acme",
			"https://linkedin.com/company/acme",
		},
	})
	assert.Equal(t, []string{"https://facebook.com/acme", "https://linkedin.com/company/acme"}, src.SocialLinks)
}

func TestMergeLinks(t *testing.T) {
	t.Parallel()

	links := []string{"https://facebook.com/acme"}
	got := MergeLinks(links, "https://www.facebook.com/acme", "https://x.com/acme", "", "x.com/acme")
	assert.Equal(t, []string{"https://facebook.com/acme", "https://x.com/acme"}, got)
	assert.Nil(t, MergeLinks(nil))
}

func TestNormalizeSource_RatingOutOfRange(t *testing.T) {
	t.Parallel()

	src := NormalizeSource(RawLead{Name: "x", Rating: "7.5"})
	assert.Nil(t, src.Rating)
}

func TestLeadBestContact(t *testing.T) {
	t.Parallel()

	l := Lead{Contacts: []Contact{
		{Address: "info@acme.com", Confidence: 0.4},
		{Address: "jane@acme.com", Confidence: 0.9},
	}}
	c, ok := l.BestContact()
	require.True(t, ok)
	assert.Equal(t, "jane@acme.com", c.Address)

	_, ok = (&Lead{}).BestContact()
	assert.False(t, ok)
}

func TestDraftHasFooter(t *testing.T) {
	t.Parallel()

	var nilDraft *Draft
	assert.False(t, nilDraft.HasFooter())
	assert.False(t, (&Draft{Body: "hi"}).HasFooter())

	d := &Draft{Body: "hi", Footer: "\n\n---\nunsubscribe"}
	assert.True(t, d.HasFooter())
	assert.Equal(t, "hi\n\n---\nunsubscribe", d.Text())
}

func TestStrategyAndToneValid(t *testing.T) {
	t.Parallel()

	assert.True(t, StrategyPainPoint.Valid())
	assert.False(t, Strategy("fear").Valid())
	assert.True(t, ToneFormal.Valid())
	assert.False(t, Tone("angry").Valid())
}

func TestNormalizeIndustry(t *testing.T) {
	assert.Equal(t, "home services", NormalizeIndustry("  Home   SERVICES "))
	assert.Equal(t, "", NormalizeIndustry(" "))
}
