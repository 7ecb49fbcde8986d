package notion

import (
	"strconv"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/ahermangesh/Leads/internal/model"
)

// Lead database property names.
const (
	PropName     = "Name"
	PropWebsite  = "Website"
	PropPhone    = "Phone"
	PropAddress  = "Address"
	PropRating   = "Rating"
	PropSocial   = "Social"
	PropStatus   = "Status"
	PropScore    = "Score"
	PropEmail    = "Email"
	PropIndustry = "Industry"
	PropStrategy = "Strategy"
	PropReason   = "Reason"
	PropCampaign = "Campaign"
	PropUpdated  = "Last Updated"
)

// StatusNew marks pages the source collector should pick up.
const StatusNew = "New"

// RawLeadFromPage reads a lead record from a database page. Missing or
// mistyped properties are left empty; the page ID becomes the external ID.
func RawLeadFromPage(page notionapi.Page) model.RawLead {
	raw := model.RawLead{ExternalID: string(page.ID)}

	if tp, ok := page.Properties[PropName].(*notionapi.TitleProperty); ok {
		raw.Name = plainText(tp.Title)
	}
	if up, ok := page.Properties[PropWebsite].(*notionapi.URLProperty); ok {
		raw.Website = up.URL
	}
	if pp, ok := page.Properties[PropPhone].(*notionapi.PhoneNumberProperty); ok {
		raw.Phone = pp.PhoneNumber
	}
	if rp, ok := page.Properties[PropAddress].(*notionapi.RichTextProperty); ok {
		raw.Address = plainText(rp.RichText)
	}
	if np, ok := page.Properties[PropRating].(*notionapi.NumberProperty); ok && np.Number != 0 {
		raw.Rating = strconv.FormatFloat(np.Number, 'f', -1, 64)
	}
	if rp, ok := page.Properties[PropSocial].(*notionapi.RichTextProperty); ok {
		raw.SocialLinks = strings.FieldsFunc(plainText(rp.RichText), func(r rune) bool {
			return r == ',' || r == '\n' || r == ' '
		})
	}

	raw.Name = strings.TrimSpace(raw.Name)
	raw.Website = strings.TrimSpace(raw.Website)
	return raw
}

// LeadProperties renders the pipeline-owned fields of a lead as page
// properties. The title is only included when create is set so that
// updates never rename an operator-edited page.
func LeadProperties(lead *model.Lead, create bool, now time.Time) notionapi.Properties {
	updated := notionapi.Date(now)
	props := notionapi.Properties{
		PropStatus: notionapi.StatusProperty{
			Status: notionapi.Status{Name: string(lead.State)},
		},
		PropUpdated: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &updated},
		},
	}

	if create {
		props[PropName] = notionapi.TitleProperty{Title: richText(lead.Source.Name)}
		if lead.Source.Website != nil {
			props[PropWebsite] = notionapi.URLProperty{URL: *lead.Source.Website}
		}
	}
	if lead.Campaign != "" {
		props[PropCampaign] = notionapi.RichTextProperty{RichText: richText(lead.Campaign)}
	}
	if lead.Score != nil {
		props[PropScore] = notionapi.NumberProperty{Number: float64(lead.Score.Total)}
	}
	if c, ok := lead.BestContact(); ok {
		props[PropEmail] = notionapi.EmailProperty{Email: c.Address}
	}
	if ind := lead.Industry(); ind != "" {
		props[PropIndustry] = notionapi.RichTextProperty{RichText: richText(ind)}
	}
	if lead.Draft != nil {
		props[PropStrategy] = notionapi.RichTextProperty{
			RichText: richText(string(lead.Draft.Strategy) + " / " + string(lead.Draft.Tone)),
		}
	}
	if lead.Failure != nil {
		props[PropReason] = notionapi.RichTextProperty{RichText: richText(string(lead.Failure.Reason))}
	}
	return props
}

func plainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		b.WriteString(rt.PlainText)
	}
	return b.String()
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Text: &notionapi.Text{Content: s}}}
}
