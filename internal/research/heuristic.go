package research

import (
	"sort"
	"strings"

	"github.com/ahermangesh/Leads/internal/model"
)

// industryKeywords maps an industry label to page keywords that suggest it.
var industryKeywords = map[string][]string{
	"restaurant":    {"restaurant", "menu", "cuisine", "dining", "reservation"},
	"dental":        {"dentist", "dental", "orthodont"},
	"healthcare":    {"clinic", "patient", "physician", "medical"},
	"legal":         {"attorney", "law firm", "lawyer", "legal services"},
	"real estate":   {"real estate", "realtor", "listings", "property management"},
	"fitness":       {"gym", "fitness", "personal trainer", "yoga"},
	"beauty":        {"salon", "spa", "barber", "nail"},
	"home services": {"plumbing", "hvac", "roofing", "electrician", "landscaping"},
	"automotive":    {"auto repair", "dealership", "mechanic", "car wash"},
	"construction":  {"contractor", "construction", "remodel"},
	"accounting":    {"accounting", "bookkeeping", "cpa", "tax preparation"},
	"software":      {"software", "saas", "platform", "app development"},
	"retail":        {"shop now", "store hours", "boutique", "retail"},
	"marketing":     {"marketing agency", "seo", "branding", "advertising"},
	"education":     {"tutoring", "school", "academy", "courses"},
}

// valueCues are phrases that read as a value proposition when present.
var valueCues = map[string]string{
	"family-owned":  "Family-owned business",
	"family owned":  "Family-owned business",
	"24/7":          "Available around the clock",
	"free estimate": "Free estimates",
	"free consult":  "Free consultations",
	"licensed":      "Licensed and insured",
	"award-winning": "Award-winning service",
	"satisfaction":  "Satisfaction guarantee",
	"same-day":      "Same-day service",
	"locally owned": "Locally owned",
}

// painCues are phrases that hint at an operational pain point.
var painCues = map[string]string{
	"call to book":         "Bookings handled by phone only",
	"call for appointment": "Bookings handled by phone only",
	"we're hiring":         "Growing team with hiring needs",
	"now hiring":           "Growing team with hiring needs",
	"coming soon":          "Incomplete web presence",
	"under construction":   "Incomplete web presence",
}

// Heuristic builds a degraded ResearchResult from locally extractable page
// signals. It never calls the oracle and is deterministic in its input.
func Heuristic(in Input) *model.ResearchResult {
	var title, desc string
	var text strings.Builder
	for _, p := range in.Pages {
		if p == nil {
			continue
		}
		if title == "" {
			title = p.Title
		}
		if desc == "" {
			desc = p.Description
		}
		text.WriteString(strings.ToLower(p.Title + " " + p.Description + " " + strings.Join(p.Headings, " ") + " " + p.Text))
		text.WriteString(" ")
	}
	body := text.String()

	r := &model.ResearchResult{
		Summary:    heuristicSummary(in.Name, title, desc),
		Industry:   detectIndustry(body),
		PainPoints: cueHits(body, painCues),
		ValueProps: cueHits(body, valueCues),
		Mode:       model.ResearchDegraded,
	}
	r.Completeness = Completeness(r)
	return r
}

func heuristicSummary(name, title, desc string) string {
	parts := make([]string, 0, 2)
	if t := strings.TrimSpace(title); t != "" {
		parts = append(parts, t)
	}
	if d := strings.TrimSpace(desc); d != "" {
		parts = append(parts, d)
	}
	if len(parts) == 0 {
		return strings.TrimSpace(name)
	}
	return strings.Join(parts, ". ")
}

// detectIndustry returns the label with the most keyword hits, ties broken
// alphabetically. Empty when nothing matches.
func detectIndustry(body string) string {
	best, bestHits := "", 0
	labels := make([]string, 0, len(industryKeywords))
	for label := range industryKeywords {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		hits := 0
		for _, kw := range industryKeywords[label] {
			hits += strings.Count(body, kw)
		}
		if hits > bestHits {
			best, bestHits = label, hits
		}
	}
	return best
}

// cueHits returns the distinct descriptions whose cue appears in body,
// sorted for stable output.
func cueHits(body string, cues map[string]string) []string {
	seen := make(map[string]bool)
	var out []string
	for cue, desc := range cues {
		if strings.Contains(body, cue) && !seen[desc] {
			seen[desc] = true
			out = append(out, desc)
		}
	}
	sort.Strings(out)
	return out
}
