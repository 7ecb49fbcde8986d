package contact

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/ahermangesh/Leads/internal/model"
)

var (
	emailRe  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	mailtoRe = regexp.MustCompile(`(?i)mailto:([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})`)
)

// avoidPatterns reject placeholder and system mailboxes.
var avoidPatterns = []string{
	"example.com", "test@", "noreply@", "no-reply@", "donotreply@",
	"admin@", "postmaster@", "webmaster@", "email@example", "sentry.io", "wixpress.com",
}

// assetSuffixes catch image and asset names that look like addresses
// (logo@2x.png).
var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

var genericLocalParts = map[string]bool{
	"info": true, "support": true, "sales": true, "contact": true, "hello": true, "office": true,
}

var intentKeywords = []string{"contact", "email", "reach", "get in touch", "write to"}

var contactPageMarkers = []string{"contact", "about", "team", "leadership", "get-in-touch", "reach-us"}

const (
	baseConfidence   = 0.5
	mailtoBonus      = 0.3
	contactPageBonus = 0.2
	proximityBonus   = 0.1
	genericPenalty   = 0.1
	domainMatchBonus = 0.05
	proximityWindow  = 120
)

// Normalize returns the case-folded, trimmed form of an address. Two
// addresses refer to the same mailbox for dedup purposes iff their
// normalized forms are equal.
func Normalize(addr string) string {
	return cases.Fold().String(strings.Trim(strings.TrimSpace(addr), ".,;:"))
}

// valid reports whether a normalized address is worth keeping.
func valid(addr string) bool {
	for _, p := range avoidPatterns {
		if strings.Contains(addr, p) {
			return false
		}
	}
	for _, s := range assetSuffixes {
		if strings.HasSuffix(addr, s) {
			return false
		}
	}
	return strings.Count(addr, "@") == 1
}

// isContactPage reports whether a page path is a contact/about style page.
func isContactPage(pageURL string) bool {
	path := pageURL
	if u, err := url.Parse(pageURL); err == nil {
		path = u.Path
	}
	path = strings.ToLower(path)
	for _, m := range contactPageMarkers {
		if strings.Contains(path, m) {
			return true
		}
	}
	return false
}

// Extract finds addresses in a page's raw content and scores each
// occurrence. The result may contain duplicates; see Merge.
func Extract(raw, pageURL, siteHost string, now time.Time) []model.Contact {
	mailto := make(map[string]bool)
	for _, m := range mailtoRe.FindAllStringSubmatch(raw, -1) {
		mailto[Normalize(m[1])] = true
	}

	contactPage := isContactPage(pageURL)
	lower := strings.ToLower(raw)

	var out []model.Contact
	for _, loc := range emailRe.FindAllStringIndex(raw, -1) {
		addr := Normalize(raw[loc[0]:loc[1]])
		if !valid(addr) {
			continue
		}
		out = append(out, model.Contact{
			Address:      addr,
			Confidence:   confidence(addr, mailto[addr], contactPage, nearIntent(lower, loc[0], loc[1]), siteHost),
			SourcePage:   pageURL,
			DiscoveredAt: now,
		})
	}
	return out
}

func confidence(addr string, fromMailto, contactPage, nearKeyword bool, siteHost string) float64 {
	c := baseConfidence
	if fromMailto {
		c += mailtoBonus
	}
	if contactPage {
		c += contactPageBonus
	}
	if nearKeyword {
		c += proximityBonus
	}
	local, domain, _ := strings.Cut(addr, "@")
	if genericLocalParts[local] {
		c -= genericPenalty
	}
	if siteHost != "" && (domain == siteHost || strings.HasSuffix(siteHost, "."+domain)) {
		c += domainMatchBonus
	}
	return clamp(c)
}

func nearIntent(lower string, start, end int) bool {
	from := max(0, start-proximityWindow)
	to := min(len(lower), end+proximityWindow)
	window := lower[from:start] + " " + lower[end:to]
	for _, kw := range intentKeywords {
		if strings.Contains(window, kw) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	// Rounded to 4 places so sums of bonuses compare exactly.
	v = float64(int64(v*10000+0.5)) / 10000
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Merge deduplicates contacts by normalized address, keeping the
// highest-confidence entry, and returns them ranked by confidence
// (descending) with ties broken by address.
func Merge(contacts ...[]model.Contact) []model.Contact {
	best := make(map[string]model.Contact)
	for _, group := range contacts {
		for _, c := range group {
			key := Normalize(c.Address)
			c.Address = key
			if cur, ok := best[key]; !ok || c.Confidence > cur.Confidence {
				best[key] = c
			}
		}
	}

	out := make([]model.Contact, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Address < out[j].Address
	})
	return out
}
