package scrape

import (
	"regexp"
	"strings"
)

var (
	titleRe    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaDescRe = regexp.MustCompile(`(?is)<meta[^>]+name=["']description["'][^>]+content=["']([^"']*)["']`)
	headingRe  = regexp.MustCompile(`(?is)<h[1-3][^>]*>(.*?)</h[1-3]>`)
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	spaceRe    = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankRe    = regexp.MustCompile(`\n\s*\n+`)
	dropRes    = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
		regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`),
		regexp.MustCompile(`(?is)<nav[^>]*>.*?</nav>`),
	}
)

var entities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&#64;", "@",
	"&nbsp;", " ",
)

func extractTitle(html string) string {
	if m := titleRe.FindStringSubmatch(html); len(m) > 1 {
		return cleanInline(m[1])
	}
	return ""
}

func extractDescription(html string) string {
	if m := metaDescRe.FindStringSubmatch(html); len(m) > 1 {
		return cleanInline(m[1])
	}
	return ""
}

func extractHeadings(html string, limit int) []string {
	var out []string
	for _, m := range headingRe.FindAllStringSubmatch(html, -1) {
		if h := cleanInline(m[1]); h != "" {
			out = append(out, h)
		}
		if len(out) == limit {
			break
		}
	}
	return out
}

// stripHTML converts HTML to plaintext. Footers are kept since they often
// carry the only contact details on small business sites.
func stripHTML(html string) string {
	for _, re := range dropRes {
		html = re.ReplaceAllString(html, " ")
	}
	html = tagRe.ReplaceAllString(html, "\n")
	html = entities.Replace(html)
	html = spaceRe.ReplaceAllString(html, " ")
	html = blankRe.ReplaceAllString(html, "\n")
	return strings.TrimSpace(html)
}

func cleanInline(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = entities.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
