package contact

import (
	"net/url"
	"regexp"
	"strings"
)

var socialRe = regexp.MustCompile(`(?i)https?://(?:[a-z]{1,3}\.)?(?:facebook|instagram|linkedin|twitter|x|youtube)\.com/[^\s"'<>()\[\]]+`)

// socialPlatforms maps a profile host to its platform. Twitter and X are one
// platform.
var socialPlatforms = map[string]string{
	"facebook.com":  "facebook",
	"instagram.com": "instagram",
	"linkedin.com":  "linkedin",
	"twitter.com":   "x",
	"x.com":         "x",
	"youtube.com":   "youtube",
}

// nonProfilePaths are first path segments of share widgets, posts and
// embeds rather than profiles.
var nonProfilePaths = map[string]bool{
	"sharer": true, "sharer.php": true, "share": true, "sharearticle": true,
	"intent": true, "plugins": true, "dialog": true, "login": true,
	"hashtag": true, "tr": true, "embed": true, "watch": true, "p": true,
	"search": true, "home": true, "privacy": true, "legal": true,
}

// ExtractSocial returns the social profile links found across raw page
// bodies, one per platform in order of first appearance. Links are returned
// as https URLs without query, fragment or trailing slash.
func ExtractSocial(raws ...string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range raws {
		for _, m := range socialRe.FindAllString(raw, -1) {
			platform, link, ok := socialProfile(m)
			if !ok || seen[platform] {
				continue
			}
			seen[platform] = true
			out = append(out, link)
		}
	}
	return out
}

func socialProfile(raw string) (string, string, bool) {
	u, err := url.Parse(strings.TrimRight(raw, ".,;"))
	if err != nil {
		return "", "", false
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "m.", "mobile."} {
		host = strings.TrimPrefix(host, prefix)
	}
	platform, ok := socialPlatforms[host]
	if !ok {
		return "", "", false
	}

	path := strings.Trim(u.Path, "/")
	first, _, _ := strings.Cut(path, "/")
	if first == "" || nonProfilePaths[strings.ToLower(first)] {
		return "", "", false
	}
	if platform == "linkedin" && !strings.Contains(path, "/") {
		// linkedin.com/feed and similar; profiles live under /company/ or /in/.
		return "", "", false
	}
	return platform, "https://" + host + "/" + path, true
}
