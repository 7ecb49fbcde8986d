// Package contact discovers and ranks email addresses on a prospect's website.
package contact

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/resilience"
	"github.com/ahermangesh/Leads/internal/scrape"
)

// Result holds everything a resolve pass produced. Pages are kept so the
// research stage can reuse the fetched content.
type Result struct {
	Contacts []model.Contact
	// SocialLinks are the profile links the fetched pages point to, one per
	// platform.
	SocialLinks []string
	Pages       []*scrape.Page
	// Failed lists candidate page URLs that could not be fetched.
	Failed []string
}

// Resolver fetches a fixed list of candidate pages per website and extracts
// contacts from them.
type Resolver struct {
	fetcher scrape.Fetcher
	policy  *resilience.Policy
	paths   []string
	now     func() time.Time
}

// NewResolver creates a Resolver. paths are joined onto the website root;
// "/" fetches the homepage.
func NewResolver(fetcher scrape.Fetcher, policy *resilience.Policy, paths []string) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		policy:  policy.For("fetch"),
		paths:   paths,
		now:     time.Now,
	}
}

// Resolve fetches every candidate page of website and returns the ranked,
// deduplicated contacts found across them. A failed page never fails the
// resolve. If every page fails and the last failure was transient, the
// error is returned so the lead can be retried later; if every page fails
// permanently a PartialDataError is returned alongside an empty result.
func (r *Resolver) Resolve(ctx context.Context, website string) (*Result, error) {
	root, host, err := siteRoot(website)
	if err != nil {
		return &Result{}, resilience.NewPartialDataError(err, resilience.PartialNoWebsite)
	}

	res := &Result{}
	var found [][]model.Contact
	var lastErr error
	seen := make(map[string]bool)

	for _, p := range r.paths {
		pageURL := joinPath(root, p)
		if seen[pageURL] {
			continue
		}
		seen[pageURL] = true

		page, err := resilience.Call(ctx, r.policy, "fetch page", func(ctx context.Context) (*scrape.Page, error) {
			return r.fetcher.Fetch(ctx, pageURL)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "contact: resolve cancelled")
			}
			zap.L().Debug("contact: page fetch failed",
				zap.String("url", pageURL),
				zap.Error(err),
			)
			res.Failed = append(res.Failed, pageURL)
			lastErr = err
			continue
		}

		res.Pages = append(res.Pages, page)
		found = append(found, Extract(page.Raw, pageURL, host, r.now()))
	}

	res.Contacts = Merge(found...)
	raws := make([]string, len(res.Pages))
	for i, page := range res.Pages {
		raws[i] = page.Raw
	}
	res.SocialLinks = ExtractSocial(raws...)

	if len(res.Pages) == 0 && lastErr != nil {
		if resilience.IsTransient(lastErr) {
			return res, eris.Wrapf(lastErr, "contact: no page of %s could be fetched", root)
		}
		return res, resilience.NewPartialDataError(
			eris.Wrapf(lastErr, "contact: %s unreachable", root), resilience.PartialNoWebsite)
	}
	if len(res.Contacts) == 0 {
		return res, resilience.NewPartialDataError(
			eris.Errorf("contact: no addresses found on %s", root), resilience.PartialNoContact)
	}
	return res, nil
}

// siteRoot returns the scheme://host root of a website and its bare host.
func siteRoot(website string) (string, string, error) {
	if strings.TrimSpace(website) == "" {
		return "", "", eris.New("contact: no website")
	}
	u, err := url.Parse(website)
	if err != nil || u.Host == "" {
		return "", "", eris.Errorf("contact: invalid website %q", website)
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	return u.Scheme + "://" + u.Host, host, nil
}

func joinPath(root, p string) string {
	if p == "" || p == "/" {
		return root + "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return root + p
}
