package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ahermangesh/Leads/internal/resilience"
	"github.com/ahermangesh/Leads/pkg/jina"
)

// JinaFetcher fetches pages through Jina Reader behind a circuit breaker, so
// a failing upstream is skipped instead of slowing every lead.
type JinaFetcher struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
}

// NewJinaFetcher wraps a Jina client.
func NewJinaFetcher(client jina.Client, breaker *resilience.CircuitBreaker) *JinaFetcher {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 3})
	}
	return &JinaFetcher{client: client, breaker: breaker}
}

func (j *JinaFetcher) Name() string { return "jina" }

// Fetch implements Fetcher.
func (j *JinaFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	var page *Page
	err := j.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := j.client.Read(ctx, targetURL)
		if err != nil {
			var se *jina.StatusError
			if errors.As(err, &se) && resilience.IsTransientHTTPStatus(se.StatusCode) {
				return resilience.NewTransientError(err, se.StatusCode)
			}
			return err
		}
		content := strings.TrimSpace(resp.Data.Content)
		if content == "" {
			return eris.Errorf("jina: empty content for %s", targetURL)
		}
		if len(content) < 1000 && containsAny(strings.ToLower(content), cloudflareMarkers) {
			return &BlockedError{URL: targetURL, Type: BlockCloudflare}
		}
		page = &Page{
			URL:         targetURL,
			Title:       resp.Data.Title,
			Description: resp.Data.Description,
			Headings:    markdownHeadings(content, 10),
			Raw:         content + mailtoLinks(resp.Data.Links()),
			Text:        content,
			StatusCode:  200,
			Source:      j.Name(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// mailtoLinks renders the mailto entries of a links summary as markdown so
// contact extraction sees them the way it sees mailto hrefs in HTML.
func mailtoLinks(links []jina.Link) string {
	var b strings.Builder
	for _, l := range links {
		if strings.HasPrefix(strings.ToLower(l.URL), "mailto:") {
			fmt.Fprintf(&b, "\n[%s](%s)", l.Text, l.URL)
		}
	}
	return b.String()
}

func markdownHeadings(md string, limit int) []string {
	var out []string
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		if h := strings.TrimSpace(strings.TrimLeft(line, "#")); h != "" {
			out = append(out, h)
		}
		if len(out) == limit {
			break
		}
	}
	return out
}
