package scrape

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ahermangesh/Leads/internal/resilience"
	"github.com/ahermangesh/Leads/pkg/firecrawl"
)

// FirecrawlFetcher renders pages through Firecrawl. It is the last fetcher
// in the chain: slower and metered, but it gets past most bot walls.
type FirecrawlFetcher struct {
	client  firecrawl.Client
	breaker *resilience.CircuitBreaker
}

// NewFirecrawlFetcher wraps a Firecrawl client.
func NewFirecrawlFetcher(client firecrawl.Client, breaker *resilience.CircuitBreaker) *FirecrawlFetcher {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 3})
	}
	return &FirecrawlFetcher{client: client, breaker: breaker}
}

func (f *FirecrawlFetcher) Name() string { return "firecrawl" }

// Fetch implements Fetcher.
func (f *FirecrawlFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	var page *Page
	err := f.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{URL: targetURL, OnlyMainContent: true})
		if err != nil {
			var apiErr *firecrawl.APIError
			if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
				return resilience.NewTransientError(err, apiErr.StatusCode)
			}
			return err
		}
		content := strings.TrimSpace(resp.Data.Markdown)
		if !resp.Success || content == "" {
			return eris.Errorf("firecrawl: empty content for %s", targetURL)
		}
		status := resp.Data.Metadata.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		page = &Page{
			URL:         targetURL,
			Title:       resp.Data.Metadata.Title,
			Description: resp.Data.Metadata.Description,
			Headings:    markdownHeadings(content, 10),
			Raw:         content,
			Text:        content,
			StatusCode:  status,
			Source:      f.Name(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}
