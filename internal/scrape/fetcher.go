// Package scrape fetches prospect web pages, locally first and through
// Jina Reader or Firecrawl when the local fetch is blocked or fails.
package scrape

import (
	"context"
	"fmt"
)

// Page is a fetched web page.
type Page struct {
	URL         string
	Title       string
	Description string
	Headings    []string
	// Raw is the response body as received (HTML for local fetches,
	// markdown for Jina). Contact extraction scans it for mailto links.
	Raw string
	// Text is the readable plaintext of the page.
	Text       string
	StatusCode int
	Source     string
}

// Fetcher fetches a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
	Name() string
}

// BlockedError reports that a site served an anti-bot page.
type BlockedError struct {
	URL  string
	Type BlockType
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("scrape: %s blocked (%s)", e.URL, e.Type)
}

// StatusError reports the HTTP status a site answered for a page.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scrape: %s answered status %d", e.URL, e.StatusCode)
}
