package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ahermangesh/Leads/internal/resilience"
)

// LocalFetcher fetches HTML via net/http and converts it to plaintext.
type LocalFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// LocalOptions configures a LocalFetcher.
type LocalOptions struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
}

// NewLocalFetcher creates a LocalFetcher.
func NewLocalFetcher(opts LocalOptions) *LocalFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; LeadsBot/1.0)"
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 512 * 1024
	}
	return &LocalFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
	}
}

func (l *LocalFetcher) Name() string { return "local_http" }

// Fetch retrieves a page. Blocked pages and bare 401/403 answers return a
// BlockedError; 429 and 5xx return a TransientError; other 4xx return a
// permanent StatusError.
func (l *LocalFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if bt := DetectBlock(resp.StatusCode, resp.Header, body); bt != BlockNone {
		return nil, &BlockedError{URL: targetURL, Type: bt}
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &BlockedError{URL: targetURL, Type: BlockForbidden}
	case resp.StatusCode >= 400:
		return nil, resilience.ClassifyHTTPStatus(&StatusError{URL: targetURL, StatusCode: resp.StatusCode}, resp.StatusCode)
	}

	html := string(body)
	return &Page{
		URL:         targetURL,
		Title:       extractTitle(html),
		Description: extractDescription(html),
		Headings:    extractHeadings(html, 10),
		Raw:         html,
		Text:        stripHTML(html),
		StatusCode:  resp.StatusCode,
		Source:      l.Name(),
	}, nil
}
