// Package notion wraps the Notion API for the lead database: querying new
// leads and upserting pipeline state back onto their pages.
package notion

import (
	"context"
	"net/http"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the slice of the Notion API the lead database needs.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// Notion documents an average of three requests per second per integration.
const defaultRPS = 3

// ClientOption configures the Notion client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	rps     float64
	retries int
	http    *http.Client
}

// WithRateLimit overrides the request rate. rps <= 0 disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(o *clientOptions) { o.rps = rps }
}

// WithRetries sets how many times the SDK retries a 429 response.
func WithRetries(n int) ClientOption {
	return func(o *clientOptions) { o.retries = n }
}

// WithHTTPClient sets the http.Client the SDK sends requests with.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(o *clientOptions) { o.http = hc }
}

type leadDBClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
}

// NewClient creates a throttled Notion client for the integration token.
func NewClient(token string, opts ...ClientOption) Client {
	o := clientOptions{rps: defaultRPS, retries: 2}
	for _, opt := range opts {
		opt(&o)
	}

	sdkOpts := []notionapi.ClientOption{notionapi.WithRetry(o.retries)}
	if o.http != nil {
		sdkOpts = append(sdkOpts, notionapi.WithHTTPClient(o.http))
	}
	c := &leadDBClient{api: notionapi.NewClient(notionapi.Token(token), sdkOpts...)}
	if o.rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(o.rps), max(int(o.rps), 1))
	}
	return c
}

// throttled waits for a rate-limit token, then runs fn.
func throttled[T any](ctx context.Context, l *rate.Limiter, fn func() (T, error)) (T, error) {
	if l != nil {
		if err := l.Wait(ctx); err != nil {
			var zero T
			return zero, eris.Wrap(err, "notion: rate limit")
		}
	}
	return fn()
}

func (c *leadDBClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := throttled(ctx, c.limiter, func() (*notionapi.DatabaseQueryResponse, error) {
		return c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	})
	return resp, eris.Wrapf(err, "notion: query database %s", dbID)
}

func (c *leadDBClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	page, err := throttled(ctx, c.limiter, func() (*notionapi.Page, error) {
		return c.api.Page.Create(ctx, req)
	})
	return page, eris.Wrap(err, "notion: create page")
}

func (c *leadDBClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	page, err := throttled(ctx, c.limiter, func() (*notionapi.Page, error) {
		return c.api.Page.Update(ctx, notionapi.PageID(pageID), req)
	})
	return page, eris.Wrapf(err, "notion: update page %s", pageID)
}
