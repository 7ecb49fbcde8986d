package scrape

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/resilience"
)

// Chain tries fetchers in priority order, returning the first success.
type Chain struct {
	fetchers []Fetcher
}

// NewChain creates a Chain. Fetchers are tried in order.
func NewChain(fetchers ...Fetcher) *Chain {
	return &Chain{fetchers: fetchers}
}

func (c *Chain) Name() string { return "chain" }

// Fetch implements Fetcher. A permanent status answer from the site itself
// (a 404 page) ends the chain, since no reader can fetch a page that does
// not exist. When every fetcher fails, the error is transient only if the
// last failure was transient.
func (c *Chain) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	var lastErr error
	for _, f := range c.fetchers {
		page, err := f.Fetch(ctx, targetURL)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "scrape: cancelled")
		}
		var se *StatusError
		if resilience.IsPermanent(err) && errors.As(err, &se) {
			return nil, err
		}
		zap.L().Debug("scrape: fetcher failed, trying next",
			zap.String("fetcher", f.Name()),
			zap.String("url", targetURL),
			zap.Error(err),
		)
		lastErr = err
	}
	if lastErr == nil {
		return nil, eris.New("scrape: no fetchers configured")
	}
	if resilience.IsTransient(lastErr) {
		return nil, lastErr
	}
	return nil, eris.Wrap(lastErr, "scrape: all fetchers failed")
}
