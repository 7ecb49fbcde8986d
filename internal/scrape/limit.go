package scrape

import (
	"context"

	"github.com/rotisserie/eris"
)

// Waiter grants permission for one outbound request. *resilience.Policy and
// *rate.Limiter both satisfy it.
type Waiter interface {
	Wait(ctx context.Context) error
}

type limitedFetcher struct {
	next Fetcher
	wait Waiter
}

// Limited makes f wait on w before every fetch, so each hop of a Chain
// spends its own token from the shared budget.
func Limited(f Fetcher, w Waiter) Fetcher {
	return &limitedFetcher{next: f, wait: w}
}

func (l *limitedFetcher) Name() string { return l.next.Name() }

func (l *limitedFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	if err := l.wait.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "%s: rate limit wait", l.next.Name())
	}
	return l.next.Fetch(ctx, targetURL)
}
