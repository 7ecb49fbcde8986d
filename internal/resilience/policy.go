package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Policy is the single retry, rate-limit and timeout policy applied at every
// external call site. The limiter is shared by every copy of the policy, so
// the configured budget holds regardless of how many workers call through it.
type Policy struct {
	service     string
	retry       RetryConfig
	limiter     *rate.Limiter
	callTimeout time.Duration
}

// PolicyConfig configures a Policy.
type PolicyConfig struct {
	Retry RetryConfig
	// RatePerSecond is the shared external-call budget. <= 0 disables limiting.
	RatePerSecond float64
	// Burst is the token bucket size. Default: 1.
	Burst int
	// CallTimeout bounds every single attempt. Default: 30s.
	CallTimeout time.Duration
}

// NewPolicy builds a policy with its own shared limiter.
func NewPolicy(cfg PolicyConfig) *Policy {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	p := &Policy{
		service:     "external",
		retry:       applyDefaults(cfg.Retry),
		callTimeout: cfg.CallTimeout,
	}
	if cfg.RatePerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	return p
}

// For returns a copy of the policy labelled with a service name for logging.
// The copy shares the same limiter.
func (p *Policy) For(service string) *Policy {
	cp := *p
	cp.service = service
	return &cp
}

// RetryOn returns a copy of the policy that retries when pred accepts the
// error instead of the default transient check. The copy shares the limiter.
func (p *Policy) RetryOn(pred func(error) bool) *Policy {
	cp := *p
	cp.retry.ShouldRetry = pred
	return &cp
}

// WithMaxAttempts returns a copy of the policy with a different attempt
// ceiling. n <= 0 keeps the current ceiling. The copy shares the limiter.
func (p *Policy) WithMaxAttempts(n int) *Policy {
	cp := *p
	if n > 0 {
		cp.retry.MaxAttempts = n
	}
	return &cp
}

// Unmetered returns a copy of the policy that retries and times out like p
// but takes no limiter tokens. It wraps calls whose inner requests wait on
// the shared limiter themselves.
func (p *Policy) Unmetered() *Policy {
	cp := *p
	cp.limiter = nil
	return &cp
}

// Wait blocks until the shared limiter grants one external call. It returns
// immediately when limiting is disabled.
func (p *Policy) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// MaxAttempts returns the attempt ceiling.
func (p *Policy) MaxAttempts() int {
	return p.retry.MaxAttempts
}

// Do runs fn under the policy. Each attempt first waits for a limiter token
// and then runs under its own timeout.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call is Policy.Do for functions that return a value.
func Call[T any](ctx context.Context, p *Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg := p.retry
	logRetry := RetryLogger(p.service, op)
	tally := tallyFrom(ctx)
	cfg.OnRetry = func(attempt int, err error) {
		if tally != nil {
			tally.retries.Add(1)
		}
		logRetry(attempt, err)
	}

	return DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		var zero T
		if err := p.Wait(ctx); err != nil {
			return zero, eris.Wrapf(err, "resilience: %s rate limit wait", op)
		}
		if tally != nil {
			tally.calls.Add(1)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
		return fn(attemptCtx)
	})
}

// Tally counts external calls and retries made under a context.
type Tally struct {
	calls   atomic.Int64
	retries atomic.Int64
}

// Retries returns the number of retries recorded so far.
func (t *Tally) Retries() int {
	return int(t.retries.Load())
}

// Calls returns the number of attempts recorded so far.
func (t *Tally) Calls() int {
	return int(t.calls.Load())
}

type tallyKey struct{}

// WithTally attaches a fresh Tally to ctx. Every Policy call made with the
// returned context records its attempts and retries there.
func WithTally(ctx context.Context) (context.Context, *Tally) {
	t := &Tally{}
	return context.WithValue(ctx, tallyKey{}, t), t
}

func tallyFrom(ctx context.Context) *Tally {
	t, _ := ctx.Value(tallyKey{}).(*Tally)
	return t
}
