package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_TallyCountsRetries(t *testing.T) {
	p := NewPolicy(PolicyConfig{Retry: fastRetry(3)})
	ctx, tally := WithTally(context.Background())

	var calls int
	err := p.Do(ctx, "oracle", func(context.Context) error {
		calls++
		if calls <= 2 {
			return NewTransientError(errors.New("rate limited"), 429)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, tally.Retries())
	assert.Equal(t, 3, tally.Calls())
}

func TestPolicy_PermanentNotRetried(t *testing.T) {
	p := NewPolicy(PolicyConfig{Retry: fastRetry(3)})
	ctx, tally := WithTally(context.Background())

	err := p.Do(ctx, "oracle", func(context.Context) error {
		return NewPermanentError(errors.New("bad key"), "auth_failed")
	})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 0, tally.Retries())
	assert.Equal(t, 1, tally.Calls())
}

func TestPolicy_CallTimeoutIsTransient(t *testing.T) {
	p := NewPolicy(PolicyConfig{Retry: fastRetry(2), CallTimeout: 5 * time.Millisecond})
	ctx, tally := WithTally(context.Background())

	err := p.Do(ctx, "fetch", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, tally.Retries())
}

func TestPolicy_RetryOnOverridesPredicate(t *testing.T) {
	p := NewPolicy(PolicyConfig{Retry: fastRetry(3)}).RetryOn(IsMalformed)

	var calls int
	v, err := Call(context.Background(), p, "parse", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, ErrMalformed
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestPolicy_WithMaxAttempts(t *testing.T) {
	base := NewPolicy(PolicyConfig{Retry: fastRetry(3)})
	p := base.WithMaxAttempts(5)

	assert.Equal(t, 5, p.MaxAttempts())
	assert.Equal(t, 3, base.MaxAttempts())
	assert.Equal(t, 3, base.WithMaxAttempts(0).MaxAttempts())
}

func TestPolicy_SharedLimiterBoundsConcurrentCallers(t *testing.T) {
	const (
		rps     = 50.0
		workers = 8
		perW    = 4
	)
	p := NewPolicy(PolicyConfig{Retry: fastRetry(1), RatePerSecond: rps, Burst: 1})

	var mu sync.Mutex
	var stamps []time.Time
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			worker := p.For(name)
			for i := 0; i < perW; i++ {
				_ = worker.Do(context.Background(), "call", func(context.Context) error {
					mu.Lock()
					stamps = append(stamps, time.Now())
					mu.Unlock()
					return nil
				})
			}
		}(string(rune('a' + w)))
	}
	wg.Wait()

	require.Len(t, stamps, workers*perW)
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	// A token bucket admits at most burst + rate*window events in any window.
	window := 200 * time.Millisecond
	budget := 1 + int(rps*window.Seconds()) + 1 // one extra for timer slack
	for i := range stamps {
		n := 0
		for j := i; j < len(stamps) && stamps[j].Sub(stamps[i]) < window; j++ {
			n++
		}
		assert.LessOrEqual(t, n, budget)
	}
}

func TestPolicy_UnmeteredSkipsLimiter(t *testing.T) {
	p := NewPolicy(PolicyConfig{Retry: fastRetry(1), RatePerSecond: 1, Burst: 1})
	require.NoError(t, p.Wait(context.Background()))

	// The bucket is empty now; a metered call has to wait about a second.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Wait(ctx))

	start := time.Now()
	err := p.Unmetered().Do(context.Background(), "fetch", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestPolicy_WaitWithoutLimit(t *testing.T) {
	p := NewPolicy(PolicyConfig{})
	for range 5 {
		require.NoError(t, p.Wait(context.Background()))
	}
}
