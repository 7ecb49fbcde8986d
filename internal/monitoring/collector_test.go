package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahermangesh/Leads/internal/config"
	"github.com/ahermangesh/Leads/internal/model"
)

type fakeStore struct {
	counts   map[model.State]int
	events   map[model.OutcomeKind]int
	since    time.Time
	countErr error
}

func (f *fakeStore) CountLeadsByState(context.Context) (map[model.State]int, error) {
	if f.countErr != nil {
		return nil, f.countErr
	}
	return f.counts, nil
}

func (f *fakeStore) CountEvents(_ context.Context, kind model.OutcomeKind, since time.Time) (int, error) {
	f.since = since
	return f.events[kind], nil
}

func TestCollector_Collect(t *testing.T) {
	st := &fakeStore{
		counts: map[model.State]int{model.StateSent: 6, model.StateFailed: 2},
		events: map[model.OutcomeKind]int{model.OutcomeSent: 6, model.OutcomeFailed: 2, model.OutcomeReplied: 1},
	}
	c := NewCollector(st)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 6, snap.Sent)
	assert.Equal(t, 2, snap.Failed)
	assert.Equal(t, 1, snap.Replied)
	assert.Equal(t, 8, snap.Finished())
	assert.InDelta(t, 0.25, snap.FailureRate, 1e-9)
	assert.Equal(t, now.Add(-24*time.Hour), st.since)
	assert.Equal(t, 6, snap.LeadsByState[model.StateSent])
}

func TestCollector_Error(t *testing.T) {
	c := NewCollector(&fakeStore{countErr: errors.New("db closed")})
	_, err := c.Collect(context.Background(), 24)
	assert.Error(t, err)
}

func TestChecker_Check(t *testing.T) {
	tests := []struct {
		name   string
		sent   int
		failed int
		want   bool
	}{
		{"below threshold", 8, 2, false},
		{"above threshold", 2, 8, true},
		{"too few samples", 0, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{
				counts: map[model.State]int{model.StateAwaitingApproval: 4},
				events: map[model.OutcomeKind]int{model.OutcomeSent: tt.sent, model.OutcomeFailed: tt.failed},
			}
			m := NewMetrics()
			c := NewChecker(NewCollector(st), m, config.MonitoringConfig{LookbackHours: 24, FailureRateThreshold: 0.5})

			assert.Equal(t, tt.want, c.Check(context.Background()))
			assert.InDelta(t, 4, testutil.ToFloat64(m.StoredLeads.WithLabelValues("AwaitingApproval")), 1e-9)
			assert.InDelta(t, float64(tt.sent), testutil.ToFloat64(m.SentWindow), 1e-9)
		})
	}
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	st := &fakeStore{counts: map[model.State]int{}, events: map[model.OutcomeKind]int{}}
	c := NewChecker(NewCollector(st), nil, config.MonitoringConfig{CheckIntervalSecs: 1})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop")
	}
}
