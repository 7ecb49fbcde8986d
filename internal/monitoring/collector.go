package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ahermangesh/Leads/internal/model"
)

// Snapshot is a point-in-time view of the lead store.
type Snapshot struct {
	LeadsByState map[model.State]int `json:"leads_by_state"`

	// Outcome counts within the lookback window.
	Sent        int     `json:"sent"`
	Failed      int     `json:"failed"`
	Replied     int     `json:"replied"`
	FailureRate float64 `json:"failure_rate"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Finished returns the number of leads that were sent or failed in the window.
func (s *Snapshot) Finished() int { return s.Sent + s.Failed }

// StoreQuerier is the part of the store the collector reads.
type StoreQuerier interface {
	CountLeadsByState(ctx context.Context) (map[model.State]int, error)
	CountEvents(ctx context.Context, kind model.OutcomeKind, since time.Time) (int, error)
}

// Collector gathers snapshots from the store.
type Collector struct {
	store StoreQuerier
	now   func() time.Time
}

// NewCollector creates a Collector.
func NewCollector(st StoreQuerier) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	counts, err := c.store.CountLeadsByState(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count leads")
	}
	snap.LeadsByState = counts

	for kind, dst := range map[model.OutcomeKind]*int{
		model.OutcomeSent:    &snap.Sent,
		model.OutcomeFailed:  &snap.Failed,
		model.OutcomeReplied: &snap.Replied,
	} {
		n, err := c.store.CountEvents(ctx, kind, cutoff)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: count %s events", kind)
		}
		*dst = n
	}

	if finished := snap.Finished(); finished > 0 {
		snap.FailureRate = float64(snap.Failed) / float64(finished)
	}
	return snap, nil
}
