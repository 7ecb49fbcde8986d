// Package store persists leads, runs, state transitions and outcome events.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ahermangesh/Leads/internal/model"
)

// ErrNotFound is returned when a lead or run does not exist.
var ErrNotFound = eris.New("store: not found")

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	States   []model.State `json:"states,omitempty"`
	Campaign string        `json:"campaign,omitempty"`
	Limit    int           `json:"limit,omitempty"`
	Offset   int           `json:"offset,omitempty"`
}

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Leads
	SaveLead(ctx context.Context, lead *model.Lead) error
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	CountLeadsByState(ctx context.Context) (map[model.State]int, error)

	// Transitions
	AppendTransition(ctx context.Context, tr model.Transition) error
	ListTransitions(ctx context.Context, leadID string) ([]model.Transition, error)

	// Runs
	CreateRun(ctx context.Context, runID string, startedAt time.Time) error
	FinishRun(ctx context.Context, report *model.RunReport) error
	GetRun(ctx context.Context, runID string) (*model.RunReport, error)

	// Outcome events
	AppendEvent(ctx context.Context, ev model.OutcomeEvent) error
	ListEvents(ctx context.Context) ([]model.OutcomeEvent, error)
	CountEvents(ctx context.Context, kind model.OutcomeKind, since time.Time) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns a Store for the configured driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = "leads.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// SentCounts returns the sends recorded since the start of the current UTC
// day and month, used to restore sender quotas across restarts.
func SentCounts(ctx context.Context, s Store, now time.Time) (int, int, error) {
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	day, err := s.CountEvents(ctx, model.OutcomeSent, dayStart)
	if err != nil {
		return 0, 0, err
	}
	month, err := s.CountEvents(ctx, model.OutcomeSent, monthStart)
	if err != nil {
		return 0, 0, err
	}
	return day, month, nil
}

func scoreColumn(l *model.Lead) *int {
	if l.Score == nil {
		return nil
	}
	v := l.Score.Total
	return &v
}

func stateStrings(states []model.State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
