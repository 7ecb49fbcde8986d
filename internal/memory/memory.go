// Package memory is the append-only outcome log and the aggregates derived
// from it. A Store is passed explicitly to every consumer.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/ahermangesh/Leads/internal/model"
)

// EventLog persists outcome events. Implementations must preserve append
// order when listing.
type EventLog interface {
	AppendEvent(ctx context.Context, ev model.OutcomeEvent) error
	ListEvents(ctx context.Context) ([]model.OutcomeEvent, error)
}

// Config configures recommendations.
type Config struct {
	// MinSamples is the number of observed leads an industry needs before its
	// own history is trusted over the default.
	MinSamples      int
	DefaultStrategy model.Strategy
	DefaultTone     model.Tone
}

// Store serializes appends under a single mutex, so events are assigned
// strictly increasing sequence numbers in the order they were appended.
type Store struct {
	mu     sync.RWMutex
	events []model.OutcomeEvent
	seq    int64
	log    EventLog
	cfg    Config
	now    func() time.Time
}

// New creates a Store. log may be nil for a purely in-memory store.
func New(cfg Config, log EventLog) *Store {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}
	if !cfg.DefaultStrategy.Valid() {
		cfg.DefaultStrategy = model.StrategyValueProposition
	}
	if !cfg.DefaultTone.Valid() {
		cfg.DefaultTone = model.ToneProfessional
	}
	return &Store{log: log, cfg: cfg, now: time.Now}
}

// Load replaces the in-memory history with the persisted log.
func (s *Store) Load(ctx context.Context) error {
	if s.log == nil {
		return nil
	}
	events, err := s.log.ListEvents(ctx)
	if err != nil {
		return eris.Wrap(err, "memory: load events")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
	s.seq = 0
	for _, ev := range events {
		s.seq = max(s.seq, ev.Seq)
	}
	return nil
}

// Append records an event. ID, Seq and Timestamp are assigned here; the
// industry label is normalized. The event is kept in memory even when
// persistence fails, and the persistence error is returned.
func (s *Store) Append(ctx context.Context, ev model.OutcomeEvent) (model.OutcomeEvent, error) {
	if !ev.Kind.Valid() {
		return model.OutcomeEvent{}, eris.Errorf("memory: unknown outcome kind %q", ev.Kind)
	}
	if ev.LeadID == "" {
		return model.OutcomeEvent{}, eris.New("memory: event has no lead id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	ev.Seq = s.seq
	ev.ID = uuid.NewString()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now().UTC()
	}
	ev.Industry = model.NormalizeIndustry(ev.Industry)
	s.events = append(s.events, ev)

	if s.log != nil {
		if err := s.log.AppendEvent(ctx, ev); err != nil {
			return ev, eris.Wrapf(err, "memory: persist event %d", ev.Seq)
		}
	}
	return ev, nil
}

// Events returns a copy of the log in append order.
func (s *Store) Events() []model.OutcomeEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.OutcomeEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of recorded events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
