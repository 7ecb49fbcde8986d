package crm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/orchestrator"
)

// Syncer is an orchestrator observer that pushes leads to a Sink from a
// background goroutine. Only approval-relevant and terminal states are
// synced. Events arriving while the queue is full are dropped.
type Syncer struct {
	sink    Sink
	timeout time.Duration
	queue   chan model.Lead
	dropped atomic.Int64

	// mu guards closed; senders hold it shared so Close never races a send.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewSyncer creates a Syncer with the given queue size. timeout bounds each
// upsert; zero means 10s.
func NewSyncer(sink Sink, queue int, timeout time.Duration) *Syncer {
	if queue <= 0 {
		queue = 100
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Syncer{sink: sink, timeout: timeout, queue: make(chan model.Lead, queue)}
}

// Start launches the sync goroutine.
func (s *Syncer) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for lead := range s.queue {
			s.push(lead)
		}
	}()
}

// Close stops accepting events and waits for queued upserts to finish.
// Events arriving after Close are dropped.
func (s *Syncer) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Dropped returns the number of events discarded because the queue was full
// or the syncer was closed.
func (s *Syncer) Dropped() int64 { return s.dropped.Load() }

// OnTransition implements orchestrator.Observer.
func (s *Syncer) OnTransition(ev orchestrator.Event) {
	if !synced(ev.Transition.To) {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		zap.L().Debug("crm: syncer closed, dropping update",
			zap.String("lead_id", ev.Lead.ID),
			zap.String("state", string(ev.Transition.To)),
		)
		return
	}
	select {
	case s.queue <- ev.Lead:
	default:
		s.dropped.Add(1)
		zap.L().Warn("crm: sync queue full, dropping update",
			zap.String("lead_id", ev.Lead.ID),
			zap.String("state", string(ev.Transition.To)),
		)
	}
}

func (s *Syncer) push(lead model.Lead) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.sink.Upsert(ctx, &lead); err != nil {
		zap.L().Warn("crm: upsert failed",
			zap.String("lead_id", lead.ID),
			zap.String("state", string(lead.State)),
			zap.Error(err),
		)
	}
}

func synced(s model.State) bool {
	return s.Terminal() || s == model.StateAwaitingApproval || s == model.StateApproved
}
