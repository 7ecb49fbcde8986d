package orchestrator

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/model"
)

// Event is emitted after every state change. Lead is a snapshot taken
// immediately after the transition was applied.
type Event struct {
	Transition model.Transition
	Lead       model.Lead
}

// Observer receives transition events. OnTransition is called synchronously
// from pipeline workers and must be safe for concurrent use; observers that
// do slow work should hand events off to their own goroutine.
type Observer interface {
	OnTransition(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// OnTransition implements Observer.
func (f ObserverFunc) OnTransition(ev Event) { f(ev) }

// ChanObserver fans events out on a buffered channel. When the buffer is
// full the event is dropped and counted rather than blocking a worker.
type ChanObserver struct {
	ch      chan Event
	dropped atomic.Int64
}

// NewChanObserver creates a ChanObserver with the given buffer size.
func NewChanObserver(buffer int) *ChanObserver {
	return &ChanObserver{ch: make(chan Event, buffer)}
}

// C returns the event channel.
func (c *ChanObserver) C() <-chan Event { return c.ch }

// Dropped returns the number of events discarded because the buffer was full.
func (c *ChanObserver) Dropped() int64 { return c.dropped.Load() }

// OnTransition implements Observer.
func (c *ChanObserver) OnTransition(ev Event) {
	select {
	case c.ch <- ev:
	default:
		c.dropped.Add(1)
	}
}

// LogObserver logs every transition through the global zap logger.
type LogObserver struct{}

// OnTransition implements Observer.
func (LogObserver) OnTransition(ev Event) {
	tr := ev.Transition
	fields := []zap.Field{
		zap.String("run_id", tr.RunID),
		zap.String("lead_id", tr.LeadID),
		zap.String("lead", ev.Lead.Source.Name),
		zap.String("from", string(tr.From)),
		zap.String("state", string(tr.To)),
		zap.Int("retries", tr.Retries),
	}
	if tr.Reason != "" {
		fields = append(fields, zap.String("reason", string(tr.Reason)))
	}

	switch tr.To {
	case model.StateFailed:
		if f := ev.Lead.Failure; f != nil {
			fields = append(fields, zap.Bool("retryable", f.Retryable), zap.String("detail", f.Detail))
		}
		zap.L().Warn("orchestrator: lead failed", fields...)
	case model.StateSent, model.StateRejected, model.StateAwaitingApproval:
		zap.L().Info("orchestrator: transition", fields...)
	default:
		zap.L().Debug("orchestrator: transition", fields...)
	}
}
