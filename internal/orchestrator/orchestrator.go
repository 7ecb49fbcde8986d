// Package orchestrator drives each lead through the qualification state
// machine: contact resolution, research, scoring, drafting, the approval
// gate and delivery.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/contact"
	"github.com/ahermangesh/Leads/internal/delivery"
	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/outreach"
	"github.com/ahermangesh/Leads/internal/research"
	"github.com/ahermangesh/Leads/internal/resilience"
	"github.com/ahermangesh/Leads/internal/store"
)

var (
	// ErrNotAwaitingApproval is returned by approval operations on a lead
	// that is not parked at the approval gate.
	ErrNotAwaitingApproval = eris.New("orchestrator: lead is not awaiting approval")
	// ErrInvalidOutcome is returned when a downstream signal does not apply
	// to the lead.
	ErrInvalidOutcome = eris.New("orchestrator: outcome not accepted")
)

// Resolver discovers contacts on a website.
type Resolver interface {
	Resolve(ctx context.Context, website string) (*contact.Result, error)
}

// Researcher produces the business analysis for a lead.
type Researcher interface {
	Research(ctx context.Context, in research.Input) (*model.ResearchResult, error)
}

// Scorer computes the quality score.
type Scorer interface {
	Score(contacts []model.Contact, research *model.ResearchResult, src model.Source) model.ScoreBreakdown
}

// Drafter writes outreach drafts.
type Drafter interface {
	Generate(ctx context.Context, req outreach.Request) (*model.Draft, error)
	Regenerate(ctx context.Context, req outreach.Request, prev *model.Draft, feedback string) (*model.Draft, error)
}

// Memory records outcome events.
type Memory interface {
	Append(ctx context.Context, ev model.OutcomeEvent) (model.OutcomeEvent, error)
}

// Deps are the collaborators the orchestrator composes. Store is optional;
// without it leads live only in memory and approvals outside a run fail.
type Deps struct {
	Resolver   Resolver
	Researcher Researcher
	Scorer     Scorer
	Drafter    Drafter
	Sender     delivery.Sender
	Memory     Memory
	Store      store.Store
}

// Config configures batching and the approval gate.
type Config struct {
	Workers   int
	BatchSize int
	// AutoThreshold is the score at or above which drafted leads skip the
	// approval gate.
	AutoThreshold int
	// ApprovalTimeout bounds how long a lead waits at the gate. Zero waits
	// until the run is cancelled.
	ApprovalTimeout time.Duration
}

// Orchestrator runs pipelines and serves approval decisions. It is safe for
// concurrent use.
type Orchestrator struct {
	deps      Deps
	cfg       Config
	observers []Observer
	now       func() time.Time

	mu     sync.Mutex
	counts map[model.State]int
	live   map[string]*job
	parked map[string]*parkedLead
}

// job is one lead's pipeline. mu serializes transitions, so a worker and an
// approval call never mutate the lead at the same time.
type job struct {
	mu          sync.Mutex
	run         *run
	lead        *model.Lead
	snap        model.Lead
	ctx         context.Context
	tally       *resilience.Tally
	reason      model.ReasonCode
	parkRefused bool
}

type parkedLead struct {
	job   *job
	timer *time.Timer
}

func (j *job) runID() string {
	if j.run == nil {
		return ""
	}
	return j.run.id
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config, observers ...Observer) (*Orchestrator, error) {
	switch {
	case deps.Resolver == nil, deps.Researcher == nil, deps.Scorer == nil:
		return nil, eris.New("orchestrator: resolver, researcher and scorer are required")
	case deps.Drafter == nil, deps.Sender == nil, deps.Memory == nil:
		return nil, eris.New("orchestrator: drafter, sender and memory are required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.AutoThreshold <= 0 {
		cfg.AutoThreshold = 80
	}
	return &Orchestrator{
		deps:      deps,
		cfg:       cfg,
		observers: observers,
		now:       time.Now,
		counts:    make(map[model.State]int),
		live:      make(map[string]*job),
		parked:    make(map[string]*parkedLead),
	}, nil
}

// NewLead creates a lead in state New from a raw record.
func NewLead(raw model.RawLead, campaign string, now time.Time) *model.Lead {
	now = now.UTC()
	return &model.Lead{
		ID:        uuid.NewString(),
		Campaign:  campaign,
		Source:    model.NormalizeSource(raw),
		State:     model.StateNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Stats returns the live number of leads per state seen by this process.
func (o *Orchestrator) Stats() map[model.State]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[model.State]int, len(o.counts))
	for s, n := range o.counts {
		if n > 0 {
			out[s] = n
		}
	}
	return out
}

// Lead returns a snapshot of a lead, from an active pipeline if one owns it
// and from the store otherwise.
func (o *Orchestrator) Lead(ctx context.Context, id string) (*model.Lead, error) {
	o.mu.Lock()
	if j, ok := o.live[id]; ok {
		snap := j.snap
		o.mu.Unlock()
		return &snap, nil
	}
	o.mu.Unlock()

	if o.deps.Store == nil {
		return nil, eris.Wrapf(store.ErrNotFound, "lead %s", id)
	}
	return o.deps.Store.GetLead(ctx, id)
}

// adopt registers a job as live and counts its current state.
func (o *Orchestrator) adopt(j *job) {
	o.mu.Lock()
	j.snap = *j.lead
	o.live[j.lead.ID] = j
	o.counts[j.lead.State]++
	o.mu.Unlock()
}

// advance applies a transition. mutate runs under the job lock before the
// state changes. It reports false for a transition the state machine does
// not allow, leaving the lead untouched.
func (o *Orchestrator) advance(j *job, to model.State, reason model.ReasonCode, mutate ...func(*model.Lead)) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	lead := j.lead
	from := lead.State
	if !model.CanTransition(from, to) {
		zap.L().Error("orchestrator: illegal transition",
			zap.String("lead_id", lead.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return false
	}

	for _, m := range mutate {
		m(lead)
	}
	now := o.now().UTC()
	lead.State = to
	lead.UpdatedAt = now
	if reason != "" {
		j.reason = reason
	}

	tr := model.Transition{
		RunID:   j.runID(),
		LeadID:  lead.ID,
		From:    from,
		To:      to,
		Reason:  reason,
		Retries: j.tally.Retries(),
		At:      now,
	}
	snap := *lead

	o.mu.Lock()
	if o.counts[from] > 0 {
		o.counts[from]--
	}
	o.counts[to]++
	j.snap = snap
	if to == model.StateAwaitingApproval {
		if j.run != nil {
			j.parkRefused = !o.parkLocked(j)
		} else {
			delete(o.live, lead.ID)
		}
	}
	if to.Terminal() {
		delete(o.live, lead.ID)
	}
	o.mu.Unlock()

	o.persist(j.ctx, &snap, tr)
	o.record(j.ctx, &snap, tr)
	o.notify(Event{Transition: tr, Lead: snap})

	if to.Terminal() && j.run != nil {
		j.run.pending.Done()
	}
	return true
}

// fail moves the lead to Failed with the reason code its error classifies to.
func (o *Orchestrator) fail(j *job, err error, stageCode model.ReasonCode) {
	code, retryable := resilience.Classify(err, stageCode)
	if code == model.ReasonNone {
		code, retryable = model.ReasonInternal, false
	}
	o.failWith(j, err, code, retryable)
}

func (o *Orchestrator) failWith(j *job, err error, code model.ReasonCode, retryable bool) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	o.advance(j, model.StateFailed, code, func(l *model.Lead) {
		l.Failure = &model.Failure{Reason: code, Retryable: retryable, Stage: l.State, Detail: detail}
	})
}

func (o *Orchestrator) persist(ctx context.Context, lead *model.Lead, tr model.Transition) {
	if o.deps.Store == nil {
		return
	}
	if err := o.deps.Store.SaveLead(ctx, lead); err != nil {
		zap.L().Error("orchestrator: save lead", zap.String("lead_id", lead.ID), zap.Error(err))
	}
	if err := o.deps.Store.AppendTransition(ctx, tr); err != nil {
		zap.L().Error("orchestrator: append transition", zap.String("lead_id", lead.ID), zap.Error(err))
	}
}

var outcomeKinds = map[model.State]model.OutcomeKind{
	model.StateApproved: model.OutcomeApproved,
	model.StateRejected: model.OutcomeRejected,
	model.StateSent:     model.OutcomeSent,
	model.StateFailed:   model.OutcomeFailed,
}

// record appends the outcome event for approval and terminal transitions.
func (o *Orchestrator) record(ctx context.Context, lead *model.Lead, tr model.Transition) {
	kind, ok := outcomeKinds[tr.To]
	if !ok {
		return
	}
	if _, err := o.deps.Memory.Append(ctx, outcomeEvent(lead, tr.From, kind)); err != nil {
		zap.L().Error("orchestrator: record outcome",
			zap.String("lead_id", lead.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

func outcomeEvent(lead *model.Lead, stage model.State, kind model.OutcomeKind) model.OutcomeEvent {
	ev := model.OutcomeEvent{
		LeadID:   lead.ID,
		Stage:    stage,
		Kind:     kind,
		Industry: lead.Industry(),
	}
	if lead.Draft != nil {
		ev.Strategy = lead.Draft.Strategy
		ev.Tone = lead.Draft.Tone
	}
	return ev
}

func (o *Orchestrator) notify(ev Event) {
	for _, obs := range o.observers {
		obs.OnTransition(ev)
	}
}
