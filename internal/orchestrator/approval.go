package orchestrator

import (
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/store"
)

// Predicate selects leads for bulk approval.
type Predicate func(l *model.Lead) bool

// MinScore matches leads scoring at least threshold. When states is
// non-empty the lead must also be in one of them.
func MinScore(threshold int, states ...model.State) Predicate {
	return func(l *model.Lead) bool {
		if len(states) > 0 && !slices.Contains(states, l.State) {
			return false
		}
		return l.Score != nil && l.Score.Total >= threshold
	}
}

// parkLocked registers a job at the approval gate. It refuses when the run
// has been cancelled. Callers hold o.mu.
func (o *Orchestrator) parkLocked(j *job) bool {
	if j.run.ctx.Err() != nil {
		return false
	}
	p := &parkedLead{job: j}
	if o.cfg.ApprovalTimeout > 0 {
		p.timer = time.AfterFunc(o.cfg.ApprovalTimeout, func() { o.expire(j.lead.ID, p) })
	}
	o.parked[j.lead.ID] = p
	return true
}

// expire fails a parked lead whose approval window elapsed.
func (o *Orchestrator) expire(id string, p *parkedLead) {
	o.mu.Lock()
	if o.parked[id] != p {
		o.mu.Unlock()
		return
	}
	delete(o.parked, id)
	o.mu.Unlock()

	o.failWith(p.job, eris.Errorf("orchestrator: no decision within %s", o.cfg.ApprovalTimeout),
		model.ReasonApprovalTimeout, true)
}

// expireRun fails every lead of r still waiting at the gate.
func (o *Orchestrator) expireRun(r *run) {
	var expired []*job
	o.mu.Lock()
	for id, p := range o.parked {
		if p.job.run != r {
			continue
		}
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(o.parked, id)
		expired = append(expired, p.job)
	}
	o.mu.Unlock()

	for _, j := range expired {
		o.failWith(j, eris.New("orchestrator: run stopped before approval"), model.ReasonApprovalTimeout, true)
	}
}

// claim takes exclusive ownership of a lead waiting for approval. Leads
// parked by a live run are taken off the gate; otherwise the lead is loaded
// from the store and must be in AwaitingApproval.
func (o *Orchestrator) claim(ctx context.Context, id string) (*job, error) {
	o.mu.Lock()
	if p, ok := o.parked[id]; ok {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(o.parked, id)
		o.mu.Unlock()
		return p.job, nil
	}
	_, busy := o.live[id]
	o.mu.Unlock()

	if busy {
		return nil, eris.Wrapf(ErrNotAwaitingApproval, "lead %s", id)
	}
	if o.deps.Store == nil {
		return nil, eris.Wrapf(store.ErrNotFound, "lead %s", id)
	}
	lead, err := o.deps.Store.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	if lead.State != model.StateAwaitingApproval {
		return nil, eris.Wrapf(ErrNotAwaitingApproval, "lead %s is %s", id, lead.State)
	}

	j := o.newJob(context.WithoutCancel(ctx), nil, lead)
	o.mu.Lock()
	if _, raced := o.live[id]; raced {
		o.mu.Unlock()
		return nil, eris.Wrapf(ErrNotAwaitingApproval, "lead %s", id)
	}
	j.snap = *lead
	o.live[id] = j
	o.counts[lead.State]++
	o.mu.Unlock()
	return j, nil
}

// Approve records an operator approval and sends the draft. Leads parked by
// a live run are sent on that run's worker pool; others are sent before
// Approve returns.
func (o *Orchestrator) Approve(ctx context.Context, id, by, note string) error {
	j, err := o.claim(ctx, id)
	if err != nil {
		return err
	}
	approval := &model.Approval{Decision: model.DecisionApproved, By: by, Note: note, At: o.now().UTC()}
	if !o.advance(j, model.StateApproved, "", func(l *model.Lead) { l.Approval = approval }) {
		return eris.Wrapf(ErrNotAwaitingApproval, "lead %s", id)
	}

	if j.run != nil {
		j.run.pool.Go(func() error {
			o.deliver(j)
			return nil
		})
		return nil
	}
	o.deliver(j)
	return nil
}

// Reject records an operator rejection. The lead becomes Rejected with
// reason operator_rejected.
func (o *Orchestrator) Reject(ctx context.Context, id, by, note string) error {
	j, err := o.claim(ctx, id)
	if err != nil {
		return err
	}
	approval := &model.Approval{Decision: model.DecisionRejected, By: by, Note: note, At: o.now().UTC()}
	if !o.advance(j, model.StateRejected, model.ReasonOperatorRejected, func(l *model.Lead) { l.Approval = approval }) {
		return eris.Wrapf(ErrNotAwaitingApproval, "lead %s", id)
	}
	return nil
}

// Regenerate redrafts a lead at the approval gate with operator feedback.
// The lead returns to AwaitingApproval, or fails if drafting fails, before
// Regenerate returns the resulting snapshot.
func (o *Orchestrator) Regenerate(ctx context.Context, id, feedback string) (*model.Lead, error) {
	j, err := o.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	o.draft(j, feedback)

	j.mu.Lock()
	snap := *j.lead
	j.mu.Unlock()
	return &snap, nil
}

// BulkApprove approves every lead at the approval gate matching pred and
// returns the number approved.
func (o *Orchestrator) BulkApprove(ctx context.Context, pred Predicate, by string) (int, error) {
	var candidates []model.Lead
	seen := make(map[string]bool)

	o.mu.Lock()
	for id, p := range o.parked {
		seen[id] = true
		candidates = append(candidates, p.job.snap)
	}
	o.mu.Unlock()

	if o.deps.Store != nil {
		stored, err := o.deps.Store.ListLeads(ctx, store.LeadFilter{
			States: []model.State{model.StateAwaitingApproval},
		})
		if err != nil {
			return 0, eris.Wrap(err, "orchestrator: list leads awaiting approval")
		}
		for _, l := range stored {
			if !seen[l.ID] {
				candidates = append(candidates, l)
			}
		}
	}

	slices.SortFunc(candidates, func(a, b model.Lead) int {
		if d := b.TotalScore() - a.TotalScore(); d != 0 {
			return d
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	approved := 0
	for i := range candidates {
		l := &candidates[i]
		if !pred(l) {
			continue
		}
		if err := o.Approve(ctx, l.ID, by, "bulk"); err != nil {
			zap.L().Warn("orchestrator: bulk approve skipped lead",
				zap.String("lead_id", l.ID),
				zap.Error(err),
			)
			continue
		}
		approved++
	}
	return approved, nil
}

// RecordOutcome appends a downstream signal (opened, replied, bounced) for a
// sent lead to the memory store.
func (o *Orchestrator) RecordOutcome(ctx context.Context, id string, kind model.OutcomeKind) (model.OutcomeEvent, error) {
	switch kind {
	case model.OutcomeOpened, model.OutcomeReplied, model.OutcomeBounced:
	default:
		return model.OutcomeEvent{}, eris.Wrapf(ErrInvalidOutcome, "kind %q", kind)
	}

	lead, err := o.Lead(ctx, id)
	if err != nil {
		return model.OutcomeEvent{}, err
	}
	if lead.State != model.StateSent {
		return model.OutcomeEvent{}, eris.Wrapf(ErrInvalidOutcome, "lead %s is %s", id, lead.State)
	}
	return o.deps.Memory.Append(ctx, outcomeEvent(lead, model.StateSent, kind))
}
