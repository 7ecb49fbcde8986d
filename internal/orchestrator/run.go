package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahermangesh/Leads/internal/delivery"
	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/outreach"
	"github.com/ahermangesh/Leads/internal/research"
	"github.com/ahermangesh/Leads/internal/resilience"
	"github.com/ahermangesh/Leads/internal/scrape"
)

// run is one invocation of Run. ctx carries the caller's cancellation;
// pipelines execute under work, which never cancels, so a started lead
// always reaches a terminal state.
type run struct {
	id      string
	ctx     context.Context
	work    context.Context
	pool    errgroup.Group
	pending sync.WaitGroup
}

// Run imports raw records as New leads and drives them to terminal states.
func (o *Orchestrator) Run(ctx context.Context, raws []model.RawLead, campaign string) (*model.RunReport, error) {
	now := o.now()
	leads := make([]*model.Lead, len(raws))
	for i, raw := range raws {
		leads[i] = NewLead(raw, campaign, now)
	}
	return o.RunLeads(ctx, leads)
}

// RunLeads drives leads in state New through the pipeline and returns a
// report with exactly one outcome per input lead. Leads are launched in
// batches of BatchSize on at most Workers goroutines. Cancelling ctx stops
// launching new pipelines; unstarted leads fail with reason cancelled and
// leads waiting at the approval gate fail with approval_timeout.
func (o *Orchestrator) RunLeads(ctx context.Context, leads []*model.Lead) (*model.RunReport, error) {
	for _, l := range leads {
		if l.State != model.StateNew {
			return nil, eris.Errorf("orchestrator: lead %s is %s, not New", l.ID, l.State)
		}
	}

	r := &run{id: uuid.NewString(), ctx: ctx, work: context.WithoutCancel(ctx)}
	r.pool.SetLimit(o.cfg.Workers)
	started := o.now().UTC()

	if o.deps.Store != nil {
		if err := o.deps.Store.CreateRun(r.work, r.id, started); err != nil {
			return nil, eris.Wrap(err, "orchestrator: create run")
		}
	}

	log := zap.L().With(zap.String("run_id", r.id))
	log.Info("orchestrator: run started",
		zap.Int("leads", len(leads)),
		zap.Int("workers", o.cfg.Workers),
		zap.Int("batch_size", o.cfg.BatchSize),
	)

	jobs := make([]*job, len(leads))
	for i, l := range leads {
		jobs[i] = o.newJob(r.work, r, l)
		r.pending.Add(1)
		o.adopt(jobs[i])
		if o.deps.Store != nil {
			if err := o.deps.Store.SaveLead(r.work, l); err != nil {
				log.Error("orchestrator: save lead", zap.String("lead_id", l.ID), zap.Error(err))
			}
		}
	}

	for start := 0; start < len(jobs); start += o.cfg.BatchSize {
		end := min(start+o.cfg.BatchSize, len(jobs))
		var batch sync.WaitGroup
		for _, j := range jobs[start:end] {
			if err := ctx.Err(); err != nil {
				o.failWith(j, eris.Wrap(err, "orchestrator: run cancelled before lead started"),
					model.ReasonCancelled, true)
				continue
			}
			batch.Add(1)
			r.pool.Go(func() error {
				defer batch.Done()
				o.process(j)
				return nil
			})
		}
		batch.Wait()
		log.Debug("orchestrator: batch launched", zap.Int("from", start), zap.Int("to", end))
	}

	done := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		o.expireRun(r)
		<-done
	}
	_ = r.pool.Wait()

	report := o.report(r, jobs, started)
	if o.deps.Store != nil {
		if err := o.deps.Store.FinishRun(r.work, report); err != nil {
			log.Error("orchestrator: finish run", zap.Error(err))
		}
	}
	log.Info("orchestrator: run finished",
		zap.String("status", string(report.Status)),
		zap.Any("counts", report.Counts),
	)
	return report, nil
}

func (o *Orchestrator) newJob(parent context.Context, r *run, lead *model.Lead) *job {
	ctx, tally := resilience.WithTally(parent)
	return &job{run: r, lead: lead, ctx: ctx, tally: tally}
}

func (o *Orchestrator) report(r *run, jobs []*job, started time.Time) *model.RunReport {
	report := &model.RunReport{
		RunID:      r.id,
		Status:     model.RunStatusComplete,
		StartedAt:  started,
		FinishedAt: o.now().UTC(),
		Leads:      make([]model.LeadOutcome, 0, len(jobs)),
		Counts:     make(map[model.State]int),
	}
	if r.ctx.Err() != nil {
		report.Status = model.RunStatusCancelled
	}

	for _, j := range jobs {
		j.mu.Lock()
		lead := j.lead
		out := model.LeadOutcome{
			LeadID:  lead.ID,
			Name:    lead.Source.Name,
			State:   lead.State,
			Reason:  j.reason,
			Retries: j.tally.Retries(),
		}
		if lead.Score != nil {
			total := lead.Score.Total
			out.Score = &total
		}
		if lead.Failure != nil {
			out.Reason = lead.Failure.Reason
			out.Retryable = lead.Failure.Retryable
		}
		j.mu.Unlock()

		report.Leads = append(report.Leads, out)
		report.Counts[out.State]++
	}
	return report
}

// process runs a lead from New up to a terminal state or the approval gate.
func (o *Orchestrator) process(j *job) {
	lead := j.lead

	if !o.advance(j, model.StateResolving, "") {
		return
	}
	var pages []*scrape.Page
	website := ""
	if lead.Source.Website != nil {
		website = *lead.Source.Website
		res, err := o.deps.Resolver.Resolve(j.ctx, website)
		if err != nil && !resilience.IsPartial(err) {
			o.fail(j, err, model.ReasonFetchFailed)
			return
		}
		if err != nil {
			zap.L().Info("orchestrator: partial contact data",
				zap.String("lead_id", lead.ID),
				zap.Error(err),
			)
		}
		if res != nil {
			lead.Contacts = res.Contacts
			lead.Source.SocialLinks = model.MergeLinks(lead.Source.SocialLinks, res.SocialLinks...)
			pages = res.Pages
		}
	}

	if !o.advance(j, model.StateResearching, "") {
		return
	}
	result, err := o.deps.Researcher.Research(j.ctx, research.Input{
		Name:    lead.Source.Name,
		Website: website,
		Pages:   pages,
	})
	if result == nil {
		if err == nil {
			err = eris.New("orchestrator: research returned no result")
		}
		o.fail(j, err, model.ReasonOracleUnavailable)
		return
	}
	lead.Research = result

	score := o.deps.Scorer.Score(lead.Contacts, result, lead.Source)
	lead.Score = &score
	if !o.advance(j, model.StateScored, "") {
		return
	}
	if !score.Qualified {
		o.advance(j, model.StateRejected, model.ReasonBelowThreshold)
		return
	}
	if !o.advance(j, model.StateQualified, "") {
		return
	}
	o.draft(j, "")
}

// draft runs the drafting stage and the approval gate. A non-empty feedback
// regenerates the current draft.
func (o *Orchestrator) draft(j *job, feedback string) {
	if !o.advance(j, model.StateDrafting, "") {
		return
	}
	lead := j.lead
	req := outreach.Request{LeadName: lead.Source.Name, Research: lead.Research}
	if lead.Source.Website != nil {
		req.Website = *lead.Source.Website
	}

	var d *model.Draft
	var err error
	if feedback != "" && lead.Draft != nil {
		d, err = o.deps.Drafter.Regenerate(j.ctx, req, lead.Draft, feedback)
	} else {
		d, err = o.deps.Drafter.Generate(j.ctx, req)
	}
	if err != nil {
		code, retryable := resilience.Classify(err, model.ReasonOracleUnavailable)
		if code == model.ReasonMalformedOutput || code == model.ReasonInternal {
			code = model.ReasonDraftFailed
		}
		o.failWith(j, err, code, retryable)
		return
	}
	if !d.HasFooter() {
		o.failWith(j, delivery.ErrNoFooter, model.ReasonDraftFailed, false)
		return
	}

	if !o.advance(j, model.StateDrafted, "", func(l *model.Lead) { l.Draft = d }) {
		return
	}

	if lead.TotalScore() >= o.cfg.AutoThreshold {
		approval := &model.Approval{Decision: model.DecisionApproved, Auto: true, By: "auto", At: o.now().UTC()}
		if !o.advance(j, model.StateApproved, "", func(l *model.Lead) { l.Approval = approval }) {
			return
		}
		o.deliver(j)
		return
	}

	if !o.advance(j, model.StateAwaitingApproval, "") {
		return
	}
	if j.parkRefused {
		o.failWith(j, eris.New("orchestrator: run stopped before approval"), model.ReasonApprovalTimeout, true)
	}
}

// deliver sends an approved lead's draft to its best contact.
func (o *Orchestrator) deliver(j *job) {
	if !o.advance(j, model.StateSending, "") {
		return
	}
	lead := j.lead
	recipient, ok := lead.BestContact()
	if !ok {
		o.failWith(j, eris.Errorf("orchestrator: no recipient for %s", lead.Source.Name), model.ReasonNoRecipient, false)
		return
	}

	receipt, err := o.deps.Sender.Send(j.ctx, lead.Draft, recipient.Address)
	if err != nil {
		if delivery.IsQuotaExhausted(err) {
			o.failWith(j, err, model.ReasonQuotaExhausted, true)
			return
		}
		o.fail(j, err, model.ReasonSendFailed)
		return
	}
	o.advance(j, model.StateSent, "", func(l *model.Lead) { l.Send = receipt })
}
