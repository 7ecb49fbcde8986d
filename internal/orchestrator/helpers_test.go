package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ahermangesh/Leads/internal/contact"
	"github.com/ahermangesh/Leads/internal/delivery"
	"github.com/ahermangesh/Leads/internal/memory"
	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/outreach"
	"github.com/ahermangesh/Leads/internal/research"
	"github.com/ahermangesh/Leads/internal/scrape"
)

// stubResolver returns one contact and one page per website, unless the
// website is listed in empty (no contacts) or errs.
type stubResolver struct {
	empty    map[string]bool
	errs     map[string]error
	social   []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (s *stubResolver) Resolve(ctx context.Context, website string) (*contact.Result, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	if err := s.errs[website]; err != nil {
		return nil, err
	}
	host := strings.TrimPrefix(website, "https://")
	page := &scrape.Page{URL: website + "/", Title: host, Text: "We serve " + host + ". Contact us."}
	if s.empty[website] {
		return &contact.Result{Pages: []*scrape.Page{page}}, nil
	}
	return &contact.Result{
		Contacts:    []model.Contact{{Address: "owner@" + host, Confidence: 0.9}},
		SocialLinks: s.social,
		Pages:       []*scrape.Page{page},
	}, nil
}

// stubResearcher returns a full result for every lead.
type stubResearcher struct {
	errs map[string]error
}

func (s *stubResearcher) Research(_ context.Context, in research.Input) (*model.ResearchResult, error) {
	if err := s.errs[in.Name]; err != nil {
		return nil, err
	}
	return &model.ResearchResult{
		Summary:        in.Name + " is a local business.",
		Industry:       "plumbing",
		PainPoints:     []string{"slow quotes", "no online booking", "seasonal demand"},
		ValueProps:     []string{"same-day service", "licensed", "family owned"},
		TargetAudience: "homeowners",
		Completeness:   1,
		Mode:           model.ResearchFull,
	}, nil
}

// fixedScorer scores by lead name; unknown names score def.
type fixedScorer struct {
	scores map[string]int
	def    int
}

func (f fixedScorer) Score(_ []model.Contact, _ *model.ResearchResult, src model.Source) model.ScoreBreakdown {
	total, ok := f.scores[src.Name]
	if !ok {
		total = f.def
	}
	return model.ScoreBreakdown{Total: total, Threshold: 60, Qualified: total >= 60}
}

// sourceScorer records the source of every lead it scores.
type sourceScorer struct {
	mu      sync.Mutex
	sources []model.Source
}

func (s *sourceScorer) Score(_ []model.Contact, _ *model.ResearchResult, src model.Source) model.ScoreBreakdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, src)
	return model.ScoreBreakdown{Total: 90, Threshold: 60, Qualified: true}
}

// stubDrafter writes a fixed draft with a footer.
type stubDrafter struct {
	mu       sync.Mutex
	err      error
	feedback []string
}

func (s *stubDrafter) Generate(_ context.Context, req outreach.Request) (*model.Draft, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.Draft{
		Subject:  "Quick idea for " + req.LeadName,
		Body:     "Hi,\n\nA short note.\n\nBest regards,\nDana",
		Footer:   "\n\n---\nDana\nTo unsubscribe, reply with \"unsubscribe\"",
		Strategy: model.StrategyPainPoint,
		Tone:     model.ToneFriendly,
	}, nil
}

func (s *stubDrafter) Regenerate(ctx context.Context, req outreach.Request, prev *model.Draft, feedback string) (*model.Draft, error) {
	s.mu.Lock()
	s.feedback = append(s.feedback, feedback)
	s.mu.Unlock()
	d, err := s.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	d.Subject = prev.Subject + " (revised)"
	return d, nil
}

// recordingSender records recipients.
type recordingSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) Send(_ context.Context, draft *model.Draft, recipient string) (*model.SendReceipt, error) {
	if !draft.HasFooter() {
		return nil, delivery.ErrNoFooter
	}
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, recipient)
	return &model.SendReceipt{MessageID: fmt.Sprintf("msg-%d", len(r.sent)), Recipient: recipient, Provider: "recording"}, nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type fixture struct {
	resolver   *stubResolver
	researcher *stubResearcher
	scorer     fixedScorer
	drafter    *stubDrafter
	sender     *recordingSender
	memory     *memory.Store
	deps       Deps
}

func newFixture() *fixture {
	f := &fixture{
		resolver:   &stubResolver{},
		researcher: &stubResearcher{},
		scorer:     fixedScorer{def: 90},
		drafter:    &stubDrafter{},
		sender:     &recordingSender{},
		memory:     memory.New(memory.Config{}, nil),
	}
	f.sync()
	return f
}

// sync refreshes deps after a field was replaced.
func (f *fixture) sync() {
	f.deps = Deps{
		Resolver:   f.resolver,
		Researcher: f.researcher,
		Scorer:     f.scorer,
		Drafter:    f.drafter,
		Sender:     f.sender,
		Memory:     f.memory,
	}
}

func (f *fixture) orchestrator(t *testing.T, cfg Config, observers ...Observer) *Orchestrator {
	t.Helper()
	o, err := New(f.deps, cfg, observers...)
	require.NoError(t, err)
	return o
}

func rawLeads(names ...string) []model.RawLead {
	out := make([]model.RawLead, len(names))
	for i, n := range names {
		slug := strings.ToLower(strings.ReplaceAll(n, " ", "-"))
		out[i] = model.RawLead{Name: n, Website: "https://" + slug + ".com"}
	}
	return out
}

// eventLog records every event it observes.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnTransition(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// find returns the latest event moving the named lead into state.
func (l *eventLog) find(name string, state model.State) (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		ev := l.events[i]
		if ev.Lead.Source.Name == name && ev.Transition.To == state {
			return ev, true
		}
	}
	return Event{}, false
}

func (l *eventLog) states(name string) []model.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.State
	for _, ev := range l.events {
		if ev.Lead.Source.Name == name {
			out = append(out, ev.Transition.To)
		}
	}
	return out
}

// await blocks until the named lead reaches state and returns that event.
func (l *eventLog) await(t *testing.T, name string, state model.State) Event {
	t.Helper()
	var ev Event
	require.Eventually(t, func() bool {
		var ok bool
		ev, ok = l.find(name, state)
		return ok
	}, 5*time.Second, 2*time.Millisecond, "%s never reached %s", name, state)
	return ev
}

type runResult struct {
	report *model.RunReport
	err    error
}

// runAsync starts a run and returns a channel delivering its result.
func runAsync(ctx context.Context, o *Orchestrator, raws []model.RawLead) <-chan runResult {
	ch := make(chan runResult, 1)
	go func() {
		report, err := o.Run(ctx, raws, "test")
		ch <- runResult{report, err}
	}()
	return ch
}

func awaitRun(t *testing.T, ch <-chan runResult) *model.RunReport {
	t.Helper()
	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.report
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return nil
	}
}

func outcome(t *testing.T, report *model.RunReport, name string) model.LeadOutcome {
	t.Helper()
	for _, o := range report.Leads {
		if o.Name == name {
			return o
		}
	}
	t.Fatalf("lead %s missing from report", name)
	return model.LeadOutcome{}
}

func outreachRequest(name string) outreach.Request {
	return outreach.Request{LeadName: name}
}
