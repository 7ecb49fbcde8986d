package memory

import (
	"math"
	"sort"

	"github.com/ahermangesh/Leads/internal/model"
)

// Aggregate summarizes the history of one (strategy, tone, industry) group.
// Counts are distinct leads, so repeated signals for a lead count once.
type Aggregate struct {
	Strategy     model.Strategy `json:"strategy" yaml:"strategy"`
	Tone         model.Tone     `json:"tone" yaml:"tone"`
	Industry     string         `json:"industry" yaml:"industry"`
	Leads        int            `json:"leads" yaml:"leads"`
	Approved     int            `json:"approved" yaml:"approved"`
	Rejected     int            `json:"rejected" yaml:"rejected"`
	Sent         int            `json:"sent" yaml:"sent"`
	Failed       int            `json:"failed" yaml:"failed"`
	Opened       int            `json:"opened" yaml:"opened"`
	Replied      int            `json:"replied" yaml:"replied"`
	Bounced      int            `json:"bounced" yaml:"bounced"`
	ApprovalRate float64        `json:"approval_rate" yaml:"approval_rate"`
	ReplyRate    float64        `json:"reply_rate" yaml:"reply_rate"`
}

type groupKey struct {
	strategy model.Strategy
	tone     model.Tone
	industry string
}

type groupSets struct {
	leads map[string]bool
	kinds map[model.OutcomeKind]map[string]bool
}

func (g *groupSets) count(k model.OutcomeKind) int { return len(g.kinds[k]) }

// Aggregates groups the log by (strategy, tone, industry). Events without
// a strategy or tone (leads rejected before drafting) are skipped. The
// result is sorted by industry, strategy and tone.
func (s *Store) Aggregates() []Aggregate {
	return aggregate(s.Events())
}

func aggregate(events []model.OutcomeEvent) []Aggregate {
	groups := make(map[groupKey]*groupSets)
	for _, ev := range events {
		if !ev.Strategy.Valid() || !ev.Tone.Valid() {
			continue
		}
		k := groupKey{ev.Strategy, ev.Tone, ev.Industry}
		g, ok := groups[k]
		if !ok {
			g = &groupSets{leads: map[string]bool{}, kinds: map[model.OutcomeKind]map[string]bool{}}
			groups[k] = g
		}
		g.leads[ev.LeadID] = true
		if g.kinds[ev.Kind] == nil {
			g.kinds[ev.Kind] = map[string]bool{}
		}
		g.kinds[ev.Kind][ev.LeadID] = true
	}

	out := make([]Aggregate, 0, len(groups))
	for k, g := range groups {
		a := Aggregate{
			Strategy: k.strategy,
			Tone:     k.tone,
			Industry: k.industry,
			Leads:    len(g.leads),
			Approved: g.count(model.OutcomeApproved),
			Rejected: g.count(model.OutcomeRejected),
			Sent:     g.count(model.OutcomeSent),
			Failed:   g.count(model.OutcomeFailed),
			Opened:   g.count(model.OutcomeOpened),
			Replied:  g.count(model.OutcomeReplied),
			Bounced:  g.count(model.OutcomeBounced),
		}
		a.ApprovalRate = rate(a.Approved, a.Approved+a.Rejected)
		a.ReplyRate = rate(a.Replied, a.Sent)
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Industry != out[j].Industry {
			return out[i].Industry < out[j].Industry
		}
		if out[i].Strategy != out[j].Strategy {
			return out[i].Strategy < out[j].Strategy
		}
		return out[i].Tone < out[j].Tone
	})
	return out
}

func rate(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return math.Min(1, float64(n)/float64(d))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Recommendation is the strategy and tone suggested for an industry.
type Recommendation struct {
	Industry   string         `json:"industry" yaml:"industry"`
	Strategy   model.Strategy `json:"strategy" yaml:"strategy"`
	Tone       model.Tone     `json:"tone" yaml:"tone"`
	Confidence float64        `json:"confidence" yaml:"confidence"`
	Samples    int            `json:"samples" yaml:"samples"`
	// Fallback is set when the industry had too few samples and the
	// configured default was returned.
	Fallback bool `json:"fallback" yaml:"fallback"`
}

// Recommend returns the best observed (strategy, tone) for an industry.
// Groups rank by reply rate, then approval rate, then lead count, then
// strategy and tone name, so the answer depends only on the event history.
func (s *Store) Recommend(industry string) Recommendation {
	industry = model.NormalizeIndustry(industry)

	var candidates []Aggregate
	samples := 0
	seen := make(map[string]bool)
	events := s.Events()
	for _, ev := range events {
		if ev.Industry == industry && ev.Strategy.Valid() && ev.Tone.Valid() && !seen[ev.LeadID] {
			seen[ev.LeadID] = true
			samples++
		}
	}
	for _, a := range aggregate(events) {
		if a.Industry == industry {
			candidates = append(candidates, a)
		}
	}

	if industry == "" || samples < s.cfg.MinSamples || len(candidates) == 0 {
		return Recommendation{
			Industry: industry,
			Strategy: s.cfg.DefaultStrategy,
			Tone:     s.cfg.DefaultTone,
			Samples:  samples,
			Fallback: true,
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.ReplyRate != b.ReplyRate {
			return a.ReplyRate > b.ReplyRate
		}
		if a.ApprovalRate != b.ApprovalRate {
			return a.ApprovalRate > b.ApprovalRate
		}
		if a.Leads != b.Leads {
			return a.Leads > b.Leads
		}
		if a.Strategy != b.Strategy {
			return a.Strategy < b.Strategy
		}
		return a.Tone < b.Tone
	})

	best := candidates[0]
	weight := float64(best.Leads) / float64(best.Leads+s.cfg.MinSamples)
	return Recommendation{
		Industry:   industry,
		Strategy:   best.Strategy,
		Tone:       best.Tone,
		Confidence: round4(weight * math.Max(best.ReplyRate, best.ApprovalRate)),
		Samples:    samples,
	}
}

// Counts are delivery signals for one bucket of the stats breakdown.
type Counts struct {
	Sent    int `json:"sent" yaml:"sent"`
	Opened  int `json:"opened" yaml:"opened"`
	Replied int `json:"replied" yaml:"replied"`
}

// Breakdown is the per-strategy, per-tone and per-industry view of the log.
type Breakdown struct {
	ByStrategy map[model.Strategy]Counts `json:"by_strategy" yaml:"by_strategy"`
	ByTone     map[model.Tone]Counts     `json:"by_tone" yaml:"by_tone"`
	ByIndustry map[string]Counts         `json:"by_industry" yaml:"by_industry"`
}

// Breakdown folds the aggregates into per-dimension counts.
func (s *Store) Breakdown() Breakdown {
	b := Breakdown{
		ByStrategy: map[model.Strategy]Counts{},
		ByTone:     map[model.Tone]Counts{},
		ByIndustry: map[string]Counts{},
	}
	add := func(c Counts, a Aggregate) Counts {
		c.Sent += a.Sent
		c.Opened += a.Opened
		c.Replied += a.Replied
		return c
	}
	for _, a := range s.Aggregates() {
		b.ByStrategy[a.Strategy] = add(b.ByStrategy[a.Strategy], a)
		b.ByTone[a.Tone] = add(b.ByTone[a.Tone], a)
		b.ByIndustry[a.Industry] = add(b.ByIndustry[a.Industry], a)
	}
	return b
}
