// Package scorer computes a lead's reproducible 0-100 quality score.
package scorer

import (
	"math"

	"github.com/ahermangesh/Leads/internal/config"
	"github.com/ahermangesh/Leads/internal/model"
)

// DefaultThreshold is the qualification cutoff used when none is configured.
const DefaultThreshold = 60

const (
	// relevanceSaturation is the pain point plus value prop count that
	// yields a full relevance signal.
	relevanceSaturation = 6
	socialIndicators    = 4
	goodRating          = 4.0
)

// Scorer is a pure function of its configuration and inputs.
type Scorer struct {
	weights   model.Weights
	threshold int
}

// New creates a Scorer after validating the weights.
func New(weights model.Weights, threshold int) (*Scorer, error) {
	if err := config.ValidateWeights(weights); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights, threshold: threshold}, nil
}

// Threshold returns the qualification cutoff.
func (s *Scorer) Threshold() int { return s.threshold }

// Score combines the four signals into a breakdown. Qualification is
// inclusive of the threshold.
func (s *Scorer) Score(contacts []model.Contact, research *model.ResearchResult, src model.Source) model.ScoreBreakdown {
	sig := Signals(contacts, research, src)
	total := Total(sig, s.weights)
	return model.ScoreBreakdown{
		Signals:   sig,
		Weights:   s.weights,
		Total:     total,
		Threshold: s.threshold,
		Qualified: total >= s.threshold,
	}
}

// Total returns round(100 * Σ wᵢ·signalᵢ). Terms are summed in a fixed
// order so the result is reproducible bit for bit.
func Total(sig model.Signals, w model.Weights) int {
	sum := w.Contact*sig.Contact +
		w.Research*sig.Research +
		w.Relevance*sig.Relevance +
		w.Social*sig.Social
	// Nudge away from representation error at .5 boundaries (0.6*100 = 59.99...).
	return int(math.Round(sum*100 + 1e-9))
}

// Signals derives the normalized scorer inputs.
func Signals(contacts []model.Contact, research *model.ResearchResult, src model.Source) model.Signals {
	var sig model.Signals

	for _, c := range contacts {
		sig.Contact = math.Max(sig.Contact, c.Confidence)
	}
	sig.Contact = clamp01(sig.Contact)

	if research != nil {
		sig.Research = clamp01(research.Completeness)
		n := len(research.PainPoints) + len(research.ValueProps)
		sig.Relevance = math.Min(1, float64(n)/relevanceSaturation)
	}

	social := len(src.SocialLinks)
	if src.Phone != nil {
		social++
	}
	if src.Address != nil {
		social++
	}
	if src.Rating != nil && *src.Rating >= goodRating {
		social++
	}
	sig.Social = math.Min(1, float64(social)/socialIndicators)

	return sig
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
