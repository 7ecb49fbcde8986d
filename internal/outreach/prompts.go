package outreach

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/ahermangesh/Leads/internal/model"
)

// Prompts holds the strategy instructions and tone descriptions given to the
// oracle.
type Prompts struct {
	Strategies map[model.Strategy]string `yaml:"strategies"`
	Tones      map[model.Tone]string     `yaml:"tones"`
}

// DefaultPrompts returns the built-in instructions.
func DefaultPrompts() Prompts {
	return Prompts{
		Strategies: map[model.Strategy]string{
			model.StrategyValueProposition: "Focus on the value and concrete results you can bring them. " +
				"Make it about solving their problems, not about your services.",
			model.StrategyPainPoint: "Address one specific challenge businesses like theirs face. " +
				"Show you understand it and offer a solution without a hard sell.",
			model.StrategySocialProof: "Mention results achieved for similar businesses without naming them. " +
				"Build credibility through specific outcomes.",
		},
		Tones: map[model.Tone]string{
			model.ToneProfessional: "professional and respectful",
			model.ToneCasual:       "casual and conversational",
			model.ToneFriendly:     "warm and friendly",
			model.ToneFormal:       "formal and courteous",
		},
	}
}

// LoadPrompts reads a YAML override file and merges it over the defaults.
// Unknown strategy or tone keys are rejected. An empty path returns the
// defaults.
func LoadPrompts(path string) (Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, eris.Wrapf(err, "outreach: read prompts file %s", path)
	}
	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return p, eris.Wrapf(err, "outreach: parse prompts file %s", path)
	}

	for s, text := range override.Strategies {
		if !s.Valid() {
			return p, eris.Errorf("outreach: prompts file names unknown strategy %q", s)
		}
		p.Strategies[s] = text
	}
	for t, text := range override.Tones {
		if !t.Valid() {
			return p, eris.Errorf("outreach: prompts file names unknown tone %q", t)
		}
		p.Tones[t] = text
	}
	return p, nil
}
