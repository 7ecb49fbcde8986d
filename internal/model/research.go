package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeIndustry lowercases an industry label and collapses whitespace so
// labels from different runs group together.
func NormalizeIndustry(s string) string {
	return strings.Join(strings.Fields(cases.Lower(language.Und).String(s)), " ")
}

// ResearchMode marks whether a ResearchResult came from the oracle or from
// the local heuristic fallback.
type ResearchMode string

const (
	ResearchFull     ResearchMode = "full"
	ResearchDegraded ResearchMode = "degraded"
)

// ResearchResult is the structured business analysis for a lead.
type ResearchResult struct {
	Summary        string       `json:"summary"`
	Industry       string       `json:"industry"`
	PainPoints     []string     `json:"pain_points"`
	ValueProps     []string     `json:"value_propositions"`
	TargetAudience string       `json:"target_audience,omitempty"`
	Services       []string     `json:"services,omitempty"`
	OutreachAngles []string     `json:"outreach_angles,omitempty"`
	BusinessSize   string       `json:"business_size,omitempty"`
	RedFlags       []string     `json:"red_flags,omitempty"`
	Completeness   float64      `json:"completeness"`
	Mode           ResearchMode `json:"mode"`
	RawOutput      string       `json:"raw_output,omitempty"`
}

// Degraded reports whether the result came from the heuristic fallback.
func (r *ResearchResult) Degraded() bool {
	return r != nil && r.Mode == ResearchDegraded
}

// Signals are the four scorer inputs, each in [0,1].
type Signals struct {
	Contact   float64 `json:"contact"`
	Research  float64 `json:"research"`
	Relevance float64 `json:"relevance"`
	Social    float64 `json:"social"`
}

// Weights are the configured scorer weights. They must sum to 1.0.
type Weights struct {
	Contact   float64 `json:"contact" yaml:"contact" mapstructure:"contact"`
	Research  float64 `json:"research" yaml:"research" mapstructure:"research"`
	Relevance float64 `json:"relevance" yaml:"relevance" mapstructure:"relevance"`
	Social    float64 `json:"social" yaml:"social" mapstructure:"social"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Contact + w.Research + w.Relevance + w.Social
}

// ScoreBreakdown explains a quality score.
type ScoreBreakdown struct {
	Signals   Signals `json:"signals"`
	Weights   Weights `json:"weights"`
	Total     int     `json:"total"`
	Threshold int     `json:"threshold"`
	Qualified bool    `json:"qualified"`
}
