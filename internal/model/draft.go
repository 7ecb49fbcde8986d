package model

import (
	"strings"
	"time"
)

// Strategy selects the persuasive angle of an outreach draft.
type Strategy string

const (
	StrategyValueProposition Strategy = "value_proposition"
	StrategyPainPoint        Strategy = "pain_point"
	StrategySocialProof      Strategy = "social_proof"
)

// Strategies lists every supported strategy.
var Strategies = []Strategy{StrategyValueProposition, StrategyPainPoint, StrategySocialProof}

// Valid reports whether s is a supported strategy.
func (s Strategy) Valid() bool {
	for _, v := range Strategies {
		if v == s {
			return true
		}
	}
	return false
}

// Tone selects the register of an outreach draft.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
	ToneFriendly     Tone = "friendly"
	ToneFormal       Tone = "formal"
)

// Tones lists every supported tone.
var Tones = []Tone{ToneProfessional, ToneCasual, ToneFriendly, ToneFormal}

// Valid reports whether t is a supported tone.
func (t Tone) Valid() bool {
	for _, v := range Tones {
		if v == t {
			return true
		}
	}
	return false
}

// Draft is a generated, not-yet-sent outreach message. Footer holds the
// compliance block appended by the generator.
type Draft struct {
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Footer      string    `json:"footer"`
	Strategy    Strategy  `json:"strategy"`
	Tone        Tone      `json:"tone"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Text returns the message as delivered: body followed by the footer.
func (d *Draft) Text() string {
	return d.Body + d.Footer
}

// HasFooter reports whether the compliance footer is present.
func (d *Draft) HasFooter() bool {
	return d != nil && strings.TrimSpace(d.Footer) != ""
}
