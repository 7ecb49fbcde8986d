package model

import "time"

// OutcomeKind is the kind of result recorded in the memory log.
type OutcomeKind string

const (
	OutcomeApproved OutcomeKind = "approved"
	OutcomeRejected OutcomeKind = "rejected"
	OutcomeSent     OutcomeKind = "sent"
	OutcomeFailed   OutcomeKind = "failed"
	OutcomeOpened   OutcomeKind = "opened"
	OutcomeReplied  OutcomeKind = "replied"
	OutcomeBounced  OutcomeKind = "bounced"
)

// Valid reports whether k is a known outcome kind.
func (k OutcomeKind) Valid() bool {
	switch k {
	case OutcomeApproved, OutcomeRejected, OutcomeSent, OutcomeFailed,
		OutcomeOpened, OutcomeReplied, OutcomeBounced:
		return true
	}
	return false
}

// OutcomeEvent is an immutable entry in the memory log.
type OutcomeEvent struct {
	ID        string      `json:"id"`
	Seq       int64       `json:"seq"`
	LeadID    string      `json:"lead_id"`
	Stage     State       `json:"stage"`
	Kind      OutcomeKind `json:"kind"`
	Strategy  Strategy    `json:"strategy,omitempty"`
	Tone      Tone        `json:"tone,omitempty"`
	Industry  string      `json:"industry,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Transition is emitted after every state change.
type Transition struct {
	RunID   string     `json:"run_id"`
	LeadID  string     `json:"lead_id"`
	From    State      `json:"from"`
	To      State      `json:"to"`
	Reason  ReasonCode `json:"reason,omitempty"`
	Retries int        `json:"retries"`
	At      time.Time  `json:"at"`
}
