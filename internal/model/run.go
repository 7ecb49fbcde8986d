package model

import "time"

// RunStatus is the lifecycle of a batch run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusCancelled RunStatus = "cancelled"
)

// LeadOutcome is one row of a run report.
type LeadOutcome struct {
	LeadID    string     `json:"lead_id" yaml:"lead_id"`
	Name      string     `json:"name" yaml:"name"`
	State     State      `json:"state" yaml:"state"`
	Score     *int       `json:"score,omitempty" yaml:"score,omitempty"`
	Reason    ReasonCode `json:"reason,omitempty" yaml:"reason,omitempty"`
	Retryable bool       `json:"retryable,omitempty" yaml:"retryable,omitempty"`
	Retries   int        `json:"retries" yaml:"retries"`
}

// RunReport summarizes a run. Every input lead appears exactly once.
type RunReport struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	Status     RunStatus     `json:"status" yaml:"status"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Leads      []LeadOutcome `json:"leads" yaml:"leads"`
	Counts     map[State]int `json:"counts" yaml:"counts"`
}

// Outcome returns the report row for a lead.
func (r *RunReport) Outcome(leadID string) (LeadOutcome, bool) {
	for _, o := range r.Leads {
		if o.LeadID == leadID {
			return o, true
		}
	}
	return LeadOutcome{}, false
}
