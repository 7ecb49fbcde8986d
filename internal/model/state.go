package model

// State is a position in the per-lead pipeline.
type State string

const (
	StateNew              State = "New"
	StateResolving        State = "Resolving"
	StateResearching      State = "Researching"
	StateScored           State = "Scored"
	StateRejected         State = "Rejected"
	StateQualified        State = "Qualified"
	StateDrafting         State = "Drafting"
	StateDrafted          State = "Drafted"
	StateAwaitingApproval State = "AwaitingApproval"
	StateApproved         State = "Approved"
	StateSending          State = "Sending"
	StateSent             State = "Sent"
	StateFailed           State = "Failed"
)

// AllStates lists every state in pipeline order.
var AllStates = []State{
	StateNew,
	StateResolving,
	StateResearching,
	StateScored,
	StateRejected,
	StateQualified,
	StateDrafting,
	StateDrafted,
	StateAwaitingApproval,
	StateApproved,
	StateSending,
	StateSent,
	StateFailed,
}

// transitions lists the forward edges of the state machine. Failed is
// reachable from every non-terminal state and is not listed here.
var transitions = map[State][]State{
	StateNew:              {StateResolving},
	StateResolving:        {StateResearching},
	StateResearching:      {StateScored},
	StateScored:           {StateRejected, StateQualified},
	StateQualified:        {StateDrafting},
	StateDrafting:         {StateDrafted},
	StateDrafted:          {StateApproved, StateAwaitingApproval},
	StateAwaitingApproval: {StateApproved, StateRejected, StateDrafting},
	StateApproved:         {StateSending},
	StateSending:          {StateSent},
}

// Terminal reports whether no further automatic transition leaves s.
func (s State) Terminal() bool {
	return s == StateSent || s == StateRejected || s == StateFailed
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
