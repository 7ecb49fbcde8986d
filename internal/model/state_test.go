package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateTerminal(t *testing.T) {
	t.Parallel()

	terminal := map[State]bool{StateSent: true, StateRejected: true, StateFailed: true}
	for _, s := range AllStates {
		assert.Equal(t, terminal[s], s.Terminal(), string(s))
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		want     bool
	}{
		{StateNew, StateResolving, true},
		{StateNew, StateResearching, false},
		{StateScored, StateRejected, true},
		{StateScored, StateQualified, true},
		{StateDrafted, StateApproved, true},
		{StateDrafted, StateAwaitingApproval, true},
		{StateAwaitingApproval, StateApproved, true},
		{StateAwaitingApproval, StateRejected, true},
		{StateAwaitingApproval, StateSending, false},
		{StateApproved, StateSending, true},
		{StateSending, StateSent, true},
		{StateResearching, StateFailed, true},
		{StateAwaitingApproval, StateFailed, true},
		{StateSent, StateFailed, false},
		{StateRejected, StateQualified, false},
		{StateFailed, StateNew, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestFailedReachableFromEveryNonTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range AllStates {
		if s.Terminal() {
			continue
		}
		assert.True(t, CanTransition(s, StateFailed), string(s))
	}
}

func TestStateValid(t *testing.T) {
	t.Parallel()

	assert.True(t, StateAwaitingApproval.Valid())
	assert.False(t, State("Parked").Valid())
}
