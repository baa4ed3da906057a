package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roma-engine/roma/romaerr"
)

func TestCanTransitionHappyPaths(t *testing.T) {
	cases := []struct{ from, to State }{
		{StatePending, StateClassifying},
		{StateClassifying, StatePlanning},
		{StateClassifying, StateExecuting},
		{StatePlanning, StateWaitingForChildren},
		{StateWaitingForChildren, StateAggregating},
		{StateExecuting, StateTerminalSuccess},
		{StateExecuting, StateVerifying},
		{StateAggregating, StateVerifying},
		{StateAggregating, StateTerminalSuccess},
		{StateVerifying, StateTerminalSuccess},
		{StateVerifying, StateExecuting},
		{StateVerifying, StateAggregating},
	}
	for _, c := range cases {
		require.True(t, canTransition(c.from, c.to), "%s -> %s should be legal", c.from, c.to)
	}
}

func TestCanTransitionTerminalFailureFromAnyNonTerminal(t *testing.T) {
	for _, s := range []State{
		StatePending, StateClassifying, StatePlanning, StateWaitingForChildren,
		StateAggregating, StateVerifying, StateExecuting,
	} {
		require.True(t, canTransition(s, StateTerminalFailure), "%s -> TERMINAL_FAILURE should be legal", s)
	}
}

func TestCanTransitionRejectsFromTerminal(t *testing.T) {
	require.False(t, canTransition(StateTerminalSuccess, StateExecuting))
	require.False(t, canTransition(StateTerminalFailure, StatePending))
}

func TestCanTransitionRejectsSkippingStates(t *testing.T) {
	require.False(t, canTransition(StatePending, StateExecuting))
	require.False(t, canTransition(StatePlanning, StateTerminalSuccess))
	require.False(t, canTransition(StateWaitingForChildren, StateTerminalSuccess))
}

func TestSetStateRejectsIllegalTransition(t *testing.T) {
	g := New(5)
	root, err := g.CreateRoot("goal", TaskThink)
	require.NoError(t, err)
	err = g.SetState(root, StateExecuting)
	require.Error(t, err)
	kind, ok := romaerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, romaerr.KindIllegalTransition, kind)
}
