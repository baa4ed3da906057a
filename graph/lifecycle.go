package graph

// transitions enumerates the non-failure edges of the state machine
// (spec.md §4.4.1). TERMINAL_FAILURE is reachable from any non-terminal
// state and is checked separately in canTransition.
var transitions = map[State]map[State]bool{
	StatePending:            {StateClassifying: true},
	StateClassifying:        {StatePlanning: true, StateExecuting: true},
	StatePlanning:           {StateWaitingForChildren: true},
	StateWaitingForChildren: {StateAggregating: true},
	// EXECUTING also feeds VERIFYING when verification is enabled: spec.md's
	// scenario 3 (§8) verifies a plain Executor artifact with no planning
	// subtree involved, so verification is not exclusive to the Aggregator
	// path described in §4.4.1's prose.
	StateExecuting:   {StateVerifying: true, StateTerminalSuccess: true},
	StateAggregating: {StateVerifying: true, StateTerminalSuccess: true},
	// VERIFYING re-enters EXECUTING or AGGREGATING on a retryable reject,
	// per spec.md §4.4.1 and the "Atomizer never re-invoked" decision
	// recorded in SPEC_FULL.md §7.
	StateVerifying: {StateTerminalSuccess: true, StateExecuting: true, StateAggregating: true},
}

// canTransition reports whether moving from -> to is permitted.
func canTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateTerminalFailure {
		return true
	}
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}
