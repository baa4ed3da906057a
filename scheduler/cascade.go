package scheduler

import (
	"context"

	"github.com/roma-engine/roma/graph"
	"github.com/roma-engine/roma/romaerr"
)

// applyCascades propagates failures that the scheduler's dispatch loop
// cannot discover on its own: a PENDING node whose depends_on includes a
// TERMINAL_FAILURE sibling will never satisfy its readiness condition
// (graph.go only decrements unmetDeps on TERMINAL_SUCCESS), and a
// WAITING_FOR_CHILDREN node whose children are all terminal but include a
// failure, with aggregate_partial off (or no successful child to aggregate
// over), must fail rather than wait forever.
//
// Decided open question (SPEC_FULL.md §7, item 1): a failed dependency
// always fails its dependent regardless of aggregate_partial; that flag
// only governs whether a planning node's Aggregator runs over a partial
// child set.
func (s *Scheduler) applyCascades() {
	for _, id := range s.graph.NodesInStates(graph.StatePending) {
		node, ok := s.graph.Get(id)
		if !ok {
			continue
		}
		for _, depID := range node.DependsOn {
			dep, ok := s.graph.Get(depID)
			if ok && dep.State == graph.StateTerminalFailure {
				s.failNonRetryable(context.Background(), id, propagatedFailure(id, dep.Err, depID))
				break
			}
		}
	}

	for _, id := range s.graph.NodesInStates(graph.StateWaitingForChildren) {
		succeeded, failed, pending := s.graph.ChildrenPartition(id)
		if pending || len(failed) == 0 {
			continue
		}
		if s.cfg.AggregatePartial && len(succeeded) > 0 {
			continue // left to waitingForChildrenReady/dispatchAggregator
		}
		failedChild, _ := s.graph.Get(failed[0])
		s.failNonRetryable(context.Background(), id, propagatedFailure(id, failedChild.Err, failed[0]))
	}
}

// propagatedFailure wraps a descendant/dependency's failure for the
// ancestor it cascades to, preserving the original Kind so the run's
// eventual outcome.ReasonKind still reflects the true root cause.
func propagatedFailure(nodeID string, cause *romaerr.Error, causeID string) *romaerr.Error {
	kind := romaerr.KindReasonerFailure
	if cause != nil {
		kind = cause.Kind
	}
	return romaerr.Wrap(kind, nodeID, false, cause, "dependency %q failed", causeID)
}
