package scheduler

import (
	"context"

	"github.com/roma-engine/roma/graph"
	"github.com/roma-engine/roma/hooks"
	"github.com/roma-engine/roma/romaerr"
)

// Status is the coarse result of a run, per spec.md §6's outcome record.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Outcome is returned to the host on Solve/Resume (spec.md §6). On success,
// Artifact holds the root's result; on failure, ReasonKind/Message/
// FailingNodeID identify the first node that entered TERMINAL_FAILURE, per
// spec.md §7's "smallest identifying context" requirement.
type Outcome struct {
	Status Status

	Artifact any

	ReasonKind    romaerr.ReasonKind
	Message       string
	FailingNodeID string
	FailingGoal   string

	Graph graph.Snapshot
}

// buildOutcome derives the run's outcome from the (terminal) root node.
func (s *Scheduler) buildOutcome(root graph.TaskNode) Outcome {
	snap := s.graph.Snapshot()
	if root.State == graph.StateTerminalSuccess {
		out := Outcome{Status: StatusOK, Artifact: root.Result, Graph: snap}
		_ = s.cfg.Hooks.Publish(context.Background(), hooks.NewRunFinishedEvent(s.runID, string(StatusOK), "", ""))
		return out
	}

	failID, failGoal, reason, msg := root.ID, root.Goal, romaerr.ReasonInvariantViolation, "run failed"
	if s.firstFailureID != "" {
		failID = s.firstFailureID
		if n, ok := s.graph.Get(failID); ok {
			failGoal = n.Goal
		}
	}
	if s.firstFailure != nil {
		reason = romaerr.ToReasonKind(s.firstFailure.Kind)
		msg = s.firstFailure.Message
	} else if root.Err != nil {
		reason = romaerr.ToReasonKind(root.Err.Kind)
		msg = root.Err.Message
	}

	out := Outcome{
		Status:        StatusFailed,
		ReasonKind:    reason,
		Message:       msg,
		FailingNodeID: failID,
		FailingGoal:   failGoal,
		Graph:         snap,
	}
	_ = s.cfg.Hooks.Publish(context.Background(), hooks.NewRunFinishedEvent(s.runID, string(StatusFailed), reason, failID))
	return out
}

// handleDeadline halts the run on global deadline expiry (spec.md §4.4.4):
// the scheduler stops dispatching new nodes (the caller's loop returns
// immediately after this), in-flight dispatches are left to be discarded by
// their own ctx cancellation, and the root is forced to TERMINAL_FAILURE
// with DeadlineExceeded. Already-completed nodes retain their results in
// the snapshot.
func (s *Scheduler) handleDeadline(ctx context.Context) Outcome {
	rootID := s.graph.RootID()
	root, ok := s.graph.Get(rootID)
	if ok && !root.State.IsTerminal() {
		err := romaerr.New(romaerr.KindDeadlineExceeded, rootID, false, "run deadline exceeded")
		_ = s.graph.SetError(rootID, err)
		if setErr := s.graph.SetState(rootID, graph.StateTerminalFailure); setErr == nil {
			s.recordFailure(rootID, err)
			root, _ = s.graph.Get(rootID)
		}
	}
	snap := s.graph.Snapshot()
	out := Outcome{
		Status:        StatusFailed,
		ReasonKind:    romaerr.ReasonDeadlineExceeded,
		Message:       "run deadline exceeded",
		FailingNodeID: rootID,
		FailingGoal:   root.Goal,
		Graph:         snap,
	}
	_ = s.cfg.Hooks.Publish(ctx, hooks.NewRunFinishedEvent(s.runID, string(StatusFailed), romaerr.ReasonDeadlineExceeded, rootID))
	return out
}

// stuckOutcome guards against a scheduler bug leaving the graph with no
// ready work, nothing in flight, and a non-terminal root. A healthy run
// never reaches this per spec.md's invariants; surfacing it as
// InvariantViolation rather than hanging makes the bug visible.
func (s *Scheduler) stuckOutcome() Outcome {
	rootID := s.graph.RootID()
	root, _ := s.graph.Get(rootID)
	_ = s.cfg.Hooks.Publish(context.Background(), hooks.NewRunFinishedEvent(s.runID, string(StatusFailed), romaerr.ReasonInvariantViolation, rootID))
	return Outcome{
		Status:        StatusFailed,
		ReasonKind:    romaerr.ReasonInvariantViolation,
		Message:       "scheduler has no ready or in-flight work but the root is not terminal",
		FailingNodeID: rootID,
		FailingGoal:   root.Goal,
		Graph:         s.graph.Snapshot(),
	}
}
