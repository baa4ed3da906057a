package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/roma-engine/roma/execctx"
	"github.com/roma-engine/roma/graph"
	"github.com/roma-engine/roma/hooks"
	"github.com/roma-engine/roma/reasoner"
	"github.com/roma-engine/roma/romaerr"
)

// runDispatch performs exactly one reasoner call for nodeID's current state
// and applies its effect to the graph (spec.md §4.3's role table, §4.4.1's
// transitions). Each call here is "one in-flight slot executing one
// reasoner dispatch" (spec.md §4.4.2); the following phase for the same
// node is picked up by the next scheduling tick, not chained inline, so
// max_inflight bounds concurrent reasoner calls rather than concurrent
// node lifecycles.
func (s *Scheduler) runDispatch(ctx context.Context, nodeID string) {
	if ctx.Err() != nil {
		return
	}
	node, ok := s.graph.Get(nodeID)
	if !ok {
		return
	}

	switch node.State {
	case graph.StatePending:
		s.transition(ctx, nodeID, graph.StateClassifying)
		s.dispatchAtomizer(ctx, nodeID)
	case graph.StateClassifying:
		// Restored mid-flight (spec.md §4.4.6): re-dispatch in place.
		s.dispatchAtomizer(ctx, nodeID)
	case graph.StatePlanning:
		s.dispatchPlanner(ctx, nodeID)
	case graph.StateWaitingForChildren:
		s.transition(ctx, nodeID, graph.StateAggregating)
		s.dispatchAggregator(ctx, nodeID)
	case graph.StateAggregating:
		s.dispatchAggregator(ctx, nodeID)
	case graph.StateExecuting:
		s.dispatchExecutor(ctx, nodeID)
	case graph.StateVerifying:
		s.dispatchVerifier(ctx, nodeID)
	}
}

func (s *Scheduler) dispatchAtomizer(ctx context.Context, nodeID string) {
	node, ok := s.graph.Get(nodeID)
	if !ok {
		return
	}
	ectx, err := execctx.Build(s.graph, nodeID, "")
	if err != nil {
		s.failNonRetryable(ctx, nodeID, toError(err))
		return
	}

	resp, callErr := s.invoke(ctx, nodeID, reasoner.RoleAtomizer, reasoner.Request{
		Role:   reasoner.RoleAtomizer,
		NodeID: nodeID,
		Atomizer: &reasoner.AtomizerRequest{
			Goal:    node.Goal,
			Context: ectx,
		},
	})
	if callErr != nil {
		s.handleReasonerFailure(ctx, nodeID, graph.StateClassifying, callErr)
		return
	}

	kind := resp.Atomizer.NodeKind
	if node.Depth >= s.graph.MaxDepth() {
		kind = graph.KindExecute
	}
	if kind == graph.KindUnclassified {
		if resp.Atomizer.IsAtomic {
			kind = graph.KindExecute
		} else {
			kind = graph.KindPlan
		}
	}

	_ = s.graph.SetNodeKind(nodeID, kind)
	if kind == graph.KindPlan {
		s.transition(ctx, nodeID, graph.StatePlanning)
	} else {
		s.transition(ctx, nodeID, graph.StateExecuting)
	}
}

func (s *Scheduler) dispatchPlanner(ctx context.Context, nodeID string) {
	node, ok := s.graph.Get(nodeID)
	if !ok {
		return
	}
	ectx, err := execctx.Build(s.graph, nodeID, s.feedbackFor(nodeID))
	if err != nil {
		s.failNonRetryable(ctx, nodeID, toError(err))
		return
	}

	resp, callErr := s.invoke(ctx, nodeID, reasoner.RolePlanner, reasoner.Request{
		Role:   reasoner.RolePlanner,
		NodeID: nodeID,
		Planner: &reasoner.PlannerRequest{
			Goal:    node.Goal,
			Context: ectx,
		},
	})
	if callErr != nil {
		s.handleReasonerFailure(ctx, nodeID, graph.StatePlanning, callErr)
		return
	}

	if _, err := s.graph.AddChildren(nodeID, resp.Planner.Children); err != nil {
		// EmptyPlan and InvalidPlan are always non-retryable (spec.md §4.4.3,
		// §7): either the plan is structurally wrong or the Planner gave up.
		s.failNonRetryable(ctx, nodeID, toError(err))
		return
	}
	s.transition(ctx, nodeID, graph.StateWaitingForChildren)
}

func (s *Scheduler) dispatchExecutor(ctx context.Context, nodeID string) {
	node, ok := s.graph.Get(nodeID)
	if !ok {
		return
	}
	ectx, err := execctx.Build(s.graph, nodeID, s.feedbackFor(nodeID))
	if err != nil {
		s.failNonRetryable(ctx, nodeID, toError(err))
		return
	}

	resp, callErr := s.invoke(ctx, nodeID, reasoner.RoleExecutor, reasoner.Request{
		Role:   reasoner.RoleExecutor,
		NodeID: nodeID,
		Executor: &reasoner.ExecutorRequest{
			Goal:     node.Goal,
			Context:  ectx,
			TaskType: node.TaskType,
			Tools:    s.cfg.Tools[node.TaskType],
		},
	})
	if callErr != nil {
		s.handleReasonerFailure(ctx, nodeID, graph.StateExecuting, callErr)
		return
	}

	if err := s.graph.SetResult(nodeID, resp.Executor.Artifact); err != nil {
		s.failNonRetryable(ctx, nodeID, toError(err))
		return
	}
	s.clearFeedback(nodeID)
	if s.cfg.VerificationEnabled {
		s.transition(ctx, nodeID, graph.StateVerifying)
	} else {
		s.transition(ctx, nodeID, graph.StateTerminalSuccess)
	}
}

func (s *Scheduler) dispatchAggregator(ctx context.Context, nodeID string) {
	node, ok := s.graph.Get(nodeID)
	if !ok {
		return
	}
	succeeded, failed, _ := s.graph.ChildrenPartition(nodeID)

	children := make([]reasoner.AggregatorChildResult, 0, len(succeeded))
	for _, childID := range s.graph.Children(nodeID) {
		for _, ok := range succeeded {
			if ok == childID {
				child, _ := s.graph.Get(childID)
				children = append(children, reasoner.AggregatorChildResult{
					NodeID:   child.ID,
					Goal:     child.Goal,
					TaskType: child.TaskType,
					Result:   child.Result,
				})
			}
		}
	}
	var failedChildren []reasoner.AggregatorFailedChild
	if s.cfg.AggregatePartial {
		for _, childID := range failed {
			child, _ := s.graph.Get(childID)
			failedChildren = append(failedChildren, reasoner.AggregatorFailedChild{
				NodeID: child.ID,
				Goal:   child.Goal,
				Err:    child.Err,
			})
		}
	}

	resp, callErr := s.invoke(ctx, nodeID, reasoner.RoleAggregator, reasoner.Request{
		Role:   reasoner.RoleAggregator,
		NodeID: nodeID,
		Aggregator: &reasoner.AggregatorRequest{
			ParentGoal:     node.Goal,
			Children:       children,
			FailedChildren: failedChildren,
		},
	})
	if callErr != nil {
		s.handleReasonerFailure(ctx, nodeID, graph.StateAggregating, callErr)
		return
	}

	if err := s.graph.SetResult(nodeID, resp.Aggregator.SynthesizedArtifact); err != nil {
		s.failNonRetryable(ctx, nodeID, toError(err))
		return
	}
	s.clearFeedback(nodeID)
	if s.cfg.VerificationEnabled {
		s.transition(ctx, nodeID, graph.StateVerifying)
	} else {
		s.transition(ctx, nodeID, graph.StateTerminalSuccess)
	}
}

func (s *Scheduler) dispatchVerifier(ctx context.Context, nodeID string) {
	node, ok := s.graph.Get(nodeID)
	if !ok {
		return
	}

	resp, callErr := s.invoke(ctx, nodeID, reasoner.RoleVerifier, reasoner.Request{
		Role:   reasoner.RoleVerifier,
		NodeID: nodeID,
		Verifier: &reasoner.VerifierRequest{
			OriginalGoal:      node.Goal,
			CandidateArtifact: node.Result,
		},
	})
	if callErr != nil {
		s.handleReasonerFailure(ctx, nodeID, graph.StateVerifying, callErr)
		return
	}

	if resp.Verifier.Verdict == reasoner.VerdictOK {
		s.transition(ctx, nodeID, graph.StateTerminalSuccess)
		return
	}

	// Reject: only the Executor/Aggregator state is re-entered, never the
	// Atomizer (SPEC_FULL.md §7, open question 2).
	if !s.canRetry(node) {
		s.failNonRetryable(ctx, nodeID, romaerr.New(romaerr.KindVerificationRejected, nodeID, false,
			"verification rejected after %d attempts: %s", node.Attempts+1, resp.Verifier.Feedback))
		return
	}
	_ = s.graph.IncrementAttempts(nodeID)
	s.setFeedback(nodeID, resp.Verifier.Feedback)
	if node.NodeKind == graph.KindPlan {
		s.transition(ctx, nodeID, graph.StateAggregating)
	} else {
		s.transition(ctx, nodeID, graph.StateExecuting)
	}
}

// invoke calls the provider for req, applying the configured per-node
// timeout and dispatch-rate limiter, and publishes the
// ReasonerDispatched/ReasonerCompleted hook events around the call.
func (s *Scheduler) invoke(ctx context.Context, nodeID string, role reasoner.Role, req reasoner.Request) (reasoner.Response, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return reasoner.Response{}, romaerr.Wrap(romaerr.KindCancelled, nodeID, false, err, "dispatch rate wait cancelled")
		}
	}

	node, _ := s.graph.Get(nodeID)
	attempt := node.Attempts + 1

	callCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.NodeTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.NodeTimeout)
		defer cancel()
	}

	_ = s.cfg.Hooks.Publish(ctx, hooks.NewReasonerDispatchedEvent(s.runID, nodeID, string(role), attempt))
	s.cfg.Logger.Debug(ctx, "dispatching reasoner", "node_id", nodeID, "role", role, "attempt", attempt)
	start := time.Now()

	resp, err := s.cfg.Provider.Invoke(callCtx, req)

	duration := time.Since(start)
	_ = s.cfg.Hooks.Publish(ctx, hooks.NewReasonerCompletedEvent(s.runID, nodeID, string(role), attempt, duration, err))
	s.cfg.Metrics.RecordTimer("roma.dispatch.duration", duration, "role", string(role))
	s.cfg.Metrics.IncCounter("roma.dispatch.count", 1, "role", string(role))

	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return reasoner.Response{}, s.nodeTimeoutErr(nodeID)
		}
		return reasoner.Response{}, toError(err)
	}
	return resp, nil
}

// nodeTimeoutErr builds the per-node-timeout failure, retryable exactly
// once per node (spec.md §4.4.4): "NodeTimeout is one-shot retryable".
func (s *Scheduler) nodeTimeoutErr(nodeID string) *romaerr.Error {
	s.mu.Lock()
	s.nodeTimeouts[nodeID]++
	count := s.nodeTimeouts[nodeID]
	s.mu.Unlock()
	retryable := count <= 1
	return romaerr.New(romaerr.KindNodeTimeout, nodeID, retryable, "per-node timeout elapsed (occurrence %d)", count)
}

// handleReasonerFailure applies the retry/fail policy to a reasoner
// dispatch failure: retryable failures re-enter the same active state
// (consuming an attempt); non-retryable or budget-exhausted failures
// terminate the node (spec.md §4.4.5, §7).
func (s *Scheduler) handleReasonerFailure(ctx context.Context, nodeID string, _ graph.State, err error) {
	e := toError(err)
	node, ok := s.graph.Get(nodeID)
	if !ok {
		return
	}
	if e.Retryable && s.canRetry(node) {
		_ = s.graph.IncrementAttempts(nodeID)
		s.cfg.Logger.Warn(ctx, "retryable reasoner failure", "node_id", nodeID, "kind", e.Kind, "attempt", node.Attempts+1)
		return
	}
	s.failNonRetryable(ctx, nodeID, e)
}

// canRetry reports whether node has remaining attempts budget for one more
// try, per spec.md §4.4.5.
func (s *Scheduler) canRetry(node graph.TaskNode) bool {
	return node.Attempts+1 < s.cfg.AttemptsBudget
}

// failNonRetryable records err on nodeID and transitions it to
// TERMINAL_FAILURE, then remembers it as the run's first failure if it is.
func (s *Scheduler) failNonRetryable(ctx context.Context, nodeID string, err *romaerr.Error) {
	_ = s.graph.SetError(nodeID, err)
	s.transition(ctx, nodeID, graph.StateTerminalFailure)
	s.recordFailure(nodeID, err)
	s.cfg.Logger.Error(ctx, "node failed", "node_id", nodeID, "kind", err.Kind, "message", err.Message)
}

// transition applies a graph state change and publishes the corresponding
// hook event. Illegal-transition errors here indicate a scheduler bug, not
// a recoverable condition, so they are logged rather than silently
// swallowed.
func (s *Scheduler) transition(ctx context.Context, nodeID string, to graph.State) {
	node, _ := s.graph.Get(nodeID)
	from := node.State
	if err := s.graph.SetState(nodeID, to); err != nil {
		s.cfg.Logger.Error(ctx, "illegal transition", "node_id", nodeID, "from", from, "to", to, "error", err)
		return
	}
	_ = s.cfg.Hooks.Publish(ctx, hooks.NewNodeStateChangedEvent(s.runID, nodeID, string(from), string(to)))
	s.mu.Lock()
	s.transitions++
	s.mu.Unlock()
}

func toError(err error) *romaerr.Error {
	var e *romaerr.Error
	if errors.As(err, &e) {
		return e
	}
	return reasoner.WrapFailure("", reasoner.Role(""), err, true)
}
