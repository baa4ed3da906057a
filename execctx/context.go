// Package execctx builds the read-only execution context delivered to a
// reasoner for a specific node: the node's own goal, its sibling
// dependencies' results, and the chain of ancestor artifacts leading back
// to the root.
package execctx

import (
	"github.com/roma-engine/roma/graph"
	"github.com/roma-engine/roma/romaerr"
)

// AncestorResult pairs an ancestor node's goal and result, in ancestor-first
// (root-first) order.
type AncestorResult struct {
	NodeID string
	Goal   string
	Result any
}

// Context is the read-only projection exposed to a reasoner for one
// dispatch. It is a snapshot: if a sibling's result changes after
// construction (e.g. a retry), a reasoner already dispatched with this
// Context still sees the old value (spec.md §4.2).
type Context struct {
	Goal              string
	ParentGoal        string
	SiblingResults    map[string]any
	TransitiveResults []AncestorResult
	TaskType          graph.TaskType
	Depth             int
	// Feedback carries verifier-reject or retry-hint text forward into the
	// next dispatch's context (spec.md §4.4.5, §7). Empty on a node's first
	// attempt.
	Feedback string
}

// Build assembles the Context for nodeID by walking (a) the node's
// DependsOn siblings to gather SiblingResults, then (b) the parent chain to
// gather TransitiveResults in ancestor-first order. The walk stops at the
// root. Contexts never include descendants of the current node (spec.md
// §4.2): none exist yet for a node in a pre-expansion state, and the
// Aggregator receives descendants through graph.SubtreeResults instead.
func Build(g *graph.TaskGraph, nodeID string, feedback string) (Context, error) {
	node, ok := g.Get(nodeID)
	if !ok {
		return Context{}, romaerr.New(romaerr.KindContextPreconditionViolation, nodeID, false,
			"unknown node %q", nodeID)
	}

	ctx := Context{
		Goal:           node.Goal,
		SiblingResults: make(map[string]any, len(node.DependsOn)),
		TaskType:       node.TaskType,
		Depth:          node.Depth,
		Feedback:       feedback,
	}

	for _, depID := range node.DependsOn {
		dep, ok := g.Get(depID)
		if !ok || dep.State != graph.StateTerminalSuccess {
			return Context{}, romaerr.New(romaerr.KindContextPreconditionViolation, nodeID, false,
				"sibling dependency %q is not terminal-success", depID)
		}
		ctx.SiblingResults[depID] = dep.Result
	}

	var chain []AncestorResult
	parentID := node.ParentID
	for parentID != "" {
		parent, ok := g.Get(parentID)
		if !ok {
			return Context{}, romaerr.New(romaerr.KindContextPreconditionViolation, nodeID, false,
				"unknown ancestor %q", parentID)
		}
		switch {
		case parent.State == graph.StateTerminalSuccess:
			chain = append(chain, AncestorResult{NodeID: parent.ID, Goal: parent.Goal, Result: parent.Result})
		case !isAncestorPending(parent.State):
			return Context{}, romaerr.New(romaerr.KindContextPreconditionViolation, nodeID, false,
				"ancestor %q is in unexpected state %s", parent.ID, parent.State)
		}
		parentID = parent.ParentID
	}
	// The walk above appends nearest-ancestor-first; reverse to get
	// ancestor-first (root-first) order per spec.md §4.2.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	ctx.TransitiveResults = chain

	if node.ParentID != "" {
		if parent, ok := g.Get(node.ParentID); ok {
			ctx.ParentGoal = parent.Goal
		}
	}
	return ctx, nil
}

// isAncestorPending reports whether an ancestor's state is a normal
// transient state for a planning node awaiting its subtree (e.g. every
// ancestor of a node being dispatched is typically still
// WAITING_FOR_CHILDREN). Such ancestors are skipped rather than added to
// TransitiveResults; an ancestor in any other non-terminal-success state
// (PENDING, CLASSIFYING, EXECUTING, TERMINAL_FAILURE) fails Build.
func isAncestorPending(state graph.State) bool {
	switch state {
	case graph.StateWaitingForChildren, graph.StateAggregating, graph.StateVerifying, graph.StatePlanning:
		return true
	default:
		return false
	}
}
