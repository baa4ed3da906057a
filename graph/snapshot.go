package graph

import (
	"time"

	"github.com/roma-engine/roma/romaerr"
)

// NodeSnapshot is the structurally typed, serialization-friendly shape of a
// TaskNode, per spec.md §6's RunRecord field list.
type NodeSnapshot struct {
	ID           string
	Goal         string
	TaskType     TaskType
	NodeKind     NodeKind
	State        State
	ParentID     string
	DependsOn    []string
	Depth        int
	Attempts     int
	Result       any
	ResultHandle string
	Err          *FailureRecord
	CreatedAt    time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Snapshot is the graph's contribution to a RunRecord: enough to
// reconstruct every node and the parent/child ordering exactly.
type Snapshot struct {
	RootID   string
	MaxDepth int
	Nodes    map[string]NodeSnapshot
	Children map[string][]string
}

// Snapshot captures the graph's full state. snapshot ∘ restore is identity
// on reachable graph states (spec.md §8).
func (g *TaskGraph) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	nodes := make(map[string]NodeSnapshot, len(g.nodes))
	for id, n := range g.nodes {
		nodes[id] = NodeSnapshot{
			ID:           n.ID,
			Goal:         n.Goal,
			TaskType:     n.TaskType,
			NodeKind:     n.NodeKind,
			State:        n.State,
			ParentID:     n.ParentID,
			DependsOn:    append([]string(nil), n.DependsOn...),
			Depth:        n.Depth,
			Attempts:     n.Attempts,
			Result:       n.Result,
			ResultHandle: n.ResultHandle,
			Err:          n.Err,
			CreatedAt:    n.CreatedAt,
			StartedAt:    n.StartedAt,
			FinishedAt:   n.FinishedAt,
		}
	}
	children := make(map[string][]string, len(g.children))
	for id, cs := range g.children {
		children[id] = append([]string(nil), cs...)
	}
	return Snapshot{
		RootID:   g.rootID,
		MaxDepth: g.maxDepth,
		Nodes:    nodes,
		Children: children,
	}
}

// Restore rebuilds a TaskGraph from a Snapshot, recomputing the incremental
// unmet-dependency counters and result-attempt bookkeeping so the restored
// graph behaves identically to the one that produced the snapshot. On
// restore, in-flight nodes are treated by the caller (scheduler) as
// not-yet-dispatched; Restore itself only rebuilds graph state, it does not
// reason about in-flight cursors (those live in checkpoint.RunRecord).
func Restore(snap Snapshot) *TaskGraph {
	g := New(snap.MaxDepth)
	g.rootID = snap.RootID
	for id, ns := range snap.Nodes {
		g.nodes[id] = &TaskNode{
			ID:           ns.ID,
			Goal:         ns.Goal,
			TaskType:     ns.TaskType,
			NodeKind:     ns.NodeKind,
			State:        ns.State,
			ParentID:     ns.ParentID,
			DependsOn:    append([]string(nil), ns.DependsOn...),
			Depth:        ns.Depth,
			Attempts:     ns.Attempts,
			Result:       ns.Result,
			ResultHandle: ns.ResultHandle,
			Err:          ns.Err,
			CreatedAt:    ns.CreatedAt,
			StartedAt:    ns.StartedAt,
			FinishedAt:   ns.FinishedAt,
		}
		if ns.Result != nil || ns.ResultHandle != "" {
			g.nodes[id].resultAttempt = ns.Attempts + 1
		}
	}
	for id, cs := range snap.Children {
		g.children[id] = append([]string(nil), cs...)
	}
	for id, n := range g.nodes {
		n.unmetDeps = 0
		for _, dep := range n.DependsOn {
			if depNode := g.nodes[dep]; depNode == nil || depNode.State != StateTerminalSuccess {
				n.unmetDeps++
			}
		}
		g.nodes[id] = n
	}
	return g
}

// SetNodeKind records the Atomizer's classification for id.
func (g *TaskGraph) SetNodeKind(id string, kind NodeKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return romaerr.New(romaerr.KindGraphInvariantViolation, id, false, "unknown node %q", id)
	}
	n.NodeKind = kind
	return nil
}
