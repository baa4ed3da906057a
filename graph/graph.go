package graph

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roma-engine/roma/romaerr"
)

// TaskGraph is the set of all TaskNodes in one solver run. It is the single
// shared mutable structure of a run (spec.md §5); every mutation acquires
// mu, which is the "mutex held across every graph update" option spec.md §5
// permits for serializing concurrent dispatch responses.
type TaskGraph struct {
	mu sync.Mutex

	rootID   string
	maxDepth int

	nodes    map[string]*TaskNode
	children map[string][]string // parentID -> ordered child IDs
}

// New constructs an empty TaskGraph bounded by maxDepth.
func New(maxDepth int) *TaskGraph {
	return &TaskGraph{
		maxDepth: maxDepth,
		nodes:    make(map[string]*TaskNode),
		children: make(map[string][]string),
	}
}

// RootID returns the run's root node id.
func (g *TaskGraph) RootID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rootID
}

// Get returns a copy of the node for id, or false if it doesn't exist.
// Returning a copy keeps ancestors read-only from a descendant's dispatch
// (invariant 6): callers cannot mutate the live node through the returned
// value.
func (g *TaskGraph) Get(id string) (TaskNode, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return TaskNode{}, false
	}
	return *n, true
}

// Children returns the ordered child ids of id.
func (g *TaskGraph) Children(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.children[id]...)
}

// CreateRoot creates the single root node of the run. It fails if a root
// already exists.
func (g *TaskGraph) CreateRoot(goal string, taskType TaskType) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rootID != "" {
		return "", romaerr.New(romaerr.KindGraphInvariantViolation, "", false, "root already created")
	}
	id := uuid.NewString()
	now := time.Now()
	g.nodes[id] = &TaskNode{
		ID:        id,
		Goal:      goal,
		TaskType:  taskType,
		State:     StatePending,
		Depth:     0,
		CreatedAt: now,
	}
	g.rootID = id
	return id, nil
}

// AddChild adds a single child under parentID depending on the given
// sibling ids (must already exist as children of the same parent). It is a
// thin wrapper over AddChildren for hosts that want to add nodes one at a
// time outside of a Planner batch (e.g. tests, or the facade seeding extra
// top-level work).
func (g *TaskGraph) AddChild(parentID, goal string, taskType TaskType, dependsOn []string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids, err := g.addChildrenLocked(parentID, []ChildSpec{{Goal: goal, TaskType: taskType}}, dependsOn)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AddChildren atomically inserts a Planner's batch of child specs under
// parentID. DependsOnLocalIndex entries reference positions within this
// same batch. Either every child and its dependency edges are added, or
// none are (spec.md §4.4.3): on any violation the whole batch is rejected
// and no node is created.
func (g *TaskGraph) AddChildren(parentID string, specs []ChildSpec) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(specs) == 0 {
		return nil, romaerr.New(romaerr.KindEmptyPlan, parentID, false, "planner returned an empty plan")
	}
	return g.addChildrenLocked(parentID, specs, nil)
}

// addChildrenLocked performs the actual batch insertion. extraDependsOn, if
// non-nil, is a set of already-existing sibling ids every spec additionally
// depends on (used by AddChild's single-node convenience path).
func (g *TaskGraph) addChildrenLocked(parentID string, specs []ChildSpec, extraDependsOn []string) ([]string, error) {
	parent, ok := g.nodes[parentID]
	if !ok {
		return nil, romaerr.New(romaerr.KindGraphInvariantViolation, parentID, false, "unknown parent %q", parentID)
	}

	for _, depID := range extraDependsOn {
		if dep, ok := g.nodes[depID]; !ok || dep.ParentID != parentID {
			return nil, romaerr.New(romaerr.KindInvalidPlan, parentID, false,
				"dependency %q is not an existing child of %q", depID, parentID)
		}
	}

	depth := parent.Depth + 1
	ids := make([]string, len(specs))
	for i := range specs {
		ids[i] = uuid.NewString()
	}

	newNodes := make([]*TaskNode, len(specs))
	for i, spec := range specs {
		dependsOn := append([]string(nil), extraDependsOn...)
		for _, localIdx := range spec.DependsOnLocalIndex {
			if localIdx < 0 || localIdx >= len(specs) || localIdx == i {
				return nil, romaerr.New(romaerr.KindInvalidPlan, parentID,
					false, "child %d depends on unknown sibling index %d", i, localIdx)
			}
			dependsOn = append(dependsOn, ids[localIdx])
		}
		unmet := 0
		for _, depID := range dependsOn {
			if dep := g.nodes[depID]; dep == nil || dep.State != StateTerminalSuccess {
				unmet++
			}
		}
		now := time.Now()
		newNodes[i] = &TaskNode{
			ID:        ids[i],
			Goal:      spec.Goal,
			TaskType:  spec.TaskType,
			State:     StatePending,
			ParentID:  parentID,
			DependsOn: dependsOn,
			Depth:     depth,
			CreatedAt: now,
			unmetDeps: unmet,
		}
	}

	if depth > g.maxDepth {
		return nil, romaerr.New(romaerr.KindDepthExceeded, parentID, false,
			"child depth %d exceeds max_depth %d", depth, g.maxDepth)
	}

	// Insert the whole batch provisionally before checking for cycles: a
	// cycle formed entirely within one Planner batch (e.g. child 0 depends
	// on local index 1 and child 1 depends on local index 0) has neither
	// side committed to g.nodes yet, so a reachability walk that only
	// follows edges already present in g.nodes/g.children would never see
	// the other half of the cycle. Committing the batch first makes
	// HasCycle's walk see every intra-batch edge too; a violation rolls the
	// whole batch back, preserving the all-or-nothing contract (spec.md
	// §4.4.3, invariant 3).
	priorChildren := len(g.children[parentID])
	for i, n := range newNodes {
		g.nodes[ids[i]] = n
		g.children[parentID] = append(g.children[parentID], ids[i])
	}
	if g.HasCycle() {
		for _, id := range ids {
			delete(g.nodes, id)
		}
		g.children[parentID] = g.children[parentID][:priorChildren]
		return nil, romaerr.New(romaerr.KindInvalidPlan, parentID, false,
			"child batch would close a dependency cycle")
	}
	return ids, nil
}

// SetState transitions id to newState if the lifecycle state machine
// permits it (graph/lifecycle.go); otherwise it fails with
// IllegalTransition.
func (g *TaskGraph) SetState(id string, newState State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return romaerr.New(romaerr.KindGraphInvariantViolation, id, false, "unknown node %q", id)
	}
	if !canTransition(n.State, newState) {
		return romaerr.New(romaerr.KindIllegalTransition, id, false,
			"illegal transition %s -> %s", n.State, newState)
	}
	prev := n.State
	n.State = newState
	switch {
	case prev == StatePending && newState == StateClassifying:
		n.StartedAt = time.Now()
	case newState.IsTerminal():
		n.FinishedAt = time.Now()
		if newState == StateTerminalSuccess {
			g.onTerminalSuccessLocked(id)
		}
	}
	return nil
}

// onTerminalSuccessLocked decrements the unmet-dependency counter of every
// sibling depending on id, per the incremental readiness scheme in spec.md
// §4.1.
func (g *TaskGraph) onTerminalSuccessLocked(id string) {
	n := g.nodes[id]
	for _, siblingID := range g.children[n.ParentID] {
		sibling := g.nodes[siblingID]
		if sibling == nil {
			continue
		}
		for _, dep := range sibling.DependsOn {
			if dep == id {
				sibling.unmetDeps--
			}
		}
	}
}

// SetResult writes a node's artifact. Valid only when the node is in
// EXECUTING or AGGREGATING (the two states that produce artifacts) and the
// result has not already been written for the current attempt (invariant
// 5).
func (g *TaskGraph) SetResult(id string, result any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return romaerr.New(romaerr.KindGraphInvariantViolation, id, false, "unknown node %q", id)
	}
	if n.State != StateExecuting && n.State != StateAggregating {
		return romaerr.New(romaerr.KindGraphInvariantViolation, id, false,
			"set_result called in state %s", n.State)
	}
	if n.resultAttempt == n.Attempts+1 {
		return romaerr.New(romaerr.KindGraphInvariantViolation, id, false,
			"result already written for attempt %d", n.Attempts)
	}
	n.Result = result
	n.resultAttempt = n.Attempts + 1
	return nil
}

// SetError records a failure on id. Valid in any non-terminal state; the
// caller is expected to follow with SetState(id, StateTerminalFailure) or a
// retry transition.
func (g *TaskGraph) SetError(id string, err *FailureRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return romaerr.New(romaerr.KindGraphInvariantViolation, id, false, "unknown node %q", id)
	}
	if n.State.IsTerminal() {
		return romaerr.New(romaerr.KindGraphInvariantViolation, id, false,
			"set_error called on terminal node %s", id)
	}
	n.Err = err
	return nil
}

// IncrementAttempts bumps a node's retry counter. Called by the scheduler
// when a retryable failure or verification reject re-enters a prior state.
func (g *TaskGraph) IncrementAttempts(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return romaerr.New(romaerr.KindGraphInvariantViolation, id, false, "unknown node %q", id)
	}
	n.Attempts++
	return nil
}

// ReadyNodes returns nodes in PENDING with all DependsOn entries already
// TERMINAL_SUCCESS. This is the C1-level readiness notion (spec.md §4.1);
// the scheduler (C4) layers the broader ready set described in spec.md
// §4.4.2 on top (WAITING_FOR_CHILDREN promotions and retry re-entries),
// since those depend on scheduler-owned policy (aggregate_partial,
// attempts budget) rather than graph invariants alone.
func (g *TaskGraph) ReadyNodes() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var ready []string
	for id, n := range g.nodes {
		if n.State == StatePending && n.unmetDeps <= 0 {
			ready = append(ready, id)
		}
	}
	return ready
}

// ChildrenAllTerminalSuccess reports whether every child of id is in
// TERMINAL_SUCCESS. Used by the scheduler to promote a WAITING_FOR_CHILDREN
// node to AGGREGATING-ready.
func (g *TaskGraph) ChildrenAllTerminalSuccess(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, childID := range g.children[id] {
		child := g.nodes[childID]
		if child == nil || child.State != StateTerminalSuccess {
			return false
		}
	}
	return true
}

// ChildrenPartition splits id's children into those that are
// TERMINAL_SUCCESS and those that are TERMINAL_FAILURE, along with a
// boolean reporting whether any child is still non-terminal.
func (g *TaskGraph) ChildrenPartition(id string) (succeeded, failed []string, pending bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, childID := range g.children[id] {
		child := g.nodes[childID]
		if child == nil {
			continue
		}
		switch child.State {
		case StateTerminalSuccess:
			succeeded = append(succeeded, childID)
		case StateTerminalFailure:
			failed = append(failed, childID)
		default:
			pending = true
		}
	}
	return succeeded, failed, pending
}

// SubtreeResults returns the topologically ordered (parent before child)
// results of every descendant of id that is in TERMINAL_SUCCESS.
func (g *TaskGraph) SubtreeResults(id string) []ResultEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []ResultEntry
	var walk func(nodeID string)
	walk = func(nodeID string) {
		for _, childID := range g.children[nodeID] {
			child := g.nodes[childID]
			if child == nil {
				continue
			}
			if child.State == StateTerminalSuccess {
				out = append(out, ResultEntry{NodeID: child.ID, Result: child.Result})
			}
			walk(childID)
		}
	}
	walk(id)
	return out
}

// NodesInStates returns every node id currently in one of the given states.
// Used by the scheduler to scan for dispatchable and cascading-failure
// candidates without reaching into graph internals.
func (g *TaskGraph) NodesInStates(states ...State) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	want := make(map[State]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	var out []string
	for id, n := range g.nodes {
		if want[n.State] {
			out = append(out, id)
		}
	}
	return out
}

// ChildIndex returns the position of childID within parentID's ordered
// children, or -1 if not found. Used by the scheduler's selection policy
// (depth descending, then child-order within parent, per spec.md §4.4.2).
func (g *TaskGraph) ChildIndex(parentID, childID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, id := range g.children[parentID] {
		if id == childID {
			return i
		}
	}
	return -1
}

// MaxDepth returns the run's configured depth cap.
func (g *TaskGraph) MaxDepth() int {
	return g.maxDepth
}
