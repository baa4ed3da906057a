// Package graph implements the in-memory task DAG: typed nodes, dependency
// edges, and the lifecycle state machine a node moves through as the
// scheduler dispatches reasoners against it.
package graph

import (
	"time"

	"github.com/roma-engine/roma/romaerr"
)

// TaskType informs reasoner routing and tool selection for a node. It is
// chosen by the Planner that emitted the node; the root defaults to THINK.
type TaskType string

const (
	TaskRetrieve       TaskType = "RETRIEVE"
	TaskWrite          TaskType = "WRITE"
	TaskThink          TaskType = "THINK"
	TaskCodeInterpret  TaskType = "CODE_INTERPRET"
	TaskImageGeneration TaskType = "IMAGE_GENERATION"
)

// NodeKind is set when the Atomizer classifies a node. It is empty until
// then.
type NodeKind string

const (
	KindUnclassified NodeKind = ""
	KindPlan         NodeKind = "PLAN"
	KindExecute      NodeKind = "EXECUTE"
)

// State is a node's position in the lifecycle state machine (spec.md §4.4.1).
type State string

const (
	StatePending             State = "PENDING"
	StateClassifying         State = "CLASSIFYING"
	StatePlanning            State = "PLANNING"
	StateWaitingForChildren  State = "WAITING_FOR_CHILDREN"
	StateAggregating         State = "AGGREGATING"
	StateVerifying           State = "VERIFYING"
	StateExecuting           State = "EXECUTING"
	StateTerminalSuccess     State = "TERMINAL_SUCCESS"
	StateTerminalFailure     State = "TERMINAL_FAILURE"
)

// IsTerminal reports whether s is a terminal state.
func (s State) IsTerminal() bool {
	return s == StateTerminalSuccess || s == StateTerminalFailure
}

// FailureRecord is the error type recorded on a node that ended in
// TERMINAL_FAILURE. It is the same structured error used across the core.
type FailureRecord = romaerr.Error

// TaskNode is one unit of work in the DAG.
type TaskNode struct {
	ID        string
	Goal      string
	TaskType  TaskType
	NodeKind  NodeKind
	State     State
	ParentID  string // empty for root
	DependsOn []string

	Depth int

	// Result holds the node's artifact once produced. Opaque to the core
	// (spec.md §3.1); a handle and an inline value are treated identically.
	Result any
	// ResultHandle, when non-empty, indicates Result is an out-of-band
	// handle rather than an inline artifact. Carried through for snapshot
	// purposes only; the core never dereferences it.
	ResultHandle string
	Err          *FailureRecord

	Attempts int

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	// unmetDeps counts the DependsOn entries not yet in TERMINAL_SUCCESS.
	// A PENDING node enters the ready set only once this reaches 0.
	unmetDeps int
	// resultAttempt records Attempts+1 at the time Result was last written
	// (0 means never written), enforcing invariant 5 (result set at most
	// once per attempt).
	resultAttempt int
}

// ChildSpec describes one child a Planner wants to add under a planning
// node. DependsOnLocalIndex references siblings by their position within
// the same batch (the Planner's response), per spec.md §4.3; AddChildren
// translates these into real sibling IDs as it inserts the batch.
type ChildSpec struct {
	Goal                string
	TaskType            TaskType
	DependsOnLocalIndex []int
}

// ResultEntry pairs a node id with its artifact, as returned by
// SubtreeResults.
type ResultEntry struct {
	NodeID string
	Result any
}
