package hooks

import (
	"time"

	"github.com/roma-engine/roma/romaerr"
)

// EventType enumerates the events the scheduler broadcasts on the hook bus.
type EventType string

const (
	// NodeStateChanged fires whenever a node's lifecycle state transitions
	// (e.g. PENDING -> CLASSIFYING, EXECUTING -> TERMINAL_SUCCESS).
	NodeStateChanged EventType = "node_state_changed"

	// ReasonerDispatched fires immediately before a reasoner role is invoked
	// for a node.
	ReasonerDispatched EventType = "reasoner_dispatched"

	// ReasonerCompleted fires after a reasoner invocation returns, whether it
	// succeeded or failed.
	ReasonerCompleted EventType = "reasoner_completed"

	// CheckpointWritten fires after a RunRecord snapshot is durably persisted
	// to the configured checkpoint.Sink.
	CheckpointWritten EventType = "checkpoint_written"

	// RunFinished fires once when Solve/Resume returns, carrying the
	// outcome's terminal status.
	RunFinished EventType = "run_finished"
)

type (
	// Event is the interface all hook events implement. Subscribers use a
	// type switch to access event-specific fields.
	//
	//	func (s *mySubscriber) HandleEvent(ctx context.Context, evt hooks.Event) error {
	//	    switch e := evt.(type) {
	//	    case *hooks.NodeStateChangedEvent:
	//	        log.Printf("%s: %s -> %s", e.NodeID, e.From, e.To)
	//	    case *hooks.RunFinishedEvent:
	//	        log.Printf("run %s finished: %s", e.RunID(), e.Status)
	//	    }
	//	    return nil
	//	}
	Event interface {
		// Type returns the specific event type constant.
		Type() EventType
		// RunID returns the identifier of the run that produced this event.
		RunID() string
		// Timestamp returns the Unix timestamp in milliseconds when the event
		// occurred.
		Timestamp() int64
	}

	// NodeStateChangedEvent fires on every lifecycle transition a node makes.
	NodeStateChangedEvent struct {
		baseEvent
		// NodeID identifies the transitioning node.
		NodeID string
		// From is the prior state. Node creation in PENDING publishes no
		// event.
		From string
		// To is the new state.
		To string
	}

	// ReasonerDispatchedEvent fires immediately before invoking a reasoner
	// role for a node.
	ReasonerDispatchedEvent struct {
		baseEvent
		NodeID string
		// Role is one of "atomizer", "planner", "executor", "aggregator",
		// "verifier".
		Role string
		// Attempt is the 1-based attempt number for this dispatch.
		Attempt int
	}

	// ReasonerCompletedEvent fires after a reasoner invocation returns.
	ReasonerCompletedEvent struct {
		baseEvent
		NodeID   string
		Role     string
		Attempt  int
		Duration time.Duration
		// Err is non-nil if the invocation failed; callers should use
		// romaerr.KindOf to inspect the failure category.
		Err error
	}

	// CheckpointWrittenEvent fires after a RunRecord snapshot is durably
	// persisted.
	CheckpointWrittenEvent struct {
		baseEvent
		// CheckpointID is a random identifier the scheduler assigns to this
		// write; the sink does not supply it.
		CheckpointID string
		// NodeCount is the number of nodes captured in the snapshot.
		NodeCount int
	}

	// RunFinishedEvent fires once when Solve/Resume returns.
	RunFinishedEvent struct {
		baseEvent
		// Status is "ok" or "failed".
		Status string
		// ReasonKind is set when Status is "failed".
		ReasonKind romaerr.ReasonKind
		// FailingNodeID identifies the node that caused a failed outcome, if
		// any.
		FailingNodeID string
	}

	// baseEvent holds the fields common to every event type.
	baseEvent struct {
		runID     string
		timestamp int64
	}
)

// RunID returns the run identifier.
func (e baseEvent) RunID() string { return e.runID }

// Timestamp returns the Unix timestamp in milliseconds when the event
// occurred.
func (e baseEvent) Timestamp() int64 { return e.timestamp }

func newBaseEvent(runID string) baseEvent {
	return baseEvent{runID: runID, timestamp: time.Now().UnixMilli()}
}

// NewNodeStateChangedEvent constructs a NodeStateChangedEvent.
func NewNodeStateChangedEvent(runID, nodeID, from, to string) *NodeStateChangedEvent {
	return &NodeStateChangedEvent{baseEvent: newBaseEvent(runID), NodeID: nodeID, From: from, To: to}
}

// NewReasonerDispatchedEvent constructs a ReasonerDispatchedEvent.
func NewReasonerDispatchedEvent(runID, nodeID, role string, attempt int) *ReasonerDispatchedEvent {
	return &ReasonerDispatchedEvent{baseEvent: newBaseEvent(runID), NodeID: nodeID, Role: role, Attempt: attempt}
}

// NewReasonerCompletedEvent constructs a ReasonerCompletedEvent.
func NewReasonerCompletedEvent(runID, nodeID, role string, attempt int, duration time.Duration, err error) *ReasonerCompletedEvent {
	return &ReasonerCompletedEvent{
		baseEvent: newBaseEvent(runID),
		NodeID:    nodeID,
		Role:      role,
		Attempt:   attempt,
		Duration:  duration,
		Err:       err,
	}
}

// NewCheckpointWrittenEvent constructs a CheckpointWrittenEvent.
func NewCheckpointWrittenEvent(runID, checkpointID string, nodeCount int) *CheckpointWrittenEvent {
	return &CheckpointWrittenEvent{baseEvent: newBaseEvent(runID), CheckpointID: checkpointID, NodeCount: nodeCount}
}

// NewRunFinishedEvent constructs a RunFinishedEvent.
func NewRunFinishedEvent(runID, status string, reasonKind romaerr.ReasonKind, failingNodeID string) *RunFinishedEvent {
	return &RunFinishedEvent{
		baseEvent:     newBaseEvent(runID),
		Status:        status,
		ReasonKind:    reasonKind,
		FailingNodeID: failingNodeID,
	}
}

func (e *NodeStateChangedEvent) Type() EventType    { return NodeStateChanged }
func (e *ReasonerDispatchedEvent) Type() EventType  { return ReasonerDispatched }
func (e *ReasonerCompletedEvent) Type() EventType   { return ReasonerCompleted }
func (e *CheckpointWrittenEvent) Type() EventType   { return CheckpointWritten }
func (e *RunFinishedEvent) Type() EventType         { return RunFinished }
