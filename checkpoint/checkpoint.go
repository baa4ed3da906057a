// Package checkpoint defines the run-record snapshot the scheduler persists
// periodically and on pause/stop, and the Sink interface a host implements
// to durably store it (spec.md §6, §4.4.6).
package checkpoint

import (
	"context"
	"time"

	"github.com/roma-engine/roma/graph"
)

// RunRecord is a structurally typed snapshot sufficient to resume
// execution: the graph snapshot (which carries each node's attempts
// counter) plus the in-flight node ids. The ready set is not stored; it is
// recomputed from the restored graph's node states.
type RunRecord struct {
	RunID   string
	Graph   graph.Snapshot
	Options RunOptions

	// InFlightIDs lists nodes that were dispatched but had not completed
	// when the checkpoint was taken. On restore these are treated as
	// not-yet-dispatched (spec.md §4.4.6): reasoner calls are not assumed
	// idempotent, so the scheduler re-enters their prior state and
	// reschedules rather than awaiting the original call.
	InFlightIDs []string

	CreatedAt time.Time
}

// RunOptions mirrors the subset of roma.Options a restored run needs to
// reconstruct its scheduler configuration (deadline, attempts budget, and
// so on) without this package depending on the root package.
type RunOptions struct {
	MaxDepth            int
	MaxInflight         int
	Deadline            time.Time
	NodeTimeout         time.Duration
	AttemptsBudget      int
	VerificationEnabled bool
	AggregatePartial    bool
	CheckpointInterval  time.Duration
}

// Sink is the host-supplied persistence boundary. It is purely a byte-bag
// carrier from the core's perspective (spec.md §6): the core owns the
// RunRecord's serialization shape, the Sink only durably stores and
// retrieves it by run id.
type Sink interface {
	Write(ctx context.Context, rr RunRecord) error
	Read(ctx context.Context, runID string) (RunRecord, bool, error)
}
