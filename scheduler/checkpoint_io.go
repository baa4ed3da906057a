package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/roma-engine/roma/checkpoint"
	"github.com/roma-engine/roma/graph"
	"github.com/roma-engine/roma/hooks"
)

// maybeCheckpoint writes a RunRecord if the configured cadence (every N
// transitions or every T seconds, spec.md §4.4.6) has elapsed since the
// last write. Checkpointing is best-effort: a sink error is logged, not
// fatal to the run, since losing one checkpoint only widens the replay
// window on a future restore.
func (s *Scheduler) maybeCheckpoint(ctx context.Context) {
	if s.cfg.CheckpointSink == nil {
		return
	}
	s.mu.Lock()
	due := false
	if s.cfg.CheckpointEvery > 0 && s.transitions >= s.cfg.CheckpointEvery {
		due = true
	}
	if s.cfg.CheckpointInterval > 0 && time.Since(s.lastCheckpoint) >= s.cfg.CheckpointInterval {
		due = true
	}
	if due {
		s.transitions = 0
		s.lastCheckpoint = time.Now()
	}
	s.mu.Unlock()
	if !due {
		return
	}
	s.WriteCheckpoint(ctx)
}

// WriteCheckpoint immediately persists a RunRecord, regardless of cadence.
// Called by maybeCheckpoint during a run and by the solver facade on
// pause/stop/exit (spec.md §4.4.6, §4.5).
func (s *Scheduler) WriteCheckpoint(ctx context.Context) error {
	if s.cfg.CheckpointSink == nil {
		return nil
	}
	rr := checkpoint.RunRecord{
		RunID:       s.runID,
		Graph:       s.graph.Snapshot(),
		InFlightIDs: s.inFlightIDs(),
		CreatedAt:   time.Now(),
		Options: checkpoint.RunOptions{
			MaxDepth:            s.graph.MaxDepth(),
			MaxInflight:         s.cfg.MaxInflight,
			Deadline:            s.cfg.Deadline,
			NodeTimeout:         s.cfg.NodeTimeout,
			AttemptsBudget:      s.cfg.AttemptsBudget,
			VerificationEnabled: s.cfg.VerificationEnabled,
			AggregatePartial:    s.cfg.AggregatePartial,
			CheckpointInterval:  s.cfg.CheckpointInterval,
		},
	}
	if err := s.cfg.CheckpointSink.Write(ctx, rr); err != nil {
		s.cfg.Logger.Error(ctx, "checkpoint write failed", "run_id", s.runID, "error", err)
		return err
	}
	_ = s.cfg.Hooks.Publish(ctx, hooks.NewCheckpointWrittenEvent(s.runID, uuid.NewString(), len(rr.Graph.Nodes)))
	s.cfg.Logger.Info(ctx, "checkpoint written", "run_id", s.runID, "nodes", len(rr.Graph.Nodes))
	return nil
}

func (s *Scheduler) inFlightIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.inFlight))
	for id := range s.inFlight {
		ids = append(ids, id)
	}
	return ids
}

// Restore rebuilds a graph and Scheduler from a checkpoint RunRecord. Per
// spec.md §4.4.6, in-flight nodes are treated as not-yet-dispatched:
// Restore re-enters them at their recorded (pre-dispatch) state rather than
// assuming the original reasoner call can be awaited or is idempotent. A
// node recorded as CLASSIFYING/PLANNING/EXECUTING/AGGREGATING/VERIFYING and
// in InFlightIDs is left exactly as snapshotted (graph.Restore already
// reconstructs it in that state); the scheduler's normal candidate scan
// (scheduler.go's candidates) picks such nodes up and re-dispatches the
// same role, since they aren't marked in-flight in the fresh Scheduler.
func Restore(rr checkpoint.RunRecord, cfg Config) *Scheduler {
	g := graph.Restore(rr.Graph)
	cfg.MaxInflight = rr.Options.MaxInflight
	cfg.AttemptsBudget = rr.Options.AttemptsBudget
	cfg.Deadline = rr.Options.Deadline
	cfg.NodeTimeout = rr.Options.NodeTimeout
	cfg.VerificationEnabled = rr.Options.VerificationEnabled
	cfg.AggregatePartial = rr.Options.AggregatePartial
	cfg.CheckpointInterval = rr.Options.CheckpointInterval
	return New(g, rr.RunID, cfg)
}
