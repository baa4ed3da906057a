// Package roma is the solver facade (C5): the entry point that builds a
// run's root node, drives the scheduler to fixpoint, and returns the final
// outcome or a structured failure (spec.md §4.5). It is the only component
// that constructs the root TaskNode and the only public surface most hosts
// need; C1-C4 (graph, execctx, reasoner, scheduler) are composable on their
// own for hosts that want finer control.
package roma

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/roma-engine/roma/checkpoint"
	"github.com/roma-engine/roma/graph"
	"github.com/roma-engine/roma/hooks"
	"github.com/roma-engine/roma/reasoner"
	"github.com/roma-engine/roma/scheduler"
	"github.com/roma-engine/roma/telemetry"
)

// Options bundles every knob recognized at the core boundary (spec.md §9):
// MaxDepth, MaxInflight, Deadline, AttemptsBudget, VerificationEnabled,
// AggregatePartial, NodeTimeout, CheckpointSink, CheckpointInterval. No
// environment/file loading lives here (out of scope per spec.md §1); a
// host's config layer is expected to populate this struct.
type Options struct {
	// RunID identifies this run for checkpointing and hook events. A
	// random id is generated if empty.
	RunID string
	// RootTaskType overrides the root node's task type; defaults to THINK
	// per spec.md §4.5.
	RootTaskType graph.TaskType

	Provider reasoner.Provider
	Tools    map[graph.TaskType]any

	MaxDepth            int
	MaxInflight         int
	AttemptsBudget      int
	VerificationEnabled bool
	AggregatePartial    bool

	Deadline        time.Time
	NodeTimeout     time.Duration
	MaxDispatchRate rate.Limit // events/sec; 0 disables the rate limiter

	CheckpointSink     checkpoint.Sink
	CheckpointInterval time.Duration
	CheckpointEvery    int

	Hooks   hooks.Bus
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

func (o Options) schedulerConfig() scheduler.Config {
	return scheduler.Config{
		Provider:            o.Provider,
		Tools:               o.Tools,
		MaxInflight:         o.MaxInflight,
		AttemptsBudget:      o.AttemptsBudget,
		VerificationEnabled: o.VerificationEnabled,
		AggregatePartial:    o.AggregatePartial,
		Deadline:            o.Deadline,
		NodeTimeout:         o.NodeTimeout,
		MaxDispatchRate:     o.MaxDispatchRate,
		CheckpointSink:      o.CheckpointSink,
		CheckpointInterval:  o.CheckpointInterval,
		CheckpointEvery:     o.CheckpointEvery,
		Hooks:               o.Hooks,
		Logger:              o.Logger,
		Metrics:             o.Metrics,
		Tracer:              o.Tracer,
	}
}

// Solve builds the root TaskNode from goal (task type defaults to THINK,
// spec.md §4.5), runs the scheduler until the root is terminal or the
// deadline expires, and returns the outcome. A final checkpoint is emitted
// on exit regardless of outcome, per spec.md §4.5's "on exit... a final
// checkpoint is emitted".
func Solve(ctx context.Context, goal string, opts Options) (scheduler.Outcome, error) {
	taskType := opts.RootTaskType
	if taskType == "" {
		taskType = graph.TaskThink
	}
	g := graph.New(opts.MaxDepth)
	if _, err := g.CreateRoot(goal, taskType); err != nil {
		return scheduler.Outcome{}, err
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return run(ctx, g, runID, opts)
}

// Resume restores a run from a previously checkpointed RunRecord and drives
// it to fixpoint (spec.md §4.5). In-flight nodes at checkpoint time are
// re-dispatched from their recorded state rather than assumed complete
// (spec.md §4.4.6); already-terminal nodes are never re-executed.
func Resume(ctx context.Context, rr checkpoint.RunRecord, opts Options) (scheduler.Outcome, error) {
	sched := scheduler.Restore(rr, opts.schedulerConfig())
	out, err := sched.Run(ctx)
	_ = sched.WriteCheckpoint(ctx)
	return out, err
}

func run(ctx context.Context, g *graph.TaskGraph, runID string, opts Options) (scheduler.Outcome, error) {
	sched := scheduler.New(g, runID, opts.schedulerConfig())
	out, err := sched.Run(ctx)
	_ = sched.WriteCheckpoint(ctx)
	return out, err
}
