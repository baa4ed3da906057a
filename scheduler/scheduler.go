// Package scheduler implements the event-driven cooperative loop that
// advances a graph.TaskGraph to fixpoint (spec.md §4.4). It selects ready
// nodes, dispatches bounded-parallel reasoner calls through a
// reasoner.Provider, applies the resulting graph mutations, and drives
// nodes through their lifecycle state machine until the run's root reaches
// a terminal state or a deadline halts it.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/roma-engine/roma/checkpoint"
	"github.com/roma-engine/roma/graph"
	"github.com/roma-engine/roma/hooks"
	"github.com/roma-engine/roma/reasoner"
	"github.com/roma-engine/roma/romaerr"
	"github.com/roma-engine/roma/telemetry"
)

// Config bundles every knob spec.md's design notes (§9) recognize at the
// scheduler boundary. The solver facade (roma.Options) maps onto this
// one-for-one; Config exists standalone so the scheduler can be exercised
// and tested without the facade.
type Config struct {
	Provider reasoner.Provider
	// Tools maps a task type to the opaque tool bundle passed through to
	// the Executor's request (spec.md §4.3 routing policy). Never
	// interpreted by the scheduler.
	Tools map[graph.TaskType]any

	MaxInflight         int
	AttemptsBudget      int
	VerificationEnabled bool
	AggregatePartial    bool

	Deadline       time.Time
	NodeTimeout    time.Duration
	MaxDispatchRate rate.Limit

	CheckpointSink     checkpoint.Sink
	CheckpointInterval time.Duration
	CheckpointEvery    int

	Hooks   hooks.Bus
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

func (c Config) withDefaults() Config {
	if c.MaxInflight <= 0 {
		c.MaxInflight = 1
	}
	if c.AttemptsBudget <= 0 {
		c.AttemptsBudget = 2
	}
	if c.Logger == nil {
		c.Logger = telemetry.NoopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = telemetry.NoopMetrics{}
	}
	if c.Tracer == nil {
		c.Tracer = telemetry.NoopTracer{}
	}
	if c.Hooks == nil {
		c.Hooks = hooks.NewBus()
	}
	return c
}

// Scheduler drives one run's graph to fixpoint. It is not safe to call Run
// concurrently on the same Scheduler; a fresh Scheduler is constructed per
// run (or per resume) by the solver facade.
type Scheduler struct {
	runID string
	graph *graph.TaskGraph
	cfg   Config

	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu             sync.Mutex
	inFlight       map[string]struct{}
	nodeTimeouts   map[string]int    // per-node count of elapsed NodeTimeouts
	feedback       map[string]string // per-node verifier/retry feedback
	transitions    int               // since last checkpoint
	lastCheckpoint time.Time

	firstFailure   *romaerr.Error
	firstFailureID string
	firstFailureOnce sync.Once
}

// New constructs a Scheduler over g for the given run id. cfg is filled
// with defaults for any zero-valued recognized knob (MaxInflight=1,
// AttemptsBudget=2, no-op telemetry/hooks).
func New(g *graph.TaskGraph, runID string, cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		runID:          runID,
		graph:          g,
		cfg:            cfg,
		sem:            semaphore.NewWeighted(int64(cfg.MaxInflight)),
		inFlight:       make(map[string]struct{}),
		nodeTimeouts:   make(map[string]int),
		lastCheckpoint: time.Now(),
	}
	if cfg.MaxDispatchRate > 0 {
		s.limiter = rate.NewLimiter(cfg.MaxDispatchRate, cfg.MaxInflight)
	}
	return s
}

// completion is the event a dispatch worker reports back to the main loop.
type completion struct {
	nodeID string
}

// Run drives the graph until the root reaches a terminal state or the
// configured deadline expires. It is the scheduler's sole public entry
// point; the solver facade calls it once per Solve/Resume.
func (s *Scheduler) Run(ctx context.Context) (Outcome, error) {
	if !s.cfg.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, s.cfg.Deadline)
		defer cancel()
	}

	completions := make(chan completion, s.cfg.MaxInflight*2+1)
	// eg tracks in-flight dispatch goroutines the way errgroup.Group does for
	// the teacher's own fan-out/fan-in code; no goroutine here returns a
	// non-nil error, since a node's own failure is a graph mutation, not a
	// Go error that should cancel sibling dispatches.
	eg := &errgroup.Group{}
	defer eg.Wait()

	for {
		if out, done := s.checkTerminal(); done {
			return out, nil
		}

		select {
		case <-ctx.Done():
			return s.handleDeadline(ctx), nil
		default:
		}

		s.applyCascades()

		if out, done := s.checkTerminal(); done {
			return out, nil
		}

		dispatchedAny := s.dispatchReady(ctx, completions, eg)

		if !dispatchedAny && s.inFlightCount() == 0 {
			// Nothing ready and nothing in flight, but root isn't terminal:
			// the graph invariants guarantee this shouldn't happen in a
			// healthy run, but guard against a stuck run rather than
			// spinning forever.
			return s.stuckOutcome(), nil
		}

		select {
		case c := <-completions:
			s.applyCompletion(ctx, c)
			s.maybeCheckpoint(ctx)
		case <-ctx.Done():
			return s.handleDeadline(ctx), nil
		}
		// Drain any other completions already queued without blocking, so
		// a burst of simultaneous finishes doesn't serialize one per loop
		// iteration.
		for {
			select {
			case c := <-completions:
				s.applyCompletion(ctx, c)
				s.maybeCheckpoint(ctx)
			default:
				goto drained
			}
		}
	drained:
	}
}

func (s *Scheduler) checkTerminal() (Outcome, bool) {
	root, ok := s.graph.Get(s.graph.RootID())
	if !ok || !root.State.IsTerminal() {
		return Outcome{}, false
	}
	return s.buildOutcome(root), true
}

func (s *Scheduler) inFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// dispatchReady scans the graph for dispatchable nodes, applies the
// scheduler's selection policy, and launches one goroutine per available
// worker slot. It returns whether at least one dispatch was launched.
func (s *Scheduler) dispatchReady(ctx context.Context, completions chan<- completion, eg *errgroup.Group) bool {
	candidates := s.candidates()
	dispatchedAny := false
	for _, id := range candidates {
		if !s.sem.TryAcquire(1) {
			break
		}
		s.markInFlight(id)
		dispatchedAny = true
		nodeID := id
		eg.Go(func() error {
			defer s.sem.Release(1)
			defer s.clearInFlight(nodeID)
			s.runDispatch(ctx, nodeID)
			select {
			case completions <- completion{nodeID: nodeID}:
			case <-ctx.Done():
			}
			return nil
		})
	}
	return dispatchedAny
}

// candidates returns the ids of every node eligible for a reasoner
// dispatch right now, ordered by the selection policy: depth descending,
// then child-order within parent (spec.md §4.4.2).
func (s *Scheduler) candidates() []string {
	want := []graph.State{
		graph.StateClassifying, graph.StatePlanning, graph.StateExecuting,
		graph.StateAggregating, graph.StateVerifying,
	}
	ids := s.graph.NodesInStates(want...)

	for _, id := range s.graph.ReadyNodes() {
		ids = append(ids, id)
	}
	for _, id := range s.waitingForChildrenReady() {
		ids = append(ids, id)
	}

	s.mu.Lock()
	filtered := ids[:0]
	for _, id := range ids {
		if _, busy := s.inFlight[id]; !busy {
			filtered = append(filtered, id)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(filtered, func(i, j int) bool {
		ni, _ := s.graph.Get(filtered[i])
		nj, _ := s.graph.Get(filtered[j])
		if ni.Depth != nj.Depth {
			return ni.Depth > nj.Depth
		}
		return s.graph.ChildIndex(ni.ParentID, filtered[i]) < s.graph.ChildIndex(nj.ParentID, filtered[j])
	})
	return filtered
}

// waitingForChildrenReady returns WAITING_FOR_CHILDREN nodes whose children
// are all terminal-success, or (when aggregate_partial is enabled) all
// terminal with at least one success. Nodes whose children are all terminal
// but entirely failed, or that have a failure and aggregate_partial
// disabled, are not dispatch candidates: applyCascades fails them directly.
func (s *Scheduler) waitingForChildrenReady() []string {
	var out []string
	for _, id := range s.graph.NodesInStates(graph.StateWaitingForChildren) {
		succeeded, failed, pending := s.graph.ChildrenPartition(id)
		if pending {
			continue
		}
		if len(failed) == 0 {
			out = append(out, id)
			continue
		}
		if s.cfg.AggregatePartial && len(succeeded) > 0 {
			out = append(out, id)
		}
	}
	return out
}

func (s *Scheduler) markInFlight(id string) {
	s.mu.Lock()
	s.inFlight[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Scheduler) clearInFlight(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// applyCompletion is called once per finished dispatch goroutine. The
// dispatch itself already applied its graph mutation and published its own
// NodeStateChanged event (dispatch.go's transition helper); this hook only
// exists as the main loop's signal to re-scan for newly ready work and
// consider a checkpoint.
func (s *Scheduler) applyCompletion(ctx context.Context, c completion) {
	_ = c
	_ = ctx
}

// recordFailure remembers the first node to enter TERMINAL_FAILURE this
// run, per spec.md §7's "smallest identifying context" requirement: the
// outcome surfaces the first failing node, not necessarily the root (whose
// own failure is usually just the cascade's terminus).
func (s *Scheduler) recordFailure(nodeID string, err *romaerr.Error) {
	s.firstFailureOnce.Do(func() {
		s.firstFailure = err
		s.firstFailureID = nodeID
	})
}
