package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roma-engine/roma/graph"
	"github.com/roma-engine/roma/reasoner"
)

// atomicTable builds a reasoner.Table that classifies every node atomic and
// executes it by returning result for whatever goal it's asked to run.
func atomicTable(result any) reasoner.Table {
	return reasoner.Table{
		reasoner.RoleAtomizer: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RoleAtomizer, Atomizer: &reasoner.AtomizerResponse{IsAtomic: true}}, nil
		},
		reasoner.RoleExecutor: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RoleExecutor, Executor: &reasoner.ExecutorResponse{Artifact: result}}, nil
		},
	}
}

func TestTrivialAtomicGoalSucceeds(t *testing.T) {
	g := graph.New(5)
	_, err := g.CreateRoot("what is 2+2", graph.TaskThink)
	require.NoError(t, err)

	s := New(g, "run-1", Config{Provider: atomicTable("4"), MaxInflight: 2, AttemptsBudget: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := s.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusOK, out.Status)
	require.Equal(t, "4", out.Artifact)
}

func TestTwoLevelPlanAggregatesConcurrentSiblings(t *testing.T) {
	g := graph.New(5)
	rootID, err := g.CreateRoot("compare A and B", graph.TaskThink)
	require.NoError(t, err)

	table := reasoner.Table{
		reasoner.RoleAtomizer: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			isPlan := req.NodeID == rootID
			return reasoner.Response{Role: reasoner.RoleAtomizer, Atomizer: &reasoner.AtomizerResponse{
				IsAtomic: !isPlan,
			}}, nil
		},
		reasoner.RolePlanner: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RolePlanner, Planner: &reasoner.PlannerResponse{
				Children: []graph.ChildSpec{
					{Goal: "retrieve A", TaskType: graph.TaskRetrieve},
					{Goal: "retrieve B", TaskType: graph.TaskRetrieve},
				},
			}}, nil
		},
		reasoner.RoleExecutor: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RoleExecutor, Executor: &reasoner.ExecutorResponse{
				Artifact: req.Executor.Goal + "-result",
			}}, nil
		},
		reasoner.RoleAggregator: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			require.Len(t, req.Aggregator.Children, 2)
			return reasoner.Response{Role: reasoner.RoleAggregator, Aggregator: &reasoner.AggregatorResponse{
				SynthesizedArtifact: "combined",
			}}, nil
		},
	}

	s := New(g, "run-2", Config{Provider: table, MaxInflight: 4, AttemptsBudget: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := s.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusOK, out.Status)
	require.Equal(t, "combined", out.Artifact)
}

func TestVerificationRejectThenAccept(t *testing.T) {
	g := graph.New(5)
	_, err := g.CreateRoot("write a haiku", graph.TaskThink)
	require.NoError(t, err)

	verifyCalls := 0
	table := reasoner.Table{
		reasoner.RoleAtomizer: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RoleAtomizer, Atomizer: &reasoner.AtomizerResponse{IsAtomic: true}}, nil
		},
		reasoner.RoleExecutor: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RoleExecutor, Executor: &reasoner.ExecutorResponse{
				Artifact: req.Executor.Context.Feedback + "draft",
			}}, nil
		},
		reasoner.RoleVerifier: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			verifyCalls++
			if verifyCalls == 1 {
				return reasoner.Response{Role: reasoner.RoleVerifier, Verifier: &reasoner.VerifierResponse{
					Verdict: reasoner.VerdictReject, Feedback: "too short: ",
				}}, nil
			}
			return reasoner.Response{Role: reasoner.RoleVerifier, Verifier: &reasoner.VerifierResponse{
				Verdict: reasoner.VerdictOK,
			}}, nil
		},
	}

	s := New(g, "run-3", Config{Provider: table, MaxInflight: 1, AttemptsBudget: 3, VerificationEnabled: true})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := s.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusOK, out.Status)
	require.Equal(t, "too short: draft", out.Artifact)
	require.Equal(t, 2, verifyCalls)

	root, ok := g.Get(g.RootID())
	require.True(t, ok)
	require.Equal(t, 1, root.Attempts, "a single reject-then-accept should cost exactly one attempt")
}

func TestVerificationRejectExhaustsAttemptsBudget(t *testing.T) {
	g := graph.New(5)
	_, err := g.CreateRoot("write a haiku", graph.TaskThink)
	require.NoError(t, err)

	table := reasoner.Table{
		reasoner.RoleAtomizer: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RoleAtomizer, Atomizer: &reasoner.AtomizerResponse{IsAtomic: true}}, nil
		},
		reasoner.RoleExecutor: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RoleExecutor, Executor: &reasoner.ExecutorResponse{Artifact: "draft"}}, nil
		},
		reasoner.RoleVerifier: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RoleVerifier, Verifier: &reasoner.VerifierResponse{
				Verdict: reasoner.VerdictReject, Feedback: "never good enough",
			}}, nil
		},
	}

	s := New(g, "run-4", Config{Provider: table, MaxInflight: 1, AttemptsBudget: 2, VerificationEnabled: true})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := s.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, out.Status)
	require.Equal(t, out.FailingNodeID, g.RootID())
}

func TestDepthCapForcesExecuteOverride(t *testing.T) {
	g := graph.New(0) // maxDepth 0: root is forced to execute regardless of Atomizer
	_, err := g.CreateRoot("deep goal", graph.TaskThink)
	require.NoError(t, err)

	atomizerCalled := false
	table := reasoner.Table{
		reasoner.RoleAtomizer: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			atomizerCalled = true
			return reasoner.Response{Role: reasoner.RoleAtomizer, Atomizer: &reasoner.AtomizerResponse{IsAtomic: false}}, nil
		},
		reasoner.RoleExecutor: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RoleExecutor, Executor: &reasoner.ExecutorResponse{Artifact: "forced"}}, nil
		},
	}

	s := New(g, "run-5", Config{Provider: table, MaxInflight: 1, AttemptsBudget: 2})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := s.Run(ctx)
	require.NoError(t, err)
	require.True(t, atomizerCalled)
	require.Equal(t, StatusOK, out.Status)
	require.Equal(t, "forced", out.Artifact)
}

func TestDeadlineExpiryForceFailsRoot(t *testing.T) {
	g := graph.New(5)
	_, err := g.CreateRoot("slow goal", graph.TaskThink)
	require.NoError(t, err)

	block := make(chan struct{})
	table := reasoner.Table{
		reasoner.RoleAtomizer: func(ctx context.Context, req reasoner.Request) (reasoner.Response, error) {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return reasoner.Response{}, ctx.Err()
		},
	}

	s := New(g, "run-6", Config{
		Provider:    table,
		MaxInflight: 1,
		Deadline:    time.Now().Add(50 * time.Millisecond),
	})
	out, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusFailed, out.Status)
	require.Equal(t, "DeadlineExceeded", string(out.ReasonKind))
	close(block)
}

func TestMaxInflightOneRunsSequentially(t *testing.T) {
	g := graph.New(5)
	rootID, err := g.CreateRoot("sequential plan", graph.TaskThink)
	require.NoError(t, err)

	var order []string
	table := reasoner.Table{
		reasoner.RoleAtomizer: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RoleAtomizer, Atomizer: &reasoner.AtomizerResponse{
				IsAtomic: req.NodeID != rootID,
			}}, nil
		},
		reasoner.RolePlanner: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RolePlanner, Planner: &reasoner.PlannerResponse{
				Children: []graph.ChildSpec{
					{Goal: "first", TaskType: graph.TaskThink},
					{Goal: "second", TaskType: graph.TaskThink},
				},
			}}, nil
		},
		reasoner.RoleExecutor: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			order = append(order, req.Executor.Goal)
			return reasoner.Response{Role: reasoner.RoleExecutor, Executor: &reasoner.ExecutorResponse{Artifact: req.Executor.Goal}}, nil
		},
		reasoner.RoleAggregator: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RoleAggregator, Aggregator: &reasoner.AggregatorResponse{
				SynthesizedArtifact: "done",
			}}, nil
		},
	}

	s := New(g, "run-7", Config{Provider: table, MaxInflight: 1, AttemptsBudget: 2})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := s.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusOK, out.Status)
	require.Equal(t, []string{"first", "second"}, order, "child order must follow plan order under single-slot concurrency")
}

func TestCascadeFailsDependentWithoutDispatch(t *testing.T) {
	g := graph.New(5)
	rootID, err := g.CreateRoot("plan with a failing dependency", graph.TaskThink)
	require.NoError(t, err)

	dependentDispatched := false
	table := reasoner.Table{
		reasoner.RoleAtomizer: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RoleAtomizer, Atomizer: &reasoner.AtomizerResponse{
				IsAtomic: req.NodeID != rootID,
			}}, nil
		},
		reasoner.RolePlanner: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			return reasoner.Response{Role: reasoner.RolePlanner, Planner: &reasoner.PlannerResponse{
				Children: []graph.ChildSpec{
					{Goal: "fails", TaskType: graph.TaskThink},
					{Goal: "depends on fails", TaskType: graph.TaskThink, DependsOnLocalIndex: []int{0}},
				},
			}}, nil
		},
		reasoner.RoleExecutor: func(_ context.Context, req reasoner.Request) (reasoner.Response, error) {
			if req.Executor.Goal == "fails" {
				return reasoner.Response{}, errStubExecutorFailure
			}
			dependentDispatched = true
			return reasoner.Response{Role: reasoner.RoleExecutor, Executor: &reasoner.ExecutorResponse{Artifact: "ok"}}, nil
		},
	}

	s := New(g, "run-8", Config{Provider: table, MaxInflight: 2, AttemptsBudget: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := s.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, out.Status)
	require.False(t, dependentDispatched, "a node depending on a failed sibling must never be dispatched")
}

var errStubExecutorFailure = errors.New("stub executor failure")
