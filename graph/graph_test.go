package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateRootRejectsSecondCall(t *testing.T) {
	g := New(5)
	_, err := g.CreateRoot("goal", TaskThink)
	require.NoError(t, err)
	_, err = g.CreateRoot("goal2", TaskThink)
	require.Error(t, err)
}

func TestAddChildrenAtomicOnUnknownLocalIndex(t *testing.T) {
	g := New(5)
	root, err := g.CreateRoot("goal", TaskThink)
	require.NoError(t, err)

	_, err = g.AddChildren(root, []ChildSpec{
		{Goal: "a", TaskType: TaskRetrieve},
		{Goal: "b", TaskType: TaskThink, DependsOnLocalIndex: []int{7}},
	})
	require.Error(t, err)
	require.Empty(t, g.Children(root), "no child should be committed on a rejected batch")
}

func TestAddChildrenSiblingDependencies(t *testing.T) {
	g := New(5)
	root, err := g.CreateRoot("goal", TaskThink)
	require.NoError(t, err)

	ids, err := g.AddChildren(root, []ChildSpec{
		{Goal: "retrieve A", TaskType: TaskRetrieve},
		{Goal: "retrieve B", TaskType: TaskRetrieve},
		{Goal: "compare", TaskType: TaskThink, DependsOnLocalIndex: []int{0, 1}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	ready := g.ReadyNodes()
	require.ElementsMatch(t, []string{ids[0], ids[1]}, ready, "compare should not be ready until its deps succeed")

	require.NoError(t, g.SetState(ids[0], StateClassifying))
	require.NoError(t, g.SetState(ids[0], StateExecuting))
	require.NoError(t, g.SetResult(ids[0], "A"))
	require.NoError(t, g.SetState(ids[0], StateTerminalSuccess))

	ready = g.ReadyNodes()
	require.NotContains(t, ready, ids[2], "compare still waits on retrieve B")

	require.NoError(t, g.SetState(ids[1], StateClassifying))
	require.NoError(t, g.SetState(ids[1], StateExecuting))
	require.NoError(t, g.SetResult(ids[1], "B"))
	require.NoError(t, g.SetState(ids[1], StateTerminalSuccess))

	ready = g.ReadyNodes()
	require.Contains(t, ready, ids[2], "compare becomes ready once both deps succeed")
}

func TestSetResultRejectsWrongState(t *testing.T) {
	g := New(5)
	root, err := g.CreateRoot("goal", TaskThink)
	require.NoError(t, err)
	err = g.SetResult(root, "too early")
	require.Error(t, err)
}

func TestSetResultRejectsDoubleWriteSameAttempt(t *testing.T) {
	g := New(5)
	root, err := g.CreateRoot("goal", TaskThink)
	require.NoError(t, err)
	require.NoError(t, g.SetState(root, StateClassifying))
	require.NoError(t, g.SetState(root, StateExecuting))
	require.NoError(t, g.SetResult(root, "first"))
	require.Error(t, g.SetResult(root, "second"), "result already written for this attempt")
}

func TestDepthExceedsMaxDepthRejected(t *testing.T) {
	g := New(1)
	root, err := g.CreateRoot("goal", TaskThink)
	require.NoError(t, err)
	ids, err := g.AddChildren(root, []ChildSpec{{Goal: "child", TaskType: TaskThink}})
	require.NoError(t, err)
	_, err = g.AddChildren(ids[0], []ChildSpec{{Goal: "grandchild", TaskType: TaskThink}})
	require.Error(t, err)
}

func TestAddChildrenRejectsIntraBatchDependencyCycle(t *testing.T) {
	g := New(5)
	root, err := g.CreateRoot("goal", TaskThink)
	require.NoError(t, err)

	_, err = g.AddChildren(root, []ChildSpec{
		{Goal: "a", TaskType: TaskThink, DependsOnLocalIndex: []int{1}},
		{Goal: "b", TaskType: TaskThink, DependsOnLocalIndex: []int{0}},
	})
	require.Error(t, err, "a depends on b and b depends on a: neither is committed yet, but the pair closes a cycle")
	require.Empty(t, g.Children(root), "a rejected batch must leave no partial children behind")
	require.False(t, g.HasCycle())
}

func TestSubtreeResultsTopologicalOrder(t *testing.T) {
	g := New(5)
	root, err := g.CreateRoot("goal", TaskThink)
	require.NoError(t, err)
	ids, err := g.AddChildren(root, []ChildSpec{{Goal: "a", TaskType: TaskThink}})
	require.NoError(t, err)
	grandchildIDs, err := g.AddChildren(ids[0], []ChildSpec{{Goal: "b", TaskType: TaskThink}})
	require.NoError(t, err)

	for _, id := range append(ids, grandchildIDs...) {
		require.NoError(t, g.SetState(id, StateClassifying))
		require.NoError(t, g.SetState(id, StateExecuting))
		require.NoError(t, g.SetResult(id, id))
		require.NoError(t, g.SetState(id, StateTerminalSuccess))
	}

	results := g.SubtreeResults(root)
	require.Len(t, results, 2)
	require.Equal(t, ids[0], results[0].NodeID, "parent precedes child in topological order")
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	g := New(3)
	root, err := g.CreateRoot("goal", TaskThink)
	require.NoError(t, err)
	ids, err := g.AddChildren(root, []ChildSpec{
		{Goal: "a", TaskType: TaskRetrieve},
		{Goal: "b", TaskType: TaskThink, DependsOnLocalIndex: []int{0}},
	})
	require.NoError(t, err)
	require.NoError(t, g.SetState(ids[0], StateClassifying))
	require.NoError(t, g.SetState(ids[0], StateExecuting))
	require.NoError(t, g.SetResult(ids[0], "A"))
	require.NoError(t, g.SetState(ids[0], StateTerminalSuccess))

	snap := g.Snapshot()
	restored := Restore(snap)

	require.Equal(t, g.RootID(), restored.RootID())
	for id := range snap.Nodes {
		orig, ok1 := g.Get(id)
		got, ok2 := restored.Get(id)
		require.True(t, ok1)
		require.True(t, ok2)
		require.Equal(t, orig.State, got.State)
		require.Equal(t, orig.Result, got.Result)
	}
	require.ElementsMatch(t, restored.ReadyNodes(), g.ReadyNodes())
}
