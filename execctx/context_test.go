package execctx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roma-engine/roma/graph"
)

func completeNode(t *testing.T, g *graph.TaskGraph, id string, result any) {
	t.Helper()
	require.NoError(t, g.SetState(id, graph.StateClassifying))
	require.NoError(t, g.SetState(id, graph.StateExecuting))
	require.NoError(t, g.SetResult(id, result))
	require.NoError(t, g.SetState(id, graph.StateTerminalSuccess))
}

func TestBuildGathersSiblingAndTransitiveResults(t *testing.T) {
	g := graph.New(5)
	root, err := g.CreateRoot("root goal", graph.TaskThink)
	require.NoError(t, err)
	completeNode(t, g, root, "root artifact")

	ids, err := g.AddChildren(root, []graph.ChildSpec{
		{Goal: "retrieve A", TaskType: graph.TaskRetrieve},
		{Goal: "retrieve B", TaskType: graph.TaskRetrieve},
		{Goal: "compare", TaskType: graph.TaskThink, DependsOnLocalIndex: []int{0, 1}},
	})
	require.NoError(t, err)
	completeNode(t, g, ids[0], "A")
	completeNode(t, g, ids[1], "B")

	ctx, err := Build(g, ids[2], "")
	require.NoError(t, err)
	require.Equal(t, "compare", ctx.Goal)
	require.Equal(t, "root goal", ctx.ParentGoal)
	require.Equal(t, "A", ctx.SiblingResults[ids[0]])
	require.Equal(t, "B", ctx.SiblingResults[ids[1]])
	require.Len(t, ctx.TransitiveResults, 1)
	require.Equal(t, root, ctx.TransitiveResults[0].NodeID)
	require.Equal(t, "root artifact", ctx.TransitiveResults[0].Result)
}

func TestBuildFailsWhenSiblingNotTerminalSuccess(t *testing.T) {
	g := graph.New(5)
	root, err := g.CreateRoot("root goal", graph.TaskThink)
	require.NoError(t, err)
	ids, err := g.AddChildren(root, []graph.ChildSpec{
		{Goal: "a", TaskType: graph.TaskRetrieve},
		{Goal: "b", TaskType: graph.TaskThink, DependsOnLocalIndex: []int{0}},
	})
	require.NoError(t, err)

	_, err = Build(g, ids[1], "")
	require.Error(t, err, "sibling A has not completed yet")
}

func TestBuildCarriesFeedbackForward(t *testing.T) {
	g := graph.New(5)
	root, err := g.CreateRoot("root goal", graph.TaskThink)
	require.NoError(t, err)
	require.NoError(t, g.SetState(root, graph.StateClassifying))
	require.NoError(t, g.SetState(root, graph.StateExecuting))

	ctx, err := Build(g, root, "too long, shorten it")
	require.NoError(t, err)
	require.Equal(t, "too long, shorten it", ctx.Feedback)
}
