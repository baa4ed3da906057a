package reasoner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roma-engine/roma/graph"
	"github.com/roma-engine/roma/romaerr"
)

func TestTableDispatchesByRole(t *testing.T) {
	table := Table{
		RoleAtomizer: func(ctx context.Context, req Request) (Response, error) {
			return Response{Role: RoleAtomizer, Atomizer: &AtomizerResponse{IsAtomic: true, NodeKind: graph.KindExecute}}, nil
		},
	}
	resp, err := table.Invoke(context.Background(), Request{Role: RoleAtomizer, NodeID: "n1"})
	require.NoError(t, err)
	require.True(t, resp.Atomizer.IsAtomic)
	require.Equal(t, graph.KindExecute, resp.Atomizer.NodeKind)
}

func TestTableMissingRoleIsNonRetryableReasonerFailure(t *testing.T) {
	table := Table{}
	_, err := table.Invoke(context.Background(), Request{Role: RolePlanner, NodeID: "n1"})
	require.Error(t, err)
	kind, ok := romaerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, romaerr.KindReasonerFailure, kind)
	require.False(t, romaerr.IsRetryable(err))
}

func TestTableWrapsUnderlyingErrorAsReasonerFailure(t *testing.T) {
	cause := errors.New("model timed out")
	table := Table{
		RoleExecutor: func(ctx context.Context, req Request) (Response, error) {
			return Response{}, cause
		},
	}
	_, err := table.Invoke(context.Background(), Request{Role: RoleExecutor, NodeID: "n1"})
	require.Error(t, err)
	require.ErrorIs(t, err, cause)
	kind, ok := romaerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, romaerr.KindReasonerFailure, kind)
}
