package reasoner

import (
	"context"

	"github.com/roma-engine/roma/romaerr"
)

type (
	// Provider is the host-supplied capability the scheduler dispatches
	// through. Implementations are stateless with respect to the graph:
	// they may only observe what Request carries (spec.md §4.3).
	// Implementations must honor ctx cancellation at every network/tool-call
	// boundary (spec.md §4.4.4, §5).
	Provider interface {
		Invoke(ctx context.Context, req Request) (Response, error)
	}

	// AsyncProvider is the optional non-blocking capability set: instead of
	// blocking until a response is ready, InvokeAsync returns a Future the
	// scheduler awaits at its own convenience (spec.md §4.3 "invoke_async").
	AsyncProvider interface {
		InvokeAsync(ctx context.Context, req Request) (Future, error)
	}

	// Future is a handle to an in-flight reasoner invocation.
	Future interface {
		Await(ctx context.Context) (Response, error)
	}

	// RoleFunc adapts an ordinary function to the per-role entries of a
	// Table.
	RoleFunc func(ctx context.Context, req Request) (Response, error)

	// Table is a host-supplied map from Role to its handling function. It
	// implements Provider, realizing the "table keyed by role" the scheduler
	// requests reasoners from per spec.md §4.3.
	Table map[Role]RoleFunc
)

// Invoke implements Provider by dispatching req to the function registered
// for req.Role. An unregistered role is a ReasonerFailure, non-retryable.
func (t Table) Invoke(ctx context.Context, req Request) (Response, error) {
	fn, ok := t[req.Role]
	if !ok {
		return Response{}, romaerr.New(romaerr.KindReasonerFailure, req.NodeID, false,
			"no reasoner registered for role %q", req.Role)
	}
	resp, err := fn(ctx, req)
	if err != nil {
		return Response{}, WrapFailure(req.NodeID, req.Role, err, isRetryable(err))
	}
	return resp, nil
}

// WrapFailure wraps a raw error raised by a reasoner invocation into the
// core's structured ReasonerFailure, per spec.md §4.3's "any reasoner
// exception is caught and wrapped" contract.
func WrapFailure(nodeID string, role Role, cause error, retryable bool) *romaerr.Error {
	return romaerr.Wrap(romaerr.KindReasonerFailure, nodeID, retryable, cause,
		"%s invocation failed", role)
}

// isRetryable reports whether cause already carries a retryability verdict
// (e.g. it is itself a *romaerr.Error); otherwise it conservatively treats
// unknown errors as retryable, consistent with spec.md §7 ("retryable
// consumes attempts budget") being the default recovery path for
// unclassified reasoner errors.
func isRetryable(cause error) bool {
	if _, ok := romaerr.KindOf(cause); ok {
		return romaerr.IsRetryable(cause)
	}
	return true
}
