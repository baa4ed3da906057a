// Package reasoner defines the dispatch surface the scheduler uses to
// invoke the five pluggable reasoner roles (Atomizer, Planner, Executor,
// Aggregator, Verifier). The scheduler never performs runtime-type
// switches on a response; every role has its own typed request/response
// pair, tagged by Role, per spec.md's design note against type-based
// dispatch (spec.md §9).
package reasoner

import (
	"github.com/roma-engine/roma/execctx"
	"github.com/roma-engine/roma/graph"
)

// Role identifies one of the five reasoner capabilities.
type Role string

const (
	RoleAtomizer  Role = "atomizer"
	RolePlanner   Role = "planner"
	RoleExecutor  Role = "executor"
	RoleAggregator Role = "aggregator"
	RoleVerifier  Role = "verifier"
)

// Verdict is the Verifier's accept/reject decision.
type Verdict string

const (
	VerdictOK     Verdict = "ok"
	VerdictReject Verdict = "reject"
)

type (
	// AtomizerRequest asks whether a node is directly executable or needs
	// decomposition.
	AtomizerRequest struct {
		Goal    string
		Context execctx.Context
	}

	// AtomizerResponse classifies a node. NodeKind is advisory but binding
	// unless the scheduler overrides it at the depth bound (spec.md §4.3).
	AtomizerResponse struct {
		IsAtomic bool
		NodeKind graph.NodeKind
	}

	// PlannerRequest asks for a decomposition of Goal into child specs.
	PlannerRequest struct {
		Goal    string
		Context execctx.Context
	}

	// PlannerResponse carries the ordered list of child specs to add under
	// the planning node. An empty Children list is an EmptyPlan failure.
	PlannerResponse struct {
		Children []graph.ChildSpec
	}

	// ExecutorRequest asks for direct execution of an atomic node. Tools is
	// the opaque, task-type-specific tool bundle the host binds; the core
	// never interprets it (spec.md §4.3 routing policy).
	ExecutorRequest struct {
		Goal     string
		Context  execctx.Context
		TaskType graph.TaskType
		Tools    any
	}

	// ExecutorResponse carries the produced artifact.
	ExecutorResponse struct {
		Artifact any
		Sources  []string
	}

	// AggregatorChildResult pairs a completed child's goal/task type/result
	// for presentation to the Aggregator.
	AggregatorChildResult struct {
		NodeID   string
		Goal     string
		TaskType graph.TaskType
		Result   any
	}

	// AggregatorFailedChild describes a child the Aggregator is told about
	// only when aggregate_partial is enabled (spec.md §4.4.5).
	AggregatorFailedChild struct {
		NodeID string
		Goal   string
		Err    error
	}

	// AggregatorRequest asks for a synthesis of a planning node's completed
	// children.
	AggregatorRequest struct {
		ParentGoal     string
		Children       []AggregatorChildResult
		FailedChildren []AggregatorFailedChild
	}

	// AggregatorResponse carries the synthesized artifact.
	AggregatorResponse struct {
		SynthesizedArtifact any
	}

	// VerifierRequest asks for a pass/reject verdict on a candidate
	// artifact.
	VerifierRequest struct {
		OriginalGoal      string
		CandidateArtifact any
	}

	// VerifierResponse carries the verdict and, on reject, feedback that is
	// forwarded into the retried node's next context (spec.md §4.4.5, §7).
	VerifierResponse struct {
		Verdict  Verdict
		Feedback string
	}

	// Request is the tagged union the scheduler sends to a Provider. Exactly
	// one role-specific field is populated, matching Role.
	Request struct {
		Role   Role
		NodeID string

		Atomizer   *AtomizerRequest
		Planner    *PlannerRequest
		Executor   *ExecutorRequest
		Aggregator *AggregatorRequest
		Verifier   *VerifierRequest
	}

	// Response is the tagged union a Provider returns. Exactly one
	// role-specific field is populated, matching the Request's Role.
	Response struct {
		Role Role

		Atomizer   *AtomizerResponse
		Planner    *PlannerResponse
		Executor   *ExecutorResponse
		Aggregator *AggregatorResponse
		Verifier   *VerifierResponse
	}
)
