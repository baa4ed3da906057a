// Package romaerr defines the structured error taxonomy shared by the task
// graph, reasoner dispatch, and scheduler. Errors preserve cause chains so
// callers can use errors.Is/As while a Kind discriminator lets the scheduler
// decide retry eligibility without string matching.
package romaerr

import (
	"errors"
	"fmt"
)

// Kind discriminates the category of a ROMA error. See spec.md §7 for the
// full taxonomy this mirrors.
type Kind string

const (
	// KindGraphInvariantViolation marks a rejected graph operation (unknown
	// node or parent, a second root, a result or error write in a state that
	// does not allow it). Cycles and bad sibling references in a child batch
	// are reported as KindInvalidPlan instead.
	KindGraphInvariantViolation Kind = "graph_invariant_violation"
	// KindIllegalTransition marks an attempted state transition the lifecycle
	// state machine does not permit.
	KindIllegalTransition Kind = "illegal_transition"
	// KindContextPreconditionViolation marks execution-context construction
	// over a node whose sibling dependencies are not all terminal-success or
	// whose ancestors are unknown or in an unexpected state.
	KindContextPreconditionViolation Kind = "context_precondition_violation"
	// KindEmptyPlan marks a Planner response with zero child specs.
	KindEmptyPlan Kind = "empty_plan"
	// KindInvalidPlan marks a Planner response that would violate acyclicity,
	// the sibling-only dependency rule, or references an unknown sibling.
	KindInvalidPlan Kind = "invalid_plan"
	// KindReasonerFailure wraps an error raised by a reasoner invocation.
	KindReasonerFailure Kind = "reasoner_failure"
	// KindNodeTimeout marks a per-node timeout elapsing during dispatch.
	KindNodeTimeout Kind = "node_timeout"
	// KindDeadlineExceeded marks the run-level deadline elapsing.
	KindDeadlineExceeded Kind = "deadline_exceeded"
	// KindVerificationRejected marks a Verifier reject with exhausted retries.
	KindVerificationRejected Kind = "verification_rejected"
	// KindDepthExceeded is returned by graph.AddChildren when a batch would
	// place children deeper than max_depth. The scheduler's Atomizer override
	// at the depth bound forces EXECUTE without recording this kind, so a
	// scheduler-driven run does not reach it through planning.
	KindDepthExceeded Kind = "depth_exceeded"
	// KindCancelled marks a node whose dispatch was cancelled cooperatively
	// (deadline, per-node timeout, or an ancestor's failure).
	KindCancelled Kind = "cancelled"
)

// Error is the structured error type used throughout the core. Message is
// the human-readable summary; Cause optionally chains to the error that
// triggered this one (e.g., a reasoner's own error wrapped as
// KindReasonerFailure).
type Error struct {
	Kind       Kind
	Message    string
	NodeID     string
	Retryable  bool
	Cause      error
}

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, nodeID string, retryable bool, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		NodeID:    nodeID,
		Retryable: retryable,
	}
}

// Wrap constructs an Error of the given kind that chains an underlying cause.
func Wrap(kind Kind, nodeID string, retryable bool, cause error, format string, args ...any) *Error {
	e := New(kind, nodeID, retryable, format, args...)
	e.Cause = cause
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.NodeID != "" {
		return fmt.Sprintf("%s: %s (node %s)", e.Kind, e.Message, e.NodeID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause so errors.Is/As traverse the chain.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is a *Error with the same Kind, enabling
// errors.Is(err, romaerr.New(romaerr.KindInvalidPlan, ...)) style checks via
// KindOf below; direct comparison still works through errors.As.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsRetryable reports whether err is a *Error marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// ReasonKind maps a fine-grained Kind onto the coarse outcome reason_kind
// vocabulary exposed by the solver facade (spec.md §6): DeadlineExceeded,
// DepthExceeded, InvalidPlan, ReasonerFailure, VerificationRejected,
// InvariantViolation, Cancelled.
type ReasonKind string

const (
	ReasonDeadlineExceeded     ReasonKind = "DeadlineExceeded"
	ReasonDepthExceeded        ReasonKind = "DepthExceeded"
	ReasonInvalidPlan          ReasonKind = "InvalidPlan"
	ReasonReasonerFailure      ReasonKind = "ReasonerFailure"
	ReasonVerificationRejected ReasonKind = "VerificationRejected"
	ReasonInvariantViolation   ReasonKind = "InvariantViolation"
	ReasonCancelled            ReasonKind = "Cancelled"
)

// ToReasonKind collapses a fine-grained Kind into the outcome-level
// ReasonKind. Kinds with no direct mapping (e.g., KindEmptyPlan) fold into
// the closest coarse category per spec.md §6/§7.
func ToReasonKind(k Kind) ReasonKind {
	switch k {
	case KindGraphInvariantViolation, KindIllegalTransition, KindContextPreconditionViolation:
		return ReasonInvariantViolation
	case KindEmptyPlan, KindInvalidPlan:
		return ReasonInvalidPlan
	case KindReasonerFailure:
		return ReasonReasonerFailure
	case KindNodeTimeout, KindDeadlineExceeded:
		return ReasonDeadlineExceeded
	case KindVerificationRejected:
		return ReasonVerificationRejected
	case KindDepthExceeded:
		return ReasonDepthExceeded
	case KindCancelled:
		return ReasonCancelled
	default:
		return ReasonInvariantViolation
	}
}
