package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidFlow is wrapped by every validation failure.
	ErrInvalidFlow = errors.New("invalid flow")

	// ErrNodeNotFound is returned when a node id does not exist in the flow.
	ErrNodeNotFound = errors.New("node not found")

	// ErrFlowNotFound is returned when no flow is stored for an agent.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrSessionNotFound is returned when a call id cannot be found in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned when a turn arrives after the call has ended.
	ErrSessionClosed = errors.New("session closed")

	// ErrResolutionDeadlock is wrapped when a node cannot route anywhere.
	ErrResolutionDeadlock = errors.New("resolution deadlock")

	// ErrAmbiguousStrategy is returned when a node sets more than one of
	// auto_transition_to, auto_transition_after_response and transitions.
	ErrAmbiguousStrategy = errors.New("ambiguous transition strategy")

	// ErrUnknownKind is returned when decoding a node of an unsupported kind.
	ErrUnknownKind = errors.New("unknown node kind")
)

// ViolationKind classifies a validation failure.
type ViolationKind string

const (
	ViolationMissingStart           ViolationKind = "missing_start"
	ViolationDuplicateStart         ViolationKind = "duplicate_start"
	ViolationEmptyNodeID            ViolationKind = "empty_node_id"
	ViolationDuplicateNodeID        ViolationKind = "duplicate_node_id"
	ViolationUnknownKind            ViolationKind = "unknown_kind"
	ViolationDanglingTarget         ViolationKind = "dangling_target"
	ViolationTerminalHasTransitions ViolationKind = "terminal_has_transitions"
	ViolationEmptyVariableName      ViolationKind = "empty_variable_name"
	ViolationDuplicateVariableName  ViolationKind = "duplicate_variable_name"
	ViolationMissingDefaultPath     ViolationKind = "missing_default_path"
	ViolationInvalidWebhook         ViolationKind = "invalid_webhook"
	ViolationInvalidCondition       ViolationKind = "invalid_condition"
	ViolationMissingField           ViolationKind = "missing_field"
)

// Violation is one authoring defect.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	NodeID string        `json:"node_id,omitempty"`
	Detail string        `json:"detail"`
}

func (v Violation) String() string {
	if v.NodeID == "" {
		return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
	}
	return fmt.Sprintf("%s at node '%s': %s", v.Kind, v.NodeID, v.Detail)
}

// ValidationError aggregates every violation found in a flow.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("%s: %s", ErrInvalidFlow, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidFlow
}

// Has reports whether a violation of the given kind was recorded.
func (e *ValidationError) Has(kind ViolationKind) bool {
	for _, v := range e.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

// ResolutionDeadlockError reports a node that could not route after its retries ran out.
type ResolutionDeadlockError struct {
	NodeID   string
	Attempts int
	Reason   string
}

func (e *ResolutionDeadlockError) Error() string {
	return fmt.Sprintf("%s at node '%s' after %d attempt(s): %s", ErrResolutionDeadlock, e.NodeID, e.Attempts, e.Reason)
}

func (e *ResolutionDeadlockError) Unwrap() error {
	return ErrResolutionDeadlock
}
