package assignment

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the Coordinator and the Reconciler.
var (
	// ErrAlreadyAssignedWorker is returned when the worker already holds an assignment.
	ErrAlreadyAssignedWorker = errors.New("worker already assigned")

	// ErrAlreadyAssignedIssue is returned when the issue is assigned to a different worker.
	ErrAlreadyAssignedIssue = errors.New("issue already assigned")

	// ErrInconsistentAssignmentState is returned when exactly one side of an issue/worker
	// pair points at the other.
	ErrInconsistentAssignmentState = errors.New("inconsistent assignment state")

	// ErrUnknownPolicy is returned for reconcile policies other than report, worker-wins
	// and issue-wins.
	ErrUnknownPolicy = errors.New("unknown reconcile policy")
)

// Kind classifies a ConflictError.
type Kind string

const (
	KindAlreadyAssignedWorker Kind = "already_assigned_worker"
	KindAlreadyAssignedIssue  Kind = "already_assigned_issue"
	KindInconsistent          Kind = "inconsistent_assignment_state"
)

// ConflictError describes an assignment conflict. IssueID and WorkerID name the pair
// involved: for KindAlreadyAssignedWorker IssueID is the issue the worker already holds,
// for KindAlreadyAssignedIssue WorkerID is the worker the issue already points at.
// Err carries the underlying cause of an inconsistency, if any.
type ConflictError struct {
	Kind     Kind
	IssueID  string
	WorkerID string
	Err      error
}

func (e *ConflictError) Error() string {
	switch e.Kind {
	case KindAlreadyAssignedWorker:
		return fmt.Sprintf("worker %s is already assigned to issue %s", e.WorkerID, e.IssueID)
	case KindAlreadyAssignedIssue:
		return fmt.Sprintf("issue %s is already assigned to worker %s", e.IssueID, e.WorkerID)
	default:
		if e.Err != nil {
			return fmt.Sprintf("inconsistent assignment state between issue %s and worker %s: %v", e.IssueID, e.WorkerID, e.Err)
		}
		return fmt.Sprintf("inconsistent assignment state between issue %s and worker %s", e.IssueID, e.WorkerID)
	}
}

// Is matches the sentinel of the error's kind.
func (e *ConflictError) Is(target error) bool {
	switch e.Kind {
	case KindAlreadyAssignedWorker:
		return target == ErrAlreadyAssignedWorker
	case KindAlreadyAssignedIssue:
		return target == ErrAlreadyAssignedIssue
	case KindInconsistent:
		return target == ErrInconsistentAssignmentState
	}

	return false
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// KindOf returns the conflict kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.Kind, true
	}

	return "", false
}
