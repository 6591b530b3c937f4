package assignment

import (
	"context"
	"fmt"

	"civicsync-admin/models"
	"civicsync-admin/store"
)

// PairState is the derived assignment state of one (issue, worker) pair.
type PairState string

const (
	// Unclaimed: neither side points anywhere.
	Unclaimed PairState = "unclaimed"
	// Claimed: both sides point at each other.
	Claimed PairState = "claimed"
	// Inconsistent: exactly one side points at the other.
	Inconsistent PairState = "inconsistent"
	// Unrelated: neither side points at the other, and at least one is held elsewhere.
	Unrelated PairState = "unrelated"
)

// StateOf derives the pair state from the two assignment pointers.
func StateOf(issue models.Issue, worker models.Worker) PairState {
	issueToWorker := issue.AssignedTo == worker.ID
	workerToIssue := worker.AssignedIssueID == issue.ID

	switch {
	case issueToWorker && workerToIssue:
		return Claimed
	case issueToWorker || workerToIssue:
		return Inconsistent
	case issue.AssignedTo == "" && worker.AssignedIssueID == "":
		return Unclaimed
	default:
		return Unrelated
	}
}

// Check reads both records from the store and derives their pair state. An Inconsistent
// pair is returned together with an ErrInconsistentAssignmentState error.
func (c *Coordinator) Check(ctx context.Context, issueID, workerID string) (PairState, error) {
	issue, worker, err := c.load(ctx, issueID, workerID)
	if err != nil {
		return "", err
	}

	state := StateOf(issue, worker)
	if state == Inconsistent {
		return state, &ConflictError{
			Kind:     KindInconsistent,
			IssueID:  issueID,
			WorkerID: workerID,
			Err:      fmt.Errorf("issue points at %q, worker points at %q", issue.AssignedTo, worker.AssignedIssueID),
		}
	}

	return state, nil
}

// recordID rejects ids that do not name exactly one record, such as "W1/name".
func recordID(kind, id string) error {
	if err := store.ValidateSegment(id); err != nil {
		return fmt.Errorf("%s %q: %w", kind, id, store.ErrRecordNotFound)
	}

	return nil
}

// load reads the authoritative issue and worker records.
func (c *Coordinator) load(ctx context.Context, issueID, workerID string) (models.Issue, models.Worker, error) {
	if err := recordID("issue", issueID); err != nil {
		return models.Issue{}, models.Worker{}, err
	}
	if err := recordID("worker", workerID); err != nil {
		return models.Issue{}, models.Worker{}, err
	}

	issueSnap, err := c.store.Get(ctx, store.IssuePath(issueID))
	if err != nil {
		return models.Issue{}, models.Worker{}, fmt.Errorf("read issue %s: %w", issueID, err)
	}
	if !issueSnap.Exists() {
		return models.Issue{}, models.Worker{}, fmt.Errorf("issue %s: %w", issueID, store.ErrRecordNotFound)
	}

	workerSnap, err := c.store.Get(ctx, store.WorkerPath(workerID))
	if err != nil {
		return models.Issue{}, models.Worker{}, fmt.Errorf("read worker %s: %w", workerID, err)
	}
	if !workerSnap.Exists() {
		return models.Issue{}, models.Worker{}, fmt.Errorf("worker %s: %w", workerID, store.ErrRecordNotFound)
	}

	return models.DecodeIssue(issueID, issueSnap.Value), models.DecodeWorker(workerID, workerSnap.Value), nil
}
