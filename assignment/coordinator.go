// Package assignment keeps the issue/worker assignment pointers consistent.
//
// An assignment is a pair of pointers: complaints/{issue}.assignedTo names the worker and
// workers/{worker}.assignedIssueId names the issue. The store offers no transaction across
// the two records, so each side is written with its own conditional update that re-checks
// the precondition, and a failure between the two writes is reported as an
// ErrInconsistentAssignmentState for the Reconciler to repair.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civicsync-admin/directory"
	"civicsync-admin/logging"
	"civicsync-admin/models"
	"civicsync-admin/store"
)

// WorkerRef identifies the worker an issue is assigned to.
type WorkerRef struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name"`
}

// Assignment is the outcome of a successful Assign.
type Assignment struct {
	IssueID      string    `json:"issueId"`
	WorkerID     string    `json:"workerId"`
	WorkerName   string    `json:"workerName,omitempty"`
	AssignedDate time.Time `json:"assignedDate"`
}

// Release is the outcome of Unassign.
type Release struct {
	WorkerID string `json:"workerId"`
	// IssueIDs lists the issues that pointed at the worker and were cleared.
	IssueIDs []string `json:"issueIds"`
}

// Coordinator performs assign and unassign against the store.
type Coordinator struct {
	store  store.Store
	issues *directory.IssueDirectory
	logger logging.Logger
	now    func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(s store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  s,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Assign points issueID at worker and worker at issueID.
//
// Both records are read fresh from the store. The call fails without writing when the
// worker already holds an issue (ErrAlreadyAssignedWorker) or the issue is held by another
// worker (ErrAlreadyAssignedIssue). The issue is written first and the worker second; if the
// worker write fails after the issue write succeeded the error matches both
// ErrInconsistentAssignmentState and its cause, and nothing is rolled back.
func (c *Coordinator) Assign(ctx context.Context, issueID string, worker WorkerRef) (Assignment, error) {
	issue, current, err := c.load(ctx, issueID, worker.ID)
	if err != nil {
		return Assignment{}, err
	}

	if current.AssignedIssueID != "" {
		return Assignment{}, &ConflictError{Kind: KindAlreadyAssignedWorker, IssueID: current.AssignedIssueID, WorkerID: worker.ID}
	}
	if issue.AssignedTo != "" && issue.AssignedTo != worker.ID {
		return Assignment{}, &ConflictError{Kind: KindAlreadyAssignedIssue, IssueID: issueID, WorkerID: issue.AssignedTo}
	}

	at := c.now().UTC()

	_, err = c.store.Transact(ctx, store.IssuePath(issueID), func(cur any) (any, error) {
		rec, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("issue %s: %w", issueID, store.ErrRecordNotFound)
		}
		if holder, _ := rec[models.FieldAssignedTo].(string); holder != "" && holder != worker.ID {
			return nil, &ConflictError{Kind: KindAlreadyAssignedIssue, IssueID: issueID, WorkerID: holder}
		}
		rec[models.FieldAssignedTo] = worker.ID
		rec[models.FieldStatus] = string(models.StatusAssigned)
		rec[models.FieldAssignedDate] = at
		return rec, nil
	})
	if err != nil {
		return Assignment{}, fmt.Errorf("assign %s to %s: %w", issueID, worker.ID, err)
	}

	_, err = c.store.Transact(ctx, store.WorkerPath(worker.ID), func(cur any) (any, error) {
		rec, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("worker %s: %w", worker.ID, store.ErrRecordNotFound)
		}
		if held, _ := rec[models.FieldAssignedIssueID].(string); held != "" && held != issueID {
			return nil, &ConflictError{Kind: KindAlreadyAssignedWorker, IssueID: held, WorkerID: worker.ID}
		}
		rec[models.FieldAssignedIssueID] = issueID
		return rec, nil
	})
	if err != nil {
		c.logger.Error("worker write failed after issue write, pair left inconsistent",
			"issue", issueID, "worker", worker.ID, "error", err)
		return Assignment{}, &ConflictError{Kind: KindInconsistent, IssueID: issueID, WorkerID: worker.ID, Err: err}
	}

	if c.issues != nil {
		c.issues.ApplyAssignment(issueID, worker.ID, at)
	}

	c.logger.Info("worker assigned", "issue", issueID, "worker", worker.ID, "name", worker.Name)

	return Assignment{IssueID: issueID, WorkerID: worker.ID, WorkerName: worker.Name, AssignedDate: at}, nil
}

// Unassign clears the worker's assignment pointer and every issue that points at the
// worker. Issue status is left unchanged and previouslyAssignedWorker records the worker.
// Calling it on a free worker is not an error. Local directories are not patched.
func (c *Coordinator) Unassign(ctx context.Context, workerID string) (Release, error) {
	if err := recordID("worker", workerID); err != nil {
		return Release{}, err
	}

	workerSnap, err := c.store.Get(ctx, store.WorkerPath(workerID))
	if err != nil {
		return Release{}, fmt.Errorf("read worker %s: %w", workerID, err)
	}
	if !workerSnap.Exists() {
		return Release{}, fmt.Errorf("worker %s: %w", workerID, store.ErrRecordNotFound)
	}

	issuesSnap, err := c.store.Get(ctx, store.ComplaintsPath)
	if err != nil {
		return Release{}, fmt.Errorf("scan issues: %w", err)
	}

	release := Release{WorkerID: workerID, IssueIDs: []string{}}
	records := issuesSnap.Map()
	for _, id := range store.SortedKeys(records) {
		if models.DecodeIssue(id, records[id]).AssignedTo == workerID {
			release.IssueIDs = append(release.IssueIDs, id)
		}
	}
	if len(release.IssueIDs) > 1 {
		c.logger.Warn("several issues point at one worker, clearing all", "worker", workerID, "issues", release.IssueIDs)
	}

	err = c.store.Update(ctx, store.WorkerPath(workerID), map[string]any{models.FieldAssignedIssueID: ""})
	if err != nil {
		return Release{}, fmt.Errorf("unassign worker %s: %w", workerID, err)
	}

	for _, issueID := range release.IssueIDs {
		errTaken := errors.New("reassigned")
		_, err := c.store.Transact(ctx, store.IssuePath(issueID), func(cur any) (any, error) {
			rec, ok := cur.(map[string]any)
			if !ok {
				return nil, errTaken
			}
			// Someone else may have reassigned the issue since the scan.
			if holder, _ := rec[models.FieldAssignedTo].(string); holder != workerID {
				return nil, errTaken
			}
			rec[models.FieldAssignedTo] = ""
			rec[models.FieldPreviouslyAssignedWorker] = workerID
			return rec, nil
		})
		if errors.Is(err, errTaken) {
			c.logger.Debug("issue changed since scan, left alone", "issue", issueID, "worker", workerID)
			continue
		}
		if err != nil {
			return release, &ConflictError{Kind: KindInconsistent, IssueID: issueID, WorkerID: workerID, Err: err}
		}
	}

	c.logger.Info("worker unassigned", "worker", workerID, "issues", release.IssueIDs)

	return release, nil
}
