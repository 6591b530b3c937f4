package assignment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"civicsync-admin/models"
	"civicsync-admin/store"
)

// consistentStore builds a store where every assignment pointer pair is consistent.
func consistentStore(rt *rapid.T) (*store.Memory, []string, []string) {
	nIssues := rapid.IntRange(1, 6).Draw(rt, "issues")
	nWorkers := rapid.IntRange(1, 6).Draw(rt, "workers")

	issueIDs := make([]string, nIssues)
	issues := make(map[string]any, nIssues)
	for i := range issueIDs {
		issueIDs[i] = fmt.Sprintf("GBG-%03d", i+1)
		issues[issueIDs[i]] = map[string]any{"status": "Pending", "assignedTo": ""}
	}
	workerIDs := make([]string, nWorkers)
	workers := make(map[string]any, nWorkers)
	for i := range workerIDs {
		workerIDs[i] = fmt.Sprintf("GBG-834001-%03d", i+1)
		workers[workerIDs[i]] = map[string]any{"assignedIssueId": ""}
	}

	// Pair a prefix of the workers with a random subset of issues.
	perm := rapid.Permutation(issueIDs).Draw(rt, "perm")
	paired := rapid.IntRange(0, min(nIssues, nWorkers)).Draw(rt, "paired")
	for i := 0; i < paired; i++ {
		issues[perm[i]].(map[string]any)["assignedTo"] = workerIDs[i]
		workers[workerIDs[i]].(map[string]any)["assignedIssueId"] = perm[i]
	}

	mem := store.NewMemory()
	if err := mem.Load(store.ComplaintsPath, issues); err != nil {
		rt.Fatal(err)
	}
	if err := mem.Load(store.WorkersPath, workers); err != nil {
		rt.Fatal(err)
	}

	return mem, issueIDs, workerIDs
}

func pointers(rt *rapid.T, mem *store.Memory) (map[string]models.Issue, map[string]models.Worker, uint64) {
	ctx := context.Background()
	issuesSnap, err := mem.Get(ctx, store.ComplaintsPath)
	if err != nil {
		rt.Fatal(err)
	}
	workersSnap, err := mem.Get(ctx, store.WorkersPath)
	if err != nil {
		rt.Fatal(err)
	}

	issues := make(map[string]models.Issue)
	for id, raw := range issuesSnap.Map() {
		issues[id] = models.DecodeIssue(id, raw)
	}
	workers := make(map[string]models.Worker)
	for id, raw := range workersSnap.Map() {
		workers[id] = models.DecodeWorker(id, raw)
	}

	return issues, workers, issuesSnap.Version
}

func assertBijection(rt *rapid.T, issues map[string]models.Issue, workers map[string]models.Worker) {
	for id, issue := range issues {
		if issue.AssignedTo == "" {
			continue
		}
		w, ok := workers[issue.AssignedTo]
		if !ok || w.AssignedIssueID != id {
			rt.Fatalf("issue %s points at %s which does not point back", id, issue.AssignedTo)
		}
	}
	for id, w := range workers {
		if w.AssignedIssueID == "" {
			continue
		}
		issue, ok := issues[w.AssignedIssueID]
		if !ok || issue.AssignedTo != id {
			rt.Fatalf("worker %s points at %s which does not point back", id, w.AssignedIssueID)
		}
	}
}

func TestPropertyAssignKeepsBijection(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		mem, issueIDs, workerIDs := consistentStore(rt)
		c := NewCoordinator(mem, WithClock(func() time.Time { return fixedNow }))
		ctx := context.Background()

		steps := rapid.IntRange(1, 10).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			issueID := rapid.SampledFrom(issueIDs).Draw(rt, "issue")
			workerID := rapid.SampledFrom(workerIDs).Draw(rt, "worker")
			_, _, before := pointers(rt, mem)

			if rapid.Bool().Draw(rt, "unassign") {
				if _, err := c.Unassign(ctx, workerID); err != nil {
					rt.Fatalf("unassign %s: %v", workerID, err)
				}
			} else {
				_, err := c.Assign(ctx, issueID, WorkerRef{ID: workerID})
				switch {
				case err == nil:
					issues, workers, _ := pointers(rt, mem)
					if issues[issueID].AssignedTo != workerID || workers[workerID].AssignedIssueID != issueID {
						rt.Fatalf("assign %s -> %s did not link both sides", issueID, workerID)
					}
				case errors.Is(err, ErrAlreadyAssignedWorker), errors.Is(err, ErrAlreadyAssignedIssue):
					if _, _, after := pointers(rt, mem); after != before {
						rt.Fatalf("rejected assign wrote to the store")
					}
				default:
					rt.Fatalf("assign %s -> %s: %v", issueID, workerID, err)
				}
			}

			issues, workers, _ := pointers(rt, mem)
			assertBijection(rt, issues, workers)
		}
	})
}

func TestPropertyAssignedWorkerIsRejected(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		mem, issueIDs, workerIDs := consistentStore(rt)
		c := NewCoordinator(mem)
		_, workers, before := pointers(rt, mem)

		var busy []string
		for _, id := range workerIDs {
			if workers[id].AssignedIssueID != "" {
				busy = append(busy, id)
			}
		}
		if len(busy) == 0 {
			return
		}

		workerID := rapid.SampledFrom(busy).Draw(rt, "worker")
		issueID := rapid.SampledFrom(issueIDs).Draw(rt, "issue")

		_, err := c.Assign(context.Background(), issueID, WorkerRef{ID: workerID})
		if !errors.Is(err, ErrAlreadyAssignedWorker) {
			rt.Fatalf("expected ErrAlreadyAssignedWorker, got %v", err)
		}
		if _, _, after := pointers(rt, mem); after != before {
			rt.Fatalf("rejected assign wrote to the store")
		}
	})
}

func TestPropertyUnassignIsIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		mem, _, workerIDs := consistentStore(rt)
		c := NewCoordinator(mem)
		workerID := rapid.SampledFrom(workerIDs).Draw(rt, "worker")

		for i := 0; i < 2; i++ {
			if _, err := c.Unassign(context.Background(), workerID); err != nil {
				rt.Fatalf("unassign #%d: %v", i+1, err)
			}
			_, workers, _ := pointers(rt, mem)
			if workers[workerID].AssignedIssueID != "" {
				rt.Fatalf("worker still assigned after unassign #%d", i+1)
			}
		}
	})
}

func TestPropertyRepairPoliciesRestoreBijection(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		nIssues := rapid.IntRange(0, 6).Draw(rt, "issues")
		nWorkers := rapid.IntRange(0, 6).Draw(rt, "workers")
		policy := rapid.SampledFrom([]Policy{PolicyIssueWins, PolicyWorkerWins}).Draw(rt, "policy")

		// Pointers may target ids that do not exist.
		issueTargets := []string{""}
		for i := 0; i <= nIssues; i++ {
			issueTargets = append(issueTargets, fmt.Sprintf("I%d", i))
		}
		workerTargets := []string{""}
		for i := 0; i <= nWorkers; i++ {
			workerTargets = append(workerTargets, fmt.Sprintf("W%d", i))
		}

		issues := make(map[string]models.Issue)
		for i := 0; i < nIssues; i++ {
			id := fmt.Sprintf("I%d", i)
			issue := models.Issue{ID: id, AssignedTo: rapid.SampledFrom(workerTargets).Draw(rt, "assignedTo")}
			if rapid.Bool().Draw(rt, "dated") {
				at := fixedNow.Add(time.Duration(rapid.IntRange(0, 3).Draw(rt, "hours")) * time.Hour)
				issue.AssignedDate = &at
			}
			issues[id] = issue
		}
		workers := make(map[string]models.Worker)
		for i := 0; i < nWorkers; i++ {
			id := fmt.Sprintf("W%d", i)
			workers[id] = models.Worker{ID: id, AssignedIssueID: rapid.SampledFrom(issueTargets).Draw(rt, "assignedIssueId")}
		}

		for _, a := range Plan(issues, workers, policy) {
			switch a.Target {
			case TargetIssue:
				issue := issues[a.ID]
				if issue.AssignedTo != a.From {
					rt.Fatalf("action %+v does not start from current state", a)
				}
				issue.AssignedTo = a.To
				issues[a.ID] = issue
			case TargetWorker:
				w := workers[a.ID]
				if w.AssignedIssueID != a.From {
					rt.Fatalf("action %+v does not start from current state", a)
				}
				w.AssignedIssueID = a.To
				workers[a.ID] = w
			}
		}

		assertBijection(rt, issues, workers)
		if len(Plan(issues, workers, policy)) != 0 {
			rt.Fatalf("repair is not a fixed point")
		}
	})
}
