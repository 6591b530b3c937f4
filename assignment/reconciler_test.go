package assignment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicsync-admin/logging/logtest"
	"civicsync-admin/models"
	"civicsync-admin/store"
)

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PolicyReport, "report": PolicyReport, "Worker-Wins": PolicyWorkerWins, " issue-wins ": PolicyIssueWins} {
		got, err := ParsePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParsePolicy("coin-flip")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

// brokenStore holds one example of every inconsistency.
func brokenStore(t *testing.T) *store.Memory {
	t.Helper()

	mem := store.NewMemory()
	require.NoError(t, mem.Load(store.ComplaintsPath, map[string]any{
		// Consistent pair.
		"OK-1": map[string]any{"assignedTo": "W-ok"},
		// Issue points at a missing worker.
		"I-missing": map[string]any{"assignedTo": "W-gone"},
		// Half-finished assign: issue written, worker not.
		"I-half": map[string]any{"assignedTo": "W-half", "assignedDate": "2024-01-21T09:00:00Z"},
		// Two issues claim W-shared; I-new was assigned last.
		"I-old": map[string]any{"assignedTo": "W-shared", "assignedDate": "2024-01-01T00:00:00Z"},
		"I-new": map[string]any{"assignedTo": "W-shared", "assignedDate": "2024-01-05T00:00:00Z"},
		// Free issue claimed only by W-only.
		"I-free": map[string]any{"assignedTo": ""},
	}))
	require.NoError(t, mem.Load(store.WorkersPath, map[string]any{
		"W-ok":     map[string]any{"assignedIssueId": "OK-1"},
		"W-half":   map[string]any{"assignedIssueId": ""},
		"W-shared": map[string]any{"assignedIssueId": "I-old"},
		"W-only":   map[string]any{"assignedIssueId": "I-free"},
		"W-stale":  map[string]any{"assignedIssueId": "I-deleted"},
	}))

	return mem
}

func TestReconcilerReportOnly(t *testing.T) {
	ctx := context.Background()
	mem := brokenStore(t)
	before, err := mem.Get(ctx, store.ComplaintsPath)
	require.NoError(t, err)

	report, err := NewReconciler(mem, PolicyReport, logtest.New(t)).Run(ctx)
	require.NoError(t, err)

	assert.False(t, report.Consistent())
	assert.Empty(t, report.Actions)
	assert.Equal(t, 6, report.Issues)
	assert.Equal(t, 5, report.Workers)
	assert.Equal(t, []Finding{
		{Kind: FindingIssueOnly, IssueID: "I-half", WorkerID: "W-half"},
		{Kind: FindingIssueOnly, IssueID: "I-new", WorkerID: "W-shared"},
		{Kind: FindingMissingIssue, IssueID: "I-deleted", WorkerID: "W-stale"},
		{Kind: FindingMissingWorker, IssueID: "I-missing", WorkerID: "W-gone"},
		{Kind: FindingWorkerOnly, IssueID: "I-free", WorkerID: "W-only"},
	}, report.Findings)

	after, err := mem.Get(ctx, store.ComplaintsPath)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
}

func TestReconcilerIssueWins(t *testing.T) {
	ctx := context.Background()
	mem := brokenStore(t)

	report, err := NewReconciler(mem, PolicyIssueWins, logtest.New(t)).Run(ctx)
	require.NoError(t, err)

	pointers := func(path, field string) string {
		snap, err := mem.Get(ctx, path+"/"+field)
		require.NoError(t, err)
		s, _ := snap.Value.(string)
		return s
	}

	assert.Equal(t, "", pointers("complaints/I-missing", "assignedTo"))
	assert.Equal(t, "W-gone", pointers("complaints/I-missing", "previouslyAssignedWorker"))
	assert.Equal(t, "I-half", pointers("workers/W-half", "assignedIssueId"))
	assert.Equal(t, "I-new", pointers("workers/W-shared", "assignedIssueId"))
	assert.Equal(t, "", pointers("complaints/I-old", "assignedTo"))
	assert.Equal(t, "W-shared", pointers("complaints/I-old", "previouslyAssignedWorker"))
	assert.Equal(t, "", pointers("workers/W-only", "assignedIssueId"))
	assert.Equal(t, "", pointers("workers/W-stale", "assignedIssueId"))
	assert.Equal(t, "OK-1", pointers("workers/W-ok", "assignedIssueId"))

	for _, a := range report.Actions {
		assert.True(t, a.Applied, "%+v", a)
	}

	again, err := NewReconciler(mem, PolicyIssueWins, nil).Run(ctx)
	require.NoError(t, err)
	assert.True(t, again.Consistent())
	assert.Empty(t, again.Actions)
}

func TestReconcilerWorkerWins(t *testing.T) {
	ctx := context.Background()
	mem := brokenStore(t)

	_, err := NewReconciler(mem, PolicyWorkerWins, logtest.New(t)).Run(ctx)
	require.NoError(t, err)

	issues, err := mem.Get(ctx, store.ComplaintsPath)
	require.NoError(t, err)
	workers, err := mem.Get(ctx, store.WorkersPath)
	require.NoError(t, err)
	at := func(v any, segs ...string) any { return store.ValueAt(v, segs) }

	assert.Equal(t, "", at(issues.Value, "I-missing", "assignedTo"))
	assert.Equal(t, "", at(issues.Value, "I-half", "assignedTo"))
	assert.Equal(t, "W-half", at(issues.Value, "I-half", "previouslyAssignedWorker"))
	assert.Equal(t, "W-shared", at(issues.Value, "I-old", "assignedTo"))
	assert.Equal(t, "", at(issues.Value, "I-new", "assignedTo"))
	assert.Equal(t, "W-only", at(issues.Value, "I-free", "assignedTo"))
	assert.Equal(t, "", at(workers.Value, "W-stale", "assignedIssueId"))
	assert.Equal(t, "I-old", at(workers.Value, "W-shared", "assignedIssueId"))

	again, err := NewReconciler(mem, PolicyWorkerWins, nil).Run(ctx)
	require.NoError(t, err)
	assert.True(t, again.Consistent())
}

func TestReconcilerWorkerWinsMarksIssueAssigned(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Load(store.ComplaintsPath, map[string]any{
		"I-free":    map[string]any{"assignedTo": "", "status": "Pending"},
		"I-working": map[string]any{"assignedTo": "", "status": "In Progress", "assignedDate": "2024-01-02T00:00:00Z"},
	}))
	require.NoError(t, mem.Load(store.WorkersPath, map[string]any{
		"W-free":    map[string]any{"assignedIssueId": "I-free"},
		"W-working": map[string]any{"assignedIssueId": "I-working"},
	}))

	r := NewReconciler(mem, PolicyWorkerWins, logtest.New(t))
	r.now = func() time.Time { return fixedNow }
	_, err := r.Run(ctx)
	require.NoError(t, err)

	snap, err := mem.Get(ctx, store.ComplaintsPath)
	require.NoError(t, err)

	free := models.DecodeIssue("I-free", store.ValueAt(snap.Value, []string{"I-free"}))
	assert.Equal(t, "W-free", free.AssignedTo)
	assert.Equal(t, models.StatusAssigned, free.Status)
	require.NotNil(t, free.AssignedDate)
	assert.True(t, fixedNow.Equal(*free.AssignedDate))

	working := models.DecodeIssue("I-working", store.ValueAt(snap.Value, []string{"I-working"}))
	assert.Equal(t, "W-working", working.AssignedTo)
	assert.Equal(t, models.StatusInProgress, working.Status)
	require.NotNil(t, working.AssignedDate)
	assert.Equal(t, 2, working.AssignedDate.Day())
}

func TestPlanWorkerWinsKeepsCurrentHolder(t *testing.T) {
	issues := map[string]models.Issue{
		"I": {ID: "I", AssignedTo: "W-b"},
	}
	workers := map[string]models.Worker{
		"W-a": {ID: "W-a", AssignedIssueID: "I"},
		"W-b": {ID: "W-b", AssignedIssueID: "I"},
		"W-c": {ID: "W-c", AssignedIssueID: "I"},
	}

	actions := Plan(issues, workers, PolicyWorkerWins)
	assert.Equal(t, []Action{
		{Target: TargetWorker, ID: "W-a", From: "I", To: ""},
		{Target: TargetWorker, ID: "W-c", From: "I", To: ""},
	}, actions)

	issues["I"] = models.Issue{ID: "I"}
	actions = Plan(issues, workers, PolicyWorkerWins)
	assert.Equal(t, []Action{
		{Target: TargetIssue, ID: "I", From: "", To: "W-a"},
		{Target: TargetWorker, ID: "W-b", From: "I", To: ""},
		{Target: TargetWorker, ID: "W-c", From: "I", To: ""},
	}, actions)
}

func TestPlanIssueWinsTieGoesToLowestID(t *testing.T) {
	same := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issues := map[string]models.Issue{
		"I-b": {ID: "I-b", AssignedTo: "W", AssignedDate: &same},
		"I-a": {ID: "I-a", AssignedTo: "W", AssignedDate: &same},
		"I-c": {ID: "I-c", AssignedTo: "W"},
	}
	workers := map[string]models.Worker{"W": {ID: "W"}}

	assert.Equal(t, []Action{
		{Target: TargetIssue, ID: "I-b", From: "W", To: ""},
		{Target: TargetIssue, ID: "I-c", From: "W", To: ""},
		{Target: TargetWorker, ID: "W", From: "", To: "I-a"},
	}, Plan(issues, workers, PolicyIssueWins))
}

func TestReconcilerSkipsStaleActions(t *testing.T) {
	ctx := context.Background()
	mem := brokenStore(t)
	r := NewReconciler(mem, PolicyIssueWins, logtest.New(t))

	issues, workers, err := r.scan(ctx)
	require.NoError(t, err)
	// Another writer changes W-half between scan and repair.
	require.NoError(t, mem.Update(ctx, store.WorkerPath("W-half"), map[string]any{"assignedIssueId": "I-other"}))

	for _, a := range Plan(issues, workers, PolicyIssueWins) {
		if a.Target != TargetWorker || a.ID != "W-half" {
			continue
		}
		require.NoError(t, r.apply(ctx, &a))
		assert.False(t, a.Applied)
		assert.NotEmpty(t, a.Skipped)
	}

	snap, err := mem.Get(ctx, "workers/W-half/assignedIssueId")
	require.NoError(t, err)
	assert.Equal(t, "I-other", snap.Value)
}

func TestReconcilerStoreFailure(t *testing.T) {
	mem := brokenStore(t)
	mem.SetFaultHook(func(store.Op, string) error { return fmt.Errorf("offline") })

	_, err := NewReconciler(mem, PolicyIssueWins, nil).Run(context.Background())
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
}

func TestReconcilerLoopStopsOnCancel(t *testing.T) {
	mem := brokenStore(t)
	r := NewReconciler(mem, PolicyIssueWins, logtest.New(t))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Loop(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		snap, err := mem.Get(context.Background(), "workers/W-half/assignedIssueId")
		return err == nil && snap.Value == "I-half"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}
