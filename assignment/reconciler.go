package assignment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"civicsync-admin/logging"
	"civicsync-admin/models"
	"civicsync-admin/store"
)

// Policy selects how the Reconciler repairs inconsistent pairs.
type Policy string

const (
	// PolicyReport only reports findings.
	PolicyReport Policy = "report"
	// PolicyWorkerWins treats worker.assignedIssueId as authoritative.
	PolicyWorkerWins Policy = "worker-wins"
	// PolicyIssueWins treats issue.assignedTo as authoritative.
	PolicyIssueWins Policy = "issue-wins"
)

// ParsePolicy parses a policy name. An empty name selects PolicyReport.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyReport, nil
	case PolicyReport, PolicyWorkerWins, PolicyIssueWins:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// FindingKind classifies a broken pointer.
type FindingKind string

const (
	// FindingMissingWorker: an issue points at a worker that does not exist.
	FindingMissingWorker FindingKind = "missing_worker"
	// FindingMissingIssue: a worker points at an issue that does not exist.
	FindingMissingIssue FindingKind = "missing_issue"
	// FindingIssueOnly: an issue points at a worker that points elsewhere.
	FindingIssueOnly FindingKind = "issue_only"
	// FindingWorkerOnly: a worker points at an issue that points elsewhere.
	FindingWorkerOnly FindingKind = "worker_only"
)

// Finding is one broken pointer found by a scan.
type Finding struct {
	Kind     FindingKind `json:"kind"`
	IssueID  string      `json:"issueId"`
	WorkerID string      `json:"workerId"`
}

// Target names the record an Action writes.
type Target string

const (
	TargetIssue  Target = "issue"
	TargetWorker Target = "worker"
)

// Action is one pointer rewrite planned by a repair policy.
type Action struct {
	Target  Target `json:"target"`
	ID      string `json:"id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Applied bool   `json:"applied"`
	// Skipped explains why a planned action was not applied.
	Skipped string `json:"skipped,omitempty"`
}

// Report is the result of one reconcile pass.
type Report struct {
	Policy    Policy    `json:"policy"`
	ScannedAt time.Time `json:"scannedAt"`
	Issues    int       `json:"issues"`
	Workers   int       `json:"workers"`
	Findings  []Finding `json:"findings"`
	Actions   []Action  `json:"actions"`
}

// Consistent reports whether the scan found nothing to repair.
func (r Report) Consistent() bool {
	return len(r.Findings) == 0
}

// Reconciler scans both collections for inconsistent assignment pointers and repairs them
// according to its policy.
type Reconciler struct {
	store  store.Store
	policy Policy
	logger logging.Logger
	now    func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(s store.Store, policy Policy, logger logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Reconciler{store: s, policy: policy, logger: logger, now: time.Now}
}

// Policy returns the repair policy.
func (r *Reconciler) Policy() Policy {
	return r.policy
}

// Run performs one scan and, unless the policy is PolicyReport, applies the repairs. Each
// repair is a conditional write that is skipped when the pointer changed since the scan.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	issues, workers, err := r.scan(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Policy:    r.policy,
		ScannedAt: r.now().UTC(),
		Issues:    len(issues),
		Workers:   len(workers),
		Findings:  Findings(issues, workers),
		Actions:   Plan(issues, workers, r.policy),
	}

	for i := range report.Actions {
		if err := r.apply(ctx, &report.Actions[i]); err != nil {
			return report, err
		}
	}

	if len(report.Findings) > 0 {
		r.logger.Warn("assignment inconsistencies found",
			"policy", r.policy, "findings", len(report.Findings), "actions", len(report.Actions))
	} else {
		r.logger.Debug("assignments consistent", "issues", report.Issues, "workers", report.Workers)
	}

	return report, nil
}

// Loop runs Run every interval until ctx is cancelled. Failed passes are logged.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("reconcile pass failed", "error", err)
			}
		}
	}
}

func (r *Reconciler) scan(ctx context.Context) (map[string]models.Issue, map[string]models.Worker, error) {
	issuesSnap, err := r.store.Get(ctx, store.ComplaintsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("scan issues: %w", err)
	}
	workersSnap, err := r.store.Get(ctx, store.WorkersPath)
	if err != nil {
		return nil, nil, fmt.Errorf("scan workers: %w", err)
	}

	issues := make(map[string]models.Issue)
	for id, raw := range issuesSnap.Map() {
		issues[id] = models.DecodeIssue(id, raw)
	}
	workers := make(map[string]models.Worker)
	for id, raw := range workersSnap.Map() {
		workers[id] = models.DecodeWorker(id, raw)
	}

	return issues, workers, nil
}

var errStale = errors.New("pointer changed since scan")

func (r *Reconciler) apply(ctx context.Context, a *Action) error {
	path, field := store.IssuePath(a.ID), models.FieldAssignedTo
	if a.Target == TargetWorker {
		path, field = store.WorkerPath(a.ID), models.FieldAssignedIssueID
	}

	_, err := r.store.Transact(ctx, path, func(cur any) (any, error) {
		rec, ok := cur.(map[string]any)
		if !ok {
			return nil, errStale
		}
		if v, _ := rec[field].(string); v != a.From {
			return nil, errStale
		}
		rec[field] = a.To
		if a.Target == TargetIssue && a.From != "" {
			rec[models.FieldPreviouslyAssignedWorker] = a.From
		}
		if a.Target == TargetIssue && a.To != "" {
			claim(rec, r.now().UTC())
		}
		return rec, nil
	})
	if errors.Is(err, errStale) {
		a.Skipped = errStale.Error()
		r.logger.Info("reconcile action skipped", "target", a.Target, "id", a.ID, "reason", a.Skipped)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile %s %s: %w", a.Target, a.ID, err)
	}

	a.Applied = true
	r.logger.Info("reconcile action applied", "target", a.Target, "id", a.ID, "from", a.From, "to", a.To)

	return nil
}

// claim gives an issue that just gained a worker the fields Assign would have written.
// Issues already past Pending keep their status, and an existing assignedDate is kept.
func claim(rec map[string]any, at time.Time) {
	raw, _ := rec[models.FieldStatus].(string)
	if status, err := models.NormalizeStatus(raw); err != nil || status == models.StatusPending {
		rec[models.FieldStatus] = string(models.StatusAssigned)
	}
	if _, ok := models.ParseTime(rec[models.FieldAssignedDate]); !ok {
		rec[models.FieldAssignedDate] = at
	}
}

// Findings lists every broken pointer, ordered by kind, issue and worker.
func Findings(issues map[string]models.Issue, workers map[string]models.Worker) []Finding {
	out := []Finding{}
	for id, issue := range issues {
		if issue.AssignedTo == "" {
			continue
		}
		w, ok := workers[issue.AssignedTo]
		switch {
		case !ok:
			out = append(out, Finding{Kind: FindingMissingWorker, IssueID: id, WorkerID: issue.AssignedTo})
		case w.AssignedIssueID != id:
			out = append(out, Finding{Kind: FindingIssueOnly, IssueID: id, WorkerID: w.ID})
		}
	}
	for id, w := range workers {
		if w.AssignedIssueID == "" {
			continue
		}
		issue, ok := issues[w.AssignedIssueID]
		switch {
		case !ok:
			out = append(out, Finding{Kind: FindingMissingIssue, IssueID: w.AssignedIssueID, WorkerID: id})
		case issue.AssignedTo != id:
			out = append(out, Finding{Kind: FindingWorkerOnly, IssueID: issue.ID, WorkerID: id})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].IssueID != out[j].IssueID {
			return out[i].IssueID < out[j].IssueID
		}
		return out[i].WorkerID < out[j].WorkerID
	})

	return out
}

// Plan computes the pointer rewrites that bring both collections into a one-to-one state
// under policy. The result is deterministic: issues come first, then workers, each ordered
// by id.
//
// Under PolicyIssueWins each issue keeps its worker if that worker exists. When several
// issues claim the same worker, the most recently assigned issue keeps it (ties go to the
// lowest issue id). Workers are then pointed at the issue that kept them, or cleared.
//
// Under PolicyWorkerWins each worker keeps its issue if that issue exists. When several
// workers claim the same issue, the worker the issue already names keeps it, otherwise
// the lowest worker id. Issues are then pointed at the worker that kept them, or cleared.
func Plan(issues map[string]models.Issue, workers map[string]models.Worker, policy Policy) []Action {
	wantIssue := make(map[string]string, len(issues))
	wantWorker := make(map[string]string, len(workers))

	switch policy {
	case PolicyIssueWins:
		claims := make(map[string][]string)
		for id, issue := range issues {
			if _, ok := workers[issue.AssignedTo]; ok {
				claims[issue.AssignedTo] = append(claims[issue.AssignedTo], id)
			}
		}
		for workerID, ids := range claims {
			winner := latestAssigned(issues, ids)
			wantIssue[winner] = workerID
			wantWorker[workerID] = winner
		}
	case PolicyWorkerWins:
		claims := make(map[string][]string)
		for id, w := range workers {
			if _, ok := issues[w.AssignedIssueID]; ok {
				claims[w.AssignedIssueID] = append(claims[w.AssignedIssueID], id)
			}
		}
		for issueID, ids := range claims {
			winner := currentOrLowest(issues[issueID].AssignedTo, ids)
			wantWorker[winner] = issueID
			wantIssue[issueID] = winner
		}
	default:
		return []Action{}
	}

	actions := []Action{}
	for _, id := range sortedIDs(issues) {
		if from, to := issues[id].AssignedTo, wantIssue[id]; from != to {
			actions = append(actions, Action{Target: TargetIssue, ID: id, From: from, To: to})
		}
	}
	for _, id := range sortedIDs(workers) {
		if from, to := workers[id].AssignedIssueID, wantWorker[id]; from != to {
			actions = append(actions, Action{Target: TargetWorker, ID: id, From: from, To: to})
		}
	}

	return actions
}

func latestAssigned(issues map[string]models.Issue, ids []string) string {
	sort.Strings(ids)
	winner := ids[0]
	for _, id := range ids[1:] {
		if assignedAfter(issues[id].AssignedDate, issues[winner].AssignedDate) {
			winner = id
		}
	}

	return winner
}

func assignedAfter(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

func currentOrLowest(current string, ids []string) string {
	sort.Strings(ids)
	for _, id := range ids {
		if id == current {
			return id
		}
	}

	return ids[0]
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}
