// Package directory keeps in-memory read models of the issue and worker collections.
//
// The issue directory is push-updated through a standing store subscription, while the
// worker directory is pulled on demand with Refresh.
package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"civicsync-admin/logging"
	"civicsync-admin/models"
	"civicsync-admin/store"
)

// IssueFilter narrows Search results. Empty fields and "all" match everything.
type IssueFilter struct {
	Search   string
	Status   string
	Category string
}

// IssueDirectory mirrors complaints/ in memory.
type IssueDirectory struct {
	store  store.Store
	logger logging.Logger

	mu     sync.RWMutex
	issues []models.Issue
	index  map[string]int
	sub    store.Subscription
	// gen identifies the active subscription; callbacks from older ones are ignored.
	gen uint64
}

// NewIssueDirectory creates an empty directory. Call Subscribe or Fetch to populate it.
func NewIssueDirectory(s store.Store, logger logging.Logger) *IssueDirectory {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &IssueDirectory{
		store:  s,
		logger: logger,
		index:  make(map[string]int),
	}
}

// Subscribe starts a standing subscription on the issue collection, replacing any previous
// one. Every snapshot replaces the local list wholesale.
func (d *IssueDirectory) Subscribe(ctx context.Context) error {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	previous := d.sub
	d.sub = nil
	d.mu.Unlock()

	if previous != nil {
		previous.Unsubscribe()
	}

	sub, err := d.store.Subscribe(ctx, store.ComplaintsPath, func(snap store.Snapshot) {
		d.replace(gen, snap)
	})
	if err != nil {
		return fmt.Errorf("subscribe to issues: %w", err)
	}

	d.mu.Lock()
	if d.gen != gen {
		// Superseded while subscribing.
		d.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	d.sub = sub
	d.mu.Unlock()

	d.logger.Info("issue directory subscribed", "path", store.ComplaintsPath)

	return nil
}

// Unsubscribe cancels the standing subscription. It is a no-op when nothing is subscribed.
func (d *IssueDirectory) Unsubscribe() {
	d.mu.Lock()
	d.gen++
	sub := d.sub
	d.sub = nil
	d.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
		d.logger.Info("issue directory unsubscribed")
	}
}

// Subscribed reports whether a standing subscription is active.
func (d *IssueDirectory) Subscribed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.sub != nil
}

// Fetch reads the issue collection once and replaces the local list.
func (d *IssueDirectory) Fetch(ctx context.Context) error {
	snap, err := d.store.Get(ctx, store.ComplaintsPath)
	if err != nil {
		return fmt.Errorf("fetch issues: %w", err)
	}

	d.mu.Lock()
	d.load(snap)
	d.mu.Unlock()

	return nil
}

func (d *IssueDirectory) replace(gen uint64, snap store.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.gen {
		return
	}
	d.load(snap)
	d.logger.Debug("issue directory replaced", "issues", len(d.issues), "version", snap.Version)
}

// load must be called with mu held.
func (d *IssueDirectory) load(snap store.Snapshot) {
	records := snap.Map()
	issues := make([]models.Issue, 0, len(records))
	index := make(map[string]int, len(records))
	for _, id := range store.SortedKeys(records) {
		index[id] = len(issues)
		issues = append(issues, models.DecodeIssue(id, records[id]))
	}

	d.issues = issues
	d.index = index
}

// All returns a copy of every issue in store order.
func (d *IssueDirectory) All() []models.Issue {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return append([]models.Issue(nil), d.issues...)
}

// ByID returns the local copy of one issue.
func (d *IssueDirectory) ByID(id string) (models.Issue, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i, ok := d.index[id]
	if !ok {
		return models.Issue{}, false
	}

	return d.issues[i], true
}

// ByStatus returns the issues whose status matches, ignoring case. Legacy spellings are
// accepted and mapped onto the canonical vocabulary.
func (d *IssueDirectory) ByStatus(status string) []models.Issue {
	want, err := models.NormalizeStatus(status)

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := []models.Issue{}
	for _, issue := range d.issues {
		if err == nil && issue.Status == want {
			out = append(out, issue)
			continue
		}
		if err != nil && strings.EqualFold(issue.LegacyStatus, strings.TrimSpace(status)) {
			out = append(out, issue)
		}
	}

	return out
}

// Search filters issues by free text, status and category and returns them newest first.
func (d *IssueDirectory) Search(f IssueFilter) ([]models.Issue, error) {
	var status models.IssueStatus
	if !isAll(f.Status) {
		s, err := models.NormalizeStatus(f.Status)
		if err != nil {
			return nil, err
		}
		status = s
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))

	d.mu.RLock()
	out := []models.Issue{}
	for _, issue := range d.issues {
		if status != "" && issue.Status != status {
			continue
		}
		if !isAll(f.Category) && !strings.EqualFold(issue.Category, f.Category) {
			continue
		}
		if term != "" && !matchesTerm(issue, term) {
			continue
		}
		out = append(out, issue)
	}
	d.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].DateReported, out[j].DateReported
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})

	return out, nil
}

func matchesTerm(issue models.Issue, term string) bool {
	for _, field := range []string{issue.ID, issue.DisplayTitle(), issue.Description, issue.Location} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}

	return false
}

// Categories returns the distinct non-empty categories, sorted.
func (d *IssueDirectory) Categories() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{})
	out := []string{}
	for _, issue := range d.issues {
		if issue.Category == "" {
			continue
		}
		if _, ok := seen[issue.Category]; ok {
			continue
		}
		seen[issue.Category] = struct{}{}
		out = append(out, issue.Category)
	}
	sort.Strings(out)

	return out
}

// UpdateStatus writes a new status for one issue and patches the local copy. The local copy
// is left untouched when the write fails.
func (d *IssueDirectory) UpdateStatus(ctx context.Context, id, status string) (models.Issue, error) {
	if err := store.ValidateSegment(id); err != nil {
		return models.Issue{}, fmt.Errorf("issue %q: %w", id, store.ErrRecordNotFound)
	}
	canonical, err := models.NormalizeStatus(status)
	if err != nil {
		return models.Issue{}, err
	}

	if _, ok := d.ByID(id); !ok {
		snap, err := d.store.Get(ctx, store.IssuePath(id))
		if err != nil {
			return models.Issue{}, fmt.Errorf("update status of %s: %w", id, err)
		}
		if !snap.Exists() {
			return models.Issue{}, fmt.Errorf("issue %s: %w", id, store.ErrRecordNotFound)
		}
	}

	err = d.store.Update(ctx, store.IssuePath(id), map[string]any{models.FieldStatus: string(canonical)})
	if err != nil {
		d.logger.Warn("issue status write failed", "issue", id, "status", canonical, "error", err)
		return models.Issue{}, fmt.Errorf("update status of %s: %w", id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.index[id]
	if !ok {
		return models.Issue{ID: id, Status: canonical}, nil
	}
	d.issues[i].Status = canonical
	d.issues[i].LegacyStatus = ""

	return d.issues[i], nil
}

// ApplyAssignment patches the local copy of an issue after a successful assignment.
func (d *IssueDirectory) ApplyAssignment(id, workerID string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i, ok := d.index[id]
	if !ok {
		return
	}
	d.issues[i].AssignedTo = workerID
	d.issues[i].Status = models.StatusAssigned
	d.issues[i].LegacyStatus = ""
	d.issues[i].AssignedDate = &at
}

// MigrateLegacyStatuses rewrites every stored status that is not spelled canonically. Values
// outside both vocabularies become Pending. It returns the number of records rewritten.
func (d *IssueDirectory) MigrateLegacyStatuses(ctx context.Context) (int, error) {
	snap, err := d.store.Get(ctx, store.ComplaintsPath)
	if err != nil {
		return 0, fmt.Errorf("migrate statuses: %w", err)
	}

	records := snap.Map()
	migrated := 0
	for _, id := range store.SortedKeys(records) {
		rec, ok := records[id].(map[string]any)
		if !ok {
			continue
		}
		raw, _ := rec[models.FieldStatus].(string)
		if models.IsCanonical(raw) {
			continue
		}

		canonical, err := models.NormalizeStatus(raw)
		if err != nil {
			canonical = models.StatusPending
		}
		if err := d.store.Update(ctx, store.IssuePath(id), map[string]any{models.FieldStatus: string(canonical)}); err != nil {
			return migrated, fmt.Errorf("migrate status of %s: %w", id, err)
		}
		d.logger.Info("migrated legacy status", "issue", id, "from", raw, "to", canonical)
		migrated++
	}

	return migrated, nil
}

func isAll(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "all")
}
