package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"civicsync-admin/logging"
	"civicsync-admin/models"
	"civicsync-admin/store"
)

// WorkerFilter narrows Filtered results. Empty fields and "all" match everything.
type WorkerFilter struct {
	Availability string
	Location     string
	Department   string
}

// WorkerDirectory is a pull-based snapshot of workers/. It only changes on Refresh.
type WorkerDirectory struct {
	store  store.Store
	logger logging.Logger
	group  singleflight.Group

	mu      sync.RWMutex
	workers map[string]models.Worker
	version uint64
}

// NewWorkerDirectory creates an empty directory.
func NewWorkerDirectory(s store.Store, logger logging.Logger) *WorkerDirectory {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &WorkerDirectory{
		store:   s,
		logger:  logger,
		workers: make(map[string]models.Worker),
	}
}

// Refresh reads the worker collection once and replaces the local map. Concurrent callers
// share a single store read.
func (d *WorkerDirectory) Refresh(ctx context.Context) error {
	_, err, shared := d.group.Do("refresh", func() (any, error) {
		snap, err := d.store.Get(ctx, store.WorkersPath)
		if err != nil {
			return nil, err
		}

		records := snap.Map()
		workers := make(map[string]models.Worker, len(records))
		for id, raw := range records {
			workers[id] = models.DecodeWorker(id, raw)
		}

		d.mu.Lock()
		d.workers = workers
		d.version = snap.Version
		d.mu.Unlock()

		d.logger.Debug("worker directory refreshed", "workers", len(workers), "version", snap.Version)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("refresh workers: %w", err)
	}
	if shared {
		d.logger.Debug("worker refresh shared with a concurrent caller")
	}

	return nil
}

// ByID returns the local copy of one worker.
func (d *WorkerDirectory) ByID(id string) (models.Worker, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	w, ok := d.workers[id]
	return w, ok
}

// All returns every worker ordered by id.
func (d *WorkerDirectory) All() []models.Worker {
	return d.Filtered(WorkerFilter{})
}

// Filtered returns the workers matching every provided filter, ordered by id. Department
// comparison ignores case and whitespace.
func (d *WorkerDirectory) Filtered(f WorkerFilter) []models.Worker {
	d.mu.RLock()
	out := make([]models.Worker, 0, len(d.workers))
	for _, w := range d.workers {
		if !isAll(f.Availability) && !strings.EqualFold(string(w.Availability), strings.TrimSpace(f.Availability)) {
			continue
		}
		if !isAll(f.Location) && w.Location != f.Location {
			continue
		}
		if !isAll(f.Department) && models.NormalizeDepartment(w.Department) != models.NormalizeDepartment(f.Department) {
			continue
		}
		out = append(out, w)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Locations returns the distinct non-empty worker locations, sorted.
func (d *WorkerDirectory) Locations() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{})
	out := []string{}
	for _, w := range d.workers {
		if w.Location == "" {
			continue
		}
		if _, ok := seen[w.Location]; ok {
			continue
		}
		seen[w.Location] = struct{}{}
		out = append(out, w.Location)
	}
	sort.Strings(out)

	return out
}

// Len returns the number of workers in the last refresh.
func (d *WorkerDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.workers)
}
