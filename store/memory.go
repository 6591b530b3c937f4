package store

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// Op names a store operation, used by fault hooks and error messages.
type Op string

const (
	OpGet       Op = "get"
	OpSet       Op = "set"
	OpUpdate    Op = "update"
	OpTransact  Op = "transact"
	OpSubscribe Op = "subscribe"
)

// FaultHook can fail an operation before it touches the tree. A non-nil return is surfaced
// to the caller as an UnavailableError.
type FaultHook func(op Op, path string) error

// Memory is an in-process Store. All data lives in one tree guarded by a RWMutex; every
// write bumps a global version. Deliveries are queued in commit order while the write lock
// is held and run by one goroutine at a time with no lock held, so a write returns only
// after its own notifications have been delivered. Subscriber callbacks may read from the
// store and unsubscribe but must not write to it.
type Memory struct {
	mu      sync.RWMutex
	root    map[string]any
	version uint64
	subs    map[uint64]*memorySub
	nextSub uint64
	fault   FaultHook

	// qmu guards the delivery queue. It is taken after mu, never before.
	qmu       sync.Mutex
	drained   *sync.Cond
	queue     []delivery
	queued    uint64
	delivered uint64
	draining  bool
}

var _ Store = (*Memory)(nil)

type memorySub struct {
	id     uint64
	segs   []string
	path   string
	fn     func(Snapshot)
	parent *Memory
	once   sync.Once
	closed atomic.Bool
}

type delivery struct {
	seq  uint64
	sub  *memorySub
	snap Snapshot
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	m := &Memory{
		root: make(map[string]any),
		subs: make(map[uint64]*memorySub),
	}
	m.drained = sync.NewCond(&m.qmu)

	return m
}

// SetFaultHook installs (or clears, with nil) a fault hook.
func (m *Memory) SetFaultHook(hook FaultHook) {
	m.mu.Lock()
	m.fault = hook
	m.mu.Unlock()
}

// Load seeds the tree at path without running fault hooks. Intended for fixtures.
func (m *Memory) Load(path string, value any) error {
	return m.write(context.Background(), OpSet, path, false, func(current any) (any, error) {
		return Normalize(value)
	})
}

func (m *Memory) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, Unavailable(string(OpGet), path, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.fault != nil {
		if err := m.fault(OpGet, path); err != nil {
			return Snapshot{}, Unavailable(string(OpGet), path, err)
		}
	}

	return m.snapshotLocked(segs, path), nil
}

func (m *Memory) Set(ctx context.Context, path string, value any) error {
	normalized, err := Normalize(value)
	if err != nil {
		return err
	}

	return m.write(ctx, OpSet, path, true, func(any) (any, error) {
		return normalized, nil
	})
}

func (m *Memory) Update(ctx context.Context, path string, fields map[string]any) error {
	return m.write(ctx, OpUpdate, path, true, func(current any) (any, error) {
		return MergeFields(current, fields)
	})
}

func (m *Memory) Transact(ctx context.Context, path string, fn TxnFunc) (Snapshot, error) {
	var result any
	err := m.write(ctx, OpTransact, path, true, func(current any) (any, error) {
		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		normalized, err := Normalize(next)
		if err != nil {
			return nil, err
		}
		result = Clone(normalized)

		return normalized, nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.RLock()
	version := m.version
	m.mu.RUnlock()

	return Snapshot{Path: strings.Trim(path, "/"), Value: result, Version: version}, nil
}

func (m *Memory) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Subscription, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Unavailable(string(OpSubscribe), path, err)
	}

	m.mu.Lock()
	if m.fault != nil {
		if err := m.fault(OpSubscribe, path); err != nil {
			m.mu.Unlock()
			return nil, Unavailable(string(OpSubscribe), path, err)
		}
	}

	m.nextSub++
	sub := &memorySub{id: m.nextSub, segs: segs, path: strings.Join(segs, "/"), fn: fn, parent: m}
	m.subs[sub.id] = sub
	upTo := m.enqueueLocked([]delivery{{sub: sub, snap: m.snapshotLocked(segs, sub.path)}})
	m.mu.Unlock()

	m.flush(upTo)

	return sub, nil
}

func (s *memorySub) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.parent.mu.Lock()
		delete(s.parent.subs, s.id)
		s.parent.mu.Unlock()
	})
}

// write runs mutate against the current value at path under the write lock, stores the
// result and notifies affected subscribers.
func (m *Memory) write(ctx context.Context, op Op, path string, faults bool, mutate TxnFunc) error {
	segs, err := SplitPath(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return Unavailable(string(op), path, err)
	}

	m.mu.Lock()
	if faults && m.fault != nil {
		if err := m.fault(op, path); err != nil {
			m.mu.Unlock()
			return Unavailable(string(op), path, err)
		}
	}

	current := Clone(ValueAt(m.root, segs))
	next, err := mutate(current)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	root := ReplaceAt(m.root, segs, next)
	if root == nil {
		m.root = make(map[string]any)
	} else {
		m.root = root.(map[string]any)
	}
	m.version++

	upTo := m.enqueueLocked(m.affectedLocked(segs))
	m.mu.Unlock()

	m.flush(upTo)

	return nil
}

// enqueueLocked numbers ds and appends them to the delivery queue. It returns the sequence
// number the caller must wait for. Callers hold mu, which fixes the order across writes.
func (m *Memory) enqueueLocked(ds []delivery) uint64 {
	m.qmu.Lock()
	defer m.qmu.Unlock()

	for _, d := range ds {
		m.queued++
		d.seq = m.queued
		m.queue = append(m.queue, d)
	}

	return m.queued
}

// flush returns once every delivery up to seq upTo has run. The caller that finds the
// queue idle drains it; everyone else waits for that batch to finish.
func (m *Memory) flush(upTo uint64) {
	m.qmu.Lock()
	defer m.qmu.Unlock()

	for m.delivered < upTo {
		if m.draining {
			m.drained.Wait()
			continue
		}
		batch := m.queue
		if len(batch) == 0 {
			return
		}
		m.queue = nil
		m.draining = true

		m.qmu.Unlock()
		for _, d := range batch {
			if !d.sub.closed.Load() {
				d.sub.fn(d.snap)
			}
		}
		m.qmu.Lock()

		m.delivered = batch[len(batch)-1].seq
		m.draining = false
		m.drained.Broadcast()
	}
}

func (m *Memory) snapshotLocked(segs []string, path string) Snapshot {
	return Snapshot{
		Path:    path,
		Value:   Clone(ValueAt(m.root, segs)),
		Version: m.version,
	}
}

// affectedLocked collects snapshots for subscribers whose path is an ancestor or a
// descendant of the written path, ordered by subscription id.
func (m *Memory) affectedLocked(written []string) []delivery {
	var out []delivery
	for id := uint64(1); id <= m.nextSub; id++ {
		sub, ok := m.subs[id]
		if !ok || !related(sub.segs, written) {
			continue
		}
		out = append(out, delivery{sub: sub, snap: m.snapshotLocked(sub.segs, sub.path)})
	}

	return out
}

func related(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
