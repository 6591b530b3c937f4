package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"civicsync-admin/logging"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"
)

// NATS stores each record (the first two path segments) as one JSON value in a JetStream
// KeyValue bucket. Keys are the encoded segments joined with ".", so a collection can be
// watched with "<collection>.>". Revisions drive compare-and-swap writes.
type NATS struct {
	kv         jetstream.KeyValue
	logger     logging.Logger
	maxRetries int
}

var _ Store = (*NATS)(nil)

// NewNATS creates a store on top of an existing KV bucket.
func NewNATS(kv jetstream.KeyValue, logger logging.Logger) *NATS {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &NATS{kv: kv, logger: logger, maxRetries: DefaultMaxRetries}
}

// EnsureBucket creates or opens the KV bucket, retrying with exponential backoff when
// several processes race to create it.
func EnsureBucket(ctx context.Context, js jetstream.JetStream, bucket string, maxRetries int) (jetstream.KeyValue, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket, History: 1})
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err := js.KeyValue(ctx, bucket)
			if err == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("context cancelled during KV bucket creation: %w", ctx.Err())
		}

		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond //nolint:gosec // attempt is bounded by maxRetries
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("failed to create/open KV bucket %s after %d attempts: %w", bucket, maxRetries, lastErr)
}

func (n *NATS) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	clean := strings.Join(segs, "/")

	if len(segs) == 1 {
		children, version, err := n.collection(ctx, segs[0])
		if err != nil {
			return Snapshot{}, Unavailable(string(OpGet), path, err)
		}
		snap := Snapshot{Path: clean, Version: version}
		if len(children) > 0 {
			snap.Value = children
		}
		return snap, nil
	}

	body, rev, err := n.record(ctx, recordKey(segs))
	if err != nil {
		return Snapshot{}, Unavailable(string(OpGet), path, err)
	}

	return Snapshot{Path: clean, Value: ValueAt(body, segs[2:]), Version: rev}, nil
}

func (n *NATS) Set(ctx context.Context, path string, value any) error {
	normalized, err := Normalize(value)
	if err != nil {
		return err
	}
	_, err = n.Transact(ctx, path, func(any) (any, error) {
		return normalized, nil
	})

	return err
}

func (n *NATS) Update(ctx context.Context, path string, fields map[string]any) error {
	_, err := n.transact(ctx, OpUpdate, path, func(current any) (any, error) {
		return MergeFields(current, fields)
	})

	return err
}

func (n *NATS) Transact(ctx context.Context, path string, fn TxnFunc) (Snapshot, error) {
	return n.transact(ctx, OpTransact, path, fn)
}

func (n *NATS) transact(ctx context.Context, op Op, path string, fn TxnFunc) (Snapshot, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if len(segs) < 2 {
		return Snapshot{}, fmt.Errorf("%w: writes must address a record: %q", ErrInvalidPath, path)
	}
	clean := strings.Join(segs, "/")
	key := recordKey(segs)

	for attempt := 0; attempt < n.maxRetries; attempt++ {
		body, rev, err := n.record(ctx, key)
		if err != nil {
			return Snapshot{}, Unavailable(string(op), path, err)
		}

		next, err := fn(Clone(ValueAt(body, segs[2:])))
		if err != nil {
			return Snapshot{}, err
		}
		normalized, err := Normalize(next)
		if err != nil {
			return Snapshot{}, err
		}

		newBody := ReplaceAt(body, segs[2:], Clone(normalized))
		if newBody != nil {
			if _, ok := newBody.(map[string]any); !ok {
				return Snapshot{}, fmt.Errorf("%w: record %q must be an object", ErrInvalidValue, path)
			}
		}

		newRev, err := n.swap(ctx, key, rev, newBody)
		if errors.Is(err, jetstream.ErrKeyExists) {
			n.logger.Debug("kv transaction lost race, retrying", "path", path, "attempt", attempt+1, "revision", rev)
			continue
		}
		if err != nil {
			return Snapshot{}, Unavailable(string(op), path, err)
		}

		return Snapshot{Path: clean, Value: normalized, Version: newRev}, nil
	}

	return Snapshot{}, fmt.Errorf("%w: %s after %d attempts", ErrConflict, path, n.maxRetries)
}

func (n *NATS) swap(ctx context.Context, key string, rev uint64, body any) (uint64, error) {
	if body == nil {
		if rev == 0 {
			return 0, nil
		}
		return 0, n.kv.Delete(ctx, key, jetstream.LastRevision(rev))
	}

	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if rev == 0 {
		return n.kv.Create(ctx, key, data)
	}

	return n.kv.Update(ctx, key, data, rev)
}

func (n *NATS) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Subscription, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, err
	}

	pattern := encodeSegment(segs[0]) + ".>"
	if len(segs) >= 2 {
		pattern = recordKey(segs)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	watcher, err := n.kv.Watch(subCtx, pattern)
	if err != nil {
		cancel()
		return nil, Unavailable(string(OpSubscribe), path, err)
	}

	sub := &cancelSubscription{cancel: cancel, done: make(chan struct{})}
	ready := make(chan error, 1)

	go func() {
		defer close(sub.done)
		defer func() { _ = watcher.Stop() }()

		initialDone := false
		emit := func() error {
			snap, err := n.Get(subCtx, path)
			if err != nil {
				return err
			}
			fn(snap)
			return nil
		}

		for {
			select {
			case <-subCtx.Done():
				if !initialDone {
					ready <- subCtx.Err()
				}
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					if !initialDone {
						ready <- errors.New("watcher closed before initial values")
					}
					return
				}
				// A nil entry marks the end of the initial values.
				if entry == nil {
					if initialDone {
						continue
					}
					initialDone = true
					ready <- emit()
					continue
				}
				if !initialDone {
					continue
				}
				if err := emit(); err != nil {
					n.logger.Warn("kv subscription refresh failed", "path", path, "error", err)
				}
			}
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			sub.Unsubscribe()
			return nil, Unavailable(string(OpSubscribe), path, err)
		}
	case <-ctx.Done():
		sub.Unsubscribe()
		return nil, Unavailable(string(OpSubscribe), path, ctx.Err())
	}

	return sub, nil
}

// record loads and decodes the value stored under key. A missing key yields a nil body.
func (n *NATS) record(ctx context.Context, key string) (any, uint64, error) {
	entry, err := n.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var body any
	if err := json.Unmarshal(entry.Value(), &body); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", key, err)
	}

	return body, entry.Revision(), nil
}

// collection reads every record of a collection by draining a watcher's initial values.
func (n *NATS) collection(ctx context.Context, name string) (map[string]any, uint64, error) {
	watcher, err := n.kv.Watch(ctx, encodeSegment(name)+".>", jetstream.IgnoreDeletes())
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = watcher.Stop() }()

	children := make(map[string]any)
	var version uint64
	for {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case entry, ok := <-watcher.Updates():
			if !ok || entry == nil {
				return children, version, nil
			}
			id, ok := recordID(entry.Key())
			if !ok {
				continue
			}
			var body any
			if err := json.Unmarshal(entry.Value(), &body); err != nil {
				n.logger.Warn("skipping undecodable kv entry", "key", entry.Key(), "error", err)
				continue
			}
			children[id] = body
			version = max(version, entry.Revision())
		}
	}
}

func recordKey(segs []string) string {
	return encodeSegment(segs[0]) + "." + encodeSegment(segs[1])
}

func recordID(key string) (string, bool) {
	_, enc, ok := strings.Cut(key, ".")
	if !ok {
		return "", false
	}
	id, err := decodeSegment(enc)
	if err != nil {
		return "", false
	}

	return id, true
}

const hexDigits = "0123456789ABCDEF"

// encodeSegment maps a path segment onto the KV key alphabet. Letters, digits, '-' and '_'
// pass through; every other byte becomes "=XX".
func encodeSegment(seg string) string {
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('=')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}

	return b.String()
}

func decodeSegment(enc string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(enc); i++ {
		if enc[i] != '=' {
			b.WriteByte(enc[i])
			continue
		}
		if i+2 >= len(enc) {
			return "", fmt.Errorf("truncated escape in %q", enc)
		}
		hi := strings.IndexByte(hexDigits, enc[i+1])
		lo := strings.IndexByte(hexDigits, enc[i+2])
		if hi < 0 || lo < 0 {
			return "", fmt.Errorf("bad escape in %q", enc)
		}
		b.WriteByte(byte(hi<<4 | lo))
		i += 2
	}

	return b.String(), nil
}
