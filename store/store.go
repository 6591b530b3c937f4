// Package store is the remote store adapter: a path-addressed, hierarchical document store
// with read, write, partial update, conditional update and subscribe operations.
//
// Paths are "/"-separated segments, for example "complaints/GBG-001" or
// "department_heads/Road Damage/RDG001". Values are JSON-like: map[string]any, []any,
// string, float64, bool and nil. A nil value means "absent".
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Sentinel errors returned by every Store implementation.
var (
	// ErrStoreUnavailable is returned when the backend rejected or timed out a call.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrRecordNotFound is returned when an addressed record does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrConflict is returned when a conditional write lost the race too many times.
	ErrConflict = errors.New("conflicting concurrent write")

	// ErrInvalidPath is returned for empty paths or segments the backends cannot address.
	ErrInvalidPath = errors.New("invalid store path")

	// ErrInvalidValue is returned when a record is written with a non-object value.
	ErrInvalidValue = errors.New("invalid store value")
)

// Top-level collection paths.
const (
	ComplaintsPath      = "complaints"
	WorkersPath         = "workers"
	DepartmentHeadsPath = "department_heads"
)

// DefaultMaxRetries bounds the compare-and-swap loop of Transact.
const DefaultMaxRetries = 10

// Snapshot is the value found at a path together with the backend version it was read at.
type Snapshot struct {
	Path    string
	Value   any
	Version uint64
}

// Exists reports whether the path held a value.
func (s Snapshot) Exists() bool {
	return s.Value != nil
}

// Key returns the last segment of the snapshot path.
func (s Snapshot) Key() string {
	idx := strings.LastIndexByte(s.Path, '/')
	return s.Path[idx+1:]
}

// Map returns the value as an object, or nil when it is not one.
func (s Snapshot) Map() map[string]any {
	m, _ := s.Value.(map[string]any)
	return m
}

// TxnFunc receives a private copy of the current value (nil when absent) and returns the
// value to store. Returning nil deletes the path. Returning an error aborts the transaction
// without writing and the error is passed back to the caller unchanged.
//
// The function may run several times when concurrent writers interfere and must not call
// back into the store.
type TxnFunc func(current any) (any, error)

// Subscription is a standing subscription created by Store.Subscribe.
type Subscription interface {
	// Unsubscribe stops delivery. It is safe to call more than once.
	Unsubscribe()
}

// Store is the capability the directories and the assignment coordinator depend on.
type Store interface {
	// Get returns the subtree at path. A missing path yields a Snapshot with a nil Value.
	Get(ctx context.Context, path string) (Snapshot, error)

	// Set replaces the subtree at path. A nil value deletes it.
	Set(ctx context.Context, path string, value any) error

	// Update merges fields into the object at path. A nil field value removes the field.
	Update(ctx context.Context, path string, fields map[string]any) error

	// Transact performs a conditional read-modify-write of the value at path.
	Transact(ctx context.Context, path string, fn TxnFunc) (Snapshot, error)

	// Subscribe calls fn with the current subtree at path and again with the full subtree
	// after every change to it.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Subscription, error)
}

// UnavailableError wraps a backend failure. It matches both ErrStoreUnavailable and the
// underlying cause with errors.Is.
type UnavailableError struct {
	Op   string
	Path string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// Unavailable wraps err as an UnavailableError unless it is already a store error.
func Unavailable(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidValue) {
		return err
	}

	return &UnavailableError{Op: op, Path: path, Err: err}
}

// SplitPath validates path and returns its segments. Leading and trailing slashes are ignored.
func SplitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	segs := strings.Split(trimmed, "/")
	for _, seg := range segs {
		if err := ValidateSegment(seg); err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
	}

	return segs, nil
}

// ValidateSegment reports whether seg can stand as one path segment. Ids
// taken from requests must pass it before being joined into a path.
func ValidateSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}
	if strings.ContainsAny(seg, "/.#$[]") {
		return fmt.Errorf("%w: segment %q contains a reserved character", ErrInvalidPath, seg)
	}
	for _, r := range seg {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: segment %q contains a control character", ErrInvalidPath, seg)
		}
	}

	return nil
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// IssuePath returns the path of one complaint record.
func IssuePath(issueID string) string {
	return Join(ComplaintsPath, issueID)
}

// WorkerPath returns the path of one worker record.
func WorkerPath(workerID string) string {
	return Join(WorkersPath, workerID)
}

// DepartmentHeadPath returns the path of one department head account.
func DepartmentHeadPath(department, headID string) string {
	return Join(DepartmentHeadsPath, department, headID)
}

// SortedKeys returns the keys of m in store order: keys that parse as 32-bit integers first,
// ascending numerically, then the remaining keys in lexicographic order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		ni, iInt := intKey(keys[i])
		nj, jInt := intKey(keys[j])
		switch {
		case iInt && jInt:
			if ni != nj {
				return ni < nj
			}
			return keys[i] < keys[j]
		case iInt:
			return true
		case jInt:
			return false
		default:
			return keys[i] < keys[j]
		}
	})

	return keys
}

func intKey(k string) (int64, bool) {
	n, err := strconv.ParseInt(k, 10, 32)
	if err != nil {
		return 0, false
	}
	// "007" is ordered as a string key.
	if strconv.FormatInt(n, 10) != k {
		return 0, false
	}

	return n, true
}
