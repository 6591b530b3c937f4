package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Normalize converts v into the JSON-like representation every backend stores.
// Common shapes are converted directly; anything else goes through a JSON round trip.
func Normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string, bool, float64:
		return val, nil
	case int:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case float32:
		return float64(val), nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, nil
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			if n == nil {
				continue
			}
			out[k] = n
		}
		return out, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	return out, nil
}

// Clone deep-copies a JSON-like value.
func Clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Clone(item)
		}
		return out
	default:
		return val
	}
}

// ValueAt descends into v following segs. It returns nil when any step is missing.
func ValueAt(v any, segs []string) any {
	cur := v
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}

	return cur
}

// ReplaceAt returns root with the value at segs replaced by value. Missing intermediate
// objects are created; a nil value removes the entry and prunes objects left empty.
// root is modified in place when it is an object.
func ReplaceAt(root any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}

	m, ok := root.(map[string]any)
	if !ok {
		if value == nil {
			return root
		}
		m = make(map[string]any)
	}

	child := ReplaceAt(m[segs[0]], segs[1:], value)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}

	if len(m) == 0 {
		return nil
	}

	return m
}

// MergeFields applies a partial update to the object at the root of doc. Field names may
// themselves be relative "/" paths.
func MergeFields(doc any, fields map[string]any) (any, error) {
	for name, raw := range fields {
		segs, err := SplitPath(name)
		if err != nil {
			return nil, err
		}
		value, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		doc = ReplaceAt(doc, segs, value)
	}

	return doc, nil
}

// FieldPath converts a relative "/" field name into a dotted document field path.
func FieldPath(segs ...string) string {
	return strings.Join(segs, ".")
}
