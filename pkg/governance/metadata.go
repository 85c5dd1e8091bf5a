package governance

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxMetadataDepth bounds nesting of lists and maps inside a Metadata bag.
const MaxMetadataDepth = 8

// Metadata is a free-form bag of string keys to scalar or structured values.
//
// Accepted values are nil, string, bool, every Go integer and float kind,
// json.Number, time.Time, and []any or map[string]any built from the same.
type Metadata map[string]any

// Validate checks every key and value in the bag.
func (m Metadata) Validate() error {
	return validateMap("metadata", m, 1)
}

// Clone returns a deep copy. Lists and maps are copied; scalars are shared.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// Get returns the value at a dotted path ("owner.team") and whether it was
// present.
func (m Metadata) Get(path string) (any, bool) {
	var cur any = map[string]any(m)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		key := path[start:i]
		start = i + 1
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = v
		case Metadata:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

// Merge returns a copy of m overlaid with patch. A nil value in patch
// removes the key.
func (m Metadata) Merge(patch Metadata) Metadata {
	out := m.Clone()
	if out == nil {
		out = Metadata{}
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

func validateMap(path string, m map[string]any, depth int) error {
	if depth > MaxMetadataDepth {
		return NewValidationError(path, "nesting exceeds %d levels", MaxMetadataDepth)
	}
	for k, v := range m {
		if k == "" {
			return NewValidationError(path, "empty key")
		}
		if err := validateValue(path+"."+k, v, depth); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(path string, v any, depth int) error {
	switch val := v.(type) {
	case nil, string, bool, json.Number, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	case []any:
		if depth+1 > MaxMetadataDepth {
			return NewValidationError(path, "nesting exceeds %d levels", MaxMetadataDepth)
		}
		for i, item := range val {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), item, depth+1); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		return validateMap(path, val, depth+1)
	case Metadata:
		return validateMap(path, val, depth+1)
	default:
		return NewValidationError(path, "unsupported value type %T", v)
	}
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case Metadata:
		return val.Clone()
	default:
		return v
	}
}
