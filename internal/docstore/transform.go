package docstore

import (
	"encoding/json"
	"math"
	"reflect"
)

// Transform is a field value computed from the field's current value at write time.
type Transform interface {
	apply(current any) any
}

type increment struct{ by int64 }

// Increment adds n to the current numeric value (missing counts as zero).
func Increment(n int64) Transform { return increment{by: n} }

func (t increment) apply(current any) any {
	f, ok := toFloat(current)
	if !ok {
		return t.by
	}
	sum := f + float64(t.by)
	if sum == math.Trunc(sum) && math.Abs(sum) < 1<<53 {
		return int64(sum)
	}
	return sum
}

type arrayUnion struct{ values []any }

// ArrayUnion appends each value not already present in the current array.
func ArrayUnion(values ...any) Transform { return arrayUnion{values: values} }

func (t arrayUnion) apply(current any) any {
	var out []any
	if arr, ok := current.([]any); ok {
		out = append(out, arr...)
	}
	for _, v := range t.values {
		dup := false
		for _, existing := range out {
			if valuesEqual(existing, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out
}

// ApplySet resolves transforms in data against an empty document.
func ApplySet(data Data) Data {
	return ApplyMerge(nil, data)
}

// ApplyMerge returns a new map: existing overlaid with patch. Nested maps merge
// recursively, transforms apply to the current value, other values replace.
func ApplyMerge(existing, patch Data) Data {
	out := CloneData(existing)
	if out == nil {
		out = Data{}
	}
	for k, v := range patch {
		switch pv := v.(type) {
		case Transform:
			out[k] = pv.apply(out[k])
		case map[string]any:
			cur, _ := out[k].(map[string]any)
			out[k] = ApplyMerge(cur, pv)
		default:
			out[k] = cloneValue(v)
		}
	}
	return out
}

// CloneData deep-copies maps and slices so snapshots never alias store state.
func CloneData(in Data) Data {
	if in == nil {
		return nil
	}
	out := make(Data, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneData(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	default:
		return v
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		rv := reflect.ValueOf(v)
		if rv.IsValid() && rv.CanInt() {
			return float64(rv.Int()), true
		}
		return 0, false
	}
}
