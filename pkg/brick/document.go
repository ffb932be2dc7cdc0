package brick

import (
	"encoding/json"
	"math"
)

// Document is a JSON object exchanged with the remote controller. Features
// add their status fragments to the outgoing document and pick their command
// keys from the incoming one.
type Document map[string]any

// Int returns the value of key if it is an integral number.
func (d Document) Int(key string) (int, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	return toInt(v)
}

// Ints returns the integral numbers of the array at key. Non-integral
// elements are skipped; ok is false when key is missing or not an array.
func (d Document) Ints(key string) (values []int, ok bool) {
	arr, ok := d.Array(key)
	if !ok {
		return nil, false
	}
	for _, e := range arr {
		if n, ok := toInt(e); ok {
			values = append(values, n)
		}
	}
	return values, true
}

// Array returns the array at key.
func (d Document) Array(key string) ([]any, bool) {
	switch v := d[key].(type) {
	case []any:
		return v, true
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

// Append adds entry as a nested array to the array at key, creating it if
// absent. Other features may already have populated the key.
func (d Document) Append(key string, entry ...any) {
	arr, _ := d.Array(key)
	d[key] = append(arr, entry)
}

// Clone returns a deep copy via JSON, as seen by the remote side.
func (d Document) Clone() (Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
