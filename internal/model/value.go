package model

import (
	"encoding/json"
	"math"
	"strconv"
)

// Kind is the JSON type of a decoded value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// KindOf reports the JSON type of v as produced by encoding/json, with or
// without UseNumber. Other Go types are KindUnknown.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case json.Number, float64, float32, int, int64:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindArray
	case map[string]any:
		return KindObject
	}
	return KindUnknown
}

// IsInteger accepts numbers without a fractional part. Strings holding digits
// are rejected.
func IsInteger(v any) bool {
	switch n := v.(type) {
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return true
		}
		f, err := n.Float64()
		if err != nil {
			return false
		}
		return isWhole(f)
	case float64:
		return isWhole(n)
	case float32:
		return isWhole(float64(n))
	case int, int64:
		return true
	}
	return false
}

func isWhole(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && math.Trunc(f) == f
}

func AsObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func AsArray(v any) ([]any, bool) {
	a, ok := v.([]any)
	return a, ok
}

// Field returns the key of a top-level object.
func Field(v any, key string) (any, bool) {
	m, ok := AsObject(v)
	if !ok {
		return nil, false
	}
	val, ok := m[key]
	return val, ok
}

// Lookup finds key on a resource body, either at the top level or inside the
// {"data": {...}} envelope the user API wraps single resources in.
func Lookup(v any, key string) (any, bool) {
	if val, ok := Field(v, key); ok {
		return val, true
	}
	inner, ok := Field(v, "data")
	if !ok {
		return nil, false
	}
	return Field(inner, key)
}

// MissingFields lists the keys absent from obj, in the order given.
func MissingFields(obj any, keys ...string) []string {
	missing := make([]string, 0)
	for _, k := range keys {
		if _, ok := Field(obj, k); !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// Format renders v the way it appears on the wire.
func Format(v any) string {
	if s, ok := v.(json.Number); ok {
		return s.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "<invalid>"
	}
	return string(b)
}

// PathSegment renders an id for use in a URL path.
func PathSegment(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return canonical(v)
}

// SameValue compares two decoded values; 13 and 13.0 are equal.
func SameValue(a, b any) bool {
	return canonical(a) == canonical(b)
}

func canonical(v any) string {
	if KindOf(v) == KindNumber && IsInteger(v) {
		switch n := v.(type) {
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return strconv.FormatInt(i, 10)
			}
			f, _ := n.Float64()
			return strconv.FormatFloat(f, 'f', -1, 64)
		case float64:
			return strconv.FormatFloat(n, 'f', -1, 64)
		case float32:
			return strconv.FormatFloat(float64(n), 'f', -1, 64)
		}
	}
	return Format(v)
}
