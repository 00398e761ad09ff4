// Package convert provides strict coercion of wire tokens for the FalkorDB client.
//
// The Redis transport hands back replies as a loosely typed tree: integers as
// int64, bulk strings as string, nested arrays as []any. FalkorDB encodes
// doubles and booleans as strings inside that tree. The helpers here turn a
// single token into the Go type a decoder expects, and refuse anything that
// would lose information.
//
// Key Functions:
//   - ToInt64: integer tokens, never truncating a fraction
//   - ToFloat64: double tokens, including "inf" and "nan"
//   - ToBool: "true"/"false" tokens
//   - ToString: bulk string tokens
//
// All conversion functions return a success boolean so callers can report
// the offending token in their own error type.
//
// Example:
//
//	id, ok := convert.ToInt64(raw[0])
//	if !ok {
//		return errdefs.Protocolf("node.id", "expected integer, got %T", raw[0])
//	}
package convert

import (
	"math"
	"strconv"
	"strings"
)

// ToFloat64 converts a double token to float64.
// Returns (value, true) on success, (0, false) on failure.
//
// Supported types:
//   - float64, float32 (returned as-is)
//   - int, int32, int64 (lossless for values within float64 range)
//   - string (decimal, scientific notation, and the inf/nan spellings)
//   - []byte (parsed like string)
//
// FalkorDB prints doubles with %.15g, so "inf", "-inf" and "nan" appear as
// lower-case tokens. strconv.ParseFloat accepts those case-insensitively.
//
// Example:
//
//	f, ok := ToFloat64("3.14")    // Returns (3.14, true)
//	f, ok := ToFloat64("-inf")    // Returns (-Inf, true)
//	f, ok := ToFloat64(int64(2))  // Returns (2.0, true)
//	f, ok := ToFloat64("3.14abc") // Returns (0, false)
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f, true
		}
	case []byte:
		return ToFloat64(string(val))
	}
	return 0, false
}

// ToInt64 converts an integer token to int64.
// Returns (value, true) on success, (0, false) on failure.
//
// Floats are accepted only when they hold an exact integer within int64
// range; 3.7 is rejected rather than truncated. Strings must be base-10
// integers.
//
// Example:
//
//	i, ok := ToInt64(int64(42)) // Returns (42, true)
//	i, ok := ToInt64("123")     // Returns (123, true)
//	i, ok := ToInt64(3.0)       // Returns (3, true)
//	i, ok := ToInt64(3.7)       // Returns (0, false)
//
// ELI12:
//
// A whole number stays a whole number. If you hand it 3.7 it won't quietly
// chop off the .7 for you; it says "that's not a whole number" instead.
func ToInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case float64:
		return exactInt(val)
	case float32:
		return exactInt(float64(val))
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return i, true
		}
	case []byte:
		return ToInt64(string(val))
	}
	return 0, false
}

func exactInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// ToBool converts a boolean token to bool.
// Accepts bool, and the strings "true" and "false" in any case.
func ToBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	case []byte:
		return ToBool(string(val))
	}
	return false, false
}

// ToString converts a bulk string token to string.
func ToString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case []byte:
		return string(val), true
	}
	return "", false
}
