package falkordb

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/orneryd/falkordb-go/pkg/pool"
	"github.com/orneryd/falkordb-go/pkg/value"
)

// BuildQuery prefixes query with a CYPHER clause binding params.
//
// Parameters are rendered as Cypher literals in key order: strings are
// double-quoted and escaped, slices and maps are rendered recursively, nil
// becomes null. Integral floats keep a decimal point so the server does not
// read them back as integers. An empty params map returns query unchanged.
//
//	BuildQuery("MATCH (n {name: $name}) RETURN n", map[string]any{"name": "Ann"})
//	// CYPHER name="Ann" MATCH (n {name: $name}) RETURN n
func BuildQuery(query string, params map[string]any) (string, error) {
	if len(params) == 0 {
		return query, nil
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if !isIdentifier(k) {
			return "", fmt.Errorf("invalid parameter name %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := pool.GetStringBuilder()
	defer pool.PutStringBuilder(b)

	b.WriteString("CYPHER")
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		if err := writeLiteral(b, params[k]); err != nil {
			return "", fmt.Errorf("parameter %q: %w", k, err)
		}
	}
	b.WriteByte(' ')
	b.WriteString(query)
	return b.String(), nil
}

func writeLiteral(b *pool.PooledStringBuilder, v any) error {
	switch x := v.(type) {
	case nil, value.Null:
		b.WriteString("null")
	case string:
		b.WriteQuoted(x)
	case value.String:
		b.WriteQuoted(string(x))
	case bool:
		b.WriteString(strconv.FormatBool(x))
	case value.Bool:
		b.WriteString(strconv.FormatBool(bool(x)))
	case int:
		b.WriteInt(int64(x))
	case int8:
		b.WriteInt(int64(x))
	case int16:
		b.WriteInt(int64(x))
	case int32:
		b.WriteInt(int64(x))
	case int64:
		b.WriteInt(x)
	case value.Integer:
		b.WriteInt(int64(x))
	case uint8:
		b.WriteInt(int64(x))
	case uint16:
		b.WriteInt(int64(x))
	case uint32:
		b.WriteInt(int64(x))
	case uint:
		return writeUint(b, uint64(x))
	case uint64:
		return writeUint(b, x)
	case float32:
		return writeFloat(b, float64(x))
	case float64:
		return writeFloat(b, x)
	case value.Float:
		return writeFloat(b, float64(x))
	case value.Point:
		b.WriteString("point({latitude: ")
		if err := writeFloat(b, x.Latitude); err != nil {
			return err
		}
		b.WriteString(", longitude: ")
		if err := writeFloat(b, x.Longitude); err != nil {
			return err
		}
		b.WriteString("})")
	case value.Array:
		return writeList(b, len(x), func(i int) any { return x[i] })
	case []any:
		return writeList(b, len(x), func(i int) any { return x[i] })
	case []string:
		return writeList(b, len(x), func(i int) any { return x[i] })
	case value.Map:
		return writeMap(b, len(x), func(yield func(string, any)) {
			for k, v := range x {
				yield(k, v)
			}
		})
	case map[string]any:
		return writeMap(b, len(x), func(yield func(string, any)) {
			for k, v := range x {
				yield(k, v)
			}
		})
	case value.Value:
		return fmt.Errorf("%s values cannot be sent as parameters", x.Kind())
	default:
		return writeReflect(b, v)
	}
	return nil
}

// writeReflect handles typed slices and string-keyed maps not covered above.
func writeReflect(b *pool.PooledStringBuilder, v any) error {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return fmt.Errorf("unsupported type %T", v)
		}
		return writeList(b, rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("map keys must be strings, got %s", rv.Type().Key())
		}
		return writeMap(b, rv.Len(), func(yield func(string, any)) {
			it := rv.MapRange()
			for it.Next() {
				yield(it.Key().String(), it.Value().Interface())
			}
		})
	case reflect.Pointer:
		if rv.IsNil() {
			b.WriteString("null")
			return nil
		}
		return writeLiteral(b, rv.Elem().Interface())
	}
	return fmt.Errorf("unsupported type %T", v)
}

func writeUint(b *pool.PooledStringBuilder, u uint64) error {
	if u > math.MaxInt64 {
		return fmt.Errorf("integer %d overflows int64", u)
	}
	b.WriteInt(int64(u))
	return nil
}

func writeFloat(b *pool.PooledStringBuilder, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("float %v has no literal form", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	b.WriteString(s)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' || s[i] == 'e' {
			return nil
		}
	}
	b.WriteString(".0")
	return nil
}

func writeList(b *pool.PooledStringBuilder, n int, at func(int) any) error {
	b.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := writeLiteral(b, at(i)); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

func writeMap(b *pool.PooledStringBuilder, n int, each func(yield func(string, any))) error {
	keys := make([]string, 0, n)
	vals := make(map[string]any, n)
	each(func(k string, v any) {
		keys = append(keys, k)
		vals[k] = v
	})
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		writeKey(b, k)
		b.WriteString(": ")
		if err := writeLiteral(b, vals[k]); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

// writeKey writes a map key, backtick-quoting it when it is not a plain identifier.
func writeKey(b *pool.PooledStringBuilder, k string) {
	if isIdentifier(k) {
		b.WriteString(k)
		return
	}
	b.WriteByte('`')
	for i := 0; i < len(k); i++ {
		if k[i] == '`' {
			b.WriteByte('`')
		}
		b.WriteByte(k[i])
	}
	b.WriteByte('`')
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
