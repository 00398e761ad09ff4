// Package value defines the typed graph values produced by the compact reply decoder.
//
// Value is a closed union: the only implementations are the types declared in
// this package. Consumers switch over them exhaustively:
//
//	switch v := rec[0].(type) {
//	case value.Node:
//		fmt.Println(v.Labels, v.Properties["name"])
//	case value.Integer:
//		fmt.Println(int64(v))
//	case value.Null:
//		// column was null
//	}
//
// Integers and floats never mix: a value is exactly one of Integer or Float,
// as dictated by its wire tag, and Equal treats Integer(1) and Float(1) as different.
package value

import (
	"math"
	"sort"
	"strconv"

	"github.com/orneryd/falkordb-go/pkg/pool"
)

// Kind identifies the variant of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInteger
	KindFloat
	KindString
	KindArray
	KindMap
	KindNode
	KindEdge
	KindPath
	KindPoint
)

var kindNames = [...]string{
	KindNull:    "null",
	KindBool:    "bool",
	KindInteger: "integer",
	KindFloat:   "float",
	KindString:  "string",
	KindArray:   "array",
	KindMap:     "map",
	KindNode:    "node",
	KindEdge:    "edge",
	KindPath:    "path",
	KindPoint:   "point",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is any decoded graph value.
type Value interface {
	Kind() Kind
	String() string
	value()
}

// Record is one decoded row, positionally aligned with the result header.
type Record []Value

// Null is the absent value.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Integer is a 64-bit signed integer value.
type Integer int64

// Float is a 64-bit floating point value.
type Float float64

// String is a UTF-8 string value.
type String string

// Array is an ordered sequence of values.
type Array []Value

// Map maps string keys to values. Key order carries no meaning.
type Map map[string]Value

// Point is a geographic coordinate.
type Point struct {
	Latitude  float64
	Longitude float64
}

func (Null) Kind() Kind    { return KindNull }
func (Bool) Kind() Kind    { return KindBool }
func (Integer) Kind() Kind { return KindInteger }
func (Float) Kind() Kind   { return KindFloat }
func (String) Kind() Kind  { return KindString }
func (Array) Kind() Kind   { return KindArray }
func (Map) Kind() Kind     { return KindMap }
func (Point) Kind() Kind   { return KindPoint }

func (Null) value()    {}
func (Bool) value()    {}
func (Integer) value() {}
func (Float) value()   {}
func (String) value()  {}
func (Array) value()   {}
func (Map) value()     {}
func (Point) value()   {}

func (Null) String() string { return "null" }

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

func (i Integer) String() string { return strconv.FormatInt(int64(i), 10) }

func (f Float) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }

func (s String) String() string { return strconv.Quote(string(s)) }

func (a Array) String() string {
	b := pool.GetStringBuilder()
	defer pool.PutStringBuilder(b)
	writeArray(b, a)
	return b.String()
}

func (m Map) String() string {
	b := pool.GetStringBuilder()
	defer pool.PutStringBuilder(b)
	writeMap(b, m)
	return b.String()
}

func (p Point) String() string {
	return "point({latitude: " + strconv.FormatFloat(p.Latitude, 'g', -1, 64) +
		", longitude: " + strconv.FormatFloat(p.Longitude, 'g', -1, 64) + "})"
}

func writeArray(b *pool.PooledStringBuilder, a []Value) {
	b.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(format(v))
	}
	b.WriteByte(']')
}

// writeMap prints keys sorted so debug output is stable.
func writeMap(b *pool.PooledStringBuilder, m map[string]Value) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(format(m[k]))
	}
	b.WriteByte('}')
}

func format(v Value) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}

// Equal reports whether a and b are structurally equal.
//
// Node labels compare as sets. Floats compare by value, with NaN equal to NaN.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch x := a.(type) {
	case Null:
		return true
	case Bool:
		return x == b.(Bool)
	case Integer:
		return x == b.(Integer)
	case Float:
		y := b.(Float)
		if math.IsNaN(float64(x)) && math.IsNaN(float64(y)) {
			return true
		}
		return x == y
	case String:
		return x == b.(String)
	case Point:
		return x == b.(Point)
	case Array:
		y := b.(Array)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Map:
		return equalProps(x, b.(Map))
	case Node:
		return x.Equal(b.(Node))
	case Edge:
		return x.Equal(b.(Edge))
	case Path:
		return x.Equal(b.(Path))
	}
	return false
}

func equalProps(a, b map[string]Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !Equal(av, bv) {
			return false
		}
	}
	return true
}
