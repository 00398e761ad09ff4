// Package compact decodes FalkorDB's compact reply format into typed values.
//
// A GRAPH.QUERY issued with --compact answers with up to three sections:
//
//	[stats]                  // write-only query
//	[header, stats]          // query with columns but no rows
//	[header, rows, stats]    // the common case
//
// Every cell in a row is a [tag, payload] pair. Nodes and edges refer to
// labels, relationship types and property keys by integer identifier; the
// decoder resolves those through a Resolver, normally the graph's
// *schema.Cache.
//
// Decoding is lazy. DecodeHeader reads the header and statistics up front and
// returns a Decoder positioned before the first row; each DecodeNext call
// parses exactly one more row. ResultSet wraps a Decoder with the blocking,
// channel-based and range-over-func drivers callers iterate with.
package compact

import "strconv"

// Tag is the value type marker that prefixes every compact cell.
type Tag int64

const (
	TagUnknown Tag = iota
	TagNull
	TagString
	TagInteger
	TagBool
	TagDouble
	TagArray
	TagEdge
	TagNode
	TagPath
	TagMap
	TagPoint
)

var tagNames = [...]string{
	TagUnknown: "unknown",
	TagNull:    "null",
	TagString:  "string",
	TagInteger: "integer",
	TagBool:    "bool",
	TagDouble:  "double",
	TagArray:   "array",
	TagEdge:    "edge",
	TagNode:    "node",
	TagPath:    "path",
	TagMap:     "map",
	TagPoint:   "point",
}

func (t Tag) String() string {
	if t >= 0 && int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "tag(" + strconv.FormatInt(int64(t), 10) + ")"
}

// ColumnType is the type marker of a header column.
type ColumnType int64

const (
	ColumnUnknown ColumnType = iota
	ColumnScalar
	ColumnNode
	ColumnRelation
)
