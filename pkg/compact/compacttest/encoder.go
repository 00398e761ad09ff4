// Package compacttest builds compact replies from typed values for tests.
//
// The Encoder plays the server's part: it assigns schema identifiers to
// names, encodes values into the [tag, payload] wire shape, and serves its
// identifier tables through a call-counting schema.Fetcher.
//
// Example:
//
//	enc := compacttest.NewEncoder()
//	enc.Define(schema.Labels, "Person")
//	reply := enc.Reply([]string{"n"}, value.Record{value.Node{ID: 5, Labels: []string{"Person"}}})
//
//	cache := schema.New("g", enc.Fetcher())
//	rs, err := compact.NewResultSet(reply, cache)
package compacttest

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/orneryd/falkordb-go/pkg/schema"
	"github.com/orneryd/falkordb-go/pkg/value"
)

// Wire tags, duplicated here so the encoder stays independent of the decoder.
const (
	tagNull    int64 = 1
	tagString  int64 = 2
	tagInteger int64 = 3
	tagBool    int64 = 4
	tagDouble  int64 = 5
	tagArray   int64 = 6
	tagEdge    int64 = 7
	tagNode    int64 = 8
	tagPath    int64 = 9
	tagMap     int64 = 10
	tagPoint   int64 = 11
)

// ColumnScalar is the header column type the server uses for plain columns.
const ColumnScalar int64 = 1

// Encoder assigns identifiers and encodes values. Safe for concurrent use.
type Encoder struct {
	mu    sync.Mutex
	ids   [len(schema.Namespaces)]map[string]int64
	names [len(schema.Namespaces)][]string
}

// NewEncoder returns an encoder with empty schema tables.
func NewEncoder() *Encoder {
	e := &Encoder{}
	for i := range e.ids {
		e.ids[i] = map[string]int64{}
	}
	return e
}

// Define assigns identifiers to names in order, skipping names already known.
func (e *Encoder) Define(ns schema.Namespace, names ...string) *Encoder {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range names {
		e.idLocked(ns, n)
	}
	return e
}

// ID returns the identifier of name, assigning the next free one if needed.
func (e *Encoder) ID(ns schema.Namespace, name string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idLocked(ns, name)
}

func (e *Encoder) idLocked(ns schema.Namespace, name string) int64 {
	if id, ok := e.ids[ns][name]; ok {
		return id
	}
	id := int64(len(e.names[ns]))
	e.ids[ns][name] = id
	e.names[ns] = append(e.names[ns], name)
	return id
}

// Table returns the identifier to name table of ns.
func (e *Encoder) Table(ns schema.Namespace) map[int64]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int64]string, len(e.names[ns]))
	for id, n := range e.names[ns] {
		out[int64(id)] = n
	}
	return out
}

// ProcedureReply encodes the reply of "CALL db.labels()" (or the other
// namespace procedures) as the server sends it with --compact.
func (e *Encoder) ProcedureReply(ns schema.Namespace) []any {
	e.mu.Lock()
	names := append([]string(nil), e.names[ns]...)
	e.mu.Unlock()

	column := "label"
	switch ns {
	case schema.RelationshipTypes:
		column = "relationshipType"
	case schema.PropertyKeys:
		column = "propertyKey"
	}

	rows := make([]any, len(names))
	for i, n := range names {
		rows[i] = []any{[]any{tagString, n}}
	}
	return []any{
		[]any{[]any{ColumnScalar, column}},
		rows,
		Stats("Cached execution: 0", "Query internal execution time: 0.05 milliseconds"),
	}
}

// Reply encodes a full [header, rows, stats] reply.
func (e *Encoder) Reply(header []string, rows ...value.Record) []any {
	h := make([]any, len(header))
	for i, name := range header {
		h[i] = []any{ColumnScalar, name}
	}
	r := make([]any, len(rows))
	for i, rec := range rows {
		r[i] = e.Row(rec)
	}
	return []any{h, r, Stats("Cached execution: 0", "Query internal execution time: 0.10 milliseconds")}
}

// Row encodes one record.
func (e *Encoder) Row(rec value.Record) []any {
	cells := make([]any, len(rec))
	for i, v := range rec {
		cells[i] = e.Cell(v)
	}
	return cells
}

// Cell encodes v as a [tag, payload] pair.
func (e *Encoder) Cell(v value.Value) []any {
	tag, payload := e.encode(v)
	return []any{tag, payload}
}

func (e *Encoder) encode(v value.Value) (int64, any) {
	switch x := v.(type) {
	case nil, value.Null:
		return tagNull, nil
	case value.String:
		return tagString, string(x)
	case value.Integer:
		return tagInteger, int64(x)
	case value.Bool:
		return tagBool, strconv.FormatBool(bool(x))
	case value.Float:
		return tagDouble, strconv.FormatFloat(float64(x), 'g', -1, 64)
	case value.Array:
		items := make([]any, len(x))
		for i, el := range x {
			items[i] = e.Cell(el)
		}
		return tagArray, items
	case value.Map:
		keys := sortedKeys(x)
		payload := make([]any, 0, 2*len(keys))
		for _, k := range keys {
			payload = append(payload, k, e.Cell(x[k]))
		}
		return tagMap, payload
	case value.Point:
		return tagPoint, []any{
			strconv.FormatFloat(x.Latitude, 'g', -1, 64),
			strconv.FormatFloat(x.Longitude, 'g', -1, 64),
		}
	case value.Node:
		return tagNode, e.node(x)
	case value.Edge:
		return tagEdge, e.edge(x)
	case value.Path:
		nodes := make([]any, len(x.Nodes))
		for i, n := range x.Nodes {
			nodes[i] = []any{tagNode, e.node(n)}
		}
		edges := make([]any, len(x.Edges))
		for i, ed := range x.Edges {
			edges[i] = []any{tagEdge, e.edge(ed)}
		}
		return tagPath, []any{[]any{tagArray, nodes}, []any{tagArray, edges}}
	}
	panic("compacttest: cannot encode " + v.Kind().String())
}

func (e *Encoder) node(n value.Node) []any {
	labels := make([]any, len(n.Labels))
	for i, l := range n.Labels {
		labels[i] = e.ID(schema.Labels, l)
	}
	return []any{n.ID, labels, e.props(n.Properties)}
}

func (e *Encoder) edge(ed value.Edge) []any {
	return []any{
		ed.ID,
		e.ID(schema.RelationshipTypes, ed.Type),
		ed.SourceID,
		ed.DestinationID,
		e.props(ed.Properties),
	}
}

func (e *Encoder) props(props map[string]value.Value) []any {
	keys := sortedKeys(props)
	out := make([]any, len(keys))
	for i, k := range keys {
		tag, payload := e.encode(props[k])
		out[i] = []any{e.ID(schema.PropertyKeys, k), tag, payload}
	}
	return out
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats builds a stats section from "Name: value" lines.
func Stats(lines ...string) []any {
	out := make([]any, len(lines))
	for i, l := range lines {
		out[i] = l
	}
	return out
}

// Fetcher serves the encoder's tables and counts round trips per namespace.
type Fetcher struct {
	enc   *Encoder
	calls [len(schema.Namespaces)]atomic.Int64
}

// Fetcher returns a schema.Fetcher backed by the encoder's current tables.
func (e *Encoder) Fetcher() *Fetcher {
	return &Fetcher{enc: e}
}

// FetchSchema returns a copy of the encoder's table for ns.
func (f *Fetcher) FetchSchema(ctx context.Context, ns schema.Namespace) (map[int64]string, error) {
	f.calls[ns].Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.enc.Table(ns), nil
}

// Calls returns the number of round trips made for ns.
func (f *Fetcher) Calls(ns schema.Namespace) int64 {
	return f.calls[ns].Load()
}

// Total returns the number of round trips across all namespaces.
func (f *Fetcher) Total() int64 {
	var n int64
	for i := range f.calls {
		n += f.calls[i].Load()
	}
	return n
}
