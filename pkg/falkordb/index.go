package falkordb

import (
	"context"
	"fmt"
	"strings"

	"github.com/orneryd/falkordb-go/pkg/compact"
	"github.com/orneryd/falkordb-go/pkg/pool"
	"github.com/orneryd/falkordb-go/pkg/value"
)

// EntityType selects nodes or relationships.
type EntityType uint8

const (
	EntityNode EntityType = iota
	EntityRelationship
)

func (e EntityType) String() string {
	if e == EntityRelationship {
		return "RELATIONSHIP"
	}
	return "NODE"
}

// ParseEntityType accepts "NODE" and "RELATIONSHIP" in any case.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToUpper(s) {
	case "NODE":
		return EntityNode, nil
	case "RELATIONSHIP", "EDGE":
		return EntityRelationship, nil
	}
	return EntityNode, fmt.Errorf("unknown entity type %q", s)
}

// pattern renders the MATCH pattern binding the entity to v.
func (e EntityType) pattern(v, label string) string {
	if e == EntityRelationship {
		return "()-[" + v + ":" + label + "]->()"
	}
	return "(" + v + ":" + label + ")"
}

// IndexType is the kind of an index.
type IndexType uint8

const (
	IndexRange IndexType = iota
	IndexVector
	IndexFulltext
)

func (t IndexType) String() string {
	switch t {
	case IndexVector:
		return "VECTOR"
	case IndexFulltext:
		return "FULLTEXT"
	}
	return "RANGE"
}

// ParseIndexType accepts "RANGE", "VECTOR" and "FULLTEXT" in any case.
func ParseIndexType(s string) (IndexType, error) {
	switch strings.ToUpper(s) {
	case "RANGE", "EXACT-MATCH":
		return IndexRange, nil
	case "VECTOR":
		return IndexVector, nil
	case "FULLTEXT":
		return IndexFulltext, nil
	}
	return IndexRange, fmt.Errorf("unknown index type %q", s)
}

// keyword is the word placed before INDEX in DDL; empty for range indexes.
func (t IndexType) keyword() string {
	if t == IndexRange {
		return ""
	}
	return t.String() + " "
}

// Index describes one index as listed by the server.
type Index struct {
	Label      string
	Properties []string
	// Types maps each property to the index kinds covering it.
	Types      map[string][]IndexType
	Options    map[string]any
	Language   string
	StopWords  []string
	EntityType EntityType
	Status     string
	Info       map[string]any
}

// ListIndices returns every index of the graph.
func (g *Graph) ListIndices(ctx context.Context) ([]Index, error) {
	rs, err := g.CallProcedure(ctx, "DB.INDEXES", nil, nil, true)
	if err != nil {
		return nil, err
	}
	rows, err := collectRows(ctx, rs)
	if err != nil {
		return nil, err
	}

	out := make([]Index, 0, len(rows))
	for _, row := range rows {
		idx := Index{
			Label:      asString(row["label"]),
			Properties: asStrings(row["properties"]),
			Language:   asString(row["language"]),
			StopWords:  asStrings(row["stopwords"]),
			Status:     asString(row["status"]),
			Options:    asMap(row["options"]),
			Info:       asMap(row["info"]),
		}
		if et, err := ParseEntityType(asString(row["entitytype"])); err == nil {
			idx.EntityType = et
		}
		if types, ok := row["types"].(value.Map); ok {
			idx.Types = make(map[string][]IndexType, len(types))
			for prop, kinds := range types {
				for _, k := range asStrings(kinds) {
					if t, err := ParseIndexType(k); err == nil {
						idx.Types[prop] = append(idx.Types[prop], t)
					}
				}
			}
		}
		out = append(out, idx)
	}
	return out, nil
}

// CreateIndex creates an index on label over properties. options are
// rendered as an OPTIONS map, e.g. {dimension: 768, similarityFunction: "cosine"}
// for vector indexes.
func (g *Graph) CreateIndex(ctx context.Context, t IndexType, entity EntityType, label string, properties []string, options map[string]any) (compact.Statistics, error) {
	query, err := createIndexQuery(t, entity, label, properties, options)
	if err != nil {
		return nil, err
	}
	return g.exec(ctx, query)
}

// DropIndex drops the index of type t on label over properties.
func (g *Graph) DropIndex(ctx context.Context, t IndexType, entity EntityType, label string, properties []string) (compact.Statistics, error) {
	if len(properties) == 0 {
		return nil, fmt.Errorf("drop index: no properties given")
	}
	return g.exec(ctx, "DROP "+t.keyword()+"INDEX FOR "+entity.pattern("e", label)+" ON ("+propertyList("e", properties)+")")
}

func createIndexQuery(t IndexType, entity EntityType, label string, properties []string, options map[string]any) (string, error) {
	if len(properties) == 0 {
		return "", fmt.Errorf("create index: no properties given")
	}
	b := pool.GetStringBuilder()
	defer pool.PutStringBuilder(b)

	b.WriteString("CREATE ")
	b.WriteString(t.keyword())
	b.WriteString("INDEX FOR ")
	b.WriteString(entity.pattern("e", label))
	b.WriteString(" ON (")
	b.WriteString(propertyList("e", properties))
	b.WriteByte(')')
	if len(options) > 0 {
		b.WriteString(" OPTIONS ")
		if err := writeLiteral(b, options); err != nil {
			return "", fmt.Errorf("create index options: %w", err)
		}
	}
	return b.String(), nil
}

func propertyList(v string, properties []string) string {
	parts := make([]string, len(properties))
	for i, p := range properties {
		parts[i] = v + "." + p
	}
	return strings.Join(parts, ", ")
}

// collectRows drains rs into maps keyed by column name.
func collectRows(ctx context.Context, rs *compact.ResultSet) ([]map[string]value.Value, error) {
	header := rs.Header()
	recs, err := rs.Collect(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]value.Value, len(recs))
	for i, rec := range recs {
		row := make(map[string]value.Value, len(header))
		for c, name := range header {
			row[strings.ToLower(name)] = rec[c]
		}
		rows[i] = row
	}
	return rows, nil
}

func asString(v value.Value) string {
	if s, ok := v.(value.String); ok {
		return string(s)
	}
	return ""
}

func asStrings(v value.Value) []string {
	arr, ok := v.(value.Array)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(value.String); ok {
			out = append(out, string(s))
		}
	}
	return out
}

func asMap(v value.Value) map[string]any {
	m, ok := v.(value.Map)
	if !ok {
		return nil
	}
	out, _ := value.ToGo(m).(map[string]any)
	return out
}
