package value

import (
	"fmt"
	"strconv"

	"github.com/orneryd/falkordb-go/pkg/pool"
)

// Node is a graph vertex with its labels and properties resolved to names.
//
// ID is unique within the graph but only stable for the graph's lifetime.
// Labels keep the order they arrived in; Equal compares them as a set.
type Node struct {
	ID         int64
	Labels     []string
	Properties map[string]Value
}

// Edge is a relationship between two nodes. An edge has exactly one type.
type Edge struct {
	ID            int64
	Type          string
	SourceID      int64
	DestinationID int64
	Properties    map[string]Value
}

// Path is an alternating walk of nodes and edges.
//
// A valid path has len(Edges) == len(Nodes)-1 and Edges[i] connects Nodes[i]
// and Nodes[i+1], in either direction.
type Path struct {
	Nodes []Node
	Edges []Edge
}

func (Node) Kind() Kind { return KindNode }
func (Edge) Kind() Kind { return KindEdge }
func (Path) Kind() Kind { return KindPath }

func (Node) value() {}
func (Edge) value() {}
func (Path) value() {}

// HasLabel reports whether the node carries label.
func (n Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Equal compares IDs, label sets and properties.
func (n Node) Equal(o Node) bool {
	if n.ID != o.ID || len(n.Labels) != len(o.Labels) {
		return false
	}
	seen := make(map[string]int, len(n.Labels))
	for _, l := range n.Labels {
		seen[l]++
	}
	for _, l := range o.Labels {
		if seen[l] == 0 {
			return false
		}
		seen[l]--
	}
	return equalProps(n.Properties, o.Properties)
}

func (n Node) String() string {
	b := pool.GetStringBuilder()
	defer pool.PutStringBuilder(b)

	b.WriteString("(")
	b.WriteString(strconv.FormatInt(n.ID, 10))
	for _, l := range n.Labels {
		b.WriteByte(':')
		b.WriteString(l)
	}
	if len(n.Properties) > 0 {
		b.WriteByte(' ')
		writeMap(b, n.Properties)
	}
	b.WriteString(")")
	return b.String()
}

// Equal compares every field of the edge.
func (e Edge) Equal(o Edge) bool {
	return e.ID == o.ID &&
		e.Type == o.Type &&
		e.SourceID == o.SourceID &&
		e.DestinationID == o.DestinationID &&
		equalProps(e.Properties, o.Properties)
}

// Connects reports whether the edge joins nodes a and b, in either direction.
func (e Edge) Connects(a, b int64) bool {
	return (e.SourceID == a && e.DestinationID == b) || (e.SourceID == b && e.DestinationID == a)
}

func (e Edge) String() string {
	b := pool.GetStringBuilder()
	defer pool.PutStringBuilder(b)

	b.WriteString("(")
	b.WriteString(strconv.FormatInt(e.SourceID, 10))
	b.WriteString(")-[")
	b.WriteString(strconv.FormatInt(e.ID, 10))
	b.WriteByte(':')
	b.WriteString(e.Type)
	if len(e.Properties) > 0 {
		b.WriteByte(' ')
		writeMap(b, e.Properties)
	}
	b.WriteString("]->(")
	b.WriteString(strconv.FormatInt(e.DestinationID, 10))
	b.WriteString(")")
	return b.String()
}

// Validate checks the arity and endpoint consistency of the path.
func (p Path) Validate() error {
	if len(p.Nodes) == 0 {
		if len(p.Edges) != 0 {
			return fmt.Errorf("path has %d edges but no nodes", len(p.Edges))
		}
		return nil
	}
	if len(p.Edges) != len(p.Nodes)-1 {
		return fmt.Errorf("path has %d nodes and %d edges", len(p.Nodes), len(p.Edges))
	}
	for i, e := range p.Edges {
		if !e.Connects(p.Nodes[i].ID, p.Nodes[i+1].ID) {
			return fmt.Errorf("edge %d (%d->%d) does not connect nodes %d and %d",
				e.ID, e.SourceID, e.DestinationID, p.Nodes[i].ID, p.Nodes[i+1].ID)
		}
	}
	return nil
}

// Len returns the number of edges in the path.
func (p Path) Len() int { return len(p.Edges) }

// Equal compares nodes and edges position by position.
func (p Path) Equal(o Path) bool {
	if len(p.Nodes) != len(o.Nodes) || len(p.Edges) != len(o.Edges) {
		return false
	}
	for i := range p.Nodes {
		if !p.Nodes[i].Equal(o.Nodes[i]) {
			return false
		}
	}
	for i := range p.Edges {
		if !p.Edges[i].Equal(o.Edges[i]) {
			return false
		}
	}
	return true
}

func (p Path) String() string {
	b := pool.GetStringBuilder()
	defer pool.PutStringBuilder(b)

	b.WriteString("<")
	for i, n := range p.Nodes {
		if i > 0 && i-1 < len(p.Edges) {
			e := p.Edges[i-1]
			if e.SourceID == p.Nodes[i-1].ID {
				b.WriteString("-[:" + e.Type + "]->")
			} else {
				b.WriteString("<-[:" + e.Type + "]-")
			}
		}
		b.WriteString("(" + strconv.FormatInt(n.ID, 10) + ")")
	}
	b.WriteString(">")
	return b.String()
}
