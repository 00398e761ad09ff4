package schema

import (
	"context"
	"strconv"
)

// Namespace is one of the three independent identifier spaces of a graph.
type Namespace uint8

const (
	// Labels holds node label identifiers.
	Labels Namespace = iota
	// RelationshipTypes holds edge type identifiers.
	RelationshipTypes
	// PropertyKeys holds property key identifiers shared by nodes and edges.
	PropertyKeys
)

// Namespaces lists every namespace in a stable order.
var Namespaces = [...]Namespace{Labels, RelationshipTypes, PropertyKeys}

var namespaceNames = [...]string{
	Labels:            "labels",
	RelationshipTypes: "relationshipTypes",
	PropertyKeys:      "propertyKeys",
}

var namespaceProcedures = [...]string{
	Labels:            "db.labels",
	RelationshipTypes: "db.relationshipTypes",
	PropertyKeys:      "db.propertyKeys",
}

func (n Namespace) String() string {
	if int(n) < len(namespaceNames) {
		return namespaceNames[n]
	}
	return "namespace(" + strconv.Itoa(int(n)) + ")"
}

// Procedure returns the server procedure that enumerates the namespace,
// e.g. "db.labels". Row i of its result holds the name of identifier i.
func (n Namespace) Procedure() string {
	if int(n) < len(namespaceProcedures) {
		return namespaceProcedures[n]
	}
	return ""
}

// Valid reports whether n is one of the declared namespaces.
func (n Namespace) Valid() bool {
	return int(n) < len(namespaceNames)
}

// Fetcher enumerates the current identifier to name pairs of a namespace in
// one round trip to the server.
type Fetcher interface {
	FetchSchema(ctx context.Context, ns Namespace) (map[int64]string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, ns Namespace) (map[int64]string, error)

// FetchSchema calls f(ctx, ns).
func (f FetcherFunc) FetchSchema(ctx context.Context, ns Namespace) (map[int64]string, error) {
	return f(ctx, ns)
}
