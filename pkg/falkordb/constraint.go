package falkordb

import (
	"context"
	"fmt"
	"strings"
)

// ConstraintType is the kind of a constraint.
type ConstraintType uint8

const (
	ConstraintMandatory ConstraintType = iota
	ConstraintUnique
)

func (t ConstraintType) String() string {
	if t == ConstraintUnique {
		return "UNIQUE"
	}
	return "MANDATORY"
}

// ParseConstraintType accepts "MANDATORY" and "UNIQUE" in any case.
func ParseConstraintType(s string) (ConstraintType, error) {
	switch strings.ToUpper(s) {
	case "MANDATORY":
		return ConstraintMandatory, nil
	case "UNIQUE":
		return ConstraintUnique, nil
	}
	return ConstraintMandatory, fmt.Errorf("unknown constraint type %q", s)
}

// Constraint status values reported by the server.
const (
	ConstraintOperational       = "OPERATIONAL"
	ConstraintUnderConstruction = "UNDER CONSTRUCTION"
	ConstraintFailed            = "FAILED"
)

// Constraint describes one constraint as listed by the server.
type Constraint struct {
	Type       ConstraintType
	Label      string
	Properties []string
	EntityType EntityType
	Status     string
}

// ListConstraints returns every constraint of the graph.
func (g *Graph) ListConstraints(ctx context.Context) ([]Constraint, error) {
	rs, err := g.CallProcedure(ctx, "DB.CONSTRAINTS", nil, nil, true)
	if err != nil {
		return nil, err
	}
	rows, err := collectRows(ctx, rs)
	if err != nil {
		return nil, err
	}

	out := make([]Constraint, 0, len(rows))
	for _, row := range rows {
		c := Constraint{
			Label:      asString(row["label"]),
			Properties: asStrings(row["properties"]),
			Status:     asString(row["status"]),
		}
		if t, err := ParseConstraintType(asString(row["type"])); err == nil {
			c.Type = t
		}
		if et, err := ParseEntityType(asString(row["entitytype"])); err == nil {
			c.EntityType = et
		}
		out = append(out, c)
	}
	return out, nil
}

// CreateConstraint creates a constraint on label over properties. A unique
// constraint needs a range index over the same properties; it is created
// first. The server builds the constraint asynchronously: poll
// ListConstraints until its status is ConstraintOperational.
func (g *Graph) CreateConstraint(ctx context.Context, t ConstraintType, entity EntityType, label string, properties []string) error {
	if len(properties) == 0 {
		return fmt.Errorf("create constraint: no properties given")
	}
	if t == ConstraintUnique {
		if _, err := g.CreateIndex(ctx, IndexRange, entity, label, properties, nil); err != nil {
			return fmt.Errorf("create index for unique constraint: %w", err)
		}
	}
	_, err := g.client.do(ctx, constraintArgs("CREATE", g.name, t, entity, label, properties)...)
	return err
}

// DropConstraint drops a constraint. The index backing a unique constraint
// is left in place.
func (g *Graph) DropConstraint(ctx context.Context, t ConstraintType, entity EntityType, label string, properties []string) error {
	if len(properties) == 0 {
		return fmt.Errorf("drop constraint: no properties given")
	}
	_, err := g.client.do(ctx, constraintArgs("DROP", g.name, t, entity, label, properties)...)
	return err
}

// constraintArgs builds
// GRAPH.CONSTRAINT <op> <graph> <type> <entity> <label> PROPERTIES <n> <props...>.
func constraintArgs(op, graph string, t ConstraintType, entity EntityType, label string, properties []string) []any {
	args := make([]any, 0, 8+len(properties))
	args = append(args, cmdConstraint, op, graph, t.String(), entity.String(), label, "PROPERTIES", len(properties))
	for _, p := range properties {
		args = append(args, p)
	}
	return args
}
