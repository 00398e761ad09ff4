package falkordb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/orneryd/falkordb-go/pkg/convert"
	"github.com/orneryd/falkordb-go/pkg/errdefs"
)

// Operation is one step of an execution plan.
type Operation struct {
	Name     string
	Args     string // e.g. "(a:actor)"; empty when the step has none
	Children []*Operation

	// Set by Profile only.
	Profiled        bool
	RecordsProduced int64
	ExecutionTime   time.Duration
}

// ExecutionPlan is the operation tree returned by Explain and Profile.
type ExecutionPlan struct {
	Root  *Operation
	steps []string
}

// Steps returns the plan lines with indentation removed, root first.
func (p *ExecutionPlan) Steps() []string { return p.steps }

// Operations returns every operation in depth-first order, root first.
func (p *ExecutionPlan) Operations() []*Operation {
	var out []*Operation
	var walk func(*Operation)
	walk = func(op *Operation) {
		out = append(out, op)
		for _, c := range op.Children {
			walk(c)
		}
	}
	if p.Root != nil {
		walk(p.Root)
	}
	return out
}

// String renders the plan as an indented tree.
func (p *ExecutionPlan) String() string {
	var b strings.Builder
	var walk func(*Operation, int)
	walk = func(op *Operation, depth int) {
		b.WriteByte('\n')
		b.WriteString(strings.Repeat("    ", depth))
		b.WriteString(op.Name)
		if op.Args != "" {
			b.WriteString(" | ")
			b.WriteString(op.Args)
		}
		if op.Profiled {
			fmt.Fprintf(&b, " | Records produced: %d, Execution time: %s", op.RecordsProduced, op.ExecutionTime)
		}
		for _, c := range op.Children {
			walk(c, depth+1)
		}
	}
	if p.Root != nil {
		walk(p.Root, 0)
	}
	return b.String()
}

// Explain returns the plan the server would run for query, without running it.
func (g *Graph) Explain(ctx context.Context, query string, opts ...QueryOption) (*ExecutionPlan, error) {
	return g.plan(ctx, cmdExplain, query, opts)
}

// Profile runs query and returns its plan annotated with per-step record
// counts and timings.
func (g *Graph) Profile(ctx context.Context, query string, opts ...QueryOption) (*ExecutionPlan, error) {
	return g.plan(ctx, cmdProfile, query, opts)
}

func (g *Graph) plan(ctx context.Context, cmd, query string, opts []QueryOption) (*ExecutionPlan, error) {
	text, err := BuildQuery(query, g.options(opts).params)
	if err != nil {
		return nil, err
	}
	reply, err := g.client.do(ctx, cmd, g.name, text)
	if err != nil {
		return nil, err
	}
	return parsePlan(cmd, reply)
}

const planIndent = 4

func parsePlan(op string, reply any) (*ExecutionPlan, error) {
	var lines []string
	switch r := reply.(type) {
	case string:
		lines = strings.Split(strings.Trim(r, "\n"), "\n")
	case []any:
		lines = make([]string, 0, len(r))
		for i, item := range r {
			s, ok := convert.ToString(item)
			if !ok {
				return nil, errdefs.Protocolf(fmt.Sprintf("%s[%d]", op, i), "expected string, got %T", item)
			}
			lines = append(lines, s)
		}
	default:
		return nil, errdefs.Protocolf(op, "expected array, got %T", reply)
	}

	plan := &ExecutionPlan{}
	var stack []*Operation
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		path := fmt.Sprintf("%s[%d]", op, i)
		trimmed := strings.TrimLeft(line, " ")
		depth := (len(line) - len(trimmed)) / planIndent

		step, err := parseStep(path, trimmed)
		if err != nil {
			return nil, err
		}

		switch {
		case plan.Root == nil:
			if depth != 0 {
				return nil, errdefs.Protocolf(path, "first step is indented")
			}
			plan.Root = step
		case depth == 0:
			return nil, errdefs.Protocolf(path, "plan has more than one root")
		case depth > len(stack):
			return nil, errdefs.Protocolf(path, "step indented %d levels below its parent", depth-len(stack)+1)
		default:
			parent := stack[depth-1]
			parent.Children = append(parent.Children, step)
		}
		stack = append(stack[:depth], step)
		plan.steps = append(plan.steps, trimmed)
	}
	if plan.Root == nil {
		return nil, errdefs.Protocolf(op, "empty plan")
	}
	return plan, nil
}

// parseStep splits "Name | args | Records produced: N, Execution time: T ms".
func parseStep(path, line string) (*Operation, error) {
	parts := strings.Split(line, " | ")
	step := &Operation{Name: strings.TrimSpace(parts[0])}
	rest := parts[1:]

	if n := len(rest); n > 0 && strings.HasPrefix(rest[n-1], "Records produced:") {
		if err := parseProfile(step, rest[n-1]); err != nil {
			return nil, errdefs.Protocolf(path, "%v", err)
		}
		rest = rest[:n-1]
	}
	step.Args = strings.Join(rest, " | ")
	return step, nil
}

func parseProfile(step *Operation, s string) error {
	step.Profiled = true
	for _, field := range strings.Split(s, ",") {
		key, val, ok := strings.Cut(field, ":")
		if !ok {
			return fmt.Errorf("malformed profile field %q", field)
		}
		val = strings.TrimSpace(val)
		switch strings.TrimSpace(key) {
		case "Records produced":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return fmt.Errorf("records produced %q: %w", val, err)
			}
			step.RecordsProduced = n
		case "Execution time":
			ms, err := strconv.ParseFloat(strings.TrimSuffix(val, " ms"), 64)
			if err != nil {
				return fmt.Errorf("execution time %q: %w", val, err)
			}
			step.ExecutionTime = time.Duration(ms * float64(time.Millisecond))
		}
	}
	return nil
}
