package falkordb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orneryd/falkordb-go/pkg/compact"
	"github.com/orneryd/falkordb-go/pkg/errdefs"
	"github.com/orneryd/falkordb-go/pkg/schema"
	"github.com/orneryd/falkordb-go/pkg/value"
)

// Commands sent by a Graph.
const (
	cmdQuery      = "GRAPH.QUERY"
	cmdROQuery    = "GRAPH.RO_QUERY"
	cmdExplain    = "GRAPH.EXPLAIN"
	cmdProfile    = "GRAPH.PROFILE"
	cmdDelete     = "GRAPH.DELETE"
	cmdSlowlog    = "GRAPH.SLOWLOG"
	cmdConstraint = "GRAPH.CONSTRAINT"
)

// Graph is a handle to one named graph. Safe for concurrent use.
type Graph struct {
	name   string
	client *Client
	schema *schema.Cache
}

var _ schema.Fetcher = (*Graph)(nil)

func newGraph(c *Client, name string) *Graph {
	g := &Graph{name: name, client: c}
	opts := []schema.Option{
		schema.WithLogger(c.logger.With("component", "schema", "graph", name)),
	}
	if c.schemaTracer != nil {
		opts = append(opts, schema.WithTracer(c.schemaTracer))
	}
	g.schema = schema.New(name, g, append(opts, c.schemaOpts...)...)
	return g
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Schema returns the graph's schema cache.
func (g *Graph) Schema() *schema.Cache { return g.schema }

// QueryOption configures a single query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	params  map[string]any
	timeout time.Duration
}

// WithParams binds query parameters. Later calls add to earlier ones.
func WithParams(params map[string]any) QueryOption {
	return func(o *queryOptions) {
		if o.params == nil {
			o.params = make(map[string]any, len(params))
		}
		for k, v := range params {
			o.params[k] = v
		}
	}
}

// WithTimeout asks the server to abort the query after d. It is sent in
// whole milliseconds and does not replace the context deadline.
func WithTimeout(d time.Duration) QueryOption {
	return func(o *queryOptions) {
		o.timeout = d
	}
}

func (g *Graph) options(opts []QueryOption) queryOptions {
	o := queryOptions{timeout: g.client.queryTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Query runs a read-write query.
func (g *Graph) Query(ctx context.Context, query string, opts ...QueryOption) (*compact.ResultSet, error) {
	return g.run(ctx, cmdQuery, query, g.options(opts))
}

// ROQuery runs a read-only query. The server rejects queries that write.
func (g *Graph) ROQuery(ctx context.Context, query string, opts ...QueryOption) (*compact.ResultSet, error) {
	return g.run(ctx, cmdROQuery, query, g.options(opts))
}

// CallProcedure runs "CALL procedure(args...) YIELD yields...". Arguments
// are bound as parameters $arg0, $arg1 and so on.
func (g *Graph) CallProcedure(ctx context.Context, procedure string, args []any, yields []string, readOnly bool, opts ...QueryOption) (*compact.ResultSet, error) {
	query, params := procedureCall(procedure, args, yields)
	o := g.options(opts)
	WithParams(params)(&o)

	cmd := cmdQuery
	if readOnly {
		cmd = cmdROQuery
	}
	return g.run(ctx, cmd, query, o)
}

func procedureCall(procedure string, args []any, yields []string) (string, map[string]any) {
	var b strings.Builder
	b.WriteString("CALL ")
	b.WriteString(procedure)
	b.WriteByte('(')
	params := make(map[string]any, len(args))
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		name := "arg" + strconv.Itoa(i)
		b.WriteByte('$')
		b.WriteString(name)
		params[name] = a
	}
	b.WriteByte(')')
	if len(yields) > 0 {
		b.WriteString(" YIELD ")
		b.WriteString(strings.Join(yields, ", "))
	}
	return b.String(), params
}

// run sends a compact query and decodes the reply header. Rows are decoded
// as the caller pulls them.
func (g *Graph) run(ctx context.Context, cmd, query string, o queryOptions) (rs *compact.ResultSet, err error) {
	text, err := BuildQuery(query, o.params)
	if err != nil {
		return nil, err
	}

	queryID := uuid.NewString()
	ctx, span := g.client.tracer.Start(ctx, "falkordb.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("falkordb.graph", g.name),
			attribute.String("falkordb.command", cmd),
			attribute.String("falkordb.query_id", queryID),
		))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			g.client.log.Warn("query failed",
				"graph", g.name, "command", cmd, "query_id", queryID, "error", err)
		}
		span.End()
	}()

	args := []any{cmd, g.name, text, "--compact"}
	if o.timeout > 0 {
		args = append(args, "timeout", o.timeout.Milliseconds())
	}
	reply, err := g.client.do(ctx, args...)
	if err != nil {
		return nil, err
	}

	rs, err = compact.NewResultSet(reply, g.schema)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("falkordb.rows", rs.Len()))
	g.client.log.Debug("query executed",
		"graph", g.name,
		"command", cmd,
		"query_id", queryID,
		"rows", rs.Len(),
		"server_time", rs.Stats().ExecutionTime(),
		"elapsed", time.Since(start))
	return rs, nil
}

// exec runs a query that returns no rows of interest and reports its statistics.
func (g *Graph) exec(ctx context.Context, query string) (compact.Statistics, error) {
	rs, err := g.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	return rs.Stats(), nil
}

// Delete removes the graph from the server and clears the schema cache.
// The handle stays usable; a later write recreates the graph.
func (g *Graph) Delete(ctx context.Context) error {
	if _, err := g.client.do(ctx, cmdDelete, g.name); err != nil {
		return err
	}
	g.client.resetSchema(g)
	g.client.log.Info("graph deleted", "graph", g.name)
	return nil
}

// FetchSchema lists the names of ns in identifier order. It is the refresh
// source of the graph's schema cache.
func (g *Graph) FetchSchema(ctx context.Context, ns schema.Namespace) (map[int64]string, error) {
	reply, err := g.client.do(ctx, cmdQuery, g.name, "CALL "+ns.Procedure()+"()", "--compact")
	if err != nil {
		return nil, err
	}
	rs, err := compact.NewResultSet(reply, nil)
	if err != nil {
		return nil, err
	}
	recs, err := rs.Collect(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]string, len(recs))
	for i, rec := range recs {
		if len(rec) != 1 {
			return nil, errdefs.Protocolf(fmt.Sprintf("%s.row[%d]", ns.Procedure(), i), "expected 1 column, got %d", len(rec))
		}
		name, ok := rec[0].(value.String)
		if !ok {
			return nil, errdefs.Protocolf(fmt.Sprintf("%s.row[%d]", ns.Procedure(), i), "expected string, got %s", rec[0].Kind())
		}
		out[int64(i)] = string(name)
	}
	return out, nil
}
