// Package falkordb is the client for FalkorDB graphs.
//
// A Client owns one pooled connection and hands out Graph handles. Each graph
// name maps to a single handle, and with it a single schema cache, for as
// long as the handle stays in the client's registry; concurrent SelectGraph
// calls for the same name share it.
//
// Queries return a lazily decoded compact.ResultSet. Node labels,
// relationship types and property keys are resolved through the graph's
// schema cache, which refreshes itself from the server on a miss.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	client, err := falkordb.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	g := client.SelectGraph("social")
//	rs, err := g.Query(ctx, "MATCH (p:Person {name: $name}) RETURN p",
//		falkordb.WithParams(map[string]any{"name": "Ann"}))
//	if err != nil {
//		log.Fatal(err)
//	}
//	for rec, err := range rs.Records(ctx) {
//		...
//	}
package falkordb

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/orneryd/falkordb-go/pkg/cache"
	"github.com/orneryd/falkordb-go/pkg/config"
	"github.com/orneryd/falkordb-go/pkg/convert"
	"github.com/orneryd/falkordb-go/pkg/errdefs"
	"github.com/orneryd/falkordb-go/pkg/schema"
	"github.com/orneryd/falkordb-go/pkg/transport"
)

const (
	tracerName       = "github.com/orneryd/falkordb-go/pkg/falkordb"
	schemaTracerName = "github.com/orneryd/falkordb-go/pkg/schema"
)

// Client is a connection to a FalkorDB server. Safe for concurrent use.
type Client struct {
	conn   transport.Conn
	graphs *cache.LRU[string, *Graph]

	logger       *slog.Logger
	log          *slog.Logger
	tracer       trace.Tracer
	schemaTracer trace.Tracer
	schemaOpts   []schema.Option

	graphCacheSize int
	queryTimeout   time.Duration

	closed atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the base logger. Components derive their own loggers from it.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracerProvider sets the provider used for query and schema refresh spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
			c.schemaTracer = tp.Tracer(schemaTracerName)
		}
	}
}

// WithSchemaOptions adds options applied to every graph's schema cache.
func WithSchemaOptions(opts ...schema.Option) Option {
	return func(c *Client) {
		c.schemaOpts = append(c.schemaOpts, opts...)
	}
}

// WithGraphCacheSize bounds the number of graph handles kept by SelectGraph.
func WithGraphCacheSize(n int) Option {
	return func(c *Client) {
		c.graphCacheSize = n
	}
}

// WithDefaultTimeout sets the server side timeout sent with queries that do
// not set their own. 0 leaves the server default in place.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.queryTimeout = d
	}
}

// New connects using cfg. A nil cfg is loaded from the environment.
// No round trip is made until the first command.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.LoadFromEnv()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.Pool.Apply()

	conn, err := transport.NewRedisConn(cfg.Connection)
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithGraphCacheSize(cfg.Client.GraphCacheSize),
		WithDefaultTimeout(cfg.Client.QueryTimeout),
		WithSchemaOptions(
			schema.WithRefreshTimeout(cfg.Schema.RefreshTimeout),
			schema.WithRefreshLimit(rate.Limit(cfg.Schema.RefreshRate), cfg.Schema.RefreshBurst),
		),
	}
	return NewWithConn(conn, append(base, opts...)...), nil
}

// NewWithConn builds a client over an existing connection. The client takes
// ownership of conn and closes it on Close.
func NewWithConn(conn transport.Conn, opts ...Option) *Client {
	c := &Client{
		conn:           conn,
		logger:         slog.Default(),
		tracer:         otel.Tracer(tracerName),
		graphCacheSize: cache.DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.logger.With("component", "falkordb")
	c.graphs = cache.NewLRU[string, *Graph](c.graphCacheSize)
	c.graphs.OnEvict(func(name string, _ *Graph) {
		c.log.Debug("graph handle evicted", "graph", name)
	})
	return c
}

// SelectGraph returns the handle for name. Every call with the same name
// returns the same handle while it is cached. Once a handle is evicted, a
// later call creates a new one with its own schema cache; keep using the
// handle SelectGraph returns rather than one held across evictions.
func (c *Client) SelectGraph(name string) *Graph {
	g, _ := c.graphs.GetOrAdd(name, func() *Graph {
		return newGraph(c, name)
	})
	return g
}

// ListGraphs returns the names of every graph on the server.
func (c *Client) ListGraphs(ctx context.Context) ([]string, error) {
	reply, err := c.do(ctx, "GRAPH.LIST")
	if err != nil {
		return nil, err
	}
	return stringList(reply, "GRAPH.LIST")
}

// CopyGraph copies src to a new graph dst and returns the handle for dst.
func (c *Client) CopyGraph(ctx context.Context, src, dst string) (*Graph, error) {
	if _, err := c.do(ctx, "GRAPH.COPY", src, dst); err != nil {
		return nil, err
	}
	g := c.SelectGraph(dst)
	// A handle that outlived an earlier graph of the same name holds stale ids.
	c.resetSchema(g)
	return g, nil
}

// resetSchema clears the schema cache of g and, when g was evicted and
// replaced, of the handle now registered under its name.
func (c *Client) resetSchema(g *Graph) {
	g.schema.Clear()
	if cur, ok := c.graphs.Get(g.name); ok && cur != g {
		cur.schema.Clear()
	}
}

// ConfigGet returns server configuration values. name may be "*".
func (c *Client) ConfigGet(ctx context.Context, name string) (map[string]any, error) {
	reply, err := c.do(ctx, "GRAPH.CONFIG", "GET", name)
	if err != nil {
		return nil, err
	}
	items, ok := reply.([]any)
	if !ok {
		return nil, errdefs.Protocolf("GRAPH.CONFIG", "expected array, got %T", reply)
	}

	out := make(map[string]any)
	if len(items) == 2 {
		if key, ok := convert.ToString(items[0]); ok {
			if _, nested := items[1].([]any); !nested {
				out[key] = items[1]
				return out, nil
			}
		}
	}
	for i, item := range items {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return nil, errdefs.Protocolf(fmt.Sprintf("GRAPH.CONFIG[%d]", i), "expected [name, value] pair, got %T", item)
		}
		key, ok := convert.ToString(pair[0])
		if !ok {
			return nil, errdefs.Protocolf(fmt.Sprintf("GRAPH.CONFIG[%d]", i), "name is not a string: %T", pair[0])
		}
		out[key] = pair[1]
	}
	return out, nil
}

// ConfigSet sets a server configuration value.
func (c *Client) ConfigSet(ctx context.Context, name string, value any) error {
	_, err := c.do(ctx, "GRAPH.CONFIG", "SET", name, value)
	return err
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "PING")
	return err
}

// Close drops every graph handle and closes the connection. Later calls
// fail with errdefs.ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.graphs.Clear()
	return c.conn.Close()
}

func (c *Client) do(ctx context.Context, args ...any) (any, error) {
	if c.closed.Load() {
		return nil, errdefs.ErrClosed
	}
	return c.conn.Do(ctx, args...)
}

func stringList(reply any, op string) ([]string, error) {
	if reply == nil {
		return nil, nil
	}
	items, ok := reply.([]any)
	if !ok {
		return nil, errdefs.Protocolf(op, "expected array, got %T", reply)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := convert.ToString(item)
		if !ok {
			return nil, errdefs.Protocolf(fmt.Sprintf("%s[%d]", op, i), "expected string, got %T", item)
		}
		out[i] = s
	}
	return out, nil
}
