// Package schema caches the identifier to name mappings of one graph.
//
// FalkorDB's compact replies carry node labels, relationship types and
// property keys as small integers. The Cache maps them back to names for
// the three namespaces independently, pulling fresh mappings from the server
// only when an identifier is missing.
//
// Features:
//   - Lock-free reads of an immutable per-namespace snapshot
//   - Miss-triggered refresh, deduplicated per namespace
//   - Monotonic merges: entries are only ever added, never replaced
//   - Optional rate limiting of refresh round trips
//   - Hit/miss/refresh statistics
//
// Usage:
//
//	c := schema.New("social", graph)
//
//	name, err := c.Resolve(ctx, schema.Labels, 0)
//	if errors.Is(err, errdefs.ErrSchemaResolution) {
//		// identifier created after the refresh snapshot; re-run the query
//	}
package schema

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/orneryd/falkordb-go/pkg/errdefs"
)

// DefaultRefreshTimeout bounds a refresh round trip when no timeout is configured.
const DefaultRefreshTimeout = 10 * time.Second

const tracerName = "github.com/orneryd/falkordb-go/pkg/schema"

// Cache is a per-graph identifier to name cache for the three namespaces.
//
// All methods are safe for concurrent use. Readers never block each other
// or a refresh: each namespace is published as an immutable snapshot that
// is swapped atomically after a merge completes, so a reader observes either
// the table before a refresh or the table after it.
type Cache struct {
	graph   string
	fetcher Fetcher

	spaces [len(namespaceNames)]space
	flight singleflight.Group

	limiter        *rate.Limiter
	refreshTimeout time.Duration
	logger         *slog.Logger
	tracer         trace.Tracer

	// Statistics
	hits            atomic.Uint64
	misses          atomic.Uint64
	refreshes       atomic.Uint64
	failedRefreshes atomic.Uint64
	conflicts       atomic.Uint64
}

// space is the state of one namespace.
type space struct {
	snap atomic.Pointer[table]

	// mu serializes merges and Clear.
	mu sync.Mutex
	// generation changes on Clear so refreshes started earlier are discarded.
	generation atomic.Uint64
}

// table is an immutable snapshot. It is never modified after publication.
type table struct {
	names map[int64]string
	ids   map[string]int64
}

var emptyTable = &table{names: map[int64]string{}, ids: map[string]int64{}}

// Stats holds cache statistics.
type Stats struct {
	Hits            uint64
	Misses          uint64
	Refreshes       uint64
	FailedRefreshes uint64
	Conflicts       uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for refresh and conflict events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer sets the tracer used for refresh spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Cache) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithRefreshTimeout bounds each refresh round trip. The bound applies even
// when the caller that triggered the refresh has gone away.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithRefreshLimit throttles refresh round trips to r per second with the
// given burst. A zero rate disables throttling.
func WithRefreshLimit(r rate.Limit, burst int) Option {
	return func(c *Cache) {
		if r <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(r, burst)
	}
}

// New creates an empty cache for graph, refreshing through f.
func New(graph string, f Fetcher, opts ...Option) *Cache {
	c := &Cache{
		graph:          graph,
		fetcher:        f,
		refreshTimeout: DefaultRefreshTimeout,
		logger:         slog.Default().With("component", "schema", "graph", graph),
		tracer:         otel.Tracer(tracerName),
	}
	for i := range c.spaces {
		c.spaces[i].snap.Store(emptyTable)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Graph returns the name of the graph the cache belongs to.
func (c *Cache) Graph() string {
	return c.graph
}

func (c *Cache) space(ns Namespace) *space {
	if !ns.Valid() {
		panic("schema: invalid namespace " + ns.String())
	}
	return &c.spaces[ns]
}

// Lookup returns the cached name for id without any I/O.
func (c *Cache) Lookup(ns Namespace, id int64) (string, bool) {
	name, ok := c.space(ns).snap.Load().names[id]
	return name, ok
}

// Resolve returns the name of id in ns.
//
// A cached identifier is returned immediately. On a miss the namespace is
// refreshed once and the lookup retried; an identifier that is still unknown
// yields a *errdefs.SchemaResolutionError.
func (c *Cache) Resolve(ctx context.Context, ns Namespace, id int64) (string, error) {
	if name, ok := c.Lookup(ns, id); ok {
		c.hits.Add(1)
		return name, nil
	}
	c.misses.Add(1)

	if err := c.Refresh(ctx, ns); err != nil {
		return "", err
	}
	if name, ok := c.Lookup(ns, id); ok {
		return name, nil
	}
	return "", &errdefs.SchemaResolutionError{Namespace: ns.String(), ID: id}
}

// ResolveAll resolves a batch of identifiers from one namespace with at most
// one refresh. The returned map holds a name for every requested identifier.
func (c *Cache) ResolveAll(ctx context.Context, ns Namespace, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	missing := false
	names := c.space(ns).snap.Load().names
	for _, id := range ids {
		if name, ok := names[id]; ok {
			out[id] = name
		} else {
			missing = true
		}
	}
	if !missing {
		c.hits.Add(uint64(len(ids)))
		return out, nil
	}
	c.misses.Add(1)

	if err := c.Refresh(ctx, ns); err != nil {
		return nil, err
	}
	names = c.space(ns).snap.Load().names
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		name, ok := names[id]
		if !ok {
			return nil, &errdefs.SchemaResolutionError{Namespace: ns.String(), ID: id}
		}
		out[id] = name
	}
	return out, nil
}

// Refresh synchronizes ns with the server.
//
// Concurrent refreshes of the same namespace share one round trip. The round
// trip runs detached from ctx: if ctx ends first, Refresh returns early with
// a timeout (deadline) or the context error (cancellation), while the round
// trip completes in the background and its result is still merged.
func (c *Cache) Refresh(ctx context.Context, ns Namespace) error {
	sp := c.space(ns)
	gen := sp.generation.Load()
	key := ns.String() + "/" + strconv.FormatUint(gen, 10)

	detached := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(detached, c.refreshTimeout)
		defer cancel()
		return nil, c.refresh(rctx, ns, gen)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return errdefs.FromContext("schema refresh "+ns.String(), ctx.Err())
	}
}

func (c *Cache) refresh(ctx context.Context, ns Namespace, gen uint64) (err error) {
	ctx, span := c.tracer.Start(ctx, "falkordb.schema.refresh", trace.WithAttributes(
		attribute.String("falkordb.graph", c.graph),
		attribute.String("falkordb.schema.namespace", ns.String()),
	))
	defer func() {
		if err != nil {
			c.failedRefreshes.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.limiter != nil {
		// Wait fails early when the next token lies past the deadline.
		if err := c.limiter.Wait(ctx); err != nil {
			return &errdefs.TimeoutError{Op: "schema refresh " + ns.String(), Err: err}
		}
	}

	start := time.Now()
	c.refreshes.Add(1)
	fetched, err := c.fetcher.FetchSchema(ctx, ns)
	if err != nil {
		// Fetcher errors pass through unchanged; the namespace is on the span.
		if !errors.Is(err, errdefs.ErrTimeout) {
			err = errdefs.FromContext("schema refresh "+ns.String(), err)
		}
		return err
	}

	added, err := c.merge(ns, gen, fetched)
	if err != nil {
		c.conflicts.Add(1)
		c.logger.Warn("schema merge rejected", "namespace", ns.String(), "error", err)
		return err
	}

	span.SetAttributes(
		attribute.Int("falkordb.schema.fetched", len(fetched)),
		attribute.Int("falkordb.schema.added", added),
	)
	c.logger.Debug("schema refreshed",
		"namespace", ns.String(),
		"fetched", len(fetched),
		"added", added,
		"duration", time.Since(start))
	return nil
}

// merge publishes the current snapshot plus fetched as a new snapshot.
//
// An identifier already mapped to a different name, or a name claimed by two
// identifiers, rejects the whole merge and leaves the snapshot untouched.
func (c *Cache) merge(ns Namespace, gen uint64, fetched map[int64]string) (int, error) {
	sp := c.space(ns)
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.generation.Load() != gen {
		// Cleared while the round trip was in flight.
		return 0, nil
	}

	cur := sp.snap.Load()
	next := &table{
		names: maps.Clone(cur.names),
		ids:   maps.Clone(cur.ids),
	}

	added := 0
	for id, name := range fetched {
		if old, ok := next.names[id]; ok {
			if old != name {
				return 0, errdefs.Protocolf("schema."+ns.String(),
					"id %d maps to %q but refresh returned %q", id, old, name)
			}
			continue
		}
		if other, ok := next.ids[name]; ok && other != id {
			return 0, errdefs.Protocolf("schema."+ns.String(),
				"name %q claimed by ids %d and %d", name, other, id)
		}
		next.names[id] = name
		next.ids[name] = id
		added++
	}

	if added > 0 {
		sp.snap.Store(next)
	}
	return added, nil
}

// Warm refreshes all namespaces concurrently.
func (c *Cache) Warm(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, ns := range Namespaces {
		g.Go(func() error {
			return c.Refresh(gctx, ns)
		})
	}
	return g.Wait()
}

// Snapshot returns a copy of the cached mappings of ns.
func (c *Cache) Snapshot(ns Namespace) map[int64]string {
	return maps.Clone(c.space(ns).snap.Load().names)
}

// Len returns the number of cached identifiers in ns.
func (c *Cache) Len(ns Namespace) int {
	return len(c.space(ns).snap.Load().names)
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Refreshes:       c.refreshes.Load(),
		FailedRefreshes: c.failedRefreshes.Load(),
		Conflicts:       c.conflicts.Load(),
	}
}

// Clear drops every cached mapping.
//
// Only call Clear after the graph itself has been deleted, when the server
// restarts identifier numbering. Refreshes in flight at the time of the call
// are discarded.
func (c *Cache) Clear() {
	for i := range c.spaces {
		sp := &c.spaces[i]
		sp.mu.Lock()
		sp.generation.Add(1)
		sp.snap.Store(emptyTable)
		sp.mu.Unlock()
	}
	c.logger.Debug("schema cleared")
}
