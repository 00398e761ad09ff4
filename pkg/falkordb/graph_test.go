package falkordb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/orneryd/falkordb-go/pkg/compact/compacttest"
	"github.com/orneryd/falkordb-go/pkg/errdefs"
	"github.com/orneryd/falkordb-go/pkg/schema"
	"github.com/orneryd/falkordb-go/pkg/transport/transporttest"
	"github.com/orneryd/falkordb-go/pkg/value"
)

func newTestClient(t *testing.T, opts ...Option) (*Client, *transporttest.FakeConn, *compacttest.Encoder) {
	t.Helper()
	enc := compacttest.NewEncoder()
	conn := transporttest.NewFakeConn().ServeSchema(enc)
	c := NewWithConn(conn, opts...)
	t.Cleanup(func() { c.Close() })
	return c, conn, enc
}

func person(enc *compacttest.Encoder) []any {
	return enc.Reply([]string{"n"}, value.Record{value.Node{
		ID:         5,
		Labels:     []string{"Person"},
		Properties: map[string]value.Value{"v": value.Integer(1)},
	}})
}

func TestSelectGraphSharesHandle(t *testing.T) {
	c, _, _ := newTestClient(t)

	var wg sync.WaitGroup
	handles := make([]*Graph, 20)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = c.SelectGraph("social")
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		assert.Same(t, handles[0], h)
		assert.Same(t, handles[0].Schema(), h.Schema())
	}
	assert.Equal(t, "social", handles[0].Name())
	assert.NotSame(t, handles[0], c.SelectGraph("other"))
}

func TestGraphCacheSizeBoundsHandles(t *testing.T) {
	c, _, _ := newTestClient(t, WithGraphCacheSize(2))
	a := c.SelectGraph("a")
	c.SelectGraph("b")
	c.SelectGraph("c")

	assert.Equal(t, 2, c.graphs.Len())
	assert.NotSame(t, a, c.SelectGraph("a"), "evicted handle is rebuilt")
}

func TestQueryResolvesThroughSchema(t *testing.T) {
	c, conn, enc := newTestClient(t)
	conn.HandleQuery("MATCH (n) RETURN n", transporttest.Reply(person(enc)))
	g := c.SelectGraph("social")
	ctx := context.Background()

	rs, err := g.Query(ctx, "MATCH (n) RETURN n")
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, []string(rs.Header()))

	rec, ok, err := rs.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	want := value.Node{ID: 5, Labels: []string{"Person"}, Properties: map[string]value.Value{"v": value.Integer(1)}}
	assert.True(t, value.Equal(want, rec[0]), "got %s", rec[0])

	assert.Equal(t, 1, conn.SchemaCalls(schema.Labels))
	assert.Equal(t, 1, conn.SchemaCalls(schema.PropertyKeys))
	assert.Equal(t, 0, conn.SchemaCalls(schema.RelationshipTypes))

	// Warm cache: the same query makes no further schema round trips.
	rs, err = g.Query(ctx, "MATCH (n) RETURN n")
	require.NoError(t, err)
	_, err = rs.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, conn.SchemaCalls(schema.Labels))
	assert.Equal(t, 1, conn.SchemaCalls(schema.PropertyKeys))
	assert.Equal(t, 2, conn.Calls("MATCH (n) RETURN n"))
}

func TestQueryArguments(t *testing.T) {
	empty := []any{compacttest.Stats("Query internal execution time: 0.1 milliseconds")}

	t.Run("params and timeout", func(t *testing.T) {
		c, conn, _ := newTestClient(t)
		conn.Handle("GRAPH.QUERY", transporttest.Reply(empty))

		_, err := c.SelectGraph("social").Query(context.Background(),
			"MATCH (p:Person {name: $name}) RETURN p",
			WithParams(map[string]any{"name": "Ann"}),
			WithParams(map[string]any{"limit": 3}),
			WithTimeout(1500*time.Millisecond))
		require.NoError(t, err)

		assert.Equal(t, []any{
			"GRAPH.QUERY", "social",
			`CYPHER limit=3 name="Ann" MATCH (p:Person {name: $name}) RETURN p`,
			"--compact", "timeout", int64(1500),
		}, conn.Last("GRAPH.QUERY"))
	})

	t.Run("default timeout", func(t *testing.T) {
		c, conn, _ := newTestClient(t, WithDefaultTimeout(time.Second))
		conn.Handle("GRAPH.RO_QUERY", transporttest.Reply(empty))

		_, err := c.SelectGraph("social").ROQuery(context.Background(), "RETURN 1")
		require.NoError(t, err)
		assert.Equal(t, []any{"GRAPH.RO_QUERY", "social", "RETURN 1", "--compact", "timeout", int64(1000)},
			conn.Last("GRAPH.RO_QUERY"))
	})

	t.Run("no timeout", func(t *testing.T) {
		c, conn, _ := newTestClient(t)
		conn.Handle("GRAPH.QUERY", transporttest.Reply(empty))

		_, err := c.SelectGraph("social").Query(context.Background(), "RETURN 1")
		require.NoError(t, err)
		assert.Equal(t, []any{"GRAPH.QUERY", "social", "RETURN 1", "--compact"}, conn.Last("GRAPH.QUERY"))
	})

	t.Run("bad parameter is not sent", func(t *testing.T) {
		c, conn, _ := newTestClient(t)
		_, err := c.SelectGraph("social").Query(context.Background(), "RETURN $x",
			WithParams(map[string]any{"x": make(chan int)}))
		require.Error(t, err)
		assert.Empty(t, conn.Commands())
	})
}

func TestCallProcedure(t *testing.T) {
	c, conn, enc := newTestClient(t)
	conn.Handle("GRAPH.RO_QUERY", transporttest.Reply(person(enc)))

	rs, err := c.SelectGraph("movies").CallProcedure(context.Background(),
		"db.idx.fulltext.queryNodes", []any{"Movie", "Jungle"}, []string{"node", "score"}, true)
	require.NoError(t, err)
	defer rs.Close()

	assert.Equal(t, []any{
		"GRAPH.RO_QUERY", "movies",
		`CYPHER arg0="Movie" arg1="Jungle" CALL db.idx.fulltext.queryNodes($arg0, $arg1) YIELD node, score`,
		"--compact",
	}, conn.Last("GRAPH.RO_QUERY"))
}

func TestProcedureCall(t *testing.T) {
	q, params := procedureCall("db.labels", nil, nil)
	assert.Equal(t, "CALL db.labels()", q)
	assert.Empty(t, params)

	q, params = procedureCall("algo.pageRank", []any{"Page", 0.85}, []string{"node"})
	assert.Equal(t, "CALL algo.pageRank($arg0, $arg1) YIELD node", q)
	assert.Equal(t, map[string]any{"arg0": "Page", "arg1": 0.85}, params)
}

func TestQueryErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		c, conn, _ := newTestClient(t)
		conn.Handle("GRAPH.QUERY", transporttest.Fail(&errdefs.ServerError{Message: "errMsg: Invalid input"}))

		_, err := c.SelectGraph("g").Query(context.Background(), "MATCH (")
		assert.ErrorIs(t, err, errdefs.ErrServer)
	})

	t.Run("error embedded in reply", func(t *testing.T) {
		c, conn, _ := newTestClient(t)
		conn.Handle("GRAPH.QUERY", transporttest.Reply([]any{assert.AnError}))

		_, err := c.SelectGraph("g").Query(context.Background(), "RETURN 1/0")
		assert.ErrorIs(t, err, errdefs.ErrServer)
	})

	t.Run("malformed reply", func(t *testing.T) {
		c, conn, _ := newTestClient(t)
		conn.Handle("GRAPH.QUERY", transporttest.Reply("OK"))

		_, err := c.SelectGraph("g").Query(context.Background(), "RETURN 1")
		assert.ErrorIs(t, err, errdefs.ErrProtocol)
	})

	t.Run("deadline", func(t *testing.T) {
		c, conn, enc := newTestClient(t)
		conn.Handle("GRAPH.QUERY", transporttest.Reply(person(enc)))
		conn.SetLatency(time.Second)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := c.SelectGraph("g").Query(ctx, "MATCH (n) RETURN n")
		assert.ErrorIs(t, err, errdefs.ErrTimeout)
		assert.True(t, errdefs.IsRetryableQuery(err))
	})
}

func TestQuerySpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	c, conn, enc := newTestClient(t, WithTracerProvider(tp))
	conn.HandleQuery("MATCH (n) RETURN n", transporttest.Reply(person(enc)))
	conn.HandleQuery("BROKEN", transporttest.Fail(&errdefs.ServerError{Message: "boom"}))
	g := c.SelectGraph("social")
	ctx := context.Background()

	rs, err := g.Query(ctx, "MATCH (n) RETURN n")
	require.NoError(t, err)
	_, err = rs.Collect(ctx)
	require.NoError(t, err)
	_, err = g.Query(ctx, "BROKEN")
	require.Error(t, err)

	var queries, refreshes []sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		switch s.Name() {
		case "falkordb.query":
			queries = append(queries, s)
		case "falkordb.schema.refresh":
			refreshes = append(refreshes, s)
		}
	}
	require.Len(t, queries, 2)
	assert.Len(t, refreshes, 2, "labels and property keys")

	attrs := spanAttrs(queries[0])
	assert.Equal(t, "social", attrs["falkordb.graph"].AsString())
	assert.Equal(t, "GRAPH.QUERY", attrs["falkordb.command"].AsString())
	assert.Equal(t, int64(1), attrs["falkordb.rows"].AsInt64())
	_, err = uuid.Parse(attrs["falkordb.query_id"].AsString())
	assert.NoError(t, err)

	assert.Equal(t, codes.Error, queries[1].Status().Code)
	assert.NotEqual(t, attrs["falkordb.query_id"], spanAttrs(queries[1])["falkordb.query_id"])
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestDeleteClearsSchema(t *testing.T) {
	c, conn, enc := newTestClient(t)
	conn.HandleQuery("MATCH (n) RETURN n", transporttest.Reply(person(enc)))
	conn.Handle("GRAPH.DELETE", transporttest.Reply("Graph removed, internal execution time: 0.1 milliseconds"))
	g := c.SelectGraph("social")
	ctx := context.Background()

	rs, err := g.Query(ctx, "MATCH (n) RETURN n")
	require.NoError(t, err)
	_, err = rs.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, g.Schema().Len(schema.Labels))

	require.NoError(t, g.Delete(ctx))
	assert.Equal(t, []any{"GRAPH.DELETE", "social"}, conn.Last("GRAPH.DELETE"))
	for _, ns := range schema.Namespaces {
		assert.Zero(t, g.Schema().Len(ns), ns.String())
	}
	assert.Same(t, g, c.SelectGraph("social"), "handle stays usable")

	t.Run("failed delete keeps cache", func(t *testing.T) {
		rs, err := g.Query(ctx, "MATCH (n) RETURN n")
		require.NoError(t, err)
		_, err = rs.Collect(ctx)
		require.NoError(t, err)

		conn.Handle("GRAPH.DELETE", transporttest.Fail(&errdefs.ServerError{Message: "ERR Invalid graph operation on empty key"}))
		require.Error(t, g.Delete(ctx))
		assert.Equal(t, 1, g.Schema().Len(schema.Labels))
	})
}

func TestDeleteThroughEvictedHandle(t *testing.T) {
	c, conn, enc := newTestClient(t, WithGraphCacheSize(1))
	conn.HandleQuery("MATCH (n) RETURN n", transporttest.Reply(person(enc)))
	conn.Handle("GRAPH.DELETE", transporttest.Reply("Graph removed, internal execution time: 0.1 milliseconds"))
	ctx := context.Background()

	old := c.SelectGraph("social")
	c.SelectGraph("imdb")
	cur := c.SelectGraph("social")
	require.NotSame(t, old, cur)

	rs, err := cur.Query(ctx, "MATCH (n) RETURN n")
	require.NoError(t, err)
	_, err = rs.Collect(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, cur.Schema().Len(schema.Labels))

	require.NoError(t, old.Delete(ctx))
	assert.Zero(t, cur.Schema().Len(schema.Labels), "registered handle sees the delete")
}

func TestFetchSchema(t *testing.T) {
	c, conn, enc := newTestClient(t)
	enc.Define(schema.Labels, "Person", "City")
	enc.Define(schema.RelationshipTypes, "LIVES_IN")
	g := c.SelectGraph("social")
	ctx := context.Background()

	for _, ns := range schema.Namespaces {
		got, err := g.FetchSchema(ctx, ns)
		require.NoError(t, err)
		assert.Equal(t, enc.Table(ns), got, ns.String())
		assert.Equal(t, []any{"GRAPH.QUERY", "social", transporttest.SchemaQuery(ns), "--compact"}, conn.Last("GRAPH.QUERY"))
	}

	t.Run("non-string name", func(t *testing.T) {
		conn.HandleQuery("CALL db.labels()", transporttest.Reply([]any{
			[]any{[]any{int64(1), "label"}},
			[]any{[]any{[]any{int64(3), int64(7)}}},
			compacttest.Stats(),
		}))
		_, err := g.FetchSchema(ctx, schema.Labels)
		assert.ErrorIs(t, err, errdefs.ErrProtocol)
	})

	t.Run("transport failure", func(t *testing.T) {
		conn.HandleQuery("CALL db.propertyKeys()", transporttest.Fail(&errdefs.TransportError{Op: "GRAPH.QUERY", Err: assert.AnError}))
		_, err := g.FetchSchema(ctx, schema.PropertyKeys)
		assert.ErrorIs(t, err, errdefs.ErrTransport)
	})
}
