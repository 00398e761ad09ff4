// Package transporttest provides an in-memory transport.Conn for tests.
//
// FakeConn dispatches on the command name, or for GRAPH.QUERY and
// GRAPH.RO_QUERY on the query text, and counts every round trip so tests can
// assert how many times the server was asked for something.
//
//	enc := compacttest.NewEncoder()
//	conn := transporttest.NewFakeConn().ServeSchema(enc)
//	conn.HandleQuery("MATCH (n) RETURN n", transporttest.Reply(enc.Reply(...)))
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/orneryd/falkordb-go/pkg/compact/compacttest"
	"github.com/orneryd/falkordb-go/pkg/errdefs"
	"github.com/orneryd/falkordb-go/pkg/schema"
)

// Handler answers one command. args includes the command name.
type Handler func(ctx context.Context, args []any) (any, error)

// Reply returns a handler that always answers with reply.
func Reply(reply any) Handler {
	return func(context.Context, []any) (any, error) { return reply, nil }
}

// Fail returns a handler that always fails with err.
func Fail(err error) Handler {
	return func(context.Context, []any) (any, error) { return nil, err }
}

// FakeConn is a scripted transport.Conn. Safe for concurrent use.
type FakeConn struct {
	mu       sync.Mutex
	commands map[string]Handler
	queries  map[string]Handler
	calls    map[string]int
	log      [][]any
	latency  time.Duration
	closed   bool
}

// NewFakeConn returns a connection with no handlers.
func NewFakeConn() *FakeConn {
	return &FakeConn{
		commands: map[string]Handler{},
		queries:  map[string]Handler{},
		calls:    map[string]int{},
	}
}

// Handle registers h for every command named cmd.
func (f *FakeConn) Handle(cmd string, h Handler) *FakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands[cmd] = h
	return f
}

// HandleQuery registers h for GRAPH.QUERY and GRAPH.RO_QUERY calls whose
// query text is exactly query. Query handlers win over command handlers.
func (f *FakeConn) HandleQuery(query string, h Handler) *FakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries[query] = h
	return f
}

// ServeSchema answers the schema procedures from enc's current tables.
func (f *FakeConn) ServeSchema(enc *compacttest.Encoder) *FakeConn {
	for _, ns := range schema.Namespaces {
		f.HandleQuery(SchemaQuery(ns), func(context.Context, []any) (any, error) {
			return enc.ProcedureReply(ns), nil
		})
	}
	return f
}

// SchemaQuery is the query text the client sends to list ns.
func SchemaQuery(ns schema.Namespace) string {
	return "CALL " + ns.Procedure() + "()"
}

// SetLatency delays every reply by d, or until the caller's context ends.
func (f *FakeConn) SetLatency(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = d
}

// Do dispatches args to the matching handler.
func (f *FakeConn) Do(ctx context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("transporttest: empty command")
	}
	cmd, _ := args[0].(string)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, &errdefs.TransportError{Op: cmd, Err: errors.New("connection closed")}
	}
	f.log = append(f.log, append([]any(nil), args...))
	f.calls[cmd]++
	h := f.commands[cmd]
	if q, ok := queryText(cmd, args); ok {
		f.calls[q]++
		if qh, ok := f.queries[q]; ok {
			h = qh
		}
	}
	latency := f.latency
	f.mu.Unlock()

	if latency > 0 {
		t := time.NewTimer(latency)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, errdefs.FromContext(cmd, ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errdefs.FromContext(cmd, err)
	}
	if h == nil {
		return nil, &errdefs.ServerError{Message: fmt.Sprintf("ERR unknown command '%s'", cmd)}
	}
	return h(ctx, args)
}

func queryText(cmd string, args []any) (string, bool) {
	if cmd != "GRAPH.QUERY" && cmd != "GRAPH.RO_QUERY" || len(args) < 3 {
		return "", false
	}
	q, ok := args[2].(string)
	return q, ok
}

// Calls returns how many times key was sent. key is a command name or, for
// GRAPH.QUERY and GRAPH.RO_QUERY, a query text.
func (f *FakeConn) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// SchemaCalls returns how many times the schema of ns was fetched.
func (f *FakeConn) SchemaCalls(ns schema.Namespace) int {
	return f.Calls(SchemaQuery(ns))
}

// Commands returns a copy of every command sent, in order.
func (f *FakeConn) Commands() [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]any, len(f.log))
	copy(out, f.log)
	return out
}

// Last returns the most recent command whose name is cmd, or nil.
func (f *FakeConn) Last(cmd string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.log) - 1; i >= 0; i-- {
		if f.log[i][0] == cmd {
			return f.log[i]
		}
	}
	return nil
}

// Close marks the connection closed. Later calls fail with a transport error.
func (f *FakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
