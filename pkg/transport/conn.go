// Package transport carries raw commands to a FalkorDB server.
//
// A Conn sends one command and returns the reply exactly as the RESP2 reader
// produced it: int64, string, []any, nil, or an error value nested inside an
// array. Interpretation of the reply belongs to the callers (the compact
// decoder and the graph handle).
//
// Errors returned by Do are classified into the errdefs taxonomy:
//
//   - error replies from the server become *errdefs.ServerError
//   - passed deadlines and socket timeouts become *errdefs.TimeoutError
//   - cancellation is returned unchanged
//   - everything else becomes *errdefs.TransportError
//
// A nil top-level reply is returned as (nil, nil).
package transport

import (
	"context"
	"errors"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/orneryd/falkordb-go/pkg/errdefs"
)

// Conn is a goroutine-safe connection to a FalkorDB server.
type Conn interface {
	// Do sends a command and returns its raw reply.
	Do(ctx context.Context, args ...any) (any, error)

	// Close releases every pooled connection.
	Close() error
}

// classify maps a client error into the errdefs taxonomy. op names the
// command for the error message.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &errdefs.TimeoutError{Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &errdefs.TimeoutError{Op: op, Err: err}
	}
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return &errdefs.ServerError{Message: redisErr.Error()}
	}
	return &errdefs.TransportError{Op: op, Err: err}
}

// commandName returns the first argument as the operation name for errors.
func commandName(args []any) string {
	if len(args) == 0 {
		return "command"
	}
	if s, ok := args[0].(string); ok {
		return s
	}
	return "command"
}
