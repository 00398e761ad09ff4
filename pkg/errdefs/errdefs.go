// Package errdefs defines the error taxonomy shared by the FalkorDB client packages.
//
// Every failure surfaced by the decoder, the schema cache, the transport or the
// graph handle matches exactly one of the sentinels below via errors.Is:
//
//   - ErrTransport: the connection failed below the client. Never retried here.
//   - ErrProtocol: the reply is malformed or inconsistent. The result set that
//     produced it is permanently broken.
//   - ErrSchemaResolution: an identifier could not be resolved even after a
//     schema refresh. Re-issuing the query is the recovery path.
//   - ErrTimeout: a round trip exceeded the caller's deadline. Only the current
//     pull fails; the client stays usable.
//   - ErrServer: the server answered with an error reply (bad query, runtime
//     failure inside the database).
//   - ErrClosed: the result set or client was already closed.
//
// The structured types carry the context a caller needs to decide between
// "retry the query", "this result set is gone" and "the connection is gone":
//
//	rec, ok, err := rs.Next(ctx)
//	switch {
//	case errdefs.IsRetryableQuery(err):
//		// re-run the query
//	case errdefs.IsFatalResult(err):
//		// drop the result set
//	case errdefs.IsConnectionLost(err):
//		// rebuild the client
//	}
package errdefs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Match with errors.Is.
var (
	ErrTransport        = errors.New("transport error")
	ErrProtocol         = errors.New("protocol error")
	ErrSchemaResolution = errors.New("schema resolution error")
	ErrTimeout          = errors.New("timeout")
	ErrServer           = errors.New("server error")
	ErrClosed           = errors.New("closed")
)

// ProtocolError reports a malformed or inconsistent compact reply.
//
// Path locates the offending element inside the reply, e.g. "row[3].col[1].node.labels".
type ProtocolError struct {
	Reason string
	Path   string
}

// Protocolf builds a ProtocolError at the given reply path.
func Protocolf(path, format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...), Path: path}
}

func (e *ProtocolError) Error() string {
	if e.Path == "" {
		return "protocol error: " + e.Reason
	}
	return fmt.Sprintf("protocol error at %s: %s", e.Path, e.Reason)
}

// Is matches ErrProtocol.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// SchemaResolutionError reports an identifier that is still unknown after a
// schema refresh. Namespace is one of "labels", "relationshipTypes" or "propertyKeys".
type SchemaResolutionError struct {
	Namespace string
	ID        int64
}

func (e *SchemaResolutionError) Error() string {
	return fmt.Sprintf("schema resolution error: %s id %d not found after refresh", e.Namespace, e.ID)
}

// Is matches ErrSchemaResolution.
func (e *SchemaResolutionError) Is(target error) bool {
	return target == ErrSchemaResolution
}

// TransportError wraps a failure raised by the connection layer.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is matches ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ServerError is an error reply produced by the database itself.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// Is matches ErrServer.
func (e *ServerError) Is(target error) bool {
	return target == ErrServer
}

// TimeoutError wraps the deadline failure of a round trip.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Is matches ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// FromContext converts a context error into the client taxonomy.
// A passed deadline becomes a TimeoutError; cancellation is returned unchanged.
func FromContext(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	return err
}

// IsRetryableQuery reports whether re-issuing the whole query may succeed.
func IsRetryableQuery(err error) bool {
	return errors.Is(err, ErrSchemaResolution) || errors.Is(err, ErrTimeout)
}

// IsFatalResult reports whether the result set that produced err is permanently broken.
func IsFatalResult(err error) bool {
	return errors.Is(err, ErrProtocol)
}

// IsConnectionLost reports whether err originated in the connection layer.
func IsConnectionLost(err error) bool {
	return errors.Is(err, ErrTransport)
}

// Join builds a dotted reply path from its segments, skipping empty ones.
func Join(segments ...string) string {
	parts := segments[:0:0]
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ".")
}
