package compact

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/orneryd/falkordb-go/pkg/errdefs"
	"github.com/orneryd/falkordb-go/pkg/value"
)

// Result carries one record, or the error that ended a stream.
type Result struct {
	Record value.Record
	Err    error
}

// ResultSet is a lazily decoded, single-pass sequence of records.
//
// Rows are decoded one at a time as they are pulled; a row is never decoded
// twice and the sequence cannot be restarted. Pulls may come from several
// goroutines and are serialized. A protocol or schema resolution error ends
// the sequence for good and is returned by every later pull; a timeout or
// cancellation fails only the current pull.
//
// Drivers:
//
//	// blocking
//	for {
//		rec, ok, err := rs.Next(ctx)
//		if err != nil || !ok {
//			break
//		}
//	}
//
//	// range-over-func
//	for rec, err := range rs.Records(ctx) { ... }
//
//	// channel based, one row at a time
//	select {
//	case res, ok := <-rs.NextAsync(ctx):
//	case <-other:
//	}
//
// Abandoning a ResultSet is safe, except for a running Stream, which must be
// ended by canceling its context or calling Close. Close releases the raw
// reply early.
type ResultSet struct {
	header Header
	stats  Statistics

	mu   sync.Mutex // serializes pulls and guards everything below
	dec  *Decoder
	err  error
	done bool
	// pending holds a decoded record that Stream could not deliver; the
	// next pull returns it first.
	pending value.Record

	closed  atomic.Bool
	closing chan struct{}
}

// NewResultSet decodes the header and statistics of reply and returns a
// ResultSet positioned before the first row.
func NewResultSet(reply any, r Resolver) (*ResultSet, error) {
	header, dec, err := DecodeHeader(reply, r)
	if err != nil {
		return nil, err
	}
	rs := &ResultSet{
		header:  header,
		stats:   dec.Stats(),
		dec:     dec,
		closing: make(chan struct{}),
	}
	if dec.Len() == 0 {
		rs.done = true
		dec.release()
	}
	return rs, nil
}

// Header returns the column names.
func (rs *ResultSet) Header() Header { return rs.header }

// Stats returns the query statistics.
func (rs *ResultSet) Stats() Statistics { return rs.stats }

// Len returns the number of rows in the reply.
func (rs *ResultSet) Len() int { return rs.dec.Len() }

// Consumed returns how many records have been returned so far.
func (rs *ResultSet) Consumed() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	n := rs.dec.Consumed()
	if rs.pending != nil {
		n--
	}
	return n
}

// Next blocks until the next record is decoded.
//
// It returns (record, true, nil) for each row, then (nil, false, nil) once
// every row has been returned, on every call thereafter.
func (rs *ResultSet) Next(ctx context.Context) (value.Record, bool, error) {
	rs.mu.Lock()
	defer rs.unlock()
	return rs.pull(ctx)
}

func (rs *ResultSet) pull(ctx context.Context) (value.Record, bool, error) {
	if rs.err != nil {
		return nil, false, rs.err
	}
	if rs.pending != nil {
		if rs.closed.Load() {
			return nil, false, errdefs.ErrClosed
		}
		rec := rs.pending
		rs.pending = nil
		return rec, true, nil
	}
	if rs.done {
		return nil, false, nil
	}
	if rs.closed.Load() {
		return nil, false, errdefs.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, false, errdefs.FromContext("pull", err)
	}

	rec, err := rs.dec.DecodeNext(ctx)
	switch {
	case errors.Is(err, errEnd):
		rs.finish()
		return nil, false, nil
	case err != nil:
		if errors.Is(err, errdefs.ErrTimeout) || errors.Is(err, context.Canceled) {
			return nil, false, err
		}
		rs.err = err
		rs.dec.release()
		return nil, false, err
	}

	if rs.dec.Consumed() == rs.dec.Len() {
		rs.finish()
	}
	return rec, true, nil
}

func (rs *ResultSet) finish() {
	rs.done = true
	rs.dec.release()
}

// unlock releases the pull lock, then frees the raw reply if Close ran
// while the pull was in flight.
func (rs *ResultSet) unlock() {
	rs.mu.Unlock()
	if rs.closed.Load() && rs.mu.TryLock() {
		rs.dec.release()
		rs.mu.Unlock()
	}
}

// NextAsync decodes the next record on a separate goroutine. The channel
// delivers exactly one Result, or is closed without a value once the
// sequence is exhausted.
func (rs *ResultSet) NextAsync(ctx context.Context) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		rec, ok, err := rs.Next(ctx)
		if err != nil {
			ch <- Result{Err: err}
			return
		}
		if ok {
			ch <- Result{Record: rec}
		}
	}()
	return ch
}

// Stream delivers records on a channel until the sequence ends, ctx is
// done, or the ResultSet is closed. A terminal error is delivered as the
// last Result. Rows are decoded only as the receiver keeps up.
//
// A receiver that stops reading before the channel is closed must cancel
// ctx or call Close, or the producing goroutine stays blocked. After a
// cancel, records the stream did not deliver are returned by later pulls.
// While a Stream runs it should be the only consumer.
func (rs *ResultSet) Stream(ctx context.Context) <-chan Result {
	ch := make(chan Result)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-rs.closing:
				return
			default:
			}

			rec, ok, err := rs.Next(ctx)
			if !ok && err == nil {
				return
			}
			res := Result{Record: rec, Err: err}
			select {
			case ch <- res:
			case <-ctx.Done():
				if err == nil {
					rs.pushBack(rec)
				}
				return
			case <-rs.closing:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

// pushBack makes rec the next record returned by a pull.
func (rs *ResultSet) pushBack(rec value.Record) {
	rs.mu.Lock()
	defer rs.unlock()
	rs.pending = rec
}

// Records returns an iterator over the remaining records. Iteration stops
// after the first error, which is yielded with a nil record.
func (rs *ResultSet) Records(ctx context.Context) iter.Seq2[value.Record, error] {
	return func(yield func(value.Record, error) bool) {
		for {
			rec, ok, err := rs.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok || !yield(rec, nil) {
				return
			}
		}
	}
}

// Collect drains the remaining records.
func (rs *ResultSet) Collect(ctx context.Context) ([]value.Record, error) {
	out := make([]value.Record, 0, rs.Len())
	for rec, err := range rs.Records(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close releases the raw reply. If a pull is in flight the reply is released
// when it returns. Close is idempotent and always returns nil.
func (rs *ResultSet) Close() error {
	if !rs.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(rs.closing)
	if rs.mu.TryLock() {
		rs.dec.release()
		rs.mu.Unlock()
	}
	return nil
}
