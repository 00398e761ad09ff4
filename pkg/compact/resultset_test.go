package compact

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/falkordb-go/pkg/compact/compacttest"
	"github.com/orneryd/falkordb-go/pkg/errdefs"
	"github.com/orneryd/falkordb-go/pkg/schema"
	"github.com/orneryd/falkordb-go/pkg/value"
)

func numberedReply(t *testing.T, n int) (*compacttest.Encoder, []any) {
	t.Helper()
	enc := compacttest.NewEncoder()
	rows := make([]value.Record, n)
	for i := range rows {
		rows[i] = value.Record{
			value.Integer(i),
			value.Node{ID: int64(i), Labels: []string{"Item"}, Properties: map[string]value.Value{"i": value.Integer(i)}},
		}
	}
	return enc, enc.Reply([]string{"i", "n"}, rows...)
}

func TestLazyExhaustion(t *testing.T) {
	const n = 5
	enc, reply := numberedReply(t, n)
	cache, _ := newCache(enc)

	rs, err := NewResultSet(reply, cache)
	require.NoError(t, err)
	assert.Equal(t, n, rs.Len())
	assert.Equal(t, 0, rs.Consumed())

	ctx := context.Background()
	for i := 0; i < n; i++ {
		rec, ok, err := rs.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok, "pull %d", i)
		assert.Equal(t, value.Integer(i), rec[0])
		assert.Equal(t, i+1, rs.Consumed())
	}

	for i := 0; i < 3; i++ {
		rec, ok, err := rs.Next(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, rec)
	}
	assert.Equal(t, n, rs.Consumed())
	assert.Nil(t, rs.dec.rows, "exhaustion releases the raw reply")
}

func TestDriversDecodeIdentically(t *testing.T) {
	const n = 8
	ctx := context.Background()

	collectNext := func(rs *ResultSet) []value.Record {
		var out []value.Record
		for {
			rec, ok, err := rs.Next(ctx)
			require.NoError(t, err)
			if !ok {
				return out
			}
			out = append(out, rec)
		}
	}
	collectAsync := func(rs *ResultSet) []value.Record {
		var out []value.Record
		for {
			res, ok := <-rs.NextAsync(ctx)
			if !ok {
				return out
			}
			require.NoError(t, res.Err)
			out = append(out, res.Record)
		}
	}
	collectStream := func(rs *ResultSet) []value.Record {
		var out []value.Record
		for res := range rs.Stream(ctx) {
			require.NoError(t, res.Err)
			out = append(out, res.Record)
		}
		return out
	}
	collectRecords := func(rs *ResultSet) []value.Record {
		var out []value.Record
		for rec, err := range rs.Records(ctx) {
			require.NoError(t, err)
			out = append(out, rec)
		}
		return out
	}

	var results [][]value.Record
	for _, drive := range []func(*ResultSet) []value.Record{collectNext, collectAsync, collectStream, collectRecords} {
		enc, reply := numberedReply(t, n)
		cache, _ := newCache(enc)
		rs, err := NewResultSet(reply, cache)
		require.NoError(t, err)
		results = append(results, drive(rs))
	}

	for _, got := range results {
		require.Len(t, got, n)
		for i := range got {
			for c := range got[i] {
				assert.True(t, value.Equal(results[0][i][c], got[i][c]))
			}
		}
	}
}

func TestNextAsyncSelect(t *testing.T) {
	enc, reply := numberedReply(t, 1)
	cache, _ := newCache(enc)
	rs, err := NewResultSet(reply, cache)
	require.NoError(t, err)

	other := make(chan struct{})
	select {
	case res, ok := <-rs.NextAsync(context.Background()):
		require.True(t, ok)
		require.NoError(t, res.Err)
		assert.Equal(t, value.Integer(0), res.Record[0])
	case <-other:
		t.Fatal("unreachable")
	case <-time.After(time.Second):
		t.Fatal("NextAsync did not deliver")
	}

	_, ok := <-rs.NextAsync(context.Background())
	assert.False(t, ok, "exhausted sequence closes the channel")
}

func TestConcurrentPullsNeverDuplicate(t *testing.T) {
	const n = 200
	enc, reply := numberedReply(t, n)
	cache, f := newCache(enc)
	rs, err := NewResultSet(reply, cache)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = map[int64]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				rec, ok, err := rs.Next(context.Background())
				if err != nil {
					t.Error(err)
					return
				}
				if !ok {
					return
				}
				mu.Lock()
				seen[int64(rec[0].(value.Integer))]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, "row %d decoded more than once", id)
	}
	assert.Equal(t, int64(1), f.Calls(schema.Labels))
	assert.Equal(t, int64(1), f.Calls(schema.PropertyKeys))
}

func TestClose(t *testing.T) {
	t.Run("close before pull", func(t *testing.T) {
		enc, reply := numberedReply(t, 3)
		cache, f := newCache(enc)
		rs, err := NewResultSet(reply, cache)
		require.NoError(t, err)

		require.NoError(t, rs.Close())
		require.NoError(t, rs.Close(), "Close is idempotent")
		assert.Nil(t, rs.dec.rows)

		_, ok, err := rs.Next(context.Background())
		assert.False(t, ok)
		assert.ErrorIs(t, err, errdefs.ErrClosed)
		assert.Equal(t, int64(0), f.Total())
	})

	t.Run("close mid iteration", func(t *testing.T) {
		enc, reply := numberedReply(t, 3)
		cache, _ := newCache(enc)
		rs, err := NewResultSet(reply, cache)
		require.NoError(t, err)

		_, ok, err := rs.Next(context.Background())
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, rs.Close())
		assert.Nil(t, rs.dec.rows)
		assert.Equal(t, 1, rs.Consumed())
	})

	t.Run("close during in-flight pull", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		r := resolverFunc(func(ctx context.Context, ns schema.Namespace, ids []int64) (map[int64]string, error) {
			close(started)
			<-release
			return map[int64]string{0: "Person"}, nil
		})
		reply := scenarioReplyNoProps()
		rows := reply[1].([]any)
		reply[1] = append(rows, rows[0])
		rs, err := NewResultSet(reply, r)
		require.NoError(t, err)

		done := make(chan Result, 1)
		go func() {
			rec, _, err := rs.Next(context.Background())
			done <- Result{Record: rec, Err: err}
		}()

		<-started
		require.NoError(t, rs.Close())
		close(release)

		res := <-done
		require.NoError(t, res.Err, "the in-flight pull completes")
		assert.Equal(t, int64(5), res.Record[0].(value.Node).ID)

		rs.mu.Lock()
		defer rs.mu.Unlock()
		assert.Nil(t, rs.dec.rows, "raw reply released once the pull finished")
		assert.Equal(t, 1, rs.dec.Consumed())
	})

	t.Run("close stops stream", func(t *testing.T) {
		enc, reply := numberedReply(t, 50)
		cache, _ := newCache(enc)
		rs, err := NewResultSet(reply, cache)
		require.NoError(t, err)

		ch := rs.Stream(context.Background())
		<-ch
		require.NoError(t, rs.Close())

		// Drain whatever was already in flight; the channel must close.
		deadline := time.After(time.Second)
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
			case <-deadline:
				t.Fatal("stream did not stop after Close")
			}
		}
	})
}

func TestStreamStopsOnCancel(t *testing.T) {
	enc, reply := numberedReply(t, 50)
	cache, _ := newCache(enc)
	rs, err := NewResultSet(reply, cache)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := rs.Stream(ctx)
	<-ch
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				assert.Less(t, rs.Consumed(), 50)
				return
			}
		case <-deadline:
			t.Fatal("stream did not stop after cancel")
		}
	}
}

func TestStreamCancelKeepsUndeliveredRows(t *testing.T) {
	enc, reply := numberedReply(t, 5)
	cache, _ := newCache(enc)
	rs, err := NewResultSet(reply, cache)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := rs.Stream(ctx)

	var got []int64
	first := <-ch
	require.NoError(t, first.Err)
	got = append(got, int64(first.Record[0].(value.Integer)))

	// Let the producer decode the next row and block on the send.
	time.Sleep(50 * time.Millisecond)
	cancel()

	deadline := time.After(time.Second)
drain:
	for {
		select {
		case res, ok := <-ch:
			if !ok {
				break drain
			}
			if res.Err == nil {
				got = append(got, int64(res.Record[0].(value.Integer)))
			}
		case <-deadline:
			t.Fatal("stream did not stop after cancel")
		}
	}

	for {
		rec, ok, err := rs.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, int64(rec[0].(value.Integer)))
	}
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, got)
	assert.Equal(t, 5, rs.Consumed())
}

func TestStreamCloseStopsProducer(t *testing.T) {
	enc, reply := numberedReply(t, 5)
	cache, _ := newCache(enc)
	rs, err := NewResultSet(reply, cache)
	require.NoError(t, err)

	ch := rs.Stream(context.Background())
	<-ch
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, rs.Close())

	select {
	case <-waitClosed(ch):
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after close")
	}
	_, _, err = rs.Next(context.Background())
	assert.ErrorIs(t, err, errdefs.ErrClosed)
}

func waitClosed(ch <-chan Result) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range ch {
		}
	}()
	return done
}

func TestRecordsStopsOnError(t *testing.T) {
	reply := []any{
		[]any{[]any{int64(1), "x"}},
		[]any{
			[]any{[]any{int64(3), int64(1)}},
			[]any{[]any{int64(0), nil}},
			[]any{[]any{int64(3), int64(3)}},
		},
		compacttest.Stats(),
	}
	rs, err := NewResultSet(reply, nil)
	require.NoError(t, err)

	var got []value.Record
	var errs []error
	for rec, err := range rs.Records(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		got = append(got, rec)
	}
	assert.Len(t, got, 1)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errdefs.ErrProtocol)

	all, err := rs.Collect(context.Background())
	assert.Empty(t, all)
	assert.ErrorIs(t, err, errdefs.ErrProtocol)
}
