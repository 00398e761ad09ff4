package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/falkordb-go/pkg/config"
	"github.com/orneryd/falkordb-go/pkg/errdefs"
)

type replyError string

func (e replyError) Error() string { return string(e) }
func (replyError) RedisError()     {}

type netTimeout struct{}

func (netTimeout) Error() string   { return "i/o timeout" }
func (netTimeout) Timeout() bool   { return true }
func (netTimeout) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil reply", redis.Nil, nil},
		{"server error", replyError("ERR Invalid input 'X'"), errdefs.ErrServer},
		{"deadline", context.DeadlineExceeded, errdefs.ErrTimeout},
		{"wrapped deadline", fmt.Errorf("read: %w", context.DeadlineExceeded), errdefs.ErrTimeout},
		{"socket timeout", netTimeout{}, errdefs.ErrTimeout},
		{"canceled", context.Canceled, context.Canceled},
		{"connection refused", errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), errdefs.ErrTransport},
		{"client closed", redis.ErrClosed, errdefs.ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("GRAPH.QUERY", tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}

	t.Run("server message kept", func(t *testing.T) {
		var se *errdefs.ServerError
		require.ErrorAs(t, classify("GRAPH.QUERY", replyError("ERR unknown graph")), &se)
		assert.Equal(t, "ERR unknown graph", se.Message)
	})

	t.Run("transport keeps cause", func(t *testing.T) {
		cause := errors.New("broken pipe")
		err := classify("GRAPH.QUERY", cause)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "GRAPH.QUERY")
	})
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "GRAPH.QUERY", commandName([]any{"GRAPH.QUERY", "g", "RETURN 1"}))
	assert.Equal(t, "command", commandName(nil))
	assert.Equal(t, "command", commandName([]any{42}))
}

func TestRedisURL(t *testing.T) {
	assert.Equal(t, "redis://localhost:6379", redisURL("falkor://localhost:6379"))
	assert.Equal(t, "rediss://u:p@host:6380/1", redisURL("falkors://u:p@host:6380/1"))
	assert.Equal(t, "redis://localhost", redisURL("redis://localhost"))
	assert.Equal(t, "unix:///tmp/s.sock", redisURL("unix:///tmp/s.sock"))
}

func TestRedisOptions(t *testing.T) {
	base := config.Default().Connection

	t.Run("address", func(t *testing.T) {
		cfg := base
		cfg.Address = "graph:6379"
		cfg.Username = "alice"
		cfg.DB = 3
		cfg.PoolSize = 4
		cfg.ReadTimeout = 2 * time.Second

		ro, err := redisOptions(cfg)
		require.NoError(t, err)
		assert.Equal(t, "graph:6379", ro.Addr)
		assert.Equal(t, "alice", ro.Username)
		assert.Equal(t, 3, ro.DB)
		assert.Equal(t, 4, ro.PoolSize)
		assert.Equal(t, 2, ro.Protocol)
		assert.Equal(t, 2*time.Second, ro.ReadTimeout)
		assert.True(t, ro.ContextTimeoutEnabled)
		assert.Nil(t, ro.TLSConfig)
	})

	t.Run("falkors url", func(t *testing.T) {
		cfg := base
		cfg.URL = "falkors://bob:pw@db.example:6380/2"

		ro, err := redisOptions(cfg)
		require.NoError(t, err)
		assert.Equal(t, "db.example:6380", ro.Addr)
		assert.Equal(t, "bob", ro.Username)
		assert.Equal(t, "pw", ro.Password)
		assert.Equal(t, 2, ro.DB)
		assert.NotNil(t, ro.TLSConfig)
	})

	t.Run("config credentials override url", func(t *testing.T) {
		cfg := base
		cfg.URL = "falkor://bob:pw@localhost:6379"
		cfg.Password = "rotated"

		ro, err := redisOptions(cfg)
		require.NoError(t, err)
		assert.Equal(t, "bob", ro.Username)
		assert.Equal(t, "rotated", ro.Password)
	})

	t.Run("tls flag", func(t *testing.T) {
		cfg := base
		cfg.TLS = true
		ro, err := redisOptions(cfg)
		require.NoError(t, err)
		require.NotNil(t, ro.TLSConfig)
	})

	t.Run("bad url", func(t *testing.T) {
		cfg := base
		cfg.URL = "falkor://localhost:6379/notadb"
		_, err := redisOptions(cfg)
		assert.Error(t, err)
	})
}

func TestNewRedisConnValidates(t *testing.T) {
	cfg := config.Default().Connection
	cfg.PoolSize = 64
	_, err := NewRedisConn(cfg)
	assert.ErrorContains(t, err, "pool size")
}

func TestRedisConnUnreachable(t *testing.T) {
	cfg := config.Default().Connection
	cfg.Address = "127.0.0.1:1"
	cfg.DialTimeout = 200 * time.Millisecond
	conn, err := NewRedisConn(cfg, func(o *redis.Options) { o.MaxRetries = -1 })
	require.NoError(t, err)
	defer conn.Close()

	t.Run("refused", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := conn.Do(ctx, "GRAPH.LIST")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errdefs.ErrTransport) || errors.Is(err, errdefs.ErrTimeout), err)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := conn.Do(ctx, "GRAPH.LIST")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRedisConnClosed(t *testing.T) {
	conn, err := NewRedisConn(config.Default().Connection)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, err = conn.Do(context.Background(), "GRAPH.LIST")
	assert.ErrorIs(t, err, errdefs.ErrTransport)
}
