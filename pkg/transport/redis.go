package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/orneryd/falkordb-go/pkg/config"
)

// Option adjusts the go-redis options before the client is built.
type Option func(*redis.Options)

// RedisConn is a Conn backed by a pooled go-redis client speaking RESP2.
type RedisConn struct {
	client redis.UniversalClient
}

// NewRedisConn builds a pooled connection from cfg. The URL, when set,
// supplies address, credentials and database; cfg supplies pool size and
// timeouts. No round trip is made until the first command.
func NewRedisConn(cfg config.ConnectionConfig, opts ...Option) (*RedisConn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ro, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(ro)
	}
	return &RedisConn{client: redis.NewClient(ro)}, nil
}

// NewRedisConnFromClient wraps an existing client. The client must use RESP2
// (Protocol: 2); RESP3 replies use different Go types and do not decode.
func NewRedisConnFromClient(client redis.UniversalClient) *RedisConn {
	return &RedisConn{client: client}
}

func redisOptions(cfg config.ConnectionConfig) (*redis.Options, error) {
	var ro *redis.Options
	if cfg.URL != "" {
		var err error
		ro, err = redis.ParseURL(redisURL(cfg.URL))
		if err != nil {
			return nil, fmt.Errorf("parsing connection url: %w", err)
		}
		if cfg.Username != "" {
			ro.Username = cfg.Username
		}
		if cfg.Password != "" {
			ro.Password = cfg.Password
		}
	} else {
		ro = &redis.Options{
			Addr:     cfg.Address,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	ro.Protocol = 2
	ro.PoolSize = cfg.PoolSize
	if cfg.DialTimeout > 0 {
		ro.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		ro.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		ro.WriteTimeout = cfg.WriteTimeout
	}
	// Honor the caller's deadline on every socket operation.
	ro.ContextTimeoutEnabled = true
	if cfg.TLS && ro.TLSConfig == nil {
		ro.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return ro, nil
}

// redisURL rewrites the falkor and falkors schemes to their redis equivalents.
func redisURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "falkor://"):
		return "redis://" + strings.TrimPrefix(raw, "falkor://")
	case strings.HasPrefix(raw, "falkors://"):
		return "rediss://" + strings.TrimPrefix(raw, "falkors://")
	}
	return raw
}

// Do sends one command.
func (c *RedisConn) Do(ctx context.Context, args ...any) (any, error) {
	reply, err := c.client.Do(ctx, args...).Result()
	if err != nil {
		return nil, classify(commandName(args), err)
	}
	return reply, nil
}

// Ping checks that the server answers.
func (c *RedisConn) Ping(ctx context.Context) error {
	return classify("PING", c.client.Ping(ctx).Err())
}

// Close closes the underlying client.
func (c *RedisConn) Close() error {
	return c.client.Close()
}
