// Package pool provides pooled string builders for the FalkorDB client.
//
// Debug formatting of graph values and rendering of parameterised query text
// build many short-lived strings. Reusing the backing buffers keeps those hot
// paths allocation-light when result sets are large.
//
// Usage:
//
//	b := pool.GetStringBuilder()
//	defer pool.PutStringBuilder(b)
//
//	b.WriteString("CYPHER ")
//	b.WriteString(params)
//	query := b.String()
package pool

import (
	"strconv"
	"sync"
)

// PoolConfig configures pooling behavior.
type PoolConfig struct {
	// Enabled controls whether pooling is active
	Enabled bool

	// MaxBufferSize is the largest buffer capacity returned to the pool, in bytes
	MaxBufferSize int
}

var (
	configMu     sync.RWMutex
	globalConfig = PoolConfig{
		Enabled:       true,
		MaxBufferSize: 64 * 1024,
	}
)

// Configure sets global pool configuration.
// Should be called early during initialization.
func Configure(config PoolConfig) {
	if config.MaxBufferSize <= 0 {
		config.MaxBufferSize = 64 * 1024
	}
	configMu.Lock()
	globalConfig = config
	configMu.Unlock()
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return currentConfig().Enabled
}

func currentConfig() PoolConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// =============================================================================
// String Builder Pool
// =============================================================================

var stringBuilderPool = sync.Pool{
	New: func() any {
		return &PooledStringBuilder{buf: make([]byte, 0, 256)}
	},
}

// PooledStringBuilder is a poolable string builder.
type PooledStringBuilder struct {
	buf []byte
}

// WriteString appends a string to the builder.
func (b *PooledStringBuilder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// WriteByte appends a byte to the builder.
func (b *PooledStringBuilder) WriteByte(c byte) {
	b.buf = append(b.buf, c)
}

// WriteQuoted appends s as a double-quoted string literal, escaping
// backslashes and double quotes.
func (b *PooledStringBuilder) WriteQuoted(s string) {
	b.buf = append(b.buf, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			b.buf = append(b.buf, '\\')
		}
		b.buf = append(b.buf, c)
	}
	b.buf = append(b.buf, '"')
}

// WriteInt appends the decimal form of i.
func (b *PooledStringBuilder) WriteInt(i int64) {
	b.buf = strconv.AppendInt(b.buf, i, 10)
}

// String returns the built string.
func (b *PooledStringBuilder) String() string {
	return string(b.buf)
}

// Len returns current length.
func (b *PooledStringBuilder) Len() int {
	return len(b.buf)
}

// Reset clears the builder for reuse.
func (b *PooledStringBuilder) Reset() {
	b.buf = b.buf[:0]
}

// GetStringBuilder returns a string builder from the pool.
func GetStringBuilder() *PooledStringBuilder {
	if !IsEnabled() {
		return &PooledStringBuilder{buf: make([]byte, 0, 256)}
	}
	b := stringBuilderPool.Get().(*PooledStringBuilder)
	b.Reset()
	return b
}

// PutStringBuilder returns a string builder to the pool.
func PutStringBuilder(b *PooledStringBuilder) {
	cfg := currentConfig()
	if !cfg.Enabled || b == nil {
		return
	}
	if cap(b.buf) > cfg.MaxBufferSize {
		return
	}
	b.Reset()
	stringBuilderPool.Put(b)
}
