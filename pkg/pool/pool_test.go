package pool

import (
	"strings"
	"sync"
	"testing"
)

// =============================================================================
// Configuration Tests
// =============================================================================

func TestConfigure(t *testing.T) {
	origConfig := currentConfig()
	defer Configure(origConfig)

	t.Run("enable pooling", func(t *testing.T) {
		Configure(PoolConfig{Enabled: true, MaxBufferSize: 500})

		if !IsEnabled() {
			t.Error("IsEnabled() = false, want true")
		}
		if currentConfig().MaxBufferSize != 500 {
			t.Errorf("MaxBufferSize = %d, want 500", currentConfig().MaxBufferSize)
		}
	})

	t.Run("disable pooling", func(t *testing.T) {
		Configure(PoolConfig{Enabled: false, MaxBufferSize: 1000})

		if IsEnabled() {
			t.Error("IsEnabled() = true, want false")
		}
	})

	t.Run("zero max size uses default", func(t *testing.T) {
		Configure(PoolConfig{Enabled: true})

		if currentConfig().MaxBufferSize != 64*1024 {
			t.Errorf("MaxBufferSize = %d, want %d", currentConfig().MaxBufferSize, 64*1024)
		}
	})
}

// =============================================================================
// String Builder Pool Tests
// =============================================================================

func TestStringBuilderPool(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxBufferSize: 64 * 1024})

	t.Run("build string", func(t *testing.T) {
		b := GetStringBuilder()
		b.WriteString("CYPHER ")
		b.WriteString("x=")
		b.WriteInt(-42)
		b.WriteByte(' ')

		if got := b.String(); got != "CYPHER x=-42 " {
			t.Errorf("String() = %q, want %q", got, "CYPHER x=-42 ")
		}
		if b.Len() != 13 {
			t.Errorf("Len() = %d, want 13", b.Len())
		}
		PutStringBuilder(b)
	})

	t.Run("reused builder is empty", func(t *testing.T) {
		b := GetStringBuilder()
		b.WriteString("leftover")
		PutStringBuilder(b)

		b2 := GetStringBuilder()
		if b2.Len() != 0 {
			t.Errorf("reused builder Len() = %d, want 0", b2.Len())
		}
		PutStringBuilder(b2)
	})

	t.Run("quoted escapes", func(t *testing.T) {
		b := GetStringBuilder()
		defer PutStringBuilder(b)

		b.WriteQuoted(`say "hi" \ bye`)
		want := `"say \"hi\" \\ bye"`
		if got := b.String(); got != want {
			t.Errorf("WriteQuoted = %s, want %s", got, want)
		}
	})

	t.Run("oversized builders not pooled", func(t *testing.T) {
		Configure(PoolConfig{Enabled: true, MaxBufferSize: 16})
		defer Configure(PoolConfig{Enabled: true, MaxBufferSize: 64 * 1024})

		b := GetStringBuilder()
		b.WriteString(strings.Repeat("x", 1024))
		PutStringBuilder(b) // must not panic
	})

	t.Run("nil put is safe", func(t *testing.T) {
		PutStringBuilder(nil)
	})

	t.Run("disabled pooling still works", func(t *testing.T) {
		Configure(PoolConfig{Enabled: false})
		defer Configure(PoolConfig{Enabled: true, MaxBufferSize: 64 * 1024})

		b := GetStringBuilder()
		b.WriteString("ok")
		if b.String() != "ok" {
			t.Errorf("String() = %q, want ok", b.String())
		}
		PutStringBuilder(b)
	})
}

func TestConcurrentPoolAccess(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxBufferSize: 64 * 1024})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b := GetStringBuilder()
				b.WriteInt(int64(n))
				if b.Len() == 0 {
					t.Error("builder should not be empty after write")
				}
				PutStringBuilder(b)
			}
		}(i)
	}
	wg.Wait()
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkStringBuilderPool(b *testing.B) {
	Configure(PoolConfig{Enabled: true, MaxBufferSize: 64 * 1024})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		sb := GetStringBuilder()
		sb.WriteString("MATCH (n) RETURN n")
		_ = sb.String()
		PutStringBuilder(sb)
	}
}
