package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLRU(t *testing.T) {
	t.Run("valid size", func(t *testing.T) {
		c := NewLRU[string, int](100)
		assert.Equal(t, 100, c.maxSize)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("non-positive size uses default", func(t *testing.T) {
		assert.Equal(t, DefaultMaxSize, NewLRU[string, int](0).maxSize)
		assert.Equal(t, DefaultMaxSize, NewLRU[string, int](-3).maxSize)
	})
}

func TestLRU_GetPut(t *testing.T) {
	c := NewLRU[string, int](10)

	_, ok := c.Get("social")
	assert.False(t, ok)

	c.Put("social", 1)
	v, ok := c.Get("social")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Put("social", 2)
	v, _ = c.Get("social")
	assert.Equal(t, 2, v, "put updates in place")
	assert.Equal(t, 1, c.Len())
}

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU[string, int](3)
	var evicted []string
	c.OnEvict(func(k string, _ int) { evicted = append(evicted, k) })

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	c.Get("a") // a is now most recent
	c.Put("d", 4)

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"d", "a", "c"}, c.Keys())

	_, ok := c.Get("b")
	assert.False(t, ok)
}

func TestLRU_GetOrAdd(t *testing.T) {
	c := NewLRU[string, *int](10)

	var created atomic.Int32
	create := func() *int {
		created.Add(1)
		v := 7
		return &v
	}

	const goroutines = 50
	results := make([]*int, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.GetOrAdd("g", create)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load(), "create runs once per key")
	for _, r := range results {
		assert.Same(t, results[0], r)
	}

	_, existed := c.GetOrAdd("g", create)
	assert.True(t, existed)
	_, existed = c.GetOrAdd("h", create)
	assert.False(t, existed)
}

func TestLRU_RemoveClear(t *testing.T) {
	c := NewLRU[string, int](10)
	evictions := 0
	c.OnEvict(func(string, int) { evictions++ })

	c.Put("a", 1)
	c.Put("b", 2)
	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, evictions, "explicit removal does not trigger the callback")
}

func TestLRU_Stats(t *testing.T) {
	c := NewLRU[string, int](10)
	assert.Zero(t, c.Stats().HitRate)

	c.Put("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 10, stats.MaxSize)
	assert.Equal(t, uint64(3), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 75.0, stats.HitRate, 0.001)
}

func TestLRU_ConcurrentEviction(t *testing.T) {
	c := NewLRU[string, int](10)

	const goroutines = 50
	const iterations = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				key := fmt.Sprintf("g%d-%d", id, j)
				c.Put(key, j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 10)
}

func BenchmarkLRU_GetOrAdd(b *testing.B) {
	c := NewLRU[string, int](64)
	keys := make([]string, 128)
	for i := range keys {
		keys[i] = fmt.Sprintf("graph-%d", i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.GetOrAdd(keys[i%len(keys)], func() int { return i })
	}
}
