package explain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheEvictsToNewestHalf(t *testing.T) {
	const max = 10
	c := NewCache(max, 0)
	for i := 0; i < max; i++ {
		c.Put(fmt.Sprintf("k%d", i), "v")
	}
	require.Equal(t, max, c.Len())

	c.Put("k10", "v")

	assert.Equal(t, max/2, c.Len())
	assert.Equal(t, []string{"k6", "k7", "k8", "k9", "k10"}, c.Keys())
	_, ok := c.Get("k5")
	assert.False(t, ok)
}

func TestCacheNeverExceedsMax(t *testing.T) {
	c := NewCache(7, 0)
	for i := 0; i < 100; i++ {
		c.Put(fmt.Sprintf("k%d", i), "v")
		assert.LessOrEqual(t, c.Len(), 7)
	}
}

func TestCacheReadsDoNotProtect(t *testing.T) {
	c := NewCache(4, 0)
	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("k%d", i), "v")
	}
	_, ok := c.Get("k0")
	require.True(t, ok)

	c.Put("k4", "v")
	_, ok = c.Get("k0")
	assert.False(t, ok)
}

func TestCacheReinsertIsFresh(t *testing.T) {
	c := NewCache(4, 0)
	for i := 0; i < 4; i++ {
		c.Put(fmt.Sprintf("k%d", i), "v")
	}
	c.Put("k0", "updated")
	assert.Equal(t, []string{"k1", "k2", "k3", "k0"}, c.Keys())

	c.Put("k4", "v")
	assert.Equal(t, []string{"k0", "k4"}, c.Keys())

	v, ok := c.Get("k0")
	require.True(t, ok)
	assert.Equal(t, "updated", v)
}

func TestCacheSizeOne(t *testing.T) {
	c := NewCache(1, 0)
	c.Put("a", "1")
	c.Put("b", "2")
	assert.Equal(t, []string{"b"}, c.Keys())
}

func TestCacheTTL(t *testing.T) {
	c := NewCache(10, 20*time.Millisecond)
	c.Put("a", "1")
	_, ok := c.Get("a")
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := c.Get("a")
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.Len())
}

func TestCacheClear(t *testing.T) {
	c := NewCache(0, 0)
	assert.Equal(t, DefaultCacheEntries, c.Max())
	c.Put("a", "1")
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
