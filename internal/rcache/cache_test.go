package rcache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheGetLoadsOnMiss(t *testing.T) {
	c := New[string](Options{TTL: time.Minute})
	calls := 0
	load := func() (string, error) {
		calls++
		return "value", nil
	}

	v, err := c.Get("k", load)
	require.NoError(t, err)
	require.Equal(t, "value", v)
	require.Equal(t, 1, calls)

	v, err = c.Get("k", load)
	require.NoError(t, err)
	require.Equal(t, "value", v)
	require.Equal(t, 1, calls, "second call should hit cache, not loader")
}

func TestCacheGetDoesNotCacheErrors(t *testing.T) {
	c := New[string](Options{TTL: time.Minute})
	_, err := c.Get("k", func() (string, error) { return "", errors.New("boom") })
	require.Error(t, err)
	require.Equal(t, 0, c.Size())
}

func TestCacheExpiry(t *testing.T) {
	now := time.Now()
	cur := now
	c := New[int](Options{TTL: 100 * time.Millisecond, Now: func() time.Time { return cur }})
	c.Set("k", 1)
	require.Equal(t, 1, c.Size())

	cur = now.Add(200 * time.Millisecond)
	_, ok := c.lookup("k")
	require.False(t, ok)
}

func TestCacheInvalidatePattern(t *testing.T) {
	c := New[string](Options{TTL: time.Minute})
	c.Set("assistant:1", "a")
	c.Set("assistant:2", "b")
	c.Set("tools:1", "c")

	c.Invalidate("assistant:*")

	require.Equal(t, 1, c.Size())
	_, ok := c.lookup("tools:1")
	require.True(t, ok)
}

func TestCacheMaxSizeEviction(t *testing.T) {
	now := time.Now()
	step := 0
	c := New[int](Options{MaxSize: 2, Now: func() time.Time {
		step++
		return now.Add(time.Duration(step) * time.Millisecond)
	}})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	require.Equal(t, 2, c.Size())
	_, ok := c.lookup("a")
	require.False(t, ok, "oldest entry should be evicted")
}
