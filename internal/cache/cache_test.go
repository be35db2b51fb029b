package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	c := New(time.Minute)
	c.Set("a", 1, 0)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := New(time.Minute)
	c.Set("short", "x", 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	_, ok := c.Get("short")
	assert.False(t, ok)
}

func TestDeletePrefixAndClear(t *testing.T) {
	c := New(0)
	c.Set("doc:1", 1, 0)
	c.Set("doc:2", 2, 0)
	c.Set("qa:sessions", 3, 0)

	c.DeletePrefix("doc:")
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("qa:sessions")
	assert.True(t, ok)

	c.Clear()
	assert.Zero(t, c.Len())
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()
	c := New(time.Minute)
	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	v, err := GetOrLoad(ctx, c, "k", 0, load)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)

	v, err = GetOrLoad(ctx, c, "k", 0, load)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)
	assert.Equal(t, 1, calls)
}

func TestGetOrLoad_ErrorNotCached(t *testing.T) {
	ctx := context.Background()
	c := New(time.Minute)
	boom := errors.New("boom")
	_, err := GetOrLoad(ctx, c, "k", 0, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	v, err := GetOrLoad(ctx, c, "k", 0, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestGetOrLoad_TypeMismatchReloads(t *testing.T) {
	ctx := context.Background()
	c := New(time.Minute)
	c.Set("k", "string", 0)
	v, err := GetOrLoad(ctx, c, "k", 0, func(context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}
