package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerKey(t *testing.T) {
	assert.Equal(t, "/profile/v0/42", OwnerKey(ProfilePath, 0, 42))
	assert.Equal(t, "/profile/v3/42", OwnerKey("/profile/", 3, 42))
	assert.True(t, underPath(OwnerKey(ProfilePath, 3, 42), ProfilePath))
}

func TestUnderPath(t *testing.T) {
	assert.True(t, underPath("/profile", "/profile"))
	assert.True(t, underPath("/profile/1", "/profile"))
	assert.True(t, underPath("/profile/1", "/profile/"))
	assert.False(t, underPath("/profiles/1", "/profile"))
	assert.False(t, underPath("/settings", "/profile"))
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "/profile/1", []byte("a")))
	v, ok, err := c.Get(ctx, "/profile/1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("a"), v)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "/profile/1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func exerciseInvalidatePath(t *testing.T, c ViewCache) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, OwnerKey(ProfilePath, 0, 1), []byte("one")))
	require.NoError(t, c.Set(ctx, OwnerKey(ProfilePath, 0, 2), []byte("two")))
	require.NoError(t, c.Set(ctx, "/settings/1", []byte("keep")))

	require.NoError(t, c.InvalidatePath(ctx, ProfilePath))

	for _, key := range []string{OwnerKey(ProfilePath, 0, 1), OwnerKey(ProfilePath, 0, 2)} {
		_, ok, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, "expected %s to be invalidated", key)
	}
	v, ok, err := c.Get(ctx, "/settings/1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("keep"), v)

	// Invalidating an empty path is not an error.
	require.NoError(t, c.InvalidatePath(ctx, ProfilePath))
}

func exerciseGeneration(t *testing.T, c ViewCache) {
	t.Helper()
	ctx := context.Background()

	gen, err := c.Generation(ctx, ProfilePath)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gen)

	// A reader that fetched generation 0 before the invalidation.
	stale := OwnerKey(ProfilePath, gen, 1)

	require.NoError(t, c.InvalidatePath(ctx, ProfilePath))
	gen, err = c.Generation(ctx, ProfilePath+"/")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	// Its late write is never served under the current generation.
	require.NoError(t, c.Set(ctx, stale, []byte("stale")))
	_, ok, err := c.Get(ctx, OwnerKey(ProfilePath, gen, 1))
	require.NoError(t, err)
	assert.False(t, ok)

	// Invalidating a parent bumps known child paths too.
	require.NoError(t, c.InvalidatePath(ctx, "/"))
	gen, err = c.Generation(ctx, ProfilePath)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)

	other, err := c.Generation(ctx, "/settings")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), other)
}

func TestMemoryInvalidatePath(t *testing.T) {
	exerciseInvalidatePath(t, NewMemory(time.Minute))
}

func TestMemoryGeneration(t *testing.T) {
	exerciseGeneration(t, NewMemory(time.Minute))
}

func TestRedisGeneration(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedis(srv.Addr(), "", time.Minute)
	t.Cleanup(func() { _ = c.Close() })

	exerciseGeneration(t, c)
	assert.True(t, srv.Exists(redisGenPrefix+ProfilePath))
}

func TestRedisInvalidatePath(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedis(srv.Addr(), "", time.Minute)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Ping(context.Background()))
	exerciseInvalidatePath(t, c)
}

func TestRedisTTL(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedis(srv.Addr(), "", time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "/profile/9", []byte("x")))
	assert.Equal(t, time.Minute, srv.TTL(redisKeyPrefix+"/profile/9"))

	srv.FastForward(2 * time.Minute)
	_, ok, err := c.Get(ctx, "/profile/9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var c ViewCache = Nop{}
	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.InvalidatePath(ctx, ProfilePath))
	gen, err := c.Generation(ctx, ProfilePath)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gen)
}
