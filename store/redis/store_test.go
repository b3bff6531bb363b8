package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/store/redis"
)

func setupStore(t *testing.T) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := redis.Open(context.Background(), redis.Options{Addr: mr.Addr(), Prefix: "user:42:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestGetSet(t *testing.T) {
	ctx := context.Background()
	s, mr := setupStore(t)

	_, ok, err := s.Get(ctx, "entitle:tier")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "entitle:tier", "premium"))

	v, ok, err := s.Get(ctx, "entitle:tier")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "premium", v)

	raw, err := mr.Get("user:42:entitle:tier")
	require.NoError(t, err)
	assert.Equal(t, "premium", raw)
	assert.Zero(t, mr.TTL("user:42:entitle:tier"))
}

func TestCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)

	swapped, err := s.CompareAndSwap(ctx, "k", "", "a")
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = s.CompareAndSwap(ctx, "k", "", "b")
	require.NoError(t, err)
	assert.False(t, swapped)

	swapped, err = s.CompareAndSwap(ctx, "k", "a", "b")
	require.NoError(t, err)
	assert.True(t, swapped)

	v, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestOpenUnreachable(t *testing.T) {
	s, err := redis.Open(context.Background(), redis.Options{Addr: "127.0.0.1:1"})
	assert.Nil(t, s)
	assert.Error(t, err)
}

func TestCompareAndSwapServerGone(t *testing.T) {
	ctx := context.Background()
	s, mr := setupStore(t)
	mr.Close()

	swapped, err := s.CompareAndSwap(ctx, "k", "", "a")
	assert.False(t, swapped)
	require.Error(t, err)
	assert.ErrorIs(t, err, entitle.ErrTransactionFailed)
	assert.True(t, entitle.IsRetryable(err))
}
