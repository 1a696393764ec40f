package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, ttl), mr
}

func testStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Begin(ctx, 1, 42))
	c, ok, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), c.ReceiverID)

	// 覆盖
	require.NoError(t, s.Begin(ctx, 1, 43))
	c, ok, err = s.Take(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(43), c.ReceiverID)

	_, ok, err = s.Take(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "take is one-shot")

	require.NoError(t, s.Begin(ctx, 2, 7))
	require.NoError(t, s.Clear(ctx, 2))
	_, ok, err = s.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	s, _ := newRedisStore(t, time.Minute)
	testStoreContract(t, s)
}

func TestRedisStore_Expires(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, s.Begin(ctx, 1, 42))
	assert.Equal(t, time.Minute, mr.TTL(key(1)))

	mr.FastForward(2 * time.Minute)
	_, ok, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_CorruptPayload(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute)
	require.NoError(t, mr.Set(key(1), "not-json"))
	_, _, err := s.Get(context.Background(), 1)
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore(time.Minute))
}

func TestMemoryStore_Expires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newMemoryStore(time.Minute, func() time.Time { return now })
	ctx := context.Background()
	require.NoError(t, s.Begin(ctx, 1, 42))

	now = now.Add(59 * time.Second)
	_, ok, _ := s.Get(ctx, 1)
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = s.Get(ctx, 1)
	assert.False(t, ok)
}
