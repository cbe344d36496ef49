package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySeenAndMark(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	seen, err := m.Seen(ctx, 7)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, m.Mark(ctx, 7))
	seen, err = m.Seen(ctx, 7)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMemoryExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Mark(ctx, 1))
	now = now.Add(2 * time.Minute)
	seen, err := m.Seen(ctx, 1)
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Zero(t, m.Len())
}

func TestRedisSeenAndMark(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	r, err := NewRedis(ctx, RedisOptions{Addr: srv.Addr(), Prefix: "test", TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	seen, err := r.Seen(ctx, 42)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, r.Mark(ctx, 42))
	require.NoError(t, r.Mark(ctx, 42))
	seen, err = r.Seen(ctx, 42)
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, srv.Exists("test:update:42"))

	srv.FastForward(2 * time.Minute)
	seen, err = r.Seen(ctx, 42)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisRequiresAddr(t *testing.T) {
	_, err := NewRedis(context.Background(), RedisOptions{})
	require.Error(t, err)
}

func TestRedisErrorsWhenDown(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	r, err := NewRedis(ctx, RedisOptions{Addr: srv.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	srv.Close()
	_, err = r.Seen(ctx, 1)
	assert.Error(t, err)
}
