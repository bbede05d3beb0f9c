package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisMembership {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisMembership(rdb)
}

func TestParticipantsMiss(t *testing.T) {
	cache := newTestCache(t)
	_, err := cache.Participants(context.Background(), "group-42")
	require.ErrorIs(t, err, ErrMiss)
}

func TestSetAndParticipants(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "group-42", []string{"alice", "bob"}))
	ids, err := cache.Participants(ctx, "group-42")
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, ids)
}

func TestInvalidate(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "group-42", []string{"alice"}))
	require.NoError(t, cache.Invalidate(ctx, "group-42"))

	_, err := cache.Participants(ctx, "group-42")
	require.ErrorIs(t, err, ErrMiss)
}
