package cursor

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	s, err := OpenRedis(ctx, mr.Addr(), "", 0, "listings", zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, 88))

	v, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(88), v)

	raw, err := mr.Get(redisKeyPrefix + "listings")
	require.NoError(t, err)
	assert.Equal(t, "88", raw)
	assert.Zero(t, mr.TTL(redisKeyPrefix+"listings"), "cursor key must not expire")
}

func TestRedisStore_UnparsableIsAbsent(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set(redisKeyPrefix+"listings", "garbage"))

	s, err := OpenRedis(context.Background(), mr.Addr(), "", 0, "listings", zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, ok, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_SaveFailsWhenServerDown(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := OpenRedis(context.Background(), mr.Addr(), "", 0, "listings", zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	mr.Close()

	assert.Error(t, s.Save(context.Background(), 1))
	_, ok, err := s.Load(context.Background())
	assert.Error(t, err, "an unreachable server is not a missing cursor")
	assert.False(t, ok)
}

func TestOpenRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenRedis(context.Background(), addr, "", 0, "listings", zap.NewNop())
	assert.Error(t, err)
}
