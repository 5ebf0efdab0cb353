package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"crop-claims/internal/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestNewRedis_RequiresAddress(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	assert.Error(t, err)
}

func TestRedisClient_Lock(t *testing.T) {
	client, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))

	ok, err := client.AcquireLock(ctx, "payout:lock:7", "token-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.AcquireLock(ctx, "payout:lock:7", "token-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	// Releasing with a foreign token leaves the lock in place.
	require.NoError(t, client.ReleaseLock(ctx, "payout:lock:7", "token-b"))
	assert.True(t, mr.Exists("payout:lock:7"))

	require.NoError(t, client.ReleaseLock(ctx, "payout:lock:7", "token-a"))
	assert.False(t, mr.Exists("payout:lock:7"))
}

func TestRedisClient_LockExpires(t *testing.T) {
	client, mr := newTestRedis(t)
	ctx := context.Background()

	ok, err := client.AcquireLock(ctx, "payout:lock:9", "token-a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = client.AcquireLock(ctx, "payout:lock:9", "token-b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisClient_AcquireLockError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &RedisClient{Client: db}

	mock.ExpectSetNX("payout:lock:1", "token", time.Minute).SetErr(errors.New("connection refused"))

	ok, err := client.AcquireLock(context.Background(), "payout:lock:1", "token", time.Minute)
	assert.False(t, ok)
	assert.ErrorContains(t, err, "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_GetSet(t *testing.T) {
	client, _ := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", "v", time.Minute))
	val, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	require.NoError(t, client.Del(ctx, "k"))
	_, err = client.Get(ctx, "k")
	assert.Error(t, err)
}
