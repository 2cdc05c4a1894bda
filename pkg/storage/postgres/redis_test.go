package postgres

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oussama-Darrhal/Business-Operating-System-sub001/pkg/storage"
)

func TestNewRedisClient(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled without URL", func(t *testing.T) {
		client, err := NewRedisClient(ctx, storage.Config{})
		assert.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("connects", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := NewRedisClient(ctx, storage.Config{RedisURL: "redis://" + mr.Addr(), RedisPoolSize: 5})
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, 5, client.Options().PoolSize)
		assert.NoError(t, client.Set(ctx, "k", "v", 0).Err())
		assert.True(t, mr.Exists("k"))
	})

	t.Run("invalid URL", func(t *testing.T) {
		_, err := NewRedisClient(ctx, storage.Config{RedisURL: "not-a-url"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid redis URL")
	})

	t.Run("unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := NewRedisClient(ctx, storage.Config{RedisURL: "redis://" + addr, RedisMaxRetries: 1})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to redis")
	})
}
