package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "tok-1", time.Minute))

	token, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tok-1", token)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.Set(ctx, "tok-1", -time.Second))

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok, "expired token must not be served")
}
