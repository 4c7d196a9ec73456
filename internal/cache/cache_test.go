package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetOrComputeWithoutRedis(t *testing.T) {
	c := New(nil, nil)
	ctx := context.Background()

	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return map[string]int{"balance": 90}, nil
	}

	var first map[string]int
	require.NoError(t, c.GetOrCompute(ctx, "balance:u1", time.Minute, &first, compute))
	require.Equal(t, 90, first["balance"])

	// With caching disabled every call computes.
	var second map[string]int
	require.NoError(t, c.GetOrCompute(ctx, "balance:u1", time.Minute, &second, compute))
	require.Equal(t, 2, calls)
}

func TestGetOrComputePropagatesComputeError(t *testing.T) {
	c := New(nil, nil)

	var dest struct{}
	err := c.GetOrCompute(context.Background(), "k", time.Minute, &dest, func() (interface{}, error) {
		return nil, context.DeadlineExceeded
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvalidateWithoutRedisIsNoOp(t *testing.T) {
	c := New(nil, nil)
	require.NotPanics(t, func() {
		c.Invalidate(context.Background(), "a", "b")
		c.InvalidatePrefix(context.Background(), "requests:")
	})
}
