package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "u1", "hash-1", time.Hour))

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "hash-1", got)

	// A second Put replaces the pointer, it never appends.
	require.NoError(t, store.Put(ctx, "u1", "hash-2", time.Hour))
	got, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "hash-2", got)

	require.NoError(t, store.Delete(ctx, "u1"))
	_, err = store.Get(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	current := time.Now()
	store.now = func() time.Time { return current }

	require.NoError(t, store.Put(ctx, "u1", "hash-1", time.Minute))

	current = current.Add(30 * time.Second)
	_, err := store.Get(ctx, "u1")
	require.NoError(t, err)

	current = current.Add(31 * time.Second)
	_, err = store.Get(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreMissingUser(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}
