package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := Open(context.Background(), Options{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreGetSetDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "k1", []byte("v1"), 0))
	v, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", string(v))

	require.NoError(t, store.Delete(ctx, "k1"))
	_, ok, err = store.Get(ctx, "k1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreKeysAreNamespacedByPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := Open(context.Background(), Options{Addrs: []string{mr.Addr()}, KeyPrefix: "ns-a"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Set(context.Background(), "shared-key", []byte("a"), 0))
	require.True(t, mr.Exists("ns-a:shared-key"))
	require.False(t, mr.Exists("shared-key"))
}

func TestStoreSetWithTTLExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := Open(context.Background(), Options{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "ttl-key", []byte("v1"), time.Minute))
	_, ok, err := store.Get(ctx, "ttl-key")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	_, ok, err = store.Get(ctx, "ttl-key")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOpenFailsWhenUnreachable(t *testing.T) {
	_, err := Open(context.Background(), Options{Addrs: []string{"127.0.0.1:1"}, DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
}
