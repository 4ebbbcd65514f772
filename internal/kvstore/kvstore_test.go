package kvstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns one fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
		"redis":  NewRedis(client, 0),
	}
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(ctx, KeyGuestCart)
			require.NoError(t, err)
			assert.False(t, ok, "missing key should report ok=false")

			require.NoError(t, store.Set(ctx, KeyGuestCart, []byte(`[{"productId":"5"}]`)))
			got, ok, err := store.Get(ctx, KeyGuestCart)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `[{"productId":"5"}]`, string(got))

			require.NoError(t, store.Set(ctx, KeyGuestCart, []byte(`[]`)))
			got, _, err = store.Get(ctx, KeyGuestCart)
			require.NoError(t, err)
			assert.Equal(t, `[]`, string(got), "Set should overwrite")

			require.NoError(t, store.Remove(ctx, KeyGuestCart))
			_, ok, err = store.Get(ctx, KeyGuestCart)
			require.NoError(t, err)
			assert.False(t, ok, "removed key should be gone")

			assert.NoError(t, store.Remove(ctx, "never-set"), "removing a missing key is not an error")
		})
	}
}

func TestNamespaced_IsolatesVisitors(t *testing.T) {
	ctx := context.Background()
	shared := NewMemory()
	a := Namespaced(shared, "visitor-a")
	b := Namespaced(shared, "visitor-b")

	require.NoError(t, a.Set(ctx, KeyPending, []byte("a")))
	require.NoError(t, b.Set(ctx, KeyPending, []byte("b")))

	got, _, _ := a.Get(ctx, KeyPending)
	assert.Equal(t, "a", string(got))
	got, _, _ = b.Get(ctx, KeyPending)
	assert.Equal(t, "b", string(got))

	raw, ok, _ := shared.Get(ctx, "visitor-a:"+KeyPending)
	assert.True(t, ok)
	assert.Equal(t, "a", string(raw))

	require.NoError(t, a.Remove(ctx, KeyPending))
	_, ok, _ = b.Get(ctx, KeyPending)
	assert.True(t, ok, "removing from one namespace must not touch another")
}

func TestMemory_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	value := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", value))
	value[0] = 'x'

	got, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
	got[1] = 'y'

	again, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
	assert.Equal(t, 1, m.Len())
}

func TestRedis_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedis(client, 30*time.Minute)
	require.NoError(t, store.Set(context.Background(), KeyCartMerged, []byte("true")))

	assert.Equal(t, 30*time.Minute, mr.TTL(KeyCartMerged))

	mr.FastForward(31 * time.Minute)
	_, ok, err := store.Get(context.Background(), KeyCartMerged)
	require.NoError(t, err)
	assert.False(t, ok, "key should expire after TTL")
}

func TestRedis_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedis(client, 0)

	mr.Close()

	_, _, err := store.Get(context.Background(), KeyGuestCart)
	assert.Error(t, err)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	first, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, KeyGuestCart, []byte("persisted")))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(path)
	require.NoError(t, err)
	defer second.Close()

	got, ok, err := second.Get(ctx, KeyGuestCart)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", string(got))
}
