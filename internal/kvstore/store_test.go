package kvstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/config"
)

// storeFactories builds every Store implementation so the same contract runs against each.
func storeFactories(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"file": func() Store {
			store, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return store
		},
		"redis": func() Store {
			server := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: server.Addr()})
			return NewRedisStoreWithClient(client, "hdmarket")
		},
	}
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			t.Cleanup(func() { _ = store.Close() })

			_, err := store.Get(ctx, "missing")
			assert.True(t, errors.Is(err, ErrNotFound), "Missing key should report ErrNotFound")

			require.NoError(t, store.Set(ctx, "search_cache:phone:{}", []byte(`{"a":1}`)))
			require.NoError(t, store.Set(ctx, "favorites:42", []byte("x")))

			got, err := store.Get(ctx, "search_cache:phone:{}")
			require.NoError(t, err)
			assert.Equal(t, `{"a":1}`, string(got))

			require.NoError(t, store.Set(ctx, "search_cache:phone:{}", []byte(`{"a":2}`)))
			got, err = store.Get(ctx, "search_cache:phone:{}")
			require.NoError(t, err)
			assert.Equal(t, `{"a":2}`, string(got), "Set should overwrite")

			keys, err := store.Keys(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"search_cache:phone:{}", "favorites:42"}, keys)

			require.NoError(t, store.Remove(ctx, "search_cache:phone:{}"))
			require.NoError(t, store.Remove(ctx, "search_cache:phone:{}"), "Removing twice is not an error")
			_, err = store.Get(ctx, "search_cache:phone:{}")
			assert.True(t, errors.Is(err, ErrNotFound))

			keys, err = store.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"favorites:42"}, keys)
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got), "Store must not alias the caller's slice")
}

func TestRedisStore_NamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	store := NewRedisStoreWithClient(client, "hdmarket")

	require.NoError(t, server.Set("other-app:key", "foreign"))
	require.NoError(t, store.Set(ctx, "mine", []byte("v")))

	assert.True(t, server.Exists("hdmarket:mine"), "Keys are written under the namespace")
	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, keys, "Keys outside the namespace are not listed")
}

func TestRedisStore_StorageFailure(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	store := NewRedisStoreWithClient(client, "hdmarket")
	server.Close()

	_, err := store.Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound), "Connection errors are not misses")
	assert.Error(t, store.Set(ctx, "k", []byte("v")))
	_, err = store.Keys(ctx)
	assert.Error(t, err)
}

func TestFileStore_IgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644))
	require.NoError(t, store.Set(ctx, "k", []byte("v")))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "search_cache:shoes:{}", []byte("payload")))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "search_cache:shoes:{}")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestNew_SelectsDriver(t *testing.T) {
	store, err := New(config.StoreConfig{Driver: "memory"}, config.RedisConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	dir := t.TempDir()
	store, err = New(config.StoreConfig{Driver: "FILE", FileDir: dir, Namespace: "hdmarket"}, config.RedisConfig{})
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, store)
	assert.DirExists(t, filepath.Join(dir, "hdmarket"))

	server := miniredis.RunT(t)
	store, err = New(config.StoreConfig{Driver: "redis", Namespace: "hdmarket"}, config.RedisConfig{Address: server.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	_ = store.Close()

	_, err = New(config.StoreConfig{Driver: "sqlite"}, config.RedisConfig{})
	assert.Error(t, err)
}
