package cursor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorStoreProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	tmpDir := t.TempDir()

	properties.Property("FileStore saves and loads cursors", prop.ForAll(
		func(id int64) bool {
			s := NewFileStore(filepath.Join(tmpDir, "cursor"))
			if err := s.Save(context.Background(), id); err != nil {
				return false
			}
			loaded, err := s.Load(context.Background())
			return err == nil && loaded == id
		},
		gen.Int64Range(0, 1<<40),
	))

	properties.Property("RedisStore saves and loads cursors", prop.ForAll(
		func(id int64, key string) bool {
			if key == "" {
				return true
			}
			s := NewRedisStore(redisClient, key)
			if err := s.Save(context.Background(), id); err != nil {
				return false
			}
			loaded, err := s.Load(context.Background())
			return err == nil && loaded == id
		},
		gen.Int64Range(0, 1<<40),
		gen.Identifier(),
	))

	properties.Property("file and redis backends agree", prop.ForAll(
		func(ids []int64) bool {
			fileStore := NewFileStore(filepath.Join(tmpDir, "equivalence"))
			redisStore := NewRedisStore(redisClient, "equivalence")
			ctx := context.Background()

			for _, id := range ids {
				if fileStore.Save(ctx, id) != nil || redisStore.Save(ctx, id) != nil {
					return false
				}
			}

			a, errA := fileStore.Load(ctx)
			b, errB := redisStore.Load(ctx)
			return errA == nil && errB == nil && a == b
		},
		gen.SliceOfN(5, gen.Int64Range(0, 100000)),
	))

	properties.TestingRun(t)
}

func TestFileStore_MissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "absent", "cursor"))

	id, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number"), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestFileStore_TrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor")
	require.NoError(t, os.WriteFile(path, []byte("151\n"), 0o644))

	id, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(151), id)
}

func TestRedisStore_MissingKey(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	id, err := NewRedisStore(client, "missing").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
}

func TestNopStore(t *testing.T) {
	var s Store = NopStore{}
	require.NoError(t, s.Save(context.Background(), 42))

	id, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
}

func TestOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{name: "default none", config: Config{}},
		{name: "explicit none", config: Config{Backend: BackendNone}},
		{name: "file", config: Config{Backend: BackendFile, Path: filepath.Join(t.TempDir(), "cursor")}},
		{name: "file without path", config: Config{Backend: BackendFile}, expectError: true},
		{name: "redis", config: Config{Backend: BackendRedis, RedisAddr: mr.Addr(), Key: "k"}},
		{name: "redis without key", config: Config{Backend: BackendRedis, RedisAddr: mr.Addr()}, expectError: true},
		{name: "unknown backend", config: Config{Backend: "etcd"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, closeFn, err := Open(context.Background(), tt.config)
			require.NotNil(t, closeFn)
			defer closeFn()

			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, s)

			require.NoError(t, s.Save(context.Background(), 7))
		})
	}
}
