// Package cursor persists the ingest resume point: the highest id up to which
// every record has been stored or confirmed present.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by Open.
const (
	BackendNone  = "none"
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Store loads and saves the resume cursor.
type Store interface {
	// Load returns the saved cursor, or 0 when none was saved.
	Load(ctx context.Context) (int64, error)

	// Save persists the cursor.
	Save(ctx context.Context, id int64) error
}

// Config selects and configures a backend.
type Config struct {
	Backend   string
	Path      string
	RedisAddr string
	Key       string
}

// Open builds the Store for cfg. The returned close function releases any
// connection the backend holds.
func Open(ctx context.Context, cfg Config) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", BackendNone:
		return NopStore{}, noop, nil
	case BackendFile:
		if cfg.Path == "" {
			return nil, noop, errors.New("cursor path is required for the file backend")
		}
		return NewFileStore(cfg.Path), noop, nil
	case BackendRedis:
		if cfg.Key == "" {
			return nil, noop, errors.New("cursor key is required for the redis backend")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisStore(client, cfg.Key), client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown cursor backend %q", cfg.Backend)
	}
}

// NopStore never remembers anything.
type NopStore struct{}

// Load always reports no saved cursor.
func (NopStore) Load(ctx context.Context) (int64, error) { return 0, nil }

// Save discards id.
func (NopStore) Save(ctx context.Context, id int64) error { return nil }

// FileStore keeps the cursor as a decimal number in a local file.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the cursor file, returning 0 when it does not exist yet.
func (s *FileStore) Load(ctx context.Context) (int64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cursor file: %w", err)
	}
	return parseCursor(string(data))
}

// Save writes through a temporary file and a rename so a crash never leaves a
// truncated cursor behind.
func (s *FileStore) Save(ctx context.Context, id int64) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create cursor directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(id, 10)), 0o644); err != nil {
		return fmt.Errorf("write cursor file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace cursor file: %w", err)
	}
	return nil
}

// RedisStore keeps the cursor under a single Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore returns a RedisStore keeping the cursor under key.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{
		client: client,
		key:    key,
	}
}

// Load reads the key, returning 0 when it is not set.
func (s *RedisStore) Load(ctx context.Context) (int64, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get cursor: %w", err)
	}
	return parseCursor(val)
}

// Save sets the key to id without expiry.
func (s *RedisStore) Save(ctx context.Context, id int64) error {
	if err := s.client.Set(ctx, s.key, id, 0).Err(); err != nil {
		return fmt.Errorf("redis set cursor: %w", err)
	}
	return nil
}

func parseCursor(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cursor %q: %w", raw, err)
	}
	if id < 0 {
		return 0, fmt.Errorf("parse cursor %q: negative id", raw)
	}
	return id, nil
}
