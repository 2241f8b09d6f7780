package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/dexmirror/pkg/cursor"
	"github.com/Sternrassler/dexmirror/pkg/ingest"
	"github.com/Sternrassler/dexmirror/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no stray .env is read.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogPretty)
	assert.Equal(t, "data/dexmirror.db", cfg.DBPath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "https://pokeapi.co/api/v2", cfg.Upstream.BaseURL)
	assert.Equal(t, "pokemon", cfg.Upstream.Resource)
	assert.Equal(t, "dexmirror/0.1.0", cfg.Upstream.UserAgent)
	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 0, cfg.Ingest.Total)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.Delay)
	assert.Equal(t, ingest.PolicyMaxID, cfg.Policy())
	assert.Equal(t, cursor.BackendNone, cfg.Cursor.Backend)
	assert.Equal(t, "dexmirror:ingest:cursor", cfg.Cursor.Key)
}

func TestLoad_EnvOverrides(t *testing.T) {
	inTempDir(t)
	t.Setenv("DEXMIRROR_DB_PATH", "/tmp/other.db")
	t.Setenv("DEXMIRROR_UPSTREAM_BASE_URL", "http://localhost:9000/api")
	t.Setenv("DEXMIRROR_UPSTREAM_TIMEOUT", "5s")
	t.Setenv("DEXMIRROR_INGEST_TOTAL", "151")
	t.Setenv("DEXMIRROR_INGEST_POLICY", "cursor")
	t.Setenv("DEXMIRROR_CURSOR_BACKEND", "file")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	assert.Equal(t, "http://localhost:9000/api", cfg.Upstream.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 151, cfg.Ingest.Total)
	assert.Equal(t, ingest.PolicyCursor, cfg.Policy())
	assert.Equal(t, cursor.BackendFile, cfg.CursorStoreConfig().Backend)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "dexmirror.yaml")
	content := `
log_level: debug
listen_addr: ":9090"
upstream:
  resource: berry
ingest:
  delay: 1s
  policy: full
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "berry", cfg.ClientConfig().Resource)
	assert.Equal(t, time.Second, cfg.Ingest.Delay)
	assert.Equal(t, ingest.PolicyFull, cfg.Policy())
	assert.Equal(t, "data/dexmirror.db", cfg.DBPath)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	inTempDir(t)

	_, err := Load(New(), "does-not-exist.yaml")
	require.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DotEnvFile), []byte("DEXMIRROR_LISTEN_ADDR=:7070\nDEXMIRROR_LOG_LEVEL=warn\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("DEXMIRROR_LISTEN_ADDR")
		os.Unsetenv("DEXMIRROR_LOG_LEVEL")
	})
	// Real environment takes precedence over .env.
	t.Setenv("DEXMIRROR_LOG_LEVEL", "error")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, logging.LevelError, cfg.LoggingConfig().Level)
}

func TestValidate(t *testing.T) {
	valid := func() AppConfig {
		return AppConfig{
			LogLevel:   "info",
			DBPath:     "data/dexmirror.db",
			ListenAddr: ":8080",
			Upstream: UpstreamConfig{
				BaseURL:   "https://pokeapi.co/api/v2",
				Resource:  "pokemon",
				UserAgent: "dexmirror/0.1.0",
				Timeout:   30 * time.Second,
			},
			Ingest: IngestConfig{Delay: 500 * time.Millisecond, Policy: "max"},
			Cursor: CursorConfig{Backend: "none", Path: "data/cursor", RedisAddr: "localhost:6379", Key: "k"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", func(c *AppConfig) {}, ""},
		{"bad log level", func(c *AppConfig) { c.LogLevel = "trace" }, "log_level"},
		{"empty db path", func(c *AppConfig) { c.DBPath = "" }, "db_path"},
		{"empty listen addr", func(c *AppConfig) { c.ListenAddr = "" }, "listen_addr"},
		{"empty base url", func(c *AppConfig) { c.Upstream.BaseURL = "" }, "upstream.base_url"},
		{"empty resource", func(c *AppConfig) { c.Upstream.Resource = "" }, "upstream.resource"},
		{"empty user agent", func(c *AppConfig) { c.Upstream.UserAgent = "" }, "upstream.user_agent"},
		{"zero timeout", func(c *AppConfig) { c.Upstream.Timeout = 0 }, "upstream.timeout"},
		{"negative total", func(c *AppConfig) { c.Ingest.Total = -1 }, "ingest.total"},
		{"negative delay", func(c *AppConfig) { c.Ingest.Delay = -time.Second }, "ingest.delay"},
		{"zero delay", func(c *AppConfig) { c.Ingest.Delay = 0 }, ""},
		{"unknown policy", func(c *AppConfig) { c.Ingest.Policy = "newest" }, "ingest.policy"},
		{"cursor policy without backend", func(c *AppConfig) { c.Ingest.Policy = "cursor" }, "cursor.backend"},
		{"cursor policy with redis", func(c *AppConfig) { c.Ingest.Policy = "cursor"; c.Cursor.Backend = "redis" }, ""},
		{"file backend without path", func(c *AppConfig) { c.Cursor.Backend = "file"; c.Cursor.Path = "" }, "cursor.path"},
		{"redis backend without key", func(c *AppConfig) { c.Cursor.Backend = "redis"; c.Cursor.Key = "" }, "cursor.key"},
		{"unknown backend", func(c *AppConfig) { c.Cursor.Backend = "etcd" }, "cursor.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should mention %q", err, tt.wantErr)
		})
	}
}
