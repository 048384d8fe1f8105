package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dberrors "github.com/puhuaqiang/db-query-tool/internal/errors"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, EnvPrefix) {
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
	return home
}

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("store", "", "")
	fs.Int("default-limit", 0, "")
	fs.Int("max-rows", 0, "")
	fs.Duration("connect-timeout", 0, "")
	fs.String("addr", "", "")
	fs.String("log-level", "", "")
	fs.String("log-format", "", "")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".db_query", "db_query.db"), cfg.StorePath)
	assert.Equal(t, DefaultLimit, cfg.DefaultLimit)
	assert.Equal(t, DefaultMaxRows, cfg.MaxRows)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.File)
}

func TestLoadPrecedence(t *testing.T) {
	home := isolate(t)

	path := filepath.Join(home, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store_path: /var/lib/dbq/store.db
default_limit: 200
max_rows: 5000
connect_timeout: 3s
http:
  addr: 127.0.0.1:9000
log:
  level: debug
`), 0o600))

	t.Setenv("DBQ_MAX_ROWS", "7000")
	t.Setenv("DBQ_HTTP__ADDR", "0.0.0.0:9100")
	t.Setenv("DBQ_LOG__FORMAT", "json")

	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--default-limit", "50", "--addr", ":9999"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "/var/lib/dbq/store.db", cfg.StorePath, "file")
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout, "file")
	assert.Equal(t, "debug", cfg.Log.Level, "file")
	assert.Equal(t, 7000, cfg.MaxRows, "env beats file")
	assert.Equal(t, "json", cfg.Log.Format, "env beats default")
	assert.Equal(t, 50, cfg.DefaultLimit, "flag beats file")
	assert.Equal(t, ":9999", cfg.HTTP.Addr, "flag beats env")
}

func TestLoadUnsetFlagsDoNotOverride(t *testing.T) {
	isolate(t)
	t.Setenv("DBQ_DEFAULT_LIMIT", "42")

	flags := newFlags()
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.DefaultLimit)
	assert.Equal(t, DefaultMaxRows, cfg.MaxRows)
}

func TestLoadDefaultFileFromHome(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".db_query")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("max_rows: 123\ndefault_limit: 100\n"), 0o600))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 123, cfg.MaxRows)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), cfg.File)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	home := isolate(t)

	_, err := Load(filepath.Join(home, "nope.yaml"), nil)
	require.Error(t, err)
	assert.True(t, dberrors.IsType(err, dberrors.ErrTypeConfig))
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			StorePath:      "/tmp/x.db",
			DefaultLimit:   10,
			MaxRows:        100,
			ConnectTimeout: time.Second,
			Log:            LogConfig{Level: "info", Format: "text"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty store", func(c *Config) { c.StorePath = "" }, "store_path"},
		{"zero limit", func(c *Config) { c.DefaultLimit = 0 }, "default_limit must be positive"},
		{"zero max rows", func(c *Config) { c.MaxRows = 0 }, "max_rows must be positive"},
		{"limit above max", func(c *Config) { c.DefaultLimit = 101 }, "cannot exceed max_rows"},
		{"negative timeout", func(c *Config) { c.ConnectTimeout = -time.Second }, "connect_timeout"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"upper case level", func(c *Config) { c.Log.Level = "WARN" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dberrors.IsType(err, dberrors.ErrTypeConfig))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestExpandHome(t *testing.T) {
	home := isolate(t)

	assert.Equal(t, filepath.Join(home, "a", "b"), ExpandHome("~/a/b"))
	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, "/abs/path", ExpandHome("/abs/path"))
	assert.Equal(t, "rel/~/path", ExpandHome("rel/~/path"))
}
