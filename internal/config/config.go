// Package config loads settings from defaults, a YAML file, DBQ_ environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	dberrors "github.com/puhuaqiang/db-query-tool/internal/errors"
)

// EnvPrefix prefixes every environment variable read by Load. A double
// underscore separates nested keys: DBQ_HTTP__ADDR sets http.addr.
const EnvPrefix = "DBQ_"

// Defaults.
const (
	DefaultDir            = "~/.db_query"
	DefaultConfigFile     = DefaultDir + "/config.yaml"
	DefaultStorePath      = DefaultDir + "/db_query.db"
	DefaultLimit          = 1000
	DefaultMaxRows        = 10000
	DefaultConnectTimeout = 10 * time.Second
	DefaultHTTPAddr       = ":8000"
)

// Config holds every setting of the tool.
type Config struct {
	StorePath      string        `koanf:"store_path"`
	DefaultLimit   int           `koanf:"default_limit"`
	MaxRows        int           `koanf:"max_rows"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	HTTP           HTTPConfig    `koanf:"http"`
	Log            LogConfig     `koanf:"log"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// flagKeys maps command-line flag names to config keys. Flags not listed
// here are not configuration.
var flagKeys = map[string]string{
	"store":           "store_path",
	"default-limit":   "default_limit",
	"max-rows":        "max_rows",
	"connect-timeout": "connect_timeout",
	"addr":            "http.addr",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

func defaults() map[string]any {
	return map[string]any{
		"store_path":      DefaultStorePath,
		"default_limit":   DefaultLimit,
		"max_rows":        DefaultMaxRows,
		"connect_timeout": DefaultConnectTimeout.String(),
		"http.addr":       DefaultHTTPAddr,
		"log.level":       "info",
		"log.format":      "text",
	}
}

// Load builds the configuration. cfgFile may be empty, in which case the
// default file is read if it exists. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrTypeConfig, "failed to load defaults")
	}

	path := cfgFile
	if path == "" {
		if candidate := ExpandHome(DefaultConfigFile); fileExists(candidate) {
			path = candidate
		}
	} else {
		path = ExpandHome(path)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, dberrors.Wrapf(err, dberrors.ErrTypeConfig, "error reading config file %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrTypeConfig, "failed to load env vars")
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, dberrors.Wrap(err, dberrors.ErrTypeConfig, "failed to load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, dberrors.Wrap(err, dberrors.ErrTypeConfig, "unable to decode config")
	}
	cfg.StorePath = ExpandHome(cfg.StorePath)
	cfg.File = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns DBQ_HTTP__ADDR into http.addr.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case c.StorePath == "":
		return dberrors.New(dberrors.ErrTypeConfig, "store_path is required")
	case c.DefaultLimit <= 0:
		return dberrors.Newf(dberrors.ErrTypeConfig, "default_limit must be positive, got %d", c.DefaultLimit)
	case c.MaxRows <= 0:
		return dberrors.Newf(dberrors.ErrTypeConfig, "max_rows must be positive, got %d", c.MaxRows)
	case c.DefaultLimit > c.MaxRows:
		return dberrors.Newf(dberrors.ErrTypeConfig, "default_limit (%d) cannot exceed max_rows (%d)", c.DefaultLimit, c.MaxRows)
	case c.ConnectTimeout < 0:
		return dberrors.Newf(dberrors.ErrTypeConfig, "connect_timeout cannot be negative, got %s", c.ConnectTimeout)
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return dberrors.Newf(dberrors.ErrTypeConfig, "log.format must be text or json, got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return dberrors.Newf(dberrors.ErrTypeConfig, "unknown log.level %q", c.Log.Level).
			WithSuggestion("Use one of debug, info, warn, error")
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
