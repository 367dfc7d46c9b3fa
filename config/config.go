// Package config loads the demo server's configuration.
package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	tomlparser "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/mdrohmann/fluxible-plugin-fetchr/fetchr"
)

var (
	// ErrConfigNotFound is returned when an explicitly named config file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidConfig is returned when the merged configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// EnvPrefix is the prefix of environment variables that override config values.
const EnvPrefix = "FETCHR_"

const (
	defaultHost = "localhost"
	defaultPort = 8111
)

type Config struct {
	Server ServerConfig `koanf:"server"`
	Fetchr FetchrConfig `koanf:"fetchr"`
	Redis  RedisConfig  `koanf:"redis"`
}

type ServerConfig struct {
	Host  string `koanf:"host"`
	Port  int    `koanf:"port"`
	Debug bool   `koanf:"debug"`
}

type FetchrConfig struct {
	// Path is the base path the middleware is mounted at.
	Path string `koanf:"path"`
	// Expose and Hide are regular expressions selecting which services remote callers can
	// reach, with the same meaning as the -expose and -hide flags.
	Expose []string `koanf:"expose"`
	Hide   []string `koanf:"hide"`
}

// RedisConfig selects the kv service's store. An empty URL means an in-memory store.
type RedisConfig struct {
	URL    string `koanf:"url"`
	Prefix string `koanf:"prefix"`
}

// Filters compiles the expose and hide patterns.
func (c FetchrConfig) Filters() (fetchr.RegexFilters, error) {
	var filters fetchr.RegexFilters
	for _, p := range c.Expose {
		if err := filters.MustMatch.Set(p); err != nil {
			return filters, errors.Wrapf(err, "fetchr.expose %q", p)
		}
	}
	for _, p := range c.Hide {
		if err := filters.MustNotMatch.Set(p); err != nil {
			return filters, errors.Wrapf(err, "fetchr.hide %q", p)
		}
	}
	return filters, nil
}

// Validate checks the values that have no usable fallback.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Wrapf(ErrInvalidConfig, "server.port %d is out of range", c.Server.Port)
	}
	if _, err := c.Fetchr.Filters(); err != nil {
		return errors.Mark(err, ErrInvalidConfig)
	}
	return nil
}

// Loader merges configuration from several sources. Precedence, highest first:
//  1. values passed to Load (command line flags)
//  2. environment variables (FETCHR_*)
//  3. the TOML config file
//  4. defaults
type Loader struct {
	k       *koanf.Koanf
	environ func() []string
}

func NewLoader() *Loader {
	return &Loader{k: koanf.New("."), environ: os.Environ}
}

// Load builds a Config. If path is empty no file is read; otherwise the file must exist.
// Keys in flags use the same dotted form as the file, for instance "server.port".
func (l *Loader) Load(path string, flags map[string]any) (*Config, error) {
	l.k = koanf.New(".")

	if err := l.k.Load(confmap.Provider(defaultsToMap(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load defaults")
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.Wrapf(ErrConfigNotFound, "%s", path)
			}
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
		if err := l.k.Load(file.Provider(path), tomlparser.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", path)
		}
	}

	envOpt := env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envTransform,
		EnvironFunc:   l.environ,
	}
	if err := l.k.Load(env.Provider(".", envOpt), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load env vars")
	}

	if len(flags) > 0 {
		if err := l.k.Load(confmap.Provider(flags, "."), nil); err != nil {
			return nil, errors.Wrap(err, "failed to load flags")
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envTransform maps FETCHR_SERVER_PORT to server.port. List values are comma-separated.
func envTransform(key, value string) (string, any) {
	key = strings.TrimPrefix(key, EnvPrefix)
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "_", ".")

	switch key {
	case "fetchr.expose", "fetchr.hide":
		return key, strings.Split(value, ",")
	}
	return key, value
}

func defaultsToMap() map[string]any {
	return map[string]any{
		"server.host":  defaultHost,
		"server.port":  defaultPort,
		"server.debug": false,
		"fetchr.path":  fetchr.DefaultBasePath,
		"redis.url":    "",
	}
}
