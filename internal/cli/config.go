package cli

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	goversion "github.com/hashicorp/go-version"

	"github.com/wheelhouse-dev/wheelhouse/pkg/cache"
	"github.com/wheelhouse-dev/wheelhouse/pkg/deps"
	"github.com/wheelhouse-dev/wheelhouse/pkg/errors"
)

// Config is the on-disk configuration, read from
// ~/.config/wheelhouse/config.toml when present. Every field has a working
// default so the file is optional.
type Config struct {
	PythonVersion string            `toml:"python-version"`
	IndexURL      string            `toml:"index-url"`
	Workers       int               `toml:"workers"`
	Cache         CacheConfig       `toml:"cache"`
	Environment   map[string]string `toml:"environment"`
}

type CacheConfig struct {
	Backend string      `toml:"backend"` // file, redis, or none
	Dir     string      `toml:"dir"`
	TTL     string      `toml:"ttl"` // Go duration string, e.g. "24h"
	Redis   RedisConfig `toml:"redis"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

func defaultConfig() *Config {
	return &Config{
		PythonVersion: deps.DefaultPythonVersion,
		Workers:       deps.DefaultWorkers,
		Cache: CacheConfig{
			Backend: "file",
			TTL:     deps.DefaultCacheTTL.String(),
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
	}
}

// defaultConfigPath returns ~/.config/wheelhouse/config.toml (or the
// platform equivalent).
func defaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "wheelhouse", "config.toml"), nil
}

// loadConfig reads the configuration file at path. An empty path means the
// default location; a missing file at the default location is not an error.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		var err error
		path, err = defaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "config file %s does not exist", path)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "", "file", "redis", "none":
	default:
		return errors.New(errors.ErrCodeInvalidConfig,
			"unknown cache backend %q (want file, redis, or none)", c.Cache.Backend)
	}
	if c.Cache.TTL != "" {
		if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid cache ttl %q", c.Cache.TTL)
		}
	}
	if c.PythonVersion != "" {
		if _, err := goversion.NewVersion(c.PythonVersion); err != nil {
			return errors.New(errors.ErrCodeInvalidConfig, "invalid python-version %q", c.PythonVersion)
		}
	}
	return nil
}

// cacheDir returns the directory for cached index responses and artifacts.
func (c *Config) cacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	return cache.DefaultDir()
}

func (c *Config) cacheTTL() time.Duration {
	if c.Cache.TTL == "" {
		return deps.DefaultCacheTTL
	}
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return deps.DefaultCacheTTL
	}
	return d
}

// openCache builds the configured cache backend.
func (c *Config) openCache(ctx context.Context) (cache.Cache, error) {
	switch c.Cache.Backend {
	case "none":
		return cache.NewNullCache(), nil
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     c.Cache.Redis.Addr,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
		})
	default:
		dir, err := c.cacheDir()
		if err != nil {
			return nil, err
		}
		return cache.NewFileCache(filepath.Join(dir, "index"))
	}
}

// buildEnvironment derives the marker environment: defaults for the
// configured python version, with [environment] overrides applied on top.
func (c *Config) buildEnvironment(pythonVersion string) (*deps.Environment, error) {
	env := deps.DefaultEnvironment(pythonVersion)
	for key, value := range c.Environment {
		switch key {
		case "os_name":
			env.OSName = value
		case "sys_platform":
			env.SysPlatform = value
		case "platform_machine":
			env.PlatformMachine = value
		case "platform_python_implementation":
			env.PlatformPythonImpl = value
		case "platform_release":
			env.PlatformRelease = value
		case "platform_system":
			env.PlatformSystem = value
		case "platform_version":
			env.PlatformVersion = value
		case "implementation_name":
			env.ImplementationName = value
		default:
			return nil, errors.New(errors.ErrCodeInvalidConfig,
				"unknown environment override %q", key)
		}
	}
	return env, nil
}
