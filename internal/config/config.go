// Package config loads dtool settings. The dtool configuration file is JSON,
// which the YAML decoder reads as well, so hand-written YAML files work too.
//
// A Config is loaded once at start-up and passed explicitly to everything
// that needs it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yuya-takeyama/dtool-info/internal/log"
)

const (
	KeyCacheDirectory = "DTOOL_CACHE_DIRECTORY"
	KeyS3Region       = "DTOOL_S3_REGION"
	KeyS3Profile      = "DTOOL_S3_PROFILE"
	KeyS3Endpoint     = "DTOOL_S3_ENDPOINT"
	KeyConcurrency    = "DTOOL_INFO_CONCURRENCY"
	KeyIgnore         = "DTOOL_IGNORE"

	// EnvConfigPath points at the configuration file.
	EnvConfigPath = "DTOOL_CONFIG_PATH"
)

type Config struct {
	// Source is the file the values were read from, empty when none was found.
	Source string `yaml:"-"`

	CacheDirectory string   `yaml:"DTOOL_CACHE_DIRECTORY"`
	S3Region       string   `yaml:"DTOOL_S3_REGION"`
	S3Profile      string   `yaml:"DTOOL_S3_PROFILE"`
	S3Endpoint     string   `yaml:"DTOOL_S3_ENDPOINT"`
	Concurrency    int      `yaml:"DTOOL_INFO_CONCURRENCY"`
	Ignore         []string `yaml:"DTOOL_IGNORE"`
}

// Default returns the configuration used when no file sets a value.
func Default() Config {
	cache := filepath.Join(os.TempDir(), "dtool")
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		cache = filepath.Join(dir, "dtool")
	}
	return Config{
		CacheDirectory: cache,
		Concurrency:    8,
	}
}

// Load reads the configuration file at path, or the default location when
// path is empty, then applies environment overrides. A missing file at the
// default location is not an error; a missing explicit path is.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
			cfg.Source = path
			log.Debugf("using config file: %s", path)
		case errors.Is(err, fs.ErrNotExist) && !explicit:
			log.Debugf("no config file at %s", path)
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultPath returns $DTOOL_CONFIG_PATH, falling back to dtool.json under the
// user configuration directory.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dtool", "dtool.json")
}

func (c *Config) applyEnv() error {
	if v, ok := lookup(KeyCacheDirectory); ok {
		c.CacheDirectory = v
	}
	if v, ok := lookup(KeyS3Region); ok {
		c.S3Region = v
	}
	if v, ok := lookup(KeyS3Profile); ok {
		c.S3Profile = v
	}
	if v, ok := lookup(KeyS3Endpoint); ok {
		c.S3Endpoint = v
	}
	if v, ok := lookup(KeyConcurrency); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", KeyConcurrency, v)
		}
		c.Concurrency = n
	}
	if v, ok := lookup(KeyIgnore); ok {
		c.Ignore = splitPatterns(v)
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// splitPatterns splits a comma separated list, dropping empty entries.
func splitPatterns(s string) []string {
	var patterns []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}
