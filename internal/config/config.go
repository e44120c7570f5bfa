// Package config loads strata.yaml. Every field has a default, so a missing
// file is not an error; command-line flags override the loaded values.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/strata/pkg/cache"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "strata.yaml"

// EnvRunKey overrides Runs.EncryptionKey.
const EnvRunKey = "STRATA_RUN_KEY"

type Config struct {
	Store  Store  `yaml:"store"`
	Cache  Cache  `yaml:"cache"`
	Runs   Runs   `yaml:"runs"`
	Tools  Tools  `yaml:"tools"`
	Export Export `yaml:"export"`
	HTTP   HTTP   `yaml:"http"`
}

// Store locates the layer database.
type Store struct {
	Path string `yaml:"path"`
}

type Cache struct {
	Size   int  `yaml:"size"`
	Verify bool `yaml:"verify"`
}

// Runs selects where run state is persisted: "file", "redis" or "sqlite".
type Runs struct {
	Backend     string        `yaml:"backend"`
	Dir         string        `yaml:"dir"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	TTL         time.Duration `yaml:"ttl"`
	// EncryptionKey is a hex encoded AES-256 key. When set, run states are
	// sealed before they reach the backend.
	EncryptionKey string `yaml:"encryption_key"`
}

type Tools struct {
	File        string        `yaml:"file"`
	AllowInline bool          `yaml:"allow_inline"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Export selects where Output steps write: "file" or "s3".
type Export struct {
	Backend   string `yaml:"backend"`
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Store:  Store{Path: ".strata/layers.db"},
		Cache:  Cache{Size: cache.DefaultSize},
		Runs:   Runs{Backend: "file", Dir: ".strata/runs", RedisPrefix: "strata:run:"},
		Tools:  Tools{File: "tools.yaml", AllowInline: true},
		Export: Export{Backend: "file", Dir: "."},
		HTTP:   HTTP{Addr: ":8080"},
	}
}

// Load reads path on top of the defaults. A missing file yields the
// defaults; unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if key := os.Getenv(EnvRunKey); key != "" {
		cfg.Runs.EncryptionKey = key
	}
	return cfg, cfg.Validate()
}

// Validate checks the enumerated fields.
func (c Config) Validate() error {
	switch c.Runs.Backend {
	case "file", "redis", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown runs backend %q", c.Runs.Backend)
	}
	if c.Runs.Backend == "redis" && c.Runs.RedisAddr == "" {
		return errors.New("runs.redis_addr is required for the redis backend")
	}
	switch c.Export.Backend {
	case "file":
	case "s3":
		if c.Export.Bucket == "" {
			return errors.New("export.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown export backend %q", c.Export.Backend)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative, got %d", c.Cache.Size)
	}
	if _, err := c.Runs.Key(); err != nil {
		return err
	}
	return nil
}

// Key decodes EncryptionKey. It returns nil when encryption is disabled.
func (r Runs) Key() ([]byte, error) {
	if r.EncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(r.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("runs.encryption_key is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("runs.encryption_key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
