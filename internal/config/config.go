// Package config provides configuration loading and structs for the thesislens server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles the query routes. RequestsPerSecond <= 0 disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// StoreConfig selects and configures the external thesis document store.
type StoreConfig struct {
	Driver string       `yaml:"driver"` // "mongo" or "sqlite"
	Mongo  MongoConfig  `yaml:"mongo"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI            string `yaml:"uri"`
	Database       string `yaml:"database"`
	Collection     string `yaml:"collection"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SQLiteConfig holds the path of the local SQLite thesis store.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "onnx" or "hashing"
	Fallback   string `yaml:"fallback"` // "" or "hashing"; used only when the onnx model fails to load
	ModelPath  string `yaml:"model_path"`
	VocabPath  string `yaml:"vocab_path"`
	ModelName  string `yaml:"model_name"`
	OutputName string `yaml:"output_name"`
	Pooling    string `yaml:"pooling"` // "cls" or "mean"
	Normalize  bool   `yaml:"normalize"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	BatchSize  int    `yaml:"batch_size"`
	Workers    int    `yaml:"workers"`
}

// IndexConfig holds vector index and persistence settings.
type IndexConfig struct {
	Type        string `yaml:"type"` // "flat" or "faiss"
	Dir         string `yaml:"dir"`
	Compression string `yaml:"compression"` // "none" or "zstd"
	Warmup      string `yaml:"warmup"`      // "sync" or "async"
	UseFullText bool   `yaml:"use_full_text"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
}

// Environment variables that override values from the config file.
const (
	EnvMongoURI    = "THESISLENS_MONGO_URI"
	EnvStoreDriver = "THESISLENS_STORE_DRIVER"
	EnvSQLitePath  = "THESISLENS_SQLITE_PATH"
	EnvIndexDir    = "THESISLENS_INDEX_DIR"
	EnvPort        = "THESISLENS_PORT"
)

// Load reads and parses the config file at path, applies environment overrides,
// expands paths, and applies defaults. A .env file next to the config (or in the
// working directory) is loaded first when present.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	loadDotEnv(configDir)
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	cfg.Store.SQLite.Path = expandPath(cfg.Store.SQLite.Path, configDir)
	cfg.Index.Dir = expandPath(cfg.Index.Dir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Embedding.VocabPath != "" {
		cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	}

	return &cfg, nil
}

// ApplyEnv overrides cfg with any THESISLENS_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvMongoURI); v != "" {
		cfg.Store.Mongo.URI = v
	}
	if v := os.Getenv(EnvStoreDriver); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv(EnvSQLitePath); v != "" {
		cfg.Store.SQLite.Path = v
	}
	if v := os.Getenv(EnvIndexDir); v != "" {
		cfg.Index.Dir = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Server.Port = port
	}
	return nil
}

// loadDotEnv loads .env files without overriding variables already set in the environment.
func loadDotEnv(configDir string) {
	candidates := []string{filepath.Join(configDir, ".env"), ".env"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// Validate reports configuration errors that would prevent the service from starting.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "mongo":
		if c.Store.Mongo.URI == "" {
			return fmt.Errorf("store.mongo.uri is required for the mongo driver")
		}
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q (supported: mongo, sqlite)", c.Store.Driver)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}
	switch c.Embedding.Fallback {
	case "", "hashing":
	default:
		return fmt.Errorf("unknown embedding.fallback %q (supported: hashing)", c.Embedding.Fallback)
	}
	switch c.Index.Warmup {
	case "sync", "async":
	default:
		return fmt.Errorf("unknown index.warmup %q (supported: sync, async)", c.Index.Warmup)
	}
	switch c.Index.Compression {
	case "none", "zstd":
	default:
		return fmt.Errorf("unknown index.compression %q (supported: none, zstd)", c.Index.Compression)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
