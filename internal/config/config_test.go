package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
store:
  driver: sqlite
  sqlite:
    path: "theses.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Store.Driver)
	}
	if !filepath.IsAbs(cfg.Store.SQLite.Path) {
		t.Errorf("sqlite path should be absolute, got %s", cfg.Store.SQLite.Path)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
store:
  driver: sqlite
  sqlite:
    path: "./data/theses.db"
index:
  dir: "./data/index"
embedding:
  model_path: "./models/model.onnx"
  vocab_path: "./models/vocab.txt"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "theses.db"); cfg.Store.SQLite.Path != want {
		t.Errorf("sqlite path = %s, want %s", cfg.Store.SQLite.Path, want)
	}
	if want := filepath.Join(dir, "data", "index"); cfg.Index.Dir != want {
		t.Errorf("index dir = %s, want %s", cfg.Index.Dir, want)
	}
	if want := filepath.Join(dir, "models", "vocab.txt"); cfg.Embedding.VocabPath != want {
		t.Errorf("vocab path = %s, want %s", cfg.Embedding.VocabPath, want)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvMongoURI, "mongodb://db.internal:27017/")
	t.Setenv(EnvPort, "7001")
	t.Setenv(EnvIndexDir, "/srv/index")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Mongo.URI != "mongodb://db.internal:27017/" {
		t.Errorf("mongo uri = %s", cfg.Store.Mongo.URI)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("port = %d, want 7001", cfg.Server.Port)
	}
	if cfg.Index.Dir != "/srv/index" {
		t.Errorf("index dir = %s", cfg.Index.Dir)
	}
}

func TestLoad_invalidPortEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: false\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPort, "not-a-port")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid port override")
	}
}

func TestLoad_dotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: false\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvStoreDriver+"=sqlite\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv(EnvStoreDriver) })

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("driver from .env = %q, want sqlite", cfg.Store.Driver)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 5002 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Store.Driver != "mongo" || cfg.Store.Mongo.Collection != "theses" {
		t.Errorf("default store: got %+v", cfg.Store)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("default dimensions: got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Search.DefaultTopK != 5 {
		t.Errorf("default top_k: got %d, want 5", cfg.Search.DefaultTopK)
	}
	if cfg.Index.Type != "flat" || cfg.Index.Warmup != "sync" || cfg.Index.Compression != "none" {
		t.Errorf("default index: got %+v", cfg.Index)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_rateLimitBurst(t *testing.T) {
	cfg := &Config{Server: ServerConfig{RateLimit: RateLimitConfig{RequestsPerSecond: 0.5}}}
	ApplyDefaults(cfg)
	if cfg.Server.RateLimit.Burst != 1 {
		t.Errorf("burst = %d, want 1", cfg.Server.RateLimit.Burst)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"mongo without uri", func(c *Config) { c.Store.Mongo.URI = "" }},
		{"zero dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }},
		{"bad fallback", func(c *Config) { c.Embedding.Fallback = "random" }},
		{"bad warmup", func(c *Config) { c.Index.Warmup = "lazy" }},
		{"bad compression", func(c *Config) { c.Index.Compression = "gzip" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server: ServerConfig{Host: "localhost", Port: 9090},
		Store:  StoreConfig{Driver: "sqlite", SQLite: SQLiteConfig{Path: "/tmp/theses.db"}},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Store.SQLite.Path != "/tmp/theses.db" {
		t.Errorf("loaded sqlite path: got %s", loaded.Store.SQLite.Path)
	}
}
