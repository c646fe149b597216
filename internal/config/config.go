package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the nestvector service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Index      IndexConfig      `yaml:"index"`
	Storage    StorageConfig    `yaml:"storage"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheTTL   int    `yaml:"cache_ttl_sec"` // 0 = no expiry
}

// GenerationConfig holds the answer generation provider settings.
// An empty api_key disables generation: queries return raw contexts.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	Workers       int  `yaml:"workers"`
	BatchSize     int  `yaml:"batch_size"`
	ForceRecreate bool `yaml:"force_recreate"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Algorithm       string `yaml:"algorithm"` // hnsw, flat (default: hnsw)
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
	DefaultTopK     int    `yaml:"default_top_k"`
	MaxTopK         int    `yaml:"max_top_k"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
	Table     string `yaml:"table"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = "openai"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gpt-4o-mini"
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 512
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 64
	}
	if c.Index.Algorithm == "" {
		c.Index.Algorithm = "hnsw"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Index.DefaultTopK <= 0 {
		c.Index.DefaultTopK = 5
	}
	if c.Index.MaxTopK <= 0 {
		c.Index.MaxTopK = 100
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "nestvector:"
	}
	if c.Storage.Table == "" {
		c.Storage.Table = "listings"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Database.Driver {
	case "redis", "valkey":
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"valkey\", got %q", c.Database.Driver)
	}
	switch c.Index.Algorithm {
	case "hnsw", "flat":
	default:
		return fmt.Errorf("index.algorithm must be \"hnsw\" or \"flat\", got %q", c.Index.Algorithm)
	}
	if c.Index.DefaultTopK > c.Index.MaxTopK {
		return fmt.Errorf("index.default_top_k (%d) exceeds index.max_top_k (%d)",
			c.Index.DefaultTopK, c.Index.MaxTopK)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be in [0, 2], got %g", c.Generation.Temperature)
	}
	if c.Embedding.CacheTTL < 0 {
		return fmt.Errorf("embedding.cache_ttl_sec must not be negative, got %d", c.Embedding.CacheTTL)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
