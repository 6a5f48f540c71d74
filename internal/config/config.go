package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the ragstore configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
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

// StorageConfig holds the on-disk layout.
type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

// CacheConfig holds the optional Redis/Valkey connection for the embedding
// cache and budget counters. Empty Addrs disables it.
type CacheConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	TTLHours         int      `yaml:"ttl_hours"` // 0 = keep forever
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether a cache server is configured.
func (c CacheConfig) Enabled() bool { return len(c.Addrs) > 0 }

// IndexConfig holds resident vector index settings.
type IndexConfig struct {
	Eviction string `yaml:"eviction"` // never (default) | lru
	LRUSize  int    `yaml:"lru_size"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	DefaultTopK  int     `yaml:"default_top_k"`
	DefaultAlpha float64 `yaml:"default_alpha"` // 0 = 0.5
}

// EmbeddingConfig holds embedding settings. Provider and Model are the
// defaults for builds and searches that do not name their own.
type EmbeddingConfig struct {
	Provider    string                    `yaml:"provider"`
	Model       string                    `yaml:"model"`
	Dimensions  int                       `yaml:"dimensions"`
	BatchSize   int                       `yaml:"batch_size"`
	MaxRetries  int                       `yaml:"max_retries"`
	RetryBaseMS int                       `yaml:"retry_base_ms"`
	RetryMaxMS  int                       `yaml:"retry_max_ms"`
	TimeoutSec  int                       `yaml:"timeout_sec"`
	Providers   map[string]ProviderConfig `yaml:"providers"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// ProviderConfig holds credentials and endpoints of one embedding provider.
type ProviderConfig struct {
	APIKey     string       `yaml:"api_key"`
	BaseURL    string       `yaml:"base_url"`
	APIVersion string       `yaml:"api_version"`
	Deployment string       `yaml:"deployment"`
	Budget     BudgetConfig `yaml:"budget"`
}

// Known embedding providers.
var knownProviders = map[string]bool{"openai": true, "azure": true, "ollama": true, "hashing": true}

// envCredentials fills provider credentials left empty in the file.
var envCredentials = map[string][2]string{
	"openai": {"OPENAI_API_KEY", "OPENAI_BASE_URL"},
	"azure":  {"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT"},
	"ollama": {"", "OLLAMA_HOST"},
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory, if present, is loaded first.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
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
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.BusyTimeoutMS <= 0 {
		c.Storage.BusyTimeoutMS = 5000
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "hashing"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Embedding.MaxRetries == 0 {
		c.Embedding.MaxRetries = 3
	}
	if c.Embedding.RetryBaseMS <= 0 {
		c.Embedding.RetryBaseMS = 500
	}
	if c.Embedding.RetryMaxMS <= 0 {
		c.Embedding.RetryMaxMS = 30000
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Embedding.Providers == nil {
		c.Embedding.Providers = make(map[string]ProviderConfig)
	}
	for name, vars := range envCredentials {
		p := c.Embedding.Providers[name]
		if p.APIKey == "" && vars[0] != "" {
			p.APIKey = os.Getenv(vars[0])
		}
		if p.BaseURL == "" && vars[1] != "" {
			p.BaseURL = os.Getenv(vars[1])
		}
		c.Embedding.Providers[name] = p
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Index.Eviction == "" {
		c.Index.Eviction = "never"
	}
	if c.Index.Eviction == "lru" && c.Index.LRUSize <= 0 {
		c.Index.LRUSize = 16
	}
	if c.Search.DefaultTopK <= 0 {
		c.Search.DefaultTopK = 10
	}
	if c.Search.DefaultAlpha == 0 {
		c.Search.DefaultAlpha = 0.5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if !knownProviders[c.Embedding.Provider] {
		return fmt.Errorf("embedding.provider %q is not one of openai, azure, ollama, hashing", c.Embedding.Provider)
	}
	for name, p := range c.Embedding.Providers {
		switch p.Budget.Action {
		case "", "warn", "reject":
			// ok
		default:
			return fmt.Errorf(
				"embedding.providers.%s.budget.action must be \"warn\" or \"reject\", got %q",
				name, p.Budget.Action,
			)
		}
	}
	switch c.Index.Eviction {
	case "never", "lru":
	default:
		return fmt.Errorf("index.eviction must be \"never\" or \"lru\", got %q", c.Index.Eviction)
	}
	if c.Search.DefaultTopK > 1000 {
		return fmt.Errorf("search.default_top_k must be at most 1000, got %d", c.Search.DefaultTopK)
	}
	if c.Search.DefaultAlpha < 0 || c.Search.DefaultAlpha > 1 {
		return fmt.Errorf("search.default_alpha must be in [0, 1], got %v", c.Search.DefaultAlpha)
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
