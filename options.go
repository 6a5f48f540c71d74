package ragstore

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/ragstore/internal/config"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	dataDir   string
	embedding config.EmbeddingConfig
	embedder  Embedder

	eviction string
	lruSize  int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithDataDir sets the directory holding collection databases and index files.
// Defaults to "data".
func WithDataDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.dataDir = dir
	})
}

// WithEmbedder registers a caller-supplied embedder. It serves builds and
// searches that name its model or no model at all.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithProvider selects the default built-in provider (openai, azure, ollama,
// hashing) and model. Credentials default to the provider's environment
// variables (OPENAI_API_KEY, AZURE_OPENAI_API_KEY, OLLAMA_HOST).
func WithProvider(name, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedding.Provider = name
		c.embedding.Model = model
	})
}

// WithProviderConfig sets credentials and endpoints of one provider.
func WithProviderConfig(name, apiKey, baseURL string) Option {
	return optionFunc(func(c *clientConfig) {
		if c.embedding.Providers == nil {
			c.embedding.Providers = make(map[string]config.ProviderConfig)
		}
		p := c.embedding.Providers[name]
		p.APIKey = apiKey
		p.BaseURL = baseURL
		c.embedding.Providers[name] = p
	})
}

// WithDimensions sets the output size requested from providers that support
// it. For the hashing provider it is the vector size.
func WithDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedding.Dimensions = dim
	})
}

// WithEviction keeps at most size indexes resident, evicting the least
// recently used. size <= 0 keeps every loaded index (default).
func WithEviction(size int) Option {
	return optionFunc(func(c *clientConfig) {
		if size > 0 {
			c.eviction = "lru"
			c.lruSize = size
		}
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}

// BuildOption configures one Build call.
type BuildOption func(*buildConfig)

type buildConfig struct {
	description string
	provider    string
	model       string
	overwrite   bool
}

// WithDescription stores a description on the collection.
func WithDescription(d string) BuildOption {
	return func(c *buildConfig) { c.description = d }
}

// WithModel embeds with an explicit provider and model. An empty provider
// resolves from the model name or falls back to the default provider.
func WithModel(provider, model string) BuildOption {
	return func(c *buildConfig) {
		c.provider = provider
		c.model = model
	}
}

// Overwrite re-embeds every document into a fresh index. It may rebind the
// collection to a different model.
func Overwrite() BuildOption {
	return func(c *buildConfig) { c.overwrite = true }
}
