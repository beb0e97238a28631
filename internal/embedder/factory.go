package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/regs-mcp/internal/metrics"
)

// Environment variables
const (
	EnvProvider     = "REGS_EMBEDDING_PROVIDER"
	EnvHost         = "REGS_EMBEDDING_HOST"
	EnvModel        = "REGS_EMBEDDING_MODEL"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"
)

// Config holds embedder configuration
type Config struct {
	Provider string
	APIKey   string // Falls back to the provider's key variable
	Host     string // Base URL; empty uses the provider default
	Model    string // Empty uses the provider default

	// CacheSize bounds the embedding cache. 0 uses DefaultCacheSize, negative disables caching.
	CacheSize int
	Timeout   time.Duration
	Retry     RetryConfig

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// ConfigFromEnv reads provider settings from the environment
func ConfigFromEnv() Config {
	return Config{
		Provider: DetectProvider(),
		Host:     os.Getenv(EnvHost),
		Model:    os.Getenv(EnvModel),
		Logger:   zerolog.Nop(),
	}
}

// NewFromEnv creates an embedder from environment variables
func NewFromEnv() (*Client, error) {
	return New(ConfigFromEnv())
}

// New creates an embedder with explicit configuration
func New(cfg Config) (*Client, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = DetectProvider()
	}

	switch provider {
	case ProviderOpenAI:
		key := firstNonEmpty(cfg.APIKey, os.Getenv(EnvOpenAIAPIKey))
		if key == "" {
			return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
		}
		model := firstNonEmpty(cfg.Model, DefaultOpenAIModel)
		b := newHTTPBackend(firstNonEmpty(cfg.Host, DefaultOpenAIHost), key, cfg.Timeout)
		return newClient(ProviderOpenAI, model, knownDimension(model), b, cfg), nil

	case ProviderJina:
		key := firstNonEmpty(cfg.APIKey, os.Getenv(EnvJinaAPIKey))
		if key == "" {
			return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
		}
		model := firstNonEmpty(cfg.Model, DefaultJinaModel)
		b := newHTTPBackend(firstNonEmpty(cfg.Host, DefaultJinaHost), key, cfg.Timeout)
		return newClient(ProviderJina, model, knownDimension(model), b, cfg), nil

	case ProviderCompat:
		model := firstNonEmpty(cfg.Model, DefaultCompatModel)
		b, err := newCompatBackend(firstNonEmpty(cfg.Host, DefaultCompatHost), model, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		// Dimension is learned from the first response
		return newClient(ProviderCompat, model, 0, b, cfg), nil

	case ProviderLocal:
		return newClient(ProviderLocal, DefaultLocalModel, LocalDimension, &localBackend{dimension: LocalDimension}, cfg), nil

	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider NewFromEnv would choose
func DetectProvider() string {
	if p := os.Getenv(EnvProvider); p != "" {
		return strings.ToLower(p)
	}
	if os.Getenv(EnvHost) != "" {
		return ProviderCompat
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	return ProviderLocal
}

// knownDimension returns the dimension of well-known models, 0 otherwise
func knownDimension(model string) int {
	switch model {
	case "text-embedding-3-small", "text-embedding-ada-002":
		return OpenAIDimension
	case "text-embedding-3-large":
		return 3072
	case DefaultJinaModel:
		return JinaDimension
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
