package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables consulted by the factory.
const (
	EnvProvider     = "DOCRAG_EMBEDDING_PROVIDER"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"
)

// Config holds embedder configuration.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	CacheSize int
}

// New creates an embedder with explicit configuration. An empty APIKey falls
// back to the provider's environment variable.
func New(cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv(EnvOpenAIAPIKey)
		}
		return NewOpenAIProvider(key, cfg.Model, cache)
	case ProviderJina:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv(EnvJinaAPIKey)
		}
		return NewJinaProvider(key, cfg.Model, cache)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// NewFromEnv creates an embedder from environment variables alone.
// Priority:
//  1. DOCRAG_EMBEDDING_PROVIDER, when set, picks the provider explicitly.
//  2. Otherwise the first of OPENAI_API_KEY, JINA_API_KEY that is set wins.
func NewFromEnv() (Embedder, error) {
	if provider := os.Getenv(EnvProvider); provider != "" {
		return New(Config{Provider: provider})
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return New(Config{Provider: ProviderOpenAI})
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return New(Config{Provider: ProviderJina})
	}
	return nil, fmt.Errorf("%w: set %s or %s", ErrNoProviderEnabled, EnvOpenAIAPIKey, EnvJinaAPIKey)
}
