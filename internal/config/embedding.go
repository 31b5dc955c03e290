package config

import (
	"fmt"
	"os"
)

// EmbeddingConfig describes the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	Provider          string  `mapstructure:"provider"` // openai-compatible, jina
	Model             string  `mapstructure:"model"`
	APIKey            string  `mapstructure:"api_key"`
	APIKeyEnv         string  `mapstructure:"api_key_env"`
	BaseURL           string  `mapstructure:"base_url"`
	Dimensions        int     `mapstructure:"dimensions"`
	BatchSize         int     `mapstructure:"batch_size"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// ResolveEnvVars fills APIKey from APIKeyEnv when it is not set directly.
func (c *EmbeddingConfig) ResolveEnvVars() {
	if c.APIKey == "" && c.APIKeyEnv != "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
}

// Validate checks the static shape. A missing API key is not an error here:
// the embedder reports it as unavailable at call time.
func (c *EmbeddingConfig) Validate() error {
	switch c.Provider {
	case "openai-compatible", "jina":
	default:
		return fmt.Errorf("embedding: unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("embedding: model is required")
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("embedding: dimensions must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("embedding: batch_size must be positive")
	}
	return nil
}
