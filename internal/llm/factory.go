package llm

import (
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

// Config selects and tunes the response generator.
type Config struct {
	Provider         string        `mapstructure:"provider" yaml:"provider"`
	Model            string        `mapstructure:"model" yaml:"model,omitempty"`
	Endpoint         string        `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	APIKey           string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Temperature      float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens        int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	FallbackProvider string        `mapstructure:"fallback_provider" yaml:"fallback_provider,omitempty"`
	Mock             MockConfig    `mapstructure:"mock" yaml:"mock"`
}

// DefaultConfig uses the mock provider so the runtime works offline.
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderMock,
		Temperature: 0.7,
		MaxTokens:   500,
		Timeout:     30 * time.Second,
		Mock:        DefaultMockConfig(),
	}
}

// KnownProviders lists the provider names NewProvider understands.
func KnownProviders() []string {
	return []string{ProviderAnthropic, ProviderMock, ProviderOllama, ProviderOpenAI}
}

// IsKnownProvider reports whether name is a known provider.
func IsKnownProvider(name string) bool {
	return slices.Contains(KnownProviders(), name)
}

// apiKeyFromEnv returns the conventional environment API key for a provider.
func apiKeyFromEnv(providerName string) string {
	envVars := map[string]string{
		ProviderOpenAI:    "OPENAI_API_KEY",
		ProviderAnthropic: "ANTHROPIC_API_KEY",
	}
	if envVar, ok := envVars[providerName]; ok {
		return os.Getenv(envVar)
	}
	return ""
}

// providerConfig builds the ProviderConfig for name. Model, endpoint and
// key from cfg apply only to the primary provider.
func (c Config) providerConfig(name string) *ProviderConfig {
	pc := DefaultProviderConfig(name)
	if c.Temperature > 0 {
		pc.Temperature = c.Temperature
	}
	if c.MaxTokens > 0 {
		pc.MaxTokens = c.MaxTokens
	}
	if c.Timeout > 0 {
		pc.Timeout = c.Timeout
	}
	if name == c.Provider {
		if c.Model != "" {
			pc.Model = c.Model
		}
		if c.Endpoint != "" {
			pc.Endpoint = c.Endpoint
		}
		pc.APIKey = c.APIKey
	}
	if pc.APIKey == "" {
		pc.APIKey = apiKeyFromEnv(name)
	}
	return pc
}

// NewProvider builds the named provider. Unknown names resolve to the mock.
func NewProvider(name string, cfg Config, log zerolog.Logger) Provider {
	switch name {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.providerConfig(name))
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg.providerConfig(name))
	case ProviderOllama:
		return NewOllamaProvider(cfg.providerConfig(name))
	case ProviderMock:
		return NewMockProvider(cfg.Mock)
	default:
		log.Warn().Str("provider", name).Msg("unknown llm provider, using mock")
		return NewMockProvider(cfg.Mock)
	}
}
