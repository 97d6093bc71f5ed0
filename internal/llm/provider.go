// Package llm turns a fused context plus a policy text into a response
// text. Providers: openai, anthropic, ollama (local) and a deterministic
// mock used when no model is reachable.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxErrorBodySize limits how much of an error response body is read.
const MaxErrorBodySize = 1 * 1024 * 1024

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// readLimitedBody reads up to maxBytes from r.
func readLimitedBody(r io.Reader, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBytes))
}

// Provider is a chat-completion backend.
type Provider interface {
	// Chat sends a request and returns the completion.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier.
	Name() string

	// Available reports whether the provider is configured.
	Available() bool
}

// ChatRequest is a single completion request.
type ChatRequest struct {
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	Temperature  float64   `json:"temperature,omitempty"`

	// Context is the fused payload the messages were rendered from. HTTP
	// providers ignore it; the mock provider reads it.
	Context map[string]any `json:"-"`
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatResponse is the provider's completion.
type ChatResponse struct {
	Content          string        `json:"content"`
	Model            string        `json:"model"`
	TokensUsed       int           `json:"tokens_used,omitempty"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	Duration         time.Duration `json:"duration"`
	FinishReason     string        `json:"finish_reason,omitempty"`
}

// ProviderConfig configures one provider.
type ProviderConfig struct {
	Name        string
	Endpoint    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultProviderConfig returns the defaults for a provider name.
func DefaultProviderConfig(name string) *ProviderConfig {
	cfg := &ProviderConfig{
		Name:        name,
		MaxTokens:   500,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
	}
	switch name {
	case ProviderOpenAI:
		cfg.Endpoint = "https://api.openai.com/v1"
		cfg.Model = "gpt-4o-mini"
	case ProviderAnthropic:
		cfg.Endpoint = "https://api.anthropic.com"
		cfg.Model = "claude-3-5-haiku-latest"
	case ProviderOllama:
		cfg.Endpoint = "http://127.0.0.1:11434"
		cfg.Model = "llama3.1:8b"
	case ProviderMock:
		cfg.Model = "mock-model"
	}
	return cfg
}

// ═══════════════════════════════════════════════════════════════════════════════
// BASE PROVIDER (shared by the HTTP providers)
// ═══════════════════════════════════════════════════════════════════════════════

type baseProvider struct {
	config *ProviderConfig
	client *http.Client
}

func newBaseProvider(cfg *ProviderConfig, providerName string) baseProvider {
	defaults := DefaultProviderConfig(providerName)
	if cfg == nil {
		cfg = defaults
	}
	merged := *cfg
	if merged.Endpoint == "" {
		merged.Endpoint = defaults.Endpoint
	}
	if merged.Model == "" {
		merged.Model = defaults.Model
	}
	if merged.MaxTokens <= 0 {
		merged.MaxTokens = defaults.MaxTokens
	}
	if merged.Timeout <= 0 {
		merged.Timeout = defaults.Timeout
	}
	merged.Name = providerName

	return baseProvider{
		config: &merged,
		client: &http.Client{Timeout: merged.Timeout},
	}
}

// Name returns the provider identifier.
func (b *baseProvider) Name() string {
	return b.config.Name
}

// Available checks that an API key is configured.
func (b *baseProvider) Available() bool {
	return b.config.APIKey != ""
}

func (b *baseProvider) model(req *ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return b.config.Model
}

func (b *baseProvider) maxTokens(req *ChatRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return b.config.MaxTokens
}

func (b *baseProvider) temperature(req *ChatRequest) float64 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return b.config.Temperature
}

// postJSON posts payload to path and decodes a 200 response into out. label
// prefixes non-200 errors.
func (b *baseProvider) postJSON(ctx context.Context, path string, headers map[string]string, payload, out any, label string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.config.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return fmt.Errorf("%s error (status %d): %s", label, resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
