package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// ErrMockInjected is returned when the mock's error rate fires.
var ErrMockInjected = errors.New("mock provider: injected error")

// MockConfig tunes the mock provider.
type MockConfig struct {
	// ResponseDelay is waited before every reply.
	ResponseDelay time.Duration `mapstructure:"response_delay" yaml:"response_delay"`

	// Reply, when set, is returned verbatim instead of the generated text.
	Reply string `mapstructure:"reply" yaml:"reply,omitempty"`

	// Template is returned when the reply cannot be built.
	Template string `mapstructure:"response_template" yaml:"response_template"`

	// ErrorRate is the probability in [0,1] of failing a call.
	ErrorRate float64 `mapstructure:"error_rate" yaml:"error_rate"`
}

// DefaultMockConfig returns the mock defaults.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		ResponseDelay: 100 * time.Millisecond,
		Template:      "Olá! Sou o G1 e estou funcionando corretamente.",
	}
}

// MockProvider builds a deterministic Portuguese reply from the fused
// payload. It never leaves the process.
type MockProvider struct {
	cfg   MockConfig
	model string
}

// NewMockProvider creates a mock provider.
func NewMockProvider(cfg MockConfig) *MockProvider {
	if cfg.Template == "" {
		cfg.Template = DefaultMockConfig().Template
	}
	return &MockProvider{cfg: cfg, model: DefaultProviderConfig(ProviderMock).Model}
}

// Name returns "mock".
func (p *MockProvider) Name() string { return ProviderMock }

// Available always reports true.
func (p *MockProvider) Available() bool { return true }

// Chat waits the configured delay and replies.
func (p *MockProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	if p.cfg.ResponseDelay > 0 {
		timer := time.NewTimer(p.cfg.ResponseDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if p.cfg.ErrorRate > 0 && rand.Float64() < p.cfg.ErrorRate {
		return nil, ErrMockInjected
	}

	content := p.cfg.Reply
	if content == "" {
		content = p.compose(req.SystemPrompt, req.Context)
	}
	return &ChatResponse{
		Content:      content,
		Model:        p.model,
		TokensUsed:   len(strings.Fields(content)),
		Duration:     time.Since(start),
		FinishReason: "stop",
	}, nil
}

func (p *MockProvider) compose(policy string, data map[string]any) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			reply = p.cfg.Template
		}
	}()

	policy = strings.ToLower(policy)
	var parts []string
	switch {
	case strings.Contains(policy, "assistente"):
		parts = append(parts, "Olá! Sou seu assistente robótico G1.")
	case strings.Contains(policy, "companheiro"):
		parts = append(parts, "Oi! Que bom ver você! Sou seu companheiro G1.")
	default:
		parts = append(parts, "Olá! Sou o G1.")
	}

	flat := strings.ToLower(fmt.Sprint(data))
	if len(data) > 0 {
		if has(data, "voice_data", "transcription") || strings.Contains(flat, "audio") {
			parts = append(parts, "Entendi o que você disse!")
		}
		if v, ok := data["battery"]; ok {
			parts = append(parts, "Minha bateria está em "+plain(v)+"%.")
		}
		if v, ok := data["temperature"]; ok {
			parts = append(parts, "Minha temperatura está em "+plain(v)+"°C.")
		}
		if has(data, "gps", "location") {
			parts = append(parts, "Estou ciente da minha localização.")
		}
		if has(data, "posture", "movement") {
			parts = append(parts, "Estou monitorando meu movimento e postura.")
		}
	}
	if len(parts) == 1 {
		parts = append(parts, "Estou funcionando perfeitamente e pronto para ajudar!")
	}
	if strings.Contains(flat, "emotion") {
		parts = append(parts, "Estou sentindo muito bem hoje!")
	}
	return strings.Join(parts, " ")
}

func has(data map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := data[k]; ok {
			return true
		}
	}
	return false
}

func plain(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	}
	return fmt.Sprint(v)
}
