package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/t031a5/internal/metrics"
	"github.com/normanking/t031a5/internal/plugin"
	"github.com/normanking/t031a5/pkg/types"
)

// ErrNoResponse means no provider produced usable text. Callers treat it as
// a silent cycle end.
var ErrNoResponse = errors.New("no response generated")

// noDataPlaceholder is sent as the user message when the fused payload is
// empty.
const noDataPlaceholder = "Nenhum dado disponível"

// Response is a generated reply.
type Response struct {
	Content      string        `json:"content"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Tokens       int           `json:"tokens_used"`
	Duration     time.Duration `json:"duration"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
	Fallback     bool          `json:"fallback,omitempty"`
}

// GeneratorStatus describes the generator for status reports.
type GeneratorStatus struct {
	Provider    string         `json:"provider"`
	Fallback    string         `json:"fallback_provider,omitempty"`
	Available   bool           `json:"available"`
	Running     bool           `json:"running"`
	Timeout     time.Duration  `json:"timeout"`
	Stats       ProviderStats  `json:"stats"`
	FallbackUse *ProviderStats `json:"fallback_stats,omitempty"`
}

// Generator turns a fused context plus a policy text into a reply, trying
// the fallback provider when the primary fails or returns empty text.
type Generator struct {
	cfg      Config
	log      zerolog.Logger
	primary  *MetricsProvider
	fallback *MetricsProvider

	mu      sync.Mutex
	running bool
}

// NewGenerator builds the generator described by cfg. prom may be nil.
func NewGenerator(cfg Config, log zerolog.Logger, prom *metrics.Metrics) *Generator {
	log = log.With().Str("component", "llm").Logger()
	if cfg.Provider == "" {
		cfg.Provider = ProviderMock
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	g := &Generator{
		cfg:     cfg,
		log:     log,
		primary: NewMetricsProvider(NewProvider(cfg.Provider, cfg, log), log, prom),
	}
	if fb := cfg.FallbackProvider; fb != "" && fb != cfg.Provider {
		g.fallback = NewMetricsProvider(NewProvider(fb, cfg, log), log, prom)
	}
	return g
}

// NewGeneratorWithProviders builds a generator around explicit providers.
// fallback may be nil.
func NewGeneratorWithProviders(cfg Config, primary, fallback Provider, log zerolog.Logger, prom *metrics.Metrics) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	log = log.With().Str("component", "llm").Logger()
	g := &Generator{
		cfg:     cfg,
		log:     log,
		primary: NewMetricsProvider(primary, log, prom),
	}
	if fallback != nil {
		g.fallback = NewMetricsProvider(fallback, log, prom)
	}
	return g
}

// Initialize marks the generator ready and warns when the primary provider
// is not configured.
func (g *Generator) Initialize(ctx context.Context) error {
	if !g.primary.Available() {
		g.log.Warn().Str("provider", g.primary.Name()).Msg("llm provider not available, replies will fail over")
	}
	g.mu.Lock()
	g.running = true
	g.mu.Unlock()
	g.log.Info().Str("provider", g.primary.Name()).Msg("response generator ready")
	return nil
}

// Stop marks the generator stopped. In-flight calls are bounded by their
// own context.
func (g *Generator) Stop(ctx context.Context) error {
	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
	return nil
}

// Name returns the primary provider name.
func (g *Generator) Name() string { return g.primary.Name() }

// Process generates a reply for fused using policy as the system prompt.
// The call is bounded by the configured timeout. A nil fused context is
// treated as an empty one.
func (g *Generator) Process(ctx context.Context, fused *types.FusedContext, policy string) (*Response, error) {
	req := &ChatRequest{
		SystemPrompt: policy,
		Messages:     []Message{{Role: "user", Content: UserMessage(fused)}},
		MaxTokens:    g.cfg.MaxTokens,
		Temperature:  g.cfg.Temperature,
	}
	if fused != nil {
		req.Context = fused.Data
	}

	resp, err := g.try(ctx, g.primary, req)
	if err == nil {
		return resp, nil
	}
	if g.fallback == nil || ctx.Err() != nil {
		return nil, err
	}

	g.log.Info().Err(err).Str("fallback", g.fallback.Name()).Msg("trying fallback provider")
	fbResp, fbErr := g.try(ctx, g.fallback, req)
	if fbErr != nil {
		g.log.Warn().Err(fbErr).Msg("no llm provider responded")
		return nil, errors.Join(err, fbErr)
	}
	fbResp.Fallback = true
	return fbResp, nil
}

func (g *Generator) try(ctx context.Context, p Provider, req *ChatRequest) (*Response, error) {
	// The guard returns at the deadline even if the provider ignores ctx.
	chat, err := plugin.Call(ctx, g.cfg.Timeout, func(callCtx context.Context) (*ChatResponse, error) {
		return p.Chat(callCtx, req)
	})
	if err != nil {
		if (errors.Is(err, plugin.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)) && ctx.Err() == nil {
			return nil, fmt.Errorf("%s: %w after %s", p.Name(), plugin.ErrTimeout, g.cfg.Timeout)
		}
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}
	if chat == nil || strings.TrimSpace(chat.Content) == "" {
		return nil, fmt.Errorf("%s: %w", p.Name(), ErrNoResponse)
	}
	return &Response{
		Content:      strings.TrimSpace(chat.Content),
		Provider:     p.Name(),
		Model:        chat.Model,
		Tokens:       chat.TokensUsed,
		Duration:     chat.Duration,
		FinishReason: chat.FinishReason,
		Timestamp:    time.Now(),
	}, nil
}

// Status reports provider names, availability and call statistics.
func (g *Generator) Status() GeneratorStatus {
	g.mu.Lock()
	running := g.running
	g.mu.Unlock()

	s := GeneratorStatus{
		Provider:  g.primary.Name(),
		Available: g.primary.Available(),
		Running:   running,
		Timeout:   g.cfg.Timeout,
		Stats:     g.primary.Stats(),
	}
	if g.fallback != nil {
		s.Fallback = g.fallback.Name()
		fs := g.fallback.Stats()
		s.FallbackUse = &fs
	}
	return s
}

// UserMessage renders the fused payload as the user turn: one "key: value"
// line per field (JSON for nested values, keys sorted) plus the fusion
// metadata, or a placeholder when there is nothing to say.
func UserMessage(fused *types.FusedContext) string {
	if fused == nil || len(fused.Data) == 0 {
		return noDataPlaceholder
	}

	keys := make([]string, 0, len(fused.Data))
	for k := range fused.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		v := fused.Data[k]
		switch v.(type) {
		case map[string]any, []any, []map[string]any, []string, []float64:
			lines = append(lines, k+": "+compactJSON(v))
		default:
			lines = append(lines, fmt.Sprintf("%s: %v", k, v))
		}
	}
	if len(fused.Metadata) > 0 {
		lines = append(lines, "Metadados: "+compactJSON(fused.Metadata))
	}
	return "Contexto atual:\n" + strings.Join(lines, "\n") +
		"\n\nUse essas informações para responder de forma natural e conversacional."
}

func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}
