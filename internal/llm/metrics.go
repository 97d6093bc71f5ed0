package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/t031a5/internal/metrics"
)

// ProviderStats is a snapshot of a MetricsProvider.
type ProviderStats struct {
	Provider      string           `json:"provider"`
	Calls         int64            `json:"total_calls"`
	Errors        int64            `json:"total_errors"`
	ErrorRate     float64          `json:"error_rate"`
	Tokens        int64            `json:"total_tokens"`
	PromptTokens  int64            `json:"input_tokens"`
	OutputTokens  int64            `json:"output_tokens"`
	AvgLatencyMs  int64            `json:"avg_latency_ms"`
	MinLatencyMs  int64            `json:"min_latency_ms"`
	MaxLatencyMs  int64            `json:"max_latency_ms"`
	LatencyBucket map[string]int64 `json:"latency_histogram"`
}

var bucketLabels = []string{"<100ms", "<500ms", "<1s", "<2s", "<5s", "5s+"}

// MetricsProvider wraps a provider with call, error, token and latency
// accounting. Each call is also reported to the Prometheus collectors.
type MetricsProvider struct {
	provider Provider
	name     string
	log      zerolog.Logger
	prom     *metrics.Metrics

	totalCalls        int64
	totalErrors       int64
	totalTokens       int64
	totalInputTokens  int64
	totalOutputTokens int64

	mu             sync.RWMutex
	totalLatency   time.Duration
	minLatency     time.Duration
	maxLatency     time.Duration
	latencyBuckets []int64
}

// NewMetricsProvider wraps provider. prom may be nil.
func NewMetricsProvider(provider Provider, log zerolog.Logger, prom *metrics.Metrics) *MetricsProvider {
	return &MetricsProvider{
		provider:       provider,
		name:           provider.Name(),
		log:            log,
		prom:           prom,
		latencyBuckets: make([]int64, len(bucketLabels)),
	}
}

// Chat forwards to the wrapped provider and records the outcome.
func (m *MetricsProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	resp, err := m.provider.Chat(ctx, req)
	latency := time.Since(start)

	atomic.AddInt64(&m.totalCalls, 1)
	if err != nil {
		atomic.AddInt64(&m.totalErrors, 1)
	}
	if resp != nil {
		atomic.AddInt64(&m.totalTokens, int64(resp.TokensUsed))
		atomic.AddInt64(&m.totalInputTokens, int64(resp.PromptTokens))
		atomic.AddInt64(&m.totalOutputTokens, int64(resp.CompletionTokens))
	}

	m.mu.Lock()
	m.totalLatency += latency
	if m.minLatency == 0 || latency < m.minLatency {
		m.minLatency = latency
	}
	if latency > m.maxLatency {
		m.maxLatency = latency
	}
	switch {
	case latency < 100*time.Millisecond:
		m.latencyBuckets[0]++
	case latency < 500*time.Millisecond:
		m.latencyBuckets[1]++
	case latency < time.Second:
		m.latencyBuckets[2]++
	case latency < 2*time.Second:
		m.latencyBuckets[3]++
	case latency < 5*time.Second:
		m.latencyBuckets[4]++
	default:
		m.latencyBuckets[5]++
	}
	m.mu.Unlock()

	m.prom.Generation(m.name, latency, err == nil)

	if err != nil {
		m.log.Warn().Err(err).Str("provider", m.name).Dur("latency", latency).Msg("generation failed")
	} else {
		tokens := 0
		if resp != nil {
			tokens = resp.TokensUsed
		}
		m.log.Debug().Str("provider", m.name).Dur("latency", latency).Int("tokens", tokens).Msg("generation completed")
	}
	return resp, err
}

// Name returns the wrapped provider's name.
func (m *MetricsProvider) Name() string { return m.name }

// Available forwards to the wrapped provider.
func (m *MetricsProvider) Available() bool { return m.provider.Available() }

// Unwrap returns the wrapped provider.
func (m *MetricsProvider) Unwrap() Provider { return m.provider }

// Stats returns the current counters.
func (m *MetricsProvider) Stats() ProviderStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := atomic.LoadInt64(&m.totalCalls)
	errs := atomic.LoadInt64(&m.totalErrors)
	s := ProviderStats{
		Provider:      m.name,
		Calls:         calls,
		Errors:        errs,
		Tokens:        atomic.LoadInt64(&m.totalTokens),
		PromptTokens:  atomic.LoadInt64(&m.totalInputTokens),
		OutputTokens:  atomic.LoadInt64(&m.totalOutputTokens),
		MinLatencyMs:  m.minLatency.Milliseconds(),
		MaxLatencyMs:  m.maxLatency.Milliseconds(),
		LatencyBucket: make(map[string]int64, len(bucketLabels)),
	}
	if calls > 0 {
		s.ErrorRate = float64(errs) / float64(calls)
		s.AvgLatencyMs = (m.totalLatency / time.Duration(calls)).Milliseconds()
	}
	for i, label := range bucketLabels {
		s.LatencyBucket[label] = m.latencyBuckets[i]
	}
	return s
}

// Reset clears all counters.
func (m *MetricsProvider) Reset() {
	atomic.StoreInt64(&m.totalCalls, 0)
	atomic.StoreInt64(&m.totalErrors, 0)
	atomic.StoreInt64(&m.totalTokens, 0)
	atomic.StoreInt64(&m.totalInputTokens, 0)
	atomic.StoreInt64(&m.totalOutputTokens, 0)

	m.mu.Lock()
	m.totalLatency = 0
	m.minLatency = 0
	m.maxLatency = 0
	m.latencyBuckets = make([]int64, len(bucketLabels))
	m.mu.Unlock()
}
