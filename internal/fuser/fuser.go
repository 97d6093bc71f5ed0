// Package fuser combines one cycle's input records into a single fused
// context. Two policies are available: priority, which selects the single
// most important record, and multimodal, which merges the best record of
// each modality.
package fuser

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/t031a5/pkg/types"
)

// Policy names.
const (
	TypePriority   = "priority"
	TypeMultimodal = "multimodal"
)

// Config configures a fuser. Fields that do not apply to the selected
// policy are ignored.
type Config struct {
	Type          string        `mapstructure:"type" yaml:"type"`
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	ContextWindow int           `mapstructure:"context_window" yaml:"context_window"`
	FusionTimeout time.Duration `mapstructure:"fusion_timeout" yaml:"fusion_timeout"`

	// Priority policy
	MinConfidence   float64            `mapstructure:"min_confidence" yaml:"min_confidence"`
	PriorityWeights map[string]float64 `mapstructure:"priority_weights" yaml:"priority_weights,omitempty"`

	// Multimodal policy
	FusionStrategy  string             `mapstructure:"fusion_strategy" yaml:"fusion_strategy"`
	ModalityWeights map[string]float64 `mapstructure:"modality_weights" yaml:"modality_weights,omitempty"`
	MinModalities   int                `mapstructure:"min_modalities" yaml:"min_modalities"`
	MaxModalities   int                `mapstructure:"max_modalities" yaml:"max_modalities"`
}

// DefaultConfig returns the multimodal weighted policy.
func DefaultConfig() Config {
	return Config{
		Type:           TypeMultimodal,
		Enabled:        true,
		ContextWindow:  10,
		FusionTimeout:  5 * time.Second,
		MinConfidence:  0.5,
		FusionStrategy: StrategyWeighted,
		MinModalities:  1,
		MaxModalities:  5,
	}
}

// Fuser merges a snapshot of records into one context. Fuse returns nil
// when nothing qualifies; that is a normal outcome, not an error.
type Fuser interface {
	Name() string
	Fuse(records []types.InputRecord) *types.FusedContext
	History() []types.FusedContext
	Reset()
	Status() Status
}

// Status describes a fuser for status reports.
type Status struct {
	Type          string    `json:"type"`
	Enabled       bool      `json:"enabled"`
	Strategy      string    `json:"strategy,omitempty"`
	Fusions       uint64    `json:"fusions"`
	Empty         uint64    `json:"empty"`
	HistorySize   int       `json:"history_size"`
	ContextWindow int       `json:"context_window"`
	LastFusion    time.Time `json:"last_fusion,omitempty"`
}

// New builds the fuser selected by cfg.Type.
func New(cfg Config, log zerolog.Logger) (Fuser, error) {
	log = log.With().Str("component", "fuser").Str("fuser", cfg.Type).Logger()
	switch cfg.Type {
	case TypePriority:
		return NewPriority(cfg, log), nil
	case TypeMultimodal, "":
		return NewMultimodal(cfg, log)
	default:
		return nil, fmt.Errorf("unknown fuser type %q", cfg.Type)
	}
}

// base holds what both policies share: the enabled switch, the staleness
// filter and the bounded history of fused contexts.
type base struct {
	log     zerolog.Logger
	enabled bool
	window  int
	maxAge  time.Duration
	now     func() time.Time

	mu      sync.Mutex
	history []types.FusedContext
	fusions uint64
	empty   uint64
	last    time.Time
}

func newBase(cfg Config, log zerolog.Logger) base {
	window := cfg.ContextWindow
	if window <= 0 {
		window = 10
	}
	return base{
		log:     log,
		enabled: cfg.Enabled,
		window:  window,
		maxAge:  cfg.FusionTimeout,
		now:     time.Now,
	}
}

// fresh drops records older than the fusion timeout.
func (b *base) fresh(records []types.InputRecord) []types.InputRecord {
	if b.maxAge <= 0 {
		return records
	}
	cutoff := b.now().Add(-b.maxAge)
	out := records[:0:0]
	for _, r := range records {
		if r.Timestamp.IsZero() || !r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

func (b *base) record(fc *types.FusedContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fc == nil {
		b.empty++
		return
	}
	b.fusions++
	b.last = fc.Timestamp
	b.history = append(b.history, *fc)
	if len(b.history) > b.window {
		b.history = b.history[len(b.history)-b.window:]
	}
}

// History returns the retained fused contexts, oldest first.
func (b *base) History() []types.FusedContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.FusedContext(nil), b.history...)
}

// Reset clears the history.
func (b *base) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}

func (b *base) status(kind, strategy string) Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		Type:          kind,
		Enabled:       b.enabled,
		Strategy:      strategy,
		Fusions:       b.fusions,
		Empty:         b.empty,
		HistorySize:   len(b.history),
		ContextWindow: b.window,
		LastFusion:    b.last,
	}
}

func weight(weights map[string]float64, key string) float64 {
	if w, ok := weights[key]; ok {
		return w
	}
	return 1.0
}

func copyData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
