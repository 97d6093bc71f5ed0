package fuser

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/normanking/t031a5/pkg/types"
)

// Multimodal combination strategies.
const (
	StrategyWeighted    = "weighted"
	StrategyConcatenate = "concatenate"
	StrategyAttention   = "attention"
)

// Modalities by input type.
var modalities = map[string]string{
	types.InputVoice:   "audio",
	types.InputVision:  "visual",
	types.InputSensors: "sensor",
	types.InputGPS:     "location",
	types.InputState:   "state",
}

// ModalityOf returns the modality of an input type, "unknown" if unmapped.
func ModalityOf(inputType string) string {
	if m, ok := modalities[inputType]; ok {
		return m
	}
	return "unknown"
}

// Multimodal groups records by modality, keeps the most confident record of
// each and merges them with the configured strategy.
type Multimodal struct {
	base
	strategy string
	weights  map[string]float64
	min, max int
}

// NewMultimodal creates a multimodal fuser.
func NewMultimodal(cfg Config, log zerolog.Logger) (*Multimodal, error) {
	strategy := cfg.FusionStrategy
	if strategy == "" {
		strategy = StrategyWeighted
	}
	switch strategy {
	case StrategyWeighted, StrategyConcatenate, StrategyAttention:
	default:
		return nil, fmt.Errorf("unknown fusion strategy %q", strategy)
	}
	m := &Multimodal{
		base:     newBase(cfg, log),
		strategy: strategy,
		weights:  cfg.ModalityWeights,
		min:      cfg.MinModalities,
		max:      cfg.MaxModalities,
	}
	if m.min <= 0 {
		m.min = 1
	}
	if m.max <= 0 {
		m.max = 5
	}
	return m, nil
}

// Name returns "multimodal".
func (m *Multimodal) Name() string { return TypeMultimodal }

// Strategy returns the combination strategy.
func (m *Multimodal) Strategy() string { return m.strategy }

// modalityPick is the representative record of one modality.
type modalityPick struct {
	modality string
	record   types.InputRecord
}

// Fuse merges the snapshot, or returns nil when it is empty or covers fewer
// than MinModalities modalities.
func (m *Multimodal) Fuse(records []types.InputRecord) *types.FusedContext {
	if !m.enabled || len(records) == 0 {
		return nil
	}
	picks := m.pick(m.fresh(records))
	if len(picks) < m.min || len(picks) == 0 {
		m.log.Debug().Int("modalities", len(picks)).Int("min", m.min).Msg("not enough modalities")
		m.record(nil)
		return nil
	}

	var fc *types.FusedContext
	switch m.strategy {
	case StrategyConcatenate:
		fc = m.concatenate(picks)
	case StrategyAttention:
		fc = m.attention(picks)
	default:
		fc = m.weighted(picks)
	}

	names := make([]string, len(picks))
	sources := make([]string, len(picks))
	for i, p := range picks {
		names[i] = p.modality
		sources[i] = p.record.Source
	}
	fc.Strategy = "multimodal_" + m.strategy
	fc.Timestamp = m.now()
	fc.SourceInputs = sources
	fc.Confidence = types.ClampUnit(fc.Confidence)
	fc.Metadata["modalities"] = names
	fc.Metadata["strategy"] = m.strategy
	fc.Metadata["total_modalities"] = len(picks)

	m.record(fc)
	return fc
}

// pick returns the most confident record per modality in first-seen
// modality order, capped at max modalities by dropping the least confident.
func (m *Multimodal) pick(records []types.InputRecord) []modalityPick {
	index := make(map[string]int)
	var picks []modalityPick
	for _, r := range records {
		mod := ModalityOf(r.Type)
		i, ok := index[mod]
		if !ok {
			index[mod] = len(picks)
			picks = append(picks, modalityPick{modality: mod, record: r})
			continue
		}
		if r.Confidence > picks[i].record.Confidence {
			picks[i].record = r
		}
	}

	if len(picks) > m.max {
		ranked := append([]modalityPick(nil), picks...)
		sort.SliceStable(ranked, func(a, b int) bool {
			return ranked[a].record.Confidence > ranked[b].record.Confidence
		})
		keep := make(map[string]bool, m.max)
		for _, p := range ranked[:m.max] {
			keep[p.modality] = true
		}
		kept := picks[:0:0]
		for _, p := range picks {
			if keep[p.modality] {
				kept = append(kept, p)
			}
		}
		picks = kept
	}
	return picks
}

// mergeState accumulates numeric sums and resolves non-numeric conflicts by
// the largest modality weight.
type mergeState struct {
	numeric map[string]float64
	other   map[string]any
	otherW  map[string]float64
}

func newMergeState() *mergeState {
	return &mergeState{
		numeric: make(map[string]float64),
		other:   make(map[string]any),
		otherW:  make(map[string]float64),
	}
}

func (s *mergeState) add(data map[string]any, scale, rank float64) {
	for k, v := range data {
		if f, ok := numeric(v); ok {
			s.numeric[k] += f * scale
			continue
		}
		if w, seen := s.otherW[k]; !seen || rank > w {
			s.other[k] = v
			s.otherW[k] = rank
		}
	}
}

// result merges both maps. A key that is non-numeric in any modality keeps
// the non-numeric value.
func (s *mergeState) result() map[string]any {
	out := make(map[string]any, len(s.numeric)+len(s.other))
	for k, v := range s.numeric {
		out[k] = v
	}
	for k, v := range s.other {
		out[k] = v
	}
	return out
}

func (m *Multimodal) weighted(picks []modalityPick) *types.FusedContext {
	st := newMergeState()
	var confSum, weightSum float64
	weights := make(map[string]float64, len(picks))
	for _, p := range picks {
		w := weight(m.weights, p.modality)
		weights[p.modality] = w
		st.add(p.record.Data, w*p.record.Confidence, w*p.record.Confidence)
		confSum += p.record.Confidence * w
		weightSum += w
	}
	conf := 0.0
	if weightSum > 0 {
		conf = confSum / weightSum
	}
	return &types.FusedContext{
		Data:       st.result(),
		Confidence: conf,
		Metadata:   map[string]any{"weights": weights},
	}
}

func (m *Multimodal) concatenate(picks []modalityPick) *types.FusedContext {
	data := make(map[string]any)
	var confSum float64
	for _, p := range picks {
		for k, v := range p.record.Data {
			data[p.modality+"_"+k] = v
		}
		confSum += p.record.Confidence
	}
	return &types.FusedContext{
		Data:       data,
		Confidence: confSum / float64(len(picks)),
		Metadata:   map[string]any{},
	}
}

func (m *Multimodal) attention(picks []modalityPick) *types.FusedContext {
	att := make([]float64, len(picks))
	var total float64
	for i, p := range picks {
		att[i] = p.record.Confidence * weight(m.weights, p.modality)
		if att[i] < 0 {
			att[i] = 0
		}
		total += att[i]
	}
	for i := range att {
		if total > 0 {
			att[i] /= total
		} else {
			att[i] = 1 / float64(len(att))
		}
	}

	st := newMergeState()
	attention := make(map[string]float64, len(picks))
	var conf float64
	for i, p := range picks {
		attention[p.modality] = att[i]
		st.add(p.record.Data, att[i], att[i])
		conf += att[i] * p.record.Confidence
	}
	return &types.FusedContext{
		Data:       st.result(),
		Confidence: conf,
		Metadata:   map[string]any{"attention": attention},
	}
}

// Status reports counters, history size and strategy.
func (m *Multimodal) Status() Status {
	return m.status(TypeMultimodal, m.strategy)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
