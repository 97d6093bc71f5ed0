package fuser

import (
	"github.com/rs/zerolog"

	"github.com/normanking/t031a5/pkg/types"
)

// Priority selects the single record with the highest
// priority × type weight × confidence. Records below MinConfidence are
// ignored; ties go to the record seen first.
type Priority struct {
	base
	minConfidence float64
	weights       map[string]float64
}

// NewPriority creates a priority fuser.
func NewPriority(cfg Config, log zerolog.Logger) *Priority {
	return &Priority{
		base:          newBase(cfg, log),
		minConfidence: cfg.MinConfidence,
		weights:       cfg.PriorityWeights,
	}
}

// Name returns "priority".
func (p *Priority) Name() string { return TypePriority }

// Score returns the priority score of r.
func (p *Priority) Score(r types.InputRecord) float64 {
	return float64(r.Priority) * weight(p.weights, r.Type) * r.Confidence
}

// Fuse returns the context built from the best record, or nil.
func (p *Priority) Fuse(records []types.InputRecord) *types.FusedContext {
	if !p.enabled || len(records) == 0 {
		return nil
	}
	records = p.fresh(records)

	var (
		best  *types.InputRecord
		score float64
		valid int
	)
	for i := range records {
		r := &records[i]
		if r.Confidence < p.minConfidence {
			continue
		}
		valid++
		if s := p.Score(*r); best == nil || s > score {
			best, score = r, s
		}
	}
	if best == nil {
		p.log.Debug().Int("inputs", len(records)).Msg("no input above confidence floor")
		p.record(nil)
		return nil
	}

	fc := &types.FusedContext{
		Strategy:     TypePriority,
		Timestamp:    p.now(),
		Data:         copyData(best.Data),
		Confidence:   types.ClampUnit(best.Confidence),
		SourceInputs: []string{best.Source},
		Metadata: map[string]any{
			"selected_input": best.Type,
			"priority_score": score,
			"total_inputs":   len(records),
			"valid_inputs":   valid,
		},
	}
	p.record(fc)
	return fc
}

// Status reports counters and history size.
func (p *Priority) Status() Status {
	return p.status(TypePriority, "")
}
