package fuser

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/t031a5/pkg/types"
)

func rec(inputType, source string, confidence float64, priority int, data map[string]any) types.InputRecord {
	r := types.NewInputRecord(inputType, source, data, confidence, priority)
	return r
}

func priorityFuser(t *testing.T, weights map[string]float64) *Priority {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Type = TypePriority
	cfg.PriorityWeights = weights
	return NewPriority(cfg, zerolog.Nop())
}

func multimodalFuser(t *testing.T, strategy string, weights map[string]float64) *Multimodal {
	t.Helper()
	cfg := DefaultConfig()
	cfg.FusionStrategy = strategy
	cfg.ModalityWeights = weights
	m, err := NewMultimodal(cfg, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func TestPriorityNoneBelowConfidenceFloor(t *testing.T) {
	p := priorityFuser(t, nil)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		n := 1 + rng.Intn(5)
		var records []types.InputRecord
		for j := 0; j < n; j++ {
			records = append(records, rec(types.InputVoice, "mic", rng.Float64()*0.499, 1+rng.Intn(3), map[string]any{"x": j}))
		}
		assert.Nil(t, p.Fuse(records))
	}
	assert.Nil(t, p.Fuse(nil))
}

func TestPrioritySingleRecord(t *testing.T) {
	p := priorityFuser(t, nil)
	data := map[string]any{"transcription": "Olá", "speech_detected": true}
	r := rec(types.InputVoice, "console", 0.9, 2, data)

	fc := p.Fuse([]types.InputRecord{r})
	require.NotNil(t, fc)
	assert.Equal(t, data, fc.Data)
	assert.Equal(t, []string{"console"}, fc.SourceInputs)
	assert.Equal(t, TypePriority, fc.Strategy)
	assert.InDelta(t, 0.9, fc.Confidence, 1e-9)
	assert.InDelta(t, 1.8, fc.Metadata["priority_score"], 1e-9)
	assert.Equal(t, 1, fc.Metadata["valid_inputs"])
}

func TestPrioritySelectsHighestScore(t *testing.T) {
	p := priorityFuser(t, map[string]float64{types.InputVision: 3})
	voice := rec(types.InputVoice, "mic", 0.9, 2, map[string]any{"v": 1})
	vision := rec(types.InputVision, "cam", 0.7, 1, map[string]any{"v": 2})
	weak := rec(types.InputState, "state", 0.2, 10, map[string]any{"v": 3})

	fc := p.Fuse([]types.InputRecord{voice, vision, weak})
	require.NotNil(t, fc)
	assert.Equal(t, []string{"cam"}, fc.SourceInputs)
	assert.Equal(t, 3, fc.Metadata["total_inputs"])
	assert.Equal(t, 2, fc.Metadata["valid_inputs"])
}

func TestPriorityTieFirstSeenWins(t *testing.T) {
	p := priorityFuser(t, nil)
	a := rec(types.InputVoice, "first", 0.8, 1, map[string]any{})
	b := rec(types.InputVision, "second", 0.8, 1, map[string]any{})

	fc := p.Fuse([]types.InputRecord{a, b})
	require.NotNil(t, fc)
	assert.Equal(t, []string{"first"}, fc.SourceInputs)
}

func TestFuserDropsStaleRecords(t *testing.T) {
	p := priorityFuser(t, nil)
	old := rec(types.InputVoice, "mic", 0.9, 1, map[string]any{})
	old.Timestamp = time.Now().Add(-time.Minute)
	assert.Nil(t, p.Fuse([]types.InputRecord{old}))
}

func TestHistoryIsBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Type = TypePriority
	cfg.ContextWindow = 3
	p := NewPriority(cfg, zerolog.Nop())

	for i := 0; i < 5; i++ {
		require.NotNil(t, p.Fuse([]types.InputRecord{rec(types.InputVoice, "mic", 0.9, 1, map[string]any{"i": i})}))
	}
	h := p.History()
	require.Len(t, h, 3)
	assert.Equal(t, 2, h[0].Data["i"])
	assert.Equal(t, 4, h[2].Data["i"])
	assert.Equal(t, uint64(5), p.Status().Fusions)

	p.Reset()
	assert.Empty(t, p.History())
}

func TestDisabledFuserReturnsNil(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	f, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, f.Fuse([]types.InputRecord{rec(types.InputVoice, "mic", 1, 1, map[string]any{})}))
}

func TestMultimodalEmptyYieldsNone(t *testing.T) {
	for _, s := range []string{StrategyWeighted, StrategyConcatenate, StrategyAttention} {
		assert.Nil(t, multimodalFuser(t, s, nil).Fuse(nil))
	}
}

func TestMultimodalMinModalities(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinModalities = 2
	m, err := NewMultimodal(cfg, zerolog.Nop())
	require.NoError(t, err)

	one := []types.InputRecord{
		rec(types.InputVoice, "mic", 0.9, 1, map[string]any{}),
		rec(types.InputVoice, "mic2", 0.5, 1, map[string]any{}),
	}
	assert.Nil(t, m.Fuse(one))

	two := append(one, rec(types.InputVision, "cam", 0.6, 1, map[string]any{}))
	assert.NotNil(t, m.Fuse(two))
}

func TestMultimodalWeighted(t *testing.T) {
	m := multimodalFuser(t, StrategyWeighted, map[string]float64{"audio": 2, "visual": 1})
	records := []types.InputRecord{
		rec(types.InputVoice, "mic", 0.5, 1, map[string]any{"level": 10.0, "label": "voice"}),
		rec(types.InputVoice, "mic-hi", 0.8, 1, map[string]any{"level": 20.0, "label": "voice-hi"}),
		rec(types.InputVision, "cam", 0.6, 1, map[string]any{"level": 5, "label": "vision", "scene": "room"}),
	}

	fc := m.Fuse(records)
	require.NotNil(t, fc)
	assert.Equal(t, "multimodal_weighted", fc.Strategy)
	assert.Equal(t, []string{"mic-hi", "cam"}, fc.SourceInputs)
	// 20*2*0.8 + 5*1*0.6
	assert.InDelta(t, 35.0, fc.Data["level"], 1e-9)
	assert.Equal(t, "voice-hi", fc.Data["label"])
	assert.Equal(t, "room", fc.Data["scene"])
	// (0.8*2 + 0.6*1) / 3
	assert.InDelta(t, 2.2/3, fc.Confidence, 1e-9)
	assert.Equal(t, []string{"audio", "visual"}, fc.Metadata["modalities"])
}

func TestMultimodalConcatenate(t *testing.T) {
	m := multimodalFuser(t, StrategyConcatenate, nil)
	fc := m.Fuse([]types.InputRecord{
		rec(types.InputVoice, "mic", 0.9, 1, map[string]any{"transcription": "oi"}),
		rec(types.InputState, "state", 0.5, 1, map[string]any{"robot_state": map[string]any{"battery_percentage": 80.0}}),
		rec("G1Lidar", "lidar", 0.7, 1, map[string]any{"range": 2.0}),
	})
	require.NotNil(t, fc)
	assert.Equal(t, "oi", fc.Data["audio_transcription"])
	assert.Contains(t, fc.Data, "state_robot_state")
	assert.Equal(t, 2.0, fc.Data["unknown_range"])
	assert.InDelta(t, 0.7, fc.Confidence, 1e-9)
}

func TestMultimodalAttention(t *testing.T) {
	m := multimodalFuser(t, StrategyAttention, map[string]float64{"audio": 3})
	fc := m.Fuse([]types.InputRecord{
		rec(types.InputVoice, "mic", 0.5, 1, map[string]any{"x": 10.0, "who": "voice"}),
		rec(types.InputVision, "cam", 0.5, 1, map[string]any{"x": 2.0, "who": "camera"}),
	})
	require.NotNil(t, fc)
	att := fc.Metadata["attention"].(map[string]float64)
	assert.InDelta(t, 0.75, att["audio"], 1e-9)
	assert.InDelta(t, 0.25, att["visual"], 1e-9)
	assert.InDelta(t, 8.0, fc.Data["x"], 1e-9)
	assert.Equal(t, "voice", fc.Data["who"])
	assert.InDelta(t, 0.5, fc.Confidence, 1e-9)
}

func TestMultimodalAttentionConfidenceInUnitRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	inputs := []string{types.InputVoice, types.InputVision, types.InputState, types.InputGPS, types.InputSensors}
	for i := 0; i < 200; i++ {
		weights := map[string]float64{}
		for _, mod := range []string{"audio", "visual", "state", "location", "sensor"} {
			weights[mod] = 0.01 + rng.Float64()*10
		}
		m := multimodalFuser(t, StrategyAttention, weights)

		var records []types.InputRecord
		for j := 0; j < 1+rng.Intn(8); j++ {
			records = append(records, rec(inputs[rng.Intn(len(inputs))], "s", rng.Float64(), 1, map[string]any{"v": rng.Float64()}))
		}
		fc := m.Fuse(records)
		require.NotNil(t, fc)
		assert.GreaterOrEqual(t, fc.Confidence, 0.0)
		assert.LessOrEqual(t, fc.Confidence, 1.0)
	}
}

func TestMultimodalMaxModalitiesDropsLeastConfident(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxModalities = 2
	m, err := NewMultimodal(cfg, zerolog.Nop())
	require.NoError(t, err)

	fc := m.Fuse([]types.InputRecord{
		rec(types.InputVoice, "mic", 0.9, 1, map[string]any{}),
		rec(types.InputVision, "cam", 0.3, 1, map[string]any{}),
		rec(types.InputState, "state", 0.6, 1, map[string]any{}),
	})
	require.NotNil(t, fc)
	assert.Equal(t, []string{"mic", "state"}, fc.SourceInputs)
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Type = "bayesian"
	_, err := New(cfg, zerolog.Nop())
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.FusionStrategy = "median"
	_, err = New(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestModalityOf(t *testing.T) {
	assert.Equal(t, "audio", ModalityOf(types.InputVoice))
	assert.Equal(t, "location", ModalityOf(types.InputGPS))
	assert.Equal(t, "unknown", ModalityOf("G1Lidar"))
}
