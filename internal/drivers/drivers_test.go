package drivers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/t031a5/internal/plugin"
	"github.com/normanking/t031a5/pkg/types"
)

func run(t *testing.T, p plugin.Plugin) {
	t.Helper()
	require.NoError(t, p.Initialize(context.Background()))
	require.NoError(t, p.Start(context.Background()))
}

func TestConsoleVoiceReportsEachLineOnce(t *testing.T) {
	cfg := plugin.Config{Type: types.InputVoice, Enabled: true}
	c := NewConsoleVoice(cfg, strings.NewReader("Olá Tobias\n\n  como vai?  \n"), zerolog.Nop())

	_, err := c.GetData(context.Background())
	assert.ErrorIs(t, err, plugin.ErrNotRunning)

	run(t, c)

	var got []string
	require.Eventually(t, func() bool {
		rec, err := c.GetData(context.Background())
		if err != nil {
			return false
		}
		if rec != nil {
			assert.Equal(t, types.InputVoice, rec.Type)
			assert.Equal(t, true, rec.Data["speech_detected"])
			got = append(got, rec.Data["transcription"].(string))
		}
		return len(got) == 2
	}, time.Second, time.Millisecond)

	assert.Equal(t, []string{"Olá Tobias", "como vai?"}, got)
	rec, err := c.GetData(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSimulatedVisionFrames(t *testing.T) {
	s, err := NewSimulated(plugin.Config{Type: types.InputVision, Enabled: true}, zerolog.Nop())
	require.NoError(t, err)
	run(t, s)

	first, err := s.GetData(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)
	objects := first.Data["objects"].([]any)
	require.Len(t, objects, 3)
	assert.Equal(t, "person", objects[0].(map[string]any)["type"])
	assert.Len(t, first.Data["faces"], 1)
	assert.Equal(t, true, first.Data["motion_detected"])
	assert.InDelta(t, 0.8, first.Confidence, 1e-9)

	second, err := s.GetData(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.Data["faces"])
	assert.Equal(t, 1, second.Metadata["frame"])
}

func TestSimulatedStateDischarges(t *testing.T) {
	cfg := plugin.Config{Type: types.InputState, Enabled: true, Options: map[string]any{
		"battery_start":       21.0,
		"discharge_per_frame": 1,
	}}
	s, err := NewSimulated(cfg, zerolog.Nop())
	require.NoError(t, err)
	run(t, s)

	status := func() (float64, string) {
		rec, err := s.GetData(context.Background())
		require.NoError(t, err)
		st := rec.Data["robot_state"].(map[string]any)
		return st["battery_percentage"].(float64), st["safety_status"].(string)
	}

	b, st := status()
	assert.Equal(t, 21.0, b)
	assert.Equal(t, "safe", st)
	b, st = status()
	assert.Equal(t, 20.0, b)
	assert.Equal(t, "warning", st)
}

func TestSimulatedRejectsUnknownType(t *testing.T) {
	_, err := NewSimulated(plugin.Config{Type: "G1Lidar"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestDisabledSimulatedProducesNothing(t *testing.T) {
	s, err := NewSimulated(plugin.Config{Type: types.InputGPS, Enabled: false}, zerolog.Nop())
	require.NoError(t, err)
	run(t, s)

	rec, err := s.GetData(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLogActionExecutes(t *testing.T) {
	a := NewLogAction(plugin.Config{Type: types.ActionSpeech, Enabled: true}, zerolog.Nop())

	req := types.NewActionRequest(types.ActionSpeech, "speak", map[string]any{"text": "Olá"})
	assert.False(t, a.Execute(context.Background(), req).Success)

	run(t, a)
	res := a.Execute(context.Background(), req)
	assert.True(t, res.Success)
	assert.Equal(t, uint64(1), a.Executed())
	assert.Equal(t, req.ID, a.Last().ID)
}

func TestLogActionLatencyHonoursContext(t *testing.T) {
	a := NewLogAction(plugin.Config{Type: types.ActionArms, Enabled: true, Options: map[string]any{
		"latency": "1s",
	}}, zerolog.Nop())
	run(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := a.Execute(ctx, types.NewActionRequest(types.ActionArms, "execute_movement", nil))
	assert.False(t, res.Success)
	assert.Equal(t, uint64(0), a.Executed())
}

func TestRegisterBuiltins(t *testing.T) {
	reg := plugin.NewRegistry()
	Register(reg)

	assert.Equal(t, []string{DriverConsole, DriverSimulated}, reg.InputTags())
	assert.Equal(t, []string{DriverLog}, reg.ActionTags())

	in, found, err := reg.NewInput(plugin.Config{Type: types.InputVision, Driver: DriverSimulated, Enabled: true}, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, types.InputVision, in.Type())
}
