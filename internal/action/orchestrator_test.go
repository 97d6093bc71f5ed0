package action

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/normanking/t031a5/internal/plugin"
	"github.com/normanking/t031a5/internal/plugin/plugintest"
	"github.com/normanking/t031a5/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func started(t *testing.T, opts []Option, plugins ...plugin.Action) *Orchestrator {
	t.Helper()
	o := New(plugins, zerolog.Nop(), opts...)
	require.NoError(t, o.Initialize(context.Background()))
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() { _ = o.Stop(context.Background()) })
	return o
}

func TestExecuteActionsRoutesByName(t *testing.T) {
	speech := plugintest.NewAction(types.ActionSpeech)
	arms := plugintest.NewAction(types.ActionArms)
	o := started(t, nil, speech, arms)

	reqs := []types.ActionRequest{
		types.NewActionRequest(types.ActionSpeech, "speak", map[string]any{"text": "Olá"}),
		types.NewActionRequest(types.ActionArms, "execute_movement", map[string]any{"movement_id": 26}),
	}
	results := o.ExecuteActions(context.Background(), reqs)

	require.Len(t, results, 2)
	for i, res := range results {
		assert.True(t, res.Success)
		assert.Equal(t, reqs[i].ID, res.RequestID)
	}
	require.Len(t, speech.Requests(), 1)
	assert.Equal(t, "Olá", speech.Requests()[0].Data["text"])
	require.Len(t, arms.Requests(), 1)
}

func TestExecuteActionsToleratesPartialFailure(t *testing.T) {
	speech := plugintest.NewAction(types.ActionSpeech)
	arms := plugintest.NewAction(types.ActionArms)
	emotion := plugintest.NewAction(types.ActionEmotion)
	arms.SetMode(plugintest.ModeFail)
	emotion.SetMode(plugintest.ModePanic)
	o := started(t, nil, speech, arms, emotion)

	results := o.ExecuteActions(context.Background(), []types.ActionRequest{
		types.NewActionRequest(types.ActionArms, "execute_movement", nil),
		types.NewActionRequest(types.ActionEmotion, "set_emotion", nil),
		types.NewActionRequest(types.ActionAudio, "play", nil),
		types.NewActionRequest(types.ActionSpeech, "speak", nil),
	})

	require.Len(t, results, 4)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "injected")
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "panic")
	assert.False(t, results[2].Success)
	assert.Contains(t, results[2].Error, ErrPluginNotFound.Error())
	assert.True(t, results[3].Success)

	st := o.Status(context.Background())
	assert.Equal(t, uint64(1), st.Plugins[types.ActionArms].Failures)
	assert.Equal(t, uint64(0), st.Plugins[types.ActionSpeech].Failures)
}

func TestExecuteHonoursRequestTimeout(t *testing.T) {
	slow := plugintest.NewAction(types.ActionMovement)
	slow.SetMode(plugintest.ModeBlock)
	o := started(t, nil, slow)

	req := types.NewActionRequest(types.ActionMovement, "look_at", nil)
	req.Timeout = 30 * time.Millisecond

	start := time.Now()
	res := o.Execute(context.Background(), req)
	assert.False(t, res.Success)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecuteBeforeStartFails(t *testing.T) {
	speech := plugintest.NewAction(types.ActionSpeech)
	o := New([]plugin.Action{speech}, zerolog.Nop())
	require.NoError(t, o.Initialize(context.Background()))

	res := o.Execute(context.Background(), types.NewActionRequest(types.ActionSpeech, "speak", nil))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, plugin.ErrNotRunning.Error())
	assert.Empty(t, speech.Requests())
}

func TestEmergencyStopIsBestEffort(t *testing.T) {
	ok := plugintest.NewAction(types.ActionSpeech)
	failing := plugintest.NewAction(types.ActionArms)
	stuck := plugintest.NewAction(types.ActionMovement)
	failing.EStopErr = plugintest.ErrInjected
	stuck.SetMode(plugintest.ModeBlock)

	o := started(t, []Option{WithEmergencyTimeout(50 * time.Millisecond)}, ok, failing, stuck)

	start := time.Now()
	err := o.EmergencyStop(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, plugintest.ErrInjected)
	assert.ErrorIs(t, err, plugin.ErrTimeout)
	assert.False(t, o.Running())
	for _, p := range []*plugintest.Action{ok, failing, stuck} {
		assert.Equal(t, int64(1), p.EStops.Load())
		assert.Equal(t, plugin.StateStopped, p.State())
	}

	res := o.Execute(context.Background(), types.NewActionRequest(types.ActionSpeech, "speak", nil))
	assert.False(t, res.Success)
}

func TestEmergencyStopIncludesUnhealthyPlugins(t *testing.T) {
	good := plugintest.NewAction(types.ActionSpeech)
	broken := plugintest.NewAction(types.ActionEmotion)
	broken.InitErr = plugintest.ErrInjected
	o := started(t, nil, good, broken)

	require.NoError(t, o.EmergencyStop(context.Background()))
	assert.Equal(t, plugin.StateStopped, broken.State())
	assert.Equal(t, plugin.StateStopped, good.State())
}

func TestInitializeFailsWithNoPlugins(t *testing.T) {
	bad := plugintest.NewAction(types.ActionSpeech)
	bad.InitErr = plugintest.ErrInjected
	o := New([]plugin.Action{bad}, zerolog.Nop())
	assert.ErrorIs(t, o.Initialize(context.Background()), ErrNoPluginsInitialized)
}

func TestStopIsIdempotent(t *testing.T) {
	speech := plugintest.NewAction(types.ActionSpeech)
	o := started(t, nil, speech)

	require.NoError(t, o.Stop(context.Background()))
	require.NoError(t, o.Stop(context.Background()))
	assert.False(t, o.Running())
	assert.Equal(t, plugin.StateStopped, speech.State())
}

func TestNewFromConfigFallsBackToNoop(t *testing.T) {
	o := NewFromConfig([]plugin.Config{{Type: types.ActionAudio, Enabled: true}}, plugin.NewRegistry(), zerolog.Nop())
	require.NoError(t, o.Initialize(context.Background()))
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop(context.Background())

	assert.True(t, o.Has(types.ActionAudio))
	res := o.Execute(context.Background(), types.NewActionRequest(types.ActionAudio, "play", nil))
	assert.True(t, res.Success)
	assert.Equal(t, true, res.Data["noop"])
}
