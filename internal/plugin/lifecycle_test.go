package plugin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enabled(name string) Config {
	return Config{Type: name, Name: name, Enabled: true}
}

func TestLifecycle_HappyPath(t *testing.T) {
	ctx := context.Background()
	var started, stopped int
	l := NewLifecycle(enabled("cam"), Hooks{
		Start: func(context.Context) error { started++; return nil },
		Stop:  func(context.Context) error { stopped++; return nil },
	})

	assert.Equal(t, StateUninitialized, l.State())
	require.NoError(t, l.Initialize(ctx))
	assert.Equal(t, StateInitialized, l.State())
	require.NoError(t, l.Start(ctx))
	assert.True(t, l.Active())
	require.NoError(t, l.Stop(ctx))
	assert.Equal(t, StateStopped, l.State())
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, stopped)
}

func TestLifecycle_StartRequiresInitialize(t *testing.T) {
	l := NewLifecycle(enabled("cam"), Hooks{})

	err := l.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, StateUninitialized, l.State())
}

func TestLifecycle_FailedInitializeBlocksStart(t *testing.T) {
	boom := errors.New("no camera")
	l := NewLifecycle(enabled("cam"), Hooks{
		Initialize: func(context.Context) error { return boom },
	})

	err := l.Initialize(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, l.State())
	assert.ErrorIs(t, l.Start(context.Background()), ErrNotInitialized)

	h := l.Health(context.Background())
	assert.False(t, h.Healthy)
	require.Len(t, h.Issues, 1)
	assert.Contains(t, h.Issues[0], "no camera")
}

func TestLifecycle_StopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	var stopped int
	l := NewLifecycle(enabled("mic"), Hooks{
		Stop: func(context.Context) error { stopped++; return nil },
	})
	require.NoError(t, l.Initialize(ctx))
	require.NoError(t, l.Start(ctx))

	require.NoError(t, l.Stop(ctx))
	first := l.State()
	require.NoError(t, l.Stop(ctx))

	assert.Equal(t, first, l.State())
	assert.Equal(t, StateStopped, l.State())
	assert.Equal(t, 1, stopped)
}

func TestLifecycle_StopBeforeStartIsNoop(t *testing.T) {
	l := NewLifecycle(enabled("mic"), Hooks{})
	require.NoError(t, l.Stop(context.Background()))
	assert.Equal(t, StateUninitialized, l.State())
}

func TestLifecycle_DisabledSucceedsSilently(t *testing.T) {
	ctx := context.Background()
	called := false
	hook := func(context.Context) error { called = true; return errors.New("should not run") }
	l := NewLifecycle(Config{Type: "arm", Enabled: false}, Hooks{
		Initialize: hook, Start: hook, Stop: hook, EmergencyStop: hook,
	})

	require.NoError(t, l.Initialize(ctx))
	require.NoError(t, l.Start(ctx))
	assert.False(t, l.Active())
	require.NoError(t, l.Stop(ctx))
	require.NoError(t, l.EmergencyStop(ctx))
	assert.False(t, called)
	assert.True(t, l.Health(ctx).Healthy)
}

func TestLifecycle_EmergencyStopFromAnyState(t *testing.T) {
	ctx := context.Background()
	var hookCalls int
	hooks := Hooks{EmergencyStop: func(context.Context) error { hookCalls++; return nil }}

	fresh := NewLifecycle(enabled("a"), hooks)
	require.NoError(t, fresh.EmergencyStop(ctx))
	assert.Equal(t, StateStopped, fresh.State())
	assert.Equal(t, 0, hookCalls, "hook skipped for uninitialized plugin")

	running := NewLifecycle(enabled("b"), hooks)
	require.NoError(t, running.Initialize(ctx))
	require.NoError(t, running.Start(ctx))
	require.NoError(t, running.EmergencyStop(ctx))
	assert.Equal(t, StateStopped, running.State())
	assert.Equal(t, 1, hookCalls)
}

func TestLifecycle_EmergencyStopFailureStillStops(t *testing.T) {
	ctx := context.Background()
	l := NewLifecycle(enabled("legs"), Hooks{
		EmergencyStop: func(context.Context) error { return errors.New("bus error") },
	})
	require.NoError(t, l.Initialize(ctx))
	require.NoError(t, l.Start(ctx))

	require.Error(t, l.EmergencyStop(ctx))
	assert.Equal(t, StateStopped, l.State())
	assert.False(t, l.Active())
}

func TestLifecycle_EmergencyStopDuringStartWins(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	l := NewLifecycle(enabled("arms"), Hooks{
		Start: func(context.Context) error {
			close(entered)
			<-release
			return nil
		},
	})
	require.NoError(t, l.Initialize(ctx))

	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(ctx) }()
	<-entered
	require.NoError(t, l.EmergencyStop(ctx))
	assert.Equal(t, StateStopped, l.State())
	close(release)

	err := <-errCh
	require.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, StateStopped, l.State())
	assert.False(t, l.Active())

	// A later, deliberate start is allowed again.
	l.hooks.Start = nil
	require.NoError(t, l.Start(ctx))
	assert.Equal(t, StateRunning, l.State())
}

func TestLifecycle_EmergencyStopDuringInitializeWins(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	l := NewLifecycle(enabled("leds"), Hooks{
		Initialize: func(context.Context) error {
			close(entered)
			<-release
			return nil
		},
	})

	errCh := make(chan error, 1)
	go func() { errCh <- l.Initialize(ctx) }()
	<-entered
	require.NoError(t, l.EmergencyStop(ctx))
	close(release)

	require.ErrorIs(t, <-errCh, ErrInterrupted)
	assert.Equal(t, StateStopped, l.State())
}

func TestLifecycle_RestartAfterStop(t *testing.T) {
	ctx := context.Background()
	l := NewLifecycle(enabled("mic"), Hooks{})
	require.NoError(t, l.Initialize(ctx))
	require.NoError(t, l.Start(ctx))
	require.NoError(t, l.Stop(ctx))
	require.NoError(t, l.Start(ctx))
	assert.Equal(t, StateRunning, l.State())
}

func TestLifecycle_HealthIncludesHookIssues(t *testing.T) {
	ctx := context.Background()
	l := NewLifecycle(enabled("state"), Hooks{
		Health: func(context.Context) []string { return []string{"battery low"} },
	})
	require.NoError(t, l.Initialize(ctx))
	require.NoError(t, l.Start(ctx))

	h := l.Health(ctx)
	assert.False(t, h.Healthy)
	assert.Equal(t, []string{"battery low"}, h.Issues)
	assert.Equal(t, "running", h.State)
}

func TestCall_Timeout(t *testing.T) {
	start := time.Now()
	_, err := Call(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		time.Sleep(200 * time.Millisecond) // ignores ctx on purpose
		return 1, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestCall_Panic(t *testing.T) {
	_, err := Call(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		panic("sensor exploded")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensor exploded")
}

func TestCall_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, time.Second, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestCall_Value(t *testing.T) {
	v, err := Call(context.Background(), 0, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestRegistry_UnknownResolvesToNoop(t *testing.T) {
	r := NewRegistry()
	in, found, err := r.NewInput(enabled("G1Lidar"), zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, found)
	assert.IsType(t, &NoopInput{}, in)

	ctx := context.Background()
	require.NoError(t, in.Initialize(ctx))
	require.NoError(t, in.Start(ctx))
	rec, err := in.GetData(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	act, found, err := r.NewAction(enabled("G1Jetpack"), zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, act.Initialize(ctx))
	require.NoError(t, act.Start(ctx))
}

func TestRegistry_DriverTakesPrecedence(t *testing.T) {
	r := NewRegistry()
	var used string
	r.RegisterInput("G1Voice", func(cfg Config, _ zerolog.Logger) (Input, error) {
		used = "type"
		return NewNoopInput(cfg), nil
	})
	r.RegisterInput("console", func(cfg Config, _ zerolog.Logger) (Input, error) {
		used = "driver"
		return NewNoopInput(cfg), nil
	})

	_, found, err := r.NewInput(Config{Type: "G1Voice", Driver: "console", Enabled: true}, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "driver", used)

	_, _, err = r.NewInput(Config{Type: "G1Voice", Enabled: true}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "type", used)
	assert.Equal(t, []string{"G1Voice", "console"}, r.InputTags())
}
