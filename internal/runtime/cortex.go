// Package runtime is the top-level scheduler of the decision loop. It
// composes the orchestrators, fuser, response generator and conversation
// engine into a fixed-rate sense, fuse, decide, act cycle and owns the
// startup, shutdown and emergency-stop ordering.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/t031a5/internal/action"
	"github.com/normanking/t031a5/internal/bus"
	"github.com/normanking/t031a5/internal/conversation"
	"github.com/normanking/t031a5/internal/fuser"
	"github.com/normanking/t031a5/internal/input"
	"github.com/normanking/t031a5/internal/llm"
	"github.com/normanking/t031a5/internal/logging"
	"github.com/normanking/t031a5/internal/metrics"
	"github.com/normanking/t031a5/internal/plugin"
	"github.com/normanking/t031a5/internal/safety"
	"github.com/normanking/t031a5/pkg/types"
)

var (
	// ErrAlreadyRunning is returned by Run while a loop is active.
	ErrAlreadyRunning = errors.New("runtime already running")
	// ErrNotInitialized is returned by Run before Initialize succeeded.
	ErrNotInitialized = errors.New("runtime not initialized")
	// ErrStopped is returned by Run after the runtime was shut down.
	ErrStopped = errors.New("runtime stopped")
	// ErrEmergencyStopped is returned by Run after an emergency stop. The
	// latch is never cleared; a new runtime has to be built.
	ErrEmergencyStopped = errors.New("runtime emergency stopped")
)

// emaAlpha is the smoothing factor of the average cycle time.
const emaAlpha = 0.1

// Config tunes the loop.
type Config struct {
	Name             string
	Hertz            float64
	SystemPrompt     string
	MaxCycles        uint64
	EmergencyTimeout time.Duration
	ShutdownTimeout  time.Duration
	WarmStart        int
}

// DefaultConfig returns a 10 Hz loop.
func DefaultConfig() Config {
	return Config{
		Name:             "t031a5",
		Hertz:            10,
		EmergencyTimeout: time.Second,
		ShutdownTimeout:  10 * time.Second,
		WarmStart:        10,
	}
}

// Generator is the response generator as the runtime drives it.
// *llm.Generator satisfies it.
type Generator interface {
	conversation.Generator
	Initialize(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() llm.GeneratorStatus
}

// HistoryStore supplies persisted turns for the warm start and is closed at
// shutdown.
type HistoryStore interface {
	Recent(ctx context.Context, n int) ([]types.ConversationTurn, error)
	Close() error
}

// Controller is an attached hardware or dashboard handle.
type Controller interface {
	Status() any
	Stop(ctx context.Context) error
	EmergencyStop(ctx context.Context) error
}

// Deps are the components the runtime composes. Engine, Safety, History,
// Bus, Metrics and Controller are optional.
type Deps struct {
	Inputs     *input.Orchestrator
	Actions    *action.Orchestrator
	Fuser      fuser.Fuser
	Generator  Generator
	Engine     *conversation.Engine
	Safety     *safety.Monitor
	History    HistoryStore
	Bus        *bus.Bus
	Metrics    *metrics.Metrics
	Controller Controller
}

// Cortex runs the decision loop. Stop and EmergencyStop may be called from
// any goroutine.
type Cortex struct {
	cfg    Config
	deps   Deps
	log    zerolog.Logger
	period time.Duration

	mu          sync.Mutex
	initialized bool
	running     bool
	shutdown    bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	stopOnce    *sync.Once
	controller  Controller
	startedAt   time.Time
	cycles      uint64
	errs        uint64
	avgCycle    time.Duration
	lastError   string
	emergency   bool
	shutdownErr error
}

// New validates deps and creates a runtime.
func New(cfg Config, deps Deps, log zerolog.Logger) (*Cortex, error) {
	switch {
	case deps.Inputs == nil:
		return nil, errors.New("runtime: input orchestrator is required")
	case deps.Actions == nil:
		return nil, errors.New("runtime: action orchestrator is required")
	case deps.Fuser == nil:
		return nil, errors.New("runtime: fuser is required")
	case deps.Generator == nil:
		return nil, errors.New("runtime: response generator is required")
	}
	if cfg.Hertz <= 0 {
		return nil, fmt.Errorf("runtime: hertz must be positive, got %v", cfg.Hertz)
	}
	d := DefaultConfig()
	if cfg.EmergencyTimeout <= 0 {
		cfg.EmergencyTimeout = d.EmergencyTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = d.ShutdownTimeout
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = conversation.DefaultPolicy
	}
	return &Cortex{
		cfg:        cfg,
		deps:       deps,
		log:        logging.Component(log, "runtime"),
		period:     time.Duration(float64(time.Second) / cfg.Hertz),
		controller: deps.Controller,
	}, nil
}

// AttachController sets the hardware or dashboard handle. It is used when
// the controller itself needs the runtime, as the dashboard does.
func (c *Cortex) AttachController(ctrl Controller) {
	c.mu.Lock()
	c.controller = ctrl
	c.mu.Unlock()
}

// Bus returns the event bus, or nil.
func (c *Cortex) Bus() *bus.Bus { return c.deps.Bus }

// Initialize brings up every component in composition order. It fails only
// if either orchestrator initializes zero plugins or the generator cannot
// be set up.
func (c *Cortex) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.log.Info().Str("name", c.cfg.Name).Float64("hertz", c.cfg.Hertz).Str("fuser", c.deps.Fuser.Name()).Msg("initializing runtime")

	if err := c.deps.Generator.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize generator: %w", err)
	}
	if err := c.deps.Inputs.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize inputs: %w", err)
	}
	if err := c.deps.Actions.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize actions: %w", err)
	}
	if c.deps.Engine != nil {
		if err := c.deps.Engine.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize conversation engine: %w", err)
		}
		c.warmStart(ctx)
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	c.log.Info().Bool("conversation", c.deps.Engine != nil).Msg("runtime initialized")
	return nil
}

func (c *Cortex) warmStart(ctx context.Context) {
	if c.deps.History == nil || c.cfg.WarmStart <= 0 {
		return
	}
	turns, err := c.deps.History.Recent(ctx, c.cfg.WarmStart)
	if err != nil {
		c.log.Warn().Err(err).Str("op", "warm_start").Msg("could not load conversation history")
		return
	}
	c.deps.Engine.WarmStart(turns)
	c.log.Debug().Int("turns", len(turns)).Msg("conversation history restored")
}

// Run starts the plugins and runs cycles at the configured rate until ctx
// is cancelled, Stop or EmergencyStop is called, or MaxCycles is reached.
// Components are shut down before Run returns. A clean stop returns nil.
func (c *Cortex) Run(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.emergency:
		c.mu.Unlock()
		return ErrEmergencyStopped
	case c.running:
		c.mu.Unlock()
		return ErrAlreadyRunning
	case c.shutdown:
		c.mu.Unlock()
		return ErrStopped
	case !c.initialized:
		c.mu.Unlock()
		return ErrNotInitialized
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.stopOnce = &sync.Once{}
	c.startedAt = time.Now()
	stopCh, doneCh := c.stopCh, c.doneCh
	c.mu.Unlock()
	defer close(doneCh)

	// Cycles run under loopCtx so Stop and EmergencyStop cut short an
	// in-flight generation or response delay.
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	if err := c.start(loopCtx); err != nil {
		c.finish(ctx)
		return err
	}

	c.deps.Metrics.SetRunning(true)
	c.publish(bus.NewEvent(bus.EventRuntimeStarted))
	c.log.Info().Dur("period", c.period).Msg("decision loop started")

	c.loop(loopCtx, stopCh)
	c.finish(ctx)
	return nil
}

func (c *Cortex) start(ctx context.Context) error {
	if err := c.deps.Inputs.Start(ctx); err != nil {
		return fmt.Errorf("start inputs: %w", err)
	}
	if err := c.deps.Actions.Start(ctx); err != nil {
		return fmt.Errorf("start actions: %w", err)
	}
	return nil
}

func (c *Cortex) loop(ctx context.Context, stopCh <-chan struct{}) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		start := time.Now()
		cycleID := uuid.NewString()
		err := c.runCycle(ctx, cycleID)
		took := time.Since(start)
		count := c.record(took, err)

		if err != nil {
			c.log.Error().Err(err).Str("cycle_id", cycleID).Uint64("cycle", count).Msg("cycle failed")
			ev := bus.NewEvent(bus.EventCycleError)
			ev.CycleID = cycleID
			ev.CycleCount = count
			ev.Error = err.Error()
			c.publish(ev)
		} else {
			ev := bus.NewEvent(bus.EventCycleComplete)
			ev.CycleID = cycleID
			ev.CycleCount = count
			ev.DurationMs = took.Milliseconds()
			c.publish(ev)
		}

		if c.cfg.MaxCycles > 0 && count >= c.cfg.MaxCycles {
			c.log.Info().Uint64("cycles", count).Msg("cycle limit reached")
			return
		}

		// No catch-up: an overrunning cycle is followed immediately by the next.
		if remaining := c.period - took; remaining > 0 {
			timer.Reset(remaining)
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-timer.C:
			}
		}
	}
}

func (c *Cortex) record(took time.Duration, err error) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cycles++
	if c.cycles == 1 {
		c.avgCycle = took
	} else {
		c.avgCycle = time.Duration(emaAlpha*float64(took) + (1-emaAlpha)*float64(c.avgCycle))
	}
	if err != nil {
		c.errs++
		c.lastError = err.Error()
	}
	c.deps.Metrics.ObserveCycle(took, err != nil)
	return c.cycles
}

// runCycle runs one collect, decide, act iteration. A panic anywhere in the
// cycle is converted into an error so the loop survives it.
func (c *Cortex) runCycle(ctx context.Context, cycleID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()

	records := c.deps.Inputs.CollectInputs(ctx)
	if len(records) == 0 {
		return nil
	}

	if c.deps.Safety != nil {
		a := c.deps.Safety.Assess(records)
		if a.Emergency() {
			ev := bus.NewEvent(bus.EventSafety)
			ev.CycleID = cycleID
			ev.Details = map[string]any{"level": string(a.Level), "reasons": a.Reasons}
			c.publish(ev)
			if c.deps.Safety.EmergencyStopEnabled() {
				return c.emergencyStop(ctx, fmt.Sprintf("safety: %v", a.Reasons))
			}
		}
	}

	if c.deps.Engine != nil {
		resp := c.deps.Engine.ProcessCycle(ctx, records)
		if resp == nil {
			return nil
		}
		ok, _ := c.deps.Engine.ExecuteResponse(ctx, resp)
		ev := bus.NewResponseEvent(cycleID, resp.Text, string(resp.Affect), resp.GestureNames())
		ev.Confidence = resp.Confidence
		ev.Details = map[string]any{"dispatched": ok, "provider": resp.Provider}
		c.publish(ev)
		return nil
	}

	return c.fuseAndSpeak(ctx, cycleID, records)
}

// fuseAndSpeak is the cycle without a conversation engine: the fused
// context is answered with the base policy and spoken as is.
func (c *Cortex) fuseAndSpeak(ctx context.Context, cycleID string, records []types.InputRecord) error {
	fused := c.deps.Fuser.Fuse(records)
	if fused == nil {
		return nil
	}
	reply, err := c.deps.Generator.Process(ctx, fused, c.cfg.SystemPrompt)
	if err != nil {
		c.log.Debug().Err(err).Str("cycle_id", cycleID).Msg("no response this cycle")
		return nil
	}

	ok := false
	if c.deps.Actions.Has(types.ActionSpeech) {
		res := c.deps.Actions.Execute(ctx, types.NewActionRequest(types.ActionSpeech, "speak", map[string]any{
			"text": reply.Content,
		}))
		ok = res.Success
	}
	ev := bus.NewResponseEvent(cycleID, reply.Content, "", nil)
	ev.Confidence = fused.Confidence
	ev.Details = map[string]any{"dispatched": ok, "provider": reply.Provider, "strategy": fused.Strategy}
	c.publish(ev)
	return nil
}

func (c *Cortex) signalStop() {
	c.mu.Lock()
	once, stopCh := c.stopOnce, c.stopCh
	c.mu.Unlock()
	if once != nil {
		once.Do(func() { close(stopCh) })
	}
}

// Stop ends the loop and shuts the components down. When no loop is
// running it shuts the components down directly. Calling Stop again is a
// no-op that returns the first result.
func (c *Cortex) Stop(ctx context.Context) error {
	c.mu.Lock()
	doneCh := c.doneCh
	c.mu.Unlock()

	if doneCh != nil {
		c.signalStop()
		select {
		case <-doneCh:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.shutdownErr
	}
	return c.shutdownComponents(ctx)
}

// EmergencyStop halts the loop and runs the emergency path of every action
// plugin before any other shutdown step. It never waits for the loop. The
// stop is latched: Run refuses to start afterwards. When no loop was ever
// started the components are shut down here as well.
func (c *Cortex) EmergencyStop(ctx context.Context) error {
	return c.emergencyStop(ctx, "manual")
}

func (c *Cortex) emergencyStop(ctx context.Context, reason string) error {
	c.log.Warn().Str("reason", reason).Msg("EMERGENCY STOP")
	c.mu.Lock()
	c.emergency = true
	c.running = false
	looped := c.doneCh != nil
	ctrl := c.controller
	c.mu.Unlock()
	c.signalStop()
	c.deps.Metrics.EmergencyStop()
	c.deps.Metrics.SetRunning(false)

	ectx, cancel := logging.DetachContextWithTimeout(ctx, c.cfg.EmergencyTimeout*2)
	defer cancel()

	var errs []error
	if err := c.deps.Actions.EmergencyStop(ectx); err != nil {
		errs = append(errs, err)
	}
	if err := c.deps.Inputs.EmergencyStop(ectx, c.cfg.EmergencyTimeout); err != nil {
		errs = append(errs, err)
	}
	if ctrl != nil {
		if err := plugin.Do(ectx, c.cfg.EmergencyTimeout, ctrl.EmergencyStop); err != nil {
			errs = append(errs, fmt.Errorf("controller emergency stop: %w", err))
		}
	}
	err := errors.Join(errs...)
	c.publish(bus.NewEmergencyStopEvent(reason, err))

	if !looped {
		sctx, scancel := logging.DetachContextWithTimeout(ctx, c.cfg.ShutdownTimeout)
		defer scancel()
		if serr := c.shutdownComponents(sctx); serr != nil {
			c.log.Warn().Err(serr).Msg("shutdown after emergency stop finished with errors")
		}
	}
	return err
}

// finish marks the loop stopped and shuts the components down.
func (c *Cortex) finish(ctx context.Context) {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.deps.Metrics.SetRunning(false)

	sctx, cancel := logging.DetachContextWithTimeout(ctx, c.cfg.ShutdownTimeout)
	defer cancel()
	if err := c.shutdownComponents(sctx); err != nil {
		c.log.Warn().Err(err).Msg("shutdown finished with errors")
	}
}

// shutdownComponents stops inputs, actions, fuser, generator, engine, the
// history store and the controller in that order. Every step is attempted.
func (c *Cortex) shutdownComponents(ctx context.Context) error {
	c.mu.Lock()
	if c.shutdown {
		defer c.mu.Unlock()
		return c.shutdownErr
	}
	c.shutdown = true
	ctrl := c.controller
	c.mu.Unlock()

	c.log.Info().Msg("stopping runtime")
	var errs []error
	step := func(name string, fn func() error) {
		defer func() {
			if r := recover(); r != nil {
				errs = append(errs, fmt.Errorf("%s: panic: %v", name, r))
			}
		}()
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("inputs", func() error { return c.deps.Inputs.Stop(ctx) })
	step("actions", func() error { return c.deps.Actions.Stop(ctx) })
	step("fuser", func() error { c.deps.Fuser.Reset(); return nil })
	step("generator", func() error { return c.deps.Generator.Stop(ctx) })
	if c.deps.Engine != nil {
		step("conversation", func() error { return c.deps.Engine.Stop(ctx) })
	}
	if c.deps.History != nil {
		step("history", c.deps.History.Close)
	}
	if ctrl != nil {
		step("controller", func() error { return ctrl.Stop(ctx) })
	}

	c.logFinalStats()
	c.publish(bus.NewEvent(bus.EventRuntimeStopped))

	err := errors.Join(errs...)
	c.mu.Lock()
	c.shutdownErr = err
	c.mu.Unlock()
	return err
}

func (c *Cortex) logFinalStats() {
	c.mu.Lock()
	started, cycles, errs, avg := c.startedAt, c.cycles, c.errs, c.avgCycle
	c.mu.Unlock()
	if started.IsZero() {
		return
	}
	total := time.Since(started)
	freq := 0.0
	if total > 0 {
		freq = float64(cycles) / total.Seconds()
	}
	c.log.Info().
		Dur("total", total).
		Uint64("cycles", cycles).
		Float64("hz", freq).
		Dur("avg_cycle", avg).
		Uint64("errors", errs).
		Msg("final statistics")
}

func (c *Cortex) publish(ev bus.Event) {
	if c.deps.Bus == nil {
		return
	}
	if err := c.deps.Bus.Publish(ev); err != nil && !errors.Is(err, bus.ErrClosed) {
		c.log.Debug().Err(err).Str("event", string(ev.Type)).Msg("publish failed")
	}
}

// FailureReporter returns a plugin failure hook that publishes to b.
func FailureReporter(b *bus.Bus, component string) plugin.FailureFunc {
	return func(pluginName, op string, err error) {
		if b == nil {
			return
		}
		_ = b.Publish(bus.NewPluginFailureEvent(component, pluginName, op, err))
	}
}
