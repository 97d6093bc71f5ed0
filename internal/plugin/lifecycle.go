package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the lifecycle state of a plugin.
type State int

const (
	// StateUninitialized indicates the plugin was created but not initialized.
	StateUninitialized State = iota
	// StateInitialized indicates initialization succeeded and the plugin can start.
	StateInitialized
	// StateRunning indicates the plugin produces data or accepts requests.
	StateRunning
	// StateStopped indicates the plugin was stopped, normally or by emergency stop.
	StateStopped
	// StateFailed indicates a lifecycle hook returned an error.
	StateFailed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotInitialized is returned by Start when Initialize has not succeeded.
	ErrNotInitialized = errors.New("plugin not initialized")
	// ErrNotRunning is returned by data and execute calls outside StateRunning.
	ErrNotRunning = errors.New("plugin not running")
	// ErrDisabled is returned when a disabled plugin is asked to execute.
	ErrDisabled = errors.New("plugin disabled")
	// ErrInterrupted is returned by a transition that was overtaken by an
	// emergency stop while its hook ran. The plugin stays stopped.
	ErrInterrupted = errors.New("interrupted by emergency stop")
)

// Config is the per-plugin configuration block.
type Config struct {
	// Type is the input type or action name the plugin is registered under.
	Type string
	// Name identifies the instance in logs and status. Defaults to Type.
	Name string
	// Enabled false makes every lifecycle call a silent success.
	Enabled bool
	// Priority is copied onto records produced by input plugins.
	Priority int
	// Timeout bounds each call into the plugin. Zero uses the orchestrator default.
	Timeout time.Duration
	// Driver selects a registered implementation. Empty means "use Type".
	Driver string
	// Options carries driver specific settings.
	Options map[string]any
}

// DisplayName returns Name, falling back to Type.
func (c Config) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Type
}

// Hooks are the plugin-specific parts of the lifecycle. Nil hooks succeed.
type Hooks struct {
	Initialize    func(ctx context.Context) error
	Start         func(ctx context.Context) error
	Stop          func(ctx context.Context) error
	EmergencyStop func(ctx context.Context) error
	// Health returns plugin specific issues; an empty list means healthy.
	Health func(ctx context.Context) []string
}

// Lifecycle implements the shared state machine. Plugins embed a *Lifecycle
// and supply their behaviour through Hooks.
//
// Hooks run without the lock held so an emergency stop is never queued
// behind a slow start or stop.
type Lifecycle struct {
	mu      sync.Mutex
	cfg     Config
	hooks   Hooks
	state   State
	lastErr error
	changed time.Time
	// epoch counts emergency stops. A transition only commits if no
	// emergency stop happened while its hook ran.
	epoch uint64
}

// NewLifecycle creates a lifecycle in StateUninitialized.
func NewLifecycle(cfg Config, hooks Hooks) *Lifecycle {
	if cfg.Priority == 0 {
		cfg.Priority = 1
	}
	return &Lifecycle{
		cfg:     cfg,
		hooks:   hooks,
		state:   StateUninitialized,
		changed: time.Now(),
	}
}

// Name returns the instance name.
func (l *Lifecycle) Name() string { return l.cfg.DisplayName() }

// Type returns the registered type or action name.
func (l *Lifecycle) Type() string { return l.cfg.Type }

// Config returns a copy of the plugin configuration.
func (l *Lifecycle) Config() Config { return l.cfg }

// Enabled reports whether the plugin is enabled in configuration.
func (l *Lifecycle) Enabled() bool { return l.cfg.Enabled }

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// LastError returns the error of the most recent failed transition.
func (l *Lifecycle) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// StateChangedAt returns when the state last changed.
func (l *Lifecycle) StateChangedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changed
}

// Active reports whether the plugin is enabled and running, i.e. whether it
// may produce data or accept requests.
func (l *Lifecycle) Active() bool {
	return l.cfg.Enabled && l.State() == StateRunning
}

// Initialize moves the plugin to StateInitialized.
func (l *Lifecycle) Initialize(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case StateInitialized, StateRunning:
		l.mu.Unlock()
		return nil
	}
	epoch := l.epoch
	l.mu.Unlock()

	if !l.cfg.Enabled {
		return l.commit(epoch, "initialize", StateInitialized, nil)
	}
	if l.hooks.Initialize != nil {
		if err := l.hooks.Initialize(ctx); err != nil {
			err = fmt.Errorf("initialize %s: %w", l.Name(), err)
			if cerr := l.commit(epoch, "initialize", StateFailed, err); cerr != nil {
				return errors.Join(err, cerr)
			}
			return err
		}
	}
	return l.commit(epoch, "initialize", StateInitialized, nil)
}

// Start moves an initialized or stopped plugin to StateRunning.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case StateRunning:
		l.mu.Unlock()
		return nil
	case StateInitialized, StateStopped:
	default:
		state := l.state
		l.mu.Unlock()
		return fmt.Errorf("start %s from %s: %w", l.Name(), state, ErrNotInitialized)
	}
	epoch := l.epoch
	l.mu.Unlock()

	if !l.cfg.Enabled {
		return l.commit(epoch, "start", StateRunning, nil)
	}
	if l.hooks.Start != nil {
		if err := l.hooks.Start(ctx); err != nil {
			err = fmt.Errorf("start %s: %w", l.Name(), err)
			if cerr := l.commit(epoch, "start", StateFailed, err); cerr != nil {
				return errors.Join(err, cerr)
			}
			return err
		}
	}
	return l.commit(epoch, "start", StateRunning, nil)
}

// Stop moves a running plugin to StateStopped. Stopping a plugin that is not
// running succeeds without side effects.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return nil
	}
	epoch := l.epoch
	l.mu.Unlock()

	if l.cfg.Enabled && l.hooks.Stop != nil {
		if err := l.hooks.Stop(ctx); err != nil {
			err = fmt.Errorf("stop %s: %w", l.Name(), err)
			// An emergency stop already left the plugin stopped.
			_ = l.commit(epoch, "stop", StateFailed, err)
			return err
		}
	}
	_ = l.commit(epoch, "stop", StateStopped, nil)
	return nil
}

// EmergencyStop moves the plugin to StateStopped from any state. The state
// changes before the hook runs, so Active is false immediately. The hook is
// skipped for plugins that never initialized.
func (l *Lifecycle) EmergencyStop(ctx context.Context) error {
	l.mu.Lock()
	prev := l.state
	l.state = StateStopped
	l.changed = time.Now()
	l.epoch++
	l.mu.Unlock()

	if !l.cfg.Enabled || prev == StateUninitialized || l.hooks.EmergencyStop == nil {
		return nil
	}
	if err := l.hooks.EmergencyStop(ctx); err != nil {
		err = fmt.Errorf("emergency stop %s: %w", l.Name(), err)
		l.mu.Lock()
		l.lastErr = err
		l.mu.Unlock()
		return err
	}
	return nil
}

// Health reports plugin health independently of lifecycle transitions.
func (l *Lifecycle) Health(ctx context.Context) Health {
	if !l.cfg.Enabled {
		return Health{Healthy: true, State: "disabled"}
	}

	l.mu.Lock()
	state, lastErr := l.state, l.lastErr
	l.mu.Unlock()

	var issues []string
	switch state {
	case StateFailed:
		msg := "plugin in failed state"
		if lastErr != nil {
			msg = lastErr.Error()
		}
		issues = append(issues, msg)
	case StateRunning:
	default:
		issues = append(issues, "plugin not running ("+state.String()+")")
	}
	if l.hooks.Health != nil {
		issues = append(issues, l.hooks.Health(ctx)...)
	}
	return Health{Healthy: len(issues) == 0, Issues: issues, State: state.String()}
}

// commit moves to state unless an emergency stop happened since epoch was
// read, in which case the plugin stays stopped and ErrInterrupted is returned.
func (l *Lifecycle) commit(epoch uint64, op string, state State, err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.epoch != epoch {
		return fmt.Errorf("%s %s: %w", op, l.Name(), ErrInterrupted)
	}
	l.state = state
	l.changed = time.Now()
	if err != nil {
		l.lastErr = err
	}
	return nil
}
