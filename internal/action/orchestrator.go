// Package action owns the actuator plugins, routes action requests to them
// and propagates emergency stops.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/t031a5/internal/metrics"
	"github.com/normanking/t031a5/internal/plugin"
	"github.com/normanking/t031a5/pkg/types"
)

const component = "action"

var (
	// ErrNoPluginsInitialized is returned by Initialize when every action
	// plugin failed to initialize.
	ErrNoPluginsInitialized = errors.New("no action plugins initialized")
	// ErrPluginNotFound is reported in the result of a request addressed to
	// an action with no plugin.
	ErrPluginNotFound = errors.New("no plugin for action")
)

const (
	// DefaultCallTimeout bounds each Execute call when neither the request
	// nor the plugin sets a shorter one.
	DefaultCallTimeout = 2 * time.Second
	// DefaultLifecycleTimeout bounds each lifecycle call.
	DefaultLifecycleTimeout = 5 * time.Second
	// DefaultEmergencyTimeout bounds each plugin's emergency stop.
	DefaultEmergencyTimeout = time.Second
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCallTimeout sets the default per-call timeout for Execute.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

// WithLifecycleTimeout sets the timeout of initialize, start and stop calls.
func WithLifecycleTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.lifecycleTimeout = d
		}
	}
}

// WithEmergencyTimeout sets the per-plugin emergency stop bound.
func WithEmergencyTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.emergencyTimeout = d
		}
	}
}

// WithMetrics records action outcomes and plugin failures in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithFailureHook is called after every failed plugin operation.
func WithFailureHook(fn plugin.FailureFunc) Option {
	return func(o *Orchestrator) { o.hook = fn }
}

// Orchestrator owns the action plugins.
type Orchestrator struct {
	log              zerolog.Logger
	callTimeout      time.Duration
	lifecycleTimeout time.Duration
	emergencyTimeout time.Duration
	metrics          *metrics.Metrics
	hook             plugin.FailureFunc

	group  *plugin.Group[plugin.Action]
	byName map[string]plugin.Action
}

// New creates an orchestrator over already constructed plugins. Requests are
// routed by plugin type; when two plugins share a type the first one wins.
func New(plugins []plugin.Action, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:              log.With().Str("component", "action_orchestrator").Logger(),
		callTimeout:      DefaultCallTimeout,
		lifecycleTimeout: DefaultLifecycleTimeout,
		emergencyTimeout: DefaultEmergencyTimeout,
		byName:           make(map[string]plugin.Action, len(plugins)),
	}
	for _, opt := range opts {
		opt(o)
	}
	for _, p := range plugins {
		if _, dup := o.byName[p.Type()]; dup {
			o.log.Warn().Str("plugin", p.Name()).Str("action", p.Type()).Msg("duplicate action plugin ignored for routing")
			continue
		}
		o.byName[p.Type()] = p
	}
	o.group = plugin.NewGroup(plugins, o.lifecycleTimeout, o.log, o.failed)
	return o
}

// NewFromConfig builds one plugin per config block through reg. Names with no
// registered driver get a no-op stand-in. A factory error excludes that
// plugin and is logged.
func NewFromConfig(cfgs []plugin.Config, reg *plugin.Registry, log zerolog.Logger, opts ...Option) *Orchestrator {
	plugins := make([]plugin.Action, 0, len(cfgs))
	for _, cfg := range cfgs {
		p, found, err := reg.NewAction(cfg, log.With().Str("plugin", cfg.DisplayName()).Logger())
		if err != nil {
			log.Error().Err(err).Str("plugin", cfg.DisplayName()).Str("op", "create").Msg("action plugin excluded")
			continue
		}
		if !found {
			log.Warn().Str("plugin", cfg.DisplayName()).Str("driver", cfg.Driver).Msg("no driver registered, using no-op action")
		}
		plugins = append(plugins, p)
	}
	return New(plugins, log, opts...)
}

func (o *Orchestrator) failed(name, op string, err error) {
	o.log.Warn().Err(err).Str("plugin", name).Str("op", op).Msg("action plugin failure")
	o.metrics.PluginFailure(component, name, op)
	if o.hook != nil {
		o.hook(name, op, err)
	}
}

// Initialize initializes every plugin. It succeeds if at least one plugin
// initialized.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	n := o.group.InitializeAll(ctx)
	if n == 0 {
		return ErrNoPluginsInitialized
	}
	o.log.Info().Int("initialized", n).Int("total", len(o.group.All())).Msg("action plugins initialized")
	return nil
}

// Start starts the initialized plugins.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.group.StartAll(ctx); err != nil {
		return fmt.Errorf("start actions: %w", err)
	}
	return nil
}

// Stop stops every plugin. Calling it again is a no-op that succeeds.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if err := o.group.StopAll(ctx); err != nil {
		return fmt.Errorf("stop actions: %w", err)
	}
	return nil
}

// EmergencyStop runs the emergency path of every plugin regardless of its
// health, concurrently, each bounded by the emergency timeout. The
// orchestrator is not running afterwards even if some plugins failed.
func (o *Orchestrator) EmergencyStop(ctx context.Context) error {
	o.log.Warn().Msg("emergency stop")
	err := o.group.EmergencyStopAll(ctx, o.emergencyTimeout)
	if err != nil {
		return fmt.Errorf("emergency stop actions: %w", err)
	}
	return nil
}

// Running reports whether the orchestrator has been started.
func (o *Orchestrator) Running() bool {
	return o.group.Running()
}

// Has reports whether a plugin is registered for the action name.
func (o *Orchestrator) Has(name string) bool {
	_, ok := o.byName[name]
	return ok
}

// Execute runs a single request.
func (o *Orchestrator) Execute(ctx context.Context, req types.ActionRequest) types.ActionResult {
	return o.ExecuteActions(ctx, []types.ActionRequest{req})[0]
}

// ExecuteActions runs every request concurrently and returns the results in
// request order. Missing plugins, failures, panics and timeouts are reported
// in the corresponding result and never abort the batch.
func (o *Orchestrator) ExecuteActions(ctx context.Context, reqs []types.ActionRequest) []types.ActionResult {
	results := make([]types.ActionResult, len(reqs))
	running := o.group.Running()

	var eg errgroup.Group
	for i, req := range reqs {
		eg.Go(func() error {
			results[i] = o.execute(ctx, req, running)
			o.metrics.ActionResult(req.Name, results[i].Success)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func (o *Orchestrator) execute(ctx context.Context, req types.ActionRequest, running bool) types.ActionResult {
	p, ok := o.byName[req.Name]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrPluginNotFound, req.Name)
		o.failed(req.Name, "execute", err)
		return types.Failed(req, err, 0)
	}
	if !running || p.State() != plugin.StateRunning {
		err := fmt.Errorf("%s: %w", p.Name(), plugin.ErrNotRunning)
		o.group.Record(p.Name(), "execute", err)
		return types.Failed(req, err, 0)
	}

	timeout := plugin.CallTimeout(p, o.callTimeout)
	if req.Timeout > 0 && req.Timeout < timeout {
		timeout = req.Timeout
	}

	start := time.Now()
	res, err := plugin.Call(ctx, timeout, func(ctx context.Context) (types.ActionResult, error) {
		return p.Execute(ctx, req), nil
	})
	if err != nil {
		o.group.Record(p.Name(), "execute", err)
		return types.Failed(req, err, time.Since(start))
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "action reported failure"
		}
		o.group.Record(p.Name(), "execute", errors.New(msg))
		return res
	}
	o.group.Record(p.Name(), "execute", nil)
	return res
}

// Health checks every plugin.
func (o *Orchestrator) Health(ctx context.Context) map[string]plugin.Health {
	return o.group.Health(ctx)
}

// Status reports per-plugin state, health and execution counts.
func (o *Orchestrator) Status(ctx context.Context) plugin.GroupStatus {
	return o.group.Status(ctx)
}

// Names returns the plugin names in sorted order.
func (o *Orchestrator) Names() []string {
	return o.group.Names()
}
