// Package input owns the sensor plugins and produces one snapshot of input
// records per decision cycle.
package input

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

const component = "input"

// ErrNoPluginsInitialized is returned by Initialize when every input plugin
// failed to initialize.
var ErrNoPluginsInitialized = errors.New("no input plugins initialized")

const (
	// DefaultCallTimeout bounds each GetData call.
	DefaultCallTimeout = 2 * time.Second
	// DefaultLifecycleTimeout bounds each lifecycle call.
	DefaultLifecycleTimeout = 5 * time.Second
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCallTimeout sets the default per-call timeout for GetData.
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

// WithMetrics records plugin failures in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithFailureHook is called after every failed plugin operation.
func WithFailureHook(fn plugin.FailureFunc) Option {
	return func(o *Orchestrator) { o.hook = fn }
}

// Orchestrator owns the input plugins.
type Orchestrator struct {
	log              zerolog.Logger
	callTimeout      time.Duration
	lifecycleTimeout time.Duration
	metrics          *metrics.Metrics
	hook             plugin.FailureFunc

	group *plugin.Group[plugin.Input]
}

// New creates an orchestrator over already constructed plugins.
func New(plugins []plugin.Input, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:              log.With().Str("component", "input_orchestrator").Logger(),
		callTimeout:      DefaultCallTimeout,
		lifecycleTimeout: DefaultLifecycleTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.group = plugin.NewGroup(plugins, o.lifecycleTimeout, o.log, o.failed)
	return o
}

// NewFromConfig builds one plugin per config block through reg. Types with no
// registered driver get a no-op stand-in. A factory error excludes that
// plugin and is logged.
func NewFromConfig(cfgs []plugin.Config, reg *plugin.Registry, log zerolog.Logger, opts ...Option) *Orchestrator {
	plugins := make([]plugin.Input, 0, len(cfgs))
	for _, cfg := range cfgs {
		p, found, err := reg.NewInput(cfg, log.With().Str("plugin", cfg.DisplayName()).Logger())
		if err != nil {
			log.Error().Err(err).Str("plugin", cfg.DisplayName()).Str("op", "create").Msg("input plugin excluded")
			continue
		}
		if !found {
			log.Warn().Str("plugin", cfg.DisplayName()).Str("driver", cfg.Driver).Msg("no driver registered, using no-op input")
		}
		plugins = append(plugins, p)
	}
	return New(plugins, log, opts...)
}

func (o *Orchestrator) failed(name, op string, err error) {
	o.log.Warn().Err(err).Str("plugin", name).Str("op", op).Msg("input plugin failure")
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
	o.log.Info().Int("initialized", n).Int("total", len(o.group.All())).Msg("input plugins initialized")
	return nil
}

// Start starts the initialized plugins.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.group.StartAll(ctx); err != nil {
		return fmt.Errorf("start inputs: %w", err)
	}
	return nil
}

// Stop stops every plugin. Calling it again is a no-op that succeeds.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if err := o.group.StopAll(ctx); err != nil {
		return fmt.Errorf("stop inputs: %w", err)
	}
	return nil
}

// EmergencyStop runs every plugin's emergency path, each bounded by timeout.
func (o *Orchestrator) EmergencyStop(ctx context.Context, timeout time.Duration) error {
	return o.group.EmergencyStopAll(ctx, timeout)
}

// Running reports whether the orchestrator has been started.
func (o *Orchestrator) Running() bool {
	return o.group.Running()
}

// CollectInputs calls GetData on every running plugin concurrently and
// returns the records produced. A plugin that fails, panics or times out
// contributes nothing this cycle. Record order is not defined.
func (o *Orchestrator) CollectInputs(ctx context.Context) []types.InputRecord {
	plugins := o.group.Callable()
	if len(plugins) == 0 {
		return nil
	}

	slots := make([]*types.InputRecord, len(plugins))
	var eg errgroup.Group
	for i, p := range plugins {
		eg.Go(func() error {
			rec, err := plugin.Call(ctx, plugin.CallTimeout(p, o.callTimeout), p.GetData)
			o.group.Record(p.Name(), "get_data", err)
			if err == nil {
				slots[i] = rec
			}
			return nil
		})
	}
	_ = eg.Wait()

	records := make([]types.InputRecord, 0, len(slots))
	for _, rec := range slots {
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records
}

// Health checks every plugin.
func (o *Orchestrator) Health(ctx context.Context) map[string]plugin.Health {
	return o.group.Health(ctx)
}

// Status reports per-plugin state, health and error counts.
func (o *Orchestrator) Status(ctx context.Context) plugin.GroupStatus {
	return o.group.Status(ctx)
}

// Names returns the plugin names in sorted order.
func (o *Orchestrator) Names() []string {
	return o.group.Names()
}
