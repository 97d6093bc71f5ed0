package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// FailureFunc is told about every failed plugin operation.
type FailureFunc func(pluginName, op string, err error)

// Stats counts calls into one plugin.
type Stats struct {
	Calls       uint64    `json:"calls"`
	Failures    uint64    `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// Status is the per-plugin entry of a group status report.
type Status struct {
	Type    string   `json:"type"`
	State   string   `json:"state"`
	Enabled bool     `json:"enabled"`
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues,omitempty"`
	Stats
}

// GroupStatus summarises a plugin group.
type GroupStatus struct {
	Running bool              `json:"running"`
	Total   int               `json:"total"`
	Active  int               `json:"active"`
	Plugins map[string]Status `json:"plugins"`
}

// Group drives the lifecycle of a set of plugins. Lifecycle calls fan out
// concurrently and each is bounded by the lifecycle timeout. A plugin that
// fails to initialize is excluded from the active set and never started.
type Group[P Plugin] struct {
	log       zerolog.Logger
	timeout   time.Duration
	onFailure FailureFunc

	mu      sync.RWMutex
	all     []P
	active  []P
	running bool
	stats   map[string]*Stats
}

// NewGroup creates a group over plugins, keeping their order.
func NewGroup[P Plugin](plugins []P, lifecycleTimeout time.Duration, log zerolog.Logger, onFailure FailureFunc) *Group[P] {
	if onFailure == nil {
		onFailure = func(string, string, error) {}
	}
	stats := make(map[string]*Stats, len(plugins))
	for _, p := range plugins {
		stats[p.Name()] = &Stats{}
	}
	return &Group[P]{
		log:       log,
		timeout:   lifecycleTimeout,
		onFailure: onFailure,
		all:       append([]P(nil), plugins...),
		stats:     stats,
	}
}

// InitializeAll initializes every plugin and returns how many succeeded.
// Failures are reported and the failing plugins are left out of the active
// set.
func (g *Group[P]) InitializeAll(ctx context.Context) int {
	ok := make([]bool, len(g.all))

	var eg errgroup.Group
	for i, p := range g.all {
		eg.Go(func() error {
			if err := Do(ctx, g.timeout, p.Initialize); err != nil {
				g.fail(p.Name(), "initialize", err)
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	_ = eg.Wait()

	active := make([]P, 0, len(g.all))
	for i, p := range g.all {
		if ok[i] {
			active = append(active, p)
			g.log.Debug().Str("plugin", p.Name()).Bool("enabled", p.Enabled()).Msg("plugin initialized")
		}
	}

	g.mu.Lock()
	g.active = active
	g.mu.Unlock()
	return len(active)
}

// StartAll starts the active plugins. A plugin that fails to start stays in
// the active set in StateFailed and is skipped by data and execute calls.
// An error is returned only if no plugin could be started.
func (g *Group[P]) StartAll(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return nil
	}
	active := append([]P(nil), g.active...)
	g.mu.Unlock()

	if len(active) == 0 {
		return ErrNotInitialized
	}

	errs := make([]error, len(active))
	var eg errgroup.Group
	for i, p := range active {
		eg.Go(func() error {
			if err := Do(ctx, g.timeout, p.Start); err != nil {
				g.fail(p.Name(), "start", err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = eg.Wait()

	started := 0
	for _, err := range errs {
		if err == nil {
			started++
		}
	}
	if started == 0 {
		return fmt.Errorf("no plugin started: %w", errors.Join(errs...))
	}

	g.mu.Lock()
	g.running = true
	g.mu.Unlock()
	return nil
}

// StopAll stops every active plugin. It is idempotent and attempts every
// plugin even when some fail.
func (g *Group[P]) StopAll(ctx context.Context) error {
	g.mu.Lock()
	g.running = false
	active := append([]P(nil), g.active...)
	g.mu.Unlock()

	errs := make([]error, len(active))
	var eg errgroup.Group
	for i, p := range active {
		eg.Go(func() error {
			if err := Do(ctx, g.timeout, p.Stop); err != nil {
				g.fail(p.Name(), "stop", err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}

// EmergencyStopAll runs the emergency path of every plugin, healthy or not,
// concurrently. Each call is bounded by timeout so one stuck plugin cannot
// hold up the rest. The group is not running afterwards whatever the outcome.
func (g *Group[P]) EmergencyStopAll(ctx context.Context, timeout time.Duration) error {
	g.mu.Lock()
	g.running = false
	all := append([]P(nil), g.all...)
	g.mu.Unlock()

	errs := make([]error, len(all))
	var eg errgroup.Group
	for i, p := range all {
		eg.Go(func() error {
			if err := Do(ctx, timeout, p.EmergencyStop); err != nil {
				g.fail(p.Name(), "emergency_stop", err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}

// Running reports whether StartAll succeeded and no stop has happened since.
func (g *Group[P]) Running() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.running
}

// Active returns the plugins that initialized successfully.
func (g *Group[P]) Active() []P {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]P(nil), g.active...)
}

// Callable returns the active plugins currently in StateRunning.
func (g *Group[P]) Callable() []P {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.running {
		return nil
	}
	out := make([]P, 0, len(g.active))
	for _, p := range g.active {
		if p.State() == StateRunning {
			out = append(out, p)
		}
	}
	return out
}

// All returns every plugin in the group.
func (g *Group[P]) All() []P {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]P(nil), g.all...)
}

// Record counts one data or execute call. A nil err counts a success.
func (g *Group[P]) Record(pluginName, op string, err error) {
	g.mu.Lock()
	s, ok := g.stats[pluginName]
	if !ok {
		s = &Stats{}
		g.stats[pluginName] = s
	}
	s.Calls++
	g.mu.Unlock()

	if err != nil {
		g.fail(pluginName, op, err)
	}
}

func (g *Group[P]) fail(pluginName, op string, err error) {
	g.mu.Lock()
	if s, ok := g.stats[pluginName]; ok {
		s.Failures++
		s.LastError = err.Error()
		s.LastFailure = time.Now()
	}
	g.mu.Unlock()
	g.onFailure(pluginName, op, err)
}

// Health checks every plugin.
func (g *Group[P]) Health(ctx context.Context) map[string]Health {
	all := g.All()
	out := make(map[string]Health, len(all))
	for _, p := range all {
		out[p.Name()] = p.Health(ctx)
	}
	return out
}

// Status reports the group state with per-plugin health and call stats.
func (g *Group[P]) Status(ctx context.Context) GroupStatus {
	health := g.Health(ctx)

	g.mu.RLock()
	defer g.mu.RUnlock()
	st := GroupStatus{
		Running: g.running,
		Total:   len(g.all),
		Active:  len(g.active),
		Plugins: make(map[string]Status, len(g.all)),
	}
	for _, p := range g.all {
		h := health[p.Name()]
		ps := Status{
			Type:    p.Type(),
			State:   p.State().String(),
			Enabled: p.Enabled(),
			Healthy: h.Healthy,
			Issues:  h.Issues,
		}
		if s, ok := g.stats[p.Name()]; ok {
			ps.Stats = *s
		}
		st.Plugins[p.Name()] = ps
	}
	return st
}

// Names returns the plugin names in sorted order.
func (g *Group[P]) Names() []string {
	all := g.All()
	names := make([]string, 0, len(all))
	for _, p := range all {
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return names
}
