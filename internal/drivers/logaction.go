package drivers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/t031a5/internal/plugin"
	"github.com/normanking/t031a5/pkg/types"
)

// LogAction writes every request it receives to the logger and succeeds.
// The optional latency option simulates actuator time.
type LogAction struct {
	*plugin.Lifecycle

	log     zerolog.Logger
	latency time.Duration

	mu       sync.Mutex
	executed uint64
	last     types.ActionRequest
}

// NewLogAction creates a log action for cfg.Type.
func NewLogAction(cfg plugin.Config, log zerolog.Logger) *LogAction {
	a := &LogAction{
		log:     log,
		latency: optDuration(cfg.Options, "latency", 0),
	}
	a.Lifecycle = plugin.NewLifecycle(cfg, plugin.Hooks{
		EmergencyStop: func(context.Context) error {
			a.log.Warn().Str("plugin", a.Name()).Msg("emergency stop")
			return nil
		},
	})
	return a
}

// Execute logs req.
func (a *LogAction) Execute(ctx context.Context, req types.ActionRequest) types.ActionResult {
	start := time.Now()
	if !a.Enabled() {
		return types.Failed(req, plugin.ErrDisabled, 0)
	}
	if !a.Active() {
		return types.Failed(req, plugin.ErrNotRunning, 0)
	}

	if a.latency > 0 {
		select {
		case <-time.After(a.latency):
		case <-ctx.Done():
			return types.Failed(req, ctx.Err(), time.Since(start))
		}
	}

	a.log.Info().
		Str("plugin", a.Name()).
		Str("category", req.Category).
		Interface("data", req.Data).
		Msg("action")

	a.mu.Lock()
	a.executed++
	a.last = req
	n := a.executed
	a.mu.Unlock()

	return types.Succeeded(req, map[string]any{"executed": n}, time.Since(start))
}

// Executed returns the number of requests handled.
func (a *LogAction) Executed() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.executed
}

// Last returns the most recent request.
func (a *LogAction) Last() types.ActionRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}
