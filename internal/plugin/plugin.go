// Package plugin defines the contract shared by sensor (input) and actuator
// (action) plugins: a lifecycle state machine, health reporting, a type
// registry with no-op stand-ins, and a guarded call helper that turns
// timeouts and panics into ordinary errors.
package plugin

import (
	"context"
	"time"

	"github.com/normanking/t031a5/pkg/types"
)

// Plugin is the lifecycle surface every plugin exposes. Embedding *Lifecycle
// satisfies it.
type Plugin interface {
	Name() string
	Type() string
	Enabled() bool
	State() State
	Initialize(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	EmergencyStop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Input is a sensor plugin. GetData returns nil when there is nothing to
// report this cycle.
type Input interface {
	Plugin
	GetData(ctx context.Context) (*types.InputRecord, error)
}

// Action is an actuator plugin. Execute reports failures in the result and
// never returns them out of band.
type Action interface {
	Plugin
	Execute(ctx context.Context, req types.ActionRequest) types.ActionResult
}

// Health is the result of a health check. Unhealthy plugins are flagged in
// status reports and left in place.
type Health struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues,omitempty"`
	State   string   `json:"state"`
}

// CallTimeout returns the plugin's configured per-call timeout, or fallback
// when the plugin has none.
func CallTimeout(p Plugin, fallback time.Duration) time.Duration {
	if c, ok := p.(interface{ Config() Config }); ok && c.Config().Timeout > 0 {
		return c.Config().Timeout
	}
	return fallback
}
