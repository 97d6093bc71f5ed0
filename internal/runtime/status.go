package runtime

import (
	"context"
	"time"
)

// Status is the externally observable state of the runtime.
type Status struct {
	Name         string     `json:"name"`
	Running      bool       `json:"running"`
	Emergency    bool       `json:"emergency_stop"`
	Hertz        float64    `json:"hertz"`
	CycleCount   uint64     `json:"cycle_count"`
	AvgCycleTime float64    `json:"avg_cycle_time"` // seconds
	ErrorCount   uint64     `json:"error_count"`
	LastError    string     `json:"last_error,omitempty"`
	Uptime       float64    `json:"uptime"` // seconds
	Components   Components `json:"components"`
}

// Components holds the nested component statuses.
type Components struct {
	Fuser        any `json:"fuser"`
	Generator    any `json:"generator"`
	Inputs       any `json:"inputs"`
	Actions      any `json:"actions"`
	Conversation any `json:"conversation,omitempty"`
	Safety       any `json:"safety,omitempty"`
	Controller   any `json:"controller,omitempty"`
}

// Status reports counters and component statuses. It is safe to call while
// the loop runs.
func (c *Cortex) Status(ctx context.Context) Status {
	c.mu.Lock()
	s := Status{
		Name:         c.cfg.Name,
		Running:      c.running,
		Emergency:    c.emergency,
		Hertz:        c.cfg.Hertz,
		CycleCount:   c.cycles,
		AvgCycleTime: c.avgCycle.Seconds(),
		ErrorCount:   c.errs,
		LastError:    c.lastError,
	}
	if c.running && !c.startedAt.IsZero() {
		s.Uptime = time.Since(c.startedAt).Seconds()
	}
	ctrl := c.controller
	c.mu.Unlock()

	s.Components = Components{
		Fuser:     c.deps.Fuser.Status(),
		Generator: c.deps.Generator.Status(),
		Inputs:    c.deps.Inputs.Status(ctx),
		Actions:   c.deps.Actions.Status(ctx),
	}
	if c.deps.Engine != nil {
		s.Components.Conversation = c.deps.Engine.Status()
	}
	if c.deps.Safety != nil {
		s.Components.Safety = c.deps.Safety.Status()
	}
	if ctrl != nil {
		s.Components.Controller = ctrl.Status()
	}
	return s
}

// Running reports whether the loop is active.
func (c *Cortex) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
