package plugin

import (
	"context"

	"github.com/normanking/t031a5/pkg/types"
)

// NoopInput stands in for input types with no registered implementation.
// It follows the lifecycle but never produces data.
type NoopInput struct {
	*Lifecycle
}

// NewNoopInput creates a stand-in for cfg.
func NewNoopInput(cfg Config) *NoopInput {
	return &NoopInput{Lifecycle: NewLifecycle(cfg, Hooks{})}
}

// GetData always returns no record.
func (n *NoopInput) GetData(ctx context.Context) (*types.InputRecord, error) {
	return nil, nil
}

// NoopAction stands in for action names with no registered implementation.
// While running it acknowledges every request without side effects.
type NoopAction struct {
	*Lifecycle
}

// NewNoopAction creates a stand-in for cfg.
func NewNoopAction(cfg Config) *NoopAction {
	return &NoopAction{Lifecycle: NewLifecycle(cfg, Hooks{})}
}

// Execute acknowledges req.
func (n *NoopAction) Execute(ctx context.Context, req types.ActionRequest) types.ActionResult {
	if !n.Enabled() {
		return types.Failed(req, ErrDisabled, 0)
	}
	if n.State() != StateRunning {
		return types.Failed(req, ErrNotRunning, 0)
	}
	return types.Succeeded(req, map[string]any{"noop": true}, 0)
}
