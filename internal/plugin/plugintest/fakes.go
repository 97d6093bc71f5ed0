// Package plugintest provides scriptable plugins for orchestrator, engine and
// runtime tests.
package plugintest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/normanking/t031a5/internal/plugin"
	"github.com/normanking/t031a5/pkg/types"
)

// ErrInjected is the error returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// Mode selects how a fake behaves on data or execute calls.
type Mode int

const (
	// ModeOK returns the scripted value.
	ModeOK Mode = iota
	// ModeFail returns ErrInjected.
	ModeFail
	// ModePanic panics.
	ModePanic
	// ModeBlock waits for the context to be cancelled.
	ModeBlock
)

// Input is a fake input plugin.
type Input struct {
	*plugin.Lifecycle

	mu     sync.Mutex
	mode   Mode
	record *types.InputRecord

	Calls     atomic.Int64
	InitErr   error
	StartErr  error
	StopCalls atomic.Int64
	EStops    atomic.Int64
}

// NewInput creates an enabled fake of the given type that returns record.
func NewInput(inputType string, data map[string]any, confidence float64) *Input {
	in := &Input{}
	cfg := plugin.Config{Type: inputType, Name: inputType, Enabled: true}
	in.Lifecycle = plugin.NewLifecycle(cfg, plugin.Hooks{
		Initialize: func(context.Context) error { return in.InitErr },
		Start:      func(context.Context) error { return in.StartErr },
		Stop: func(context.Context) error {
			in.StopCalls.Add(1)
			return nil
		},
		EmergencyStop: func(context.Context) error {
			in.EStops.Add(1)
			return nil
		},
	})
	if data != nil {
		rec := types.NewInputRecord(inputType, inputType, data, confidence, 1)
		in.record = &rec
	}
	return in
}

// SetMode changes the behaviour of subsequent GetData calls.
func (f *Input) SetMode(m Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = m
}

// GetData implements plugin.Input.
func (f *Input) GetData(ctx context.Context) (*types.InputRecord, error) {
	f.Calls.Add(1)
	f.mu.Lock()
	mode, rec := f.mode, f.record
	f.mu.Unlock()

	switch mode {
	case ModeFail:
		return nil, ErrInjected
	case ModePanic:
		panic("fake input panic")
	case ModeBlock:
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if rec == nil {
		return nil, nil
	}
	out := *rec
	out.Timestamp = time.Now()
	return &out, nil
}

// Action is a fake action plugin that records every request it receives.
type Action struct {
	*plugin.Lifecycle

	mu       sync.Mutex
	mode     Mode
	requests []types.ActionRequest

	InitErr  error
	StopErr  error
	EStopErr error
	EStops   atomic.Int64
}

// NewAction creates an enabled fake for the named action.
func NewAction(name string) *Action {
	a := &Action{}
	cfg := plugin.Config{Type: name, Name: name, Enabled: true}
	a.Lifecycle = plugin.NewLifecycle(cfg, plugin.Hooks{
		Initialize: func(context.Context) error { return a.InitErr },
		Stop:       func(context.Context) error { return a.StopErr },
		EmergencyStop: func(ctx context.Context) error {
			a.EStops.Add(1)
			a.mu.Lock()
			mode := a.mode
			a.mu.Unlock()
			if mode == ModeBlock {
				<-ctx.Done()
				return ctx.Err()
			}
			return a.EStopErr
		},
	})
	return a
}

// SetMode changes the behaviour of subsequent Execute calls.
func (a *Action) SetMode(m Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mode = m
}

// Requests returns a copy of the requests received so far.
func (a *Action) Requests() []types.ActionRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.ActionRequest, len(a.requests))
	copy(out, a.requests)
	return out
}

// Execute implements plugin.Action.
func (a *Action) Execute(ctx context.Context, req types.ActionRequest) types.ActionResult {
	start := time.Now()
	a.mu.Lock()
	a.requests = append(a.requests, req)
	mode := a.mode
	a.mu.Unlock()

	switch mode {
	case ModeFail:
		return types.Failed(req, ErrInjected, time.Since(start))
	case ModePanic:
		panic("fake action panic")
	case ModeBlock:
		<-ctx.Done()
		return types.Failed(req, ctx.Err(), time.Since(start))
	}
	return types.Succeeded(req, nil, time.Since(start))
}
