// Package drivers contains the plugins that ship with the runtime so it can
// run without robot hardware: a console voice input, simulated vision and
// state inputs, and a log action sink that stands in for vendor actuators.
package drivers

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/t031a5/internal/plugin"
)

// Driver tags understood by Register.
const (
	DriverConsole   = "console"
	DriverSimulated = "simulated"
	DriverLog       = "log"
)

// Register adds the built-in drivers to reg.
func Register(reg *plugin.Registry) {
	reg.RegisterInput(DriverConsole, func(cfg plugin.Config, log zerolog.Logger) (plugin.Input, error) {
		return NewConsoleVoice(cfg, os.Stdin, log), nil
	})
	reg.RegisterInput(DriverSimulated, func(cfg plugin.Config, log zerolog.Logger) (plugin.Input, error) {
		s, err := NewSimulated(cfg, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	reg.RegisterAction(DriverLog, func(cfg plugin.Config, log zerolog.Logger) (plugin.Action, error) {
		return NewLogAction(cfg, log), nil
	})
}

func optFloat(opts map[string]any, key string, def float64) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

func optBool(opts map[string]any, key string, def bool) bool {
	if v, ok := opts[key].(bool); ok {
		return v
	}
	return def
}

func optString(opts map[string]any, key, def string) string {
	if v, ok := opts[key].(string); ok && v != "" {
		return v
	}
	return def
}

func optDuration(opts map[string]any, key string, def time.Duration) time.Duration {
	switch v := opts[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case time.Duration:
		return v
	}
	return def
}
