// Package safety grades robot state records and detects emergency
// conditions that bypass per-cycle isolation.
package safety

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/t031a5/pkg/types"
)

// Level is a safety grade.
type Level string

const (
	LevelSafe      Level = "safe"
	LevelWarning   Level = "warning"
	LevelDanger    Level = "danger"
	LevelEmergency Level = "emergency"
)

func (l Level) rank() int {
	switch l {
	case LevelWarning:
		return 1
	case LevelDanger:
		return 2
	case LevelEmergency:
		return 3
	}
	return 0
}

// Config holds the thresholds. Battery levels are percentages.
type Config struct {
	EnableEmergencyStop  bool    `mapstructure:"enable_emergency_stop" yaml:"enable_emergency_stop"`
	BatteryWarningLevel  float64 `mapstructure:"battery_warning_level" yaml:"battery_warning_level"`
	BatteryCriticalLevel float64 `mapstructure:"battery_critical_level" yaml:"battery_critical_level"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		EnableEmergencyStop:  true,
		BatteryWarningLevel:  20,
		BatteryCriticalLevel: 10,
	}
}

// Assessment is the grade of one snapshot.
type Assessment struct {
	Level   Level    `json:"level"`
	Reasons []string `json:"reasons,omitempty"`
	Battery *float64 `json:"battery,omitempty"`
}

// Emergency reports whether the snapshot demands an emergency stop.
func (a Assessment) Emergency() bool { return a.Level == LevelEmergency }

func (a *Assessment) raise(l Level, reason string) {
	if l.rank() > a.Level.rank() {
		a.Level = l
	}
	a.Reasons = append(a.Reasons, reason)
}

// Status is the monitor's running view.
type Status struct {
	Level       Level     `json:"current_level"`
	Assessments uint64    `json:"assessments"`
	Warnings    uint64    `json:"warnings"`
	Emergencies uint64    `json:"emergencies"`
	LastReasons []string  `json:"last_reasons,omitempty"`
	LastChange  time.Time `json:"last_change,omitempty"`
}

// Monitor grades snapshots and keeps counters.
type Monitor struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	status Status
}

// NewMonitor creates a monitor. Zero thresholds fall back to the defaults.
func NewMonitor(cfg Config, log zerolog.Logger) *Monitor {
	d := DefaultConfig()
	if cfg.BatteryWarningLevel <= 0 {
		cfg.BatteryWarningLevel = d.BatteryWarningLevel
	}
	if cfg.BatteryCriticalLevel <= 0 {
		cfg.BatteryCriticalLevel = d.BatteryCriticalLevel
	}
	return &Monitor{
		cfg:    cfg,
		log:    log.With().Str("component", "safety").Logger(),
		status: Status{Level: LevelSafe},
	}
}

// EmergencyStopEnabled reports whether an emergency assessment should stop
// the runtime.
func (m *Monitor) EmergencyStopEnabled() bool { return m.cfg.EnableEmergencyStop }

// Assess grades the state records of a snapshot. Other record types are
// ignored.
func (m *Monitor) Assess(records []types.InputRecord) Assessment {
	a := Assessment{Level: LevelSafe}
	for _, r := range records {
		if r.Type != types.InputState {
			continue
		}
		robot, _ := r.Data["robot_state"].(map[string]any)
		if robot == nil {
			continue
		}

		switch status, _ := robot["safety_status"].(string); status {
		case "", "safe":
		case "emergency":
			a.raise(LevelEmergency, "safety status emergency")
		case "warning":
			a.raise(LevelWarning, "safety status warning")
		default:
			a.raise(LevelDanger, "safety status "+status)
		}

		if b, ok := battery(robot["battery_percentage"]); ok {
			a.Battery = &b
			switch {
			case b <= m.cfg.BatteryCriticalLevel:
				a.raise(LevelEmergency, fmt.Sprintf("battery critical: %.0f%%", b))
			case b <= m.cfg.BatteryWarningLevel:
				a.raise(LevelWarning, fmt.Sprintf("battery low: %.0f%%", b))
			}
		}
	}
	m.observe(a)
	return a
}

func (m *Monitor) observe(a Assessment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Assessments++
	switch a.Level {
	case LevelWarning, LevelDanger:
		m.status.Warnings++
	case LevelEmergency:
		m.status.Emergencies++
	}
	if a.Level != m.status.Level {
		ev := m.log.Info()
		if a.Level.rank() > m.status.Level.rank() {
			ev = m.log.Warn()
		}
		ev.Str("from", string(m.status.Level)).Str("to", string(a.Level)).Strs("reasons", a.Reasons).Msg("safety level changed")
		m.status.Level = a.Level
		m.status.LastChange = time.Now()
	}
	m.status.LastReasons = a.Reasons
}

// Status returns a copy of the monitor's counters.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.status
	s.LastReasons = append([]string(nil), s.LastReasons...)
	return s
}

func battery(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
