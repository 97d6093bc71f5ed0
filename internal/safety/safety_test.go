package safety

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/t031a5/pkg/types"
)

func robot(status string, battery float64) types.InputRecord {
	return types.NewInputRecord(types.InputState, "robot", map[string]any{
		"robot_state": map[string]any{"safety_status": status, "battery_percentage": battery},
	}, 1, 1)
}

func TestAssessLevels(t *testing.T) {
	tests := []struct {
		name   string
		record types.InputRecord
		want   Level
	}{
		{"nominal", robot("safe", 80), LevelSafe},
		{"low battery", robot("safe", 18), LevelWarning},
		{"critical battery", robot("safe", 10), LevelEmergency},
		{"status emergency", robot("emergency", 90), LevelEmergency},
		{"status warning", robot("warning", 90), LevelWarning},
		{"unknown unsafe status", robot("collision", 90), LevelDanger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(DefaultConfig(), zerolog.Nop())
			a := m.Assess([]types.InputRecord{tt.record})
			assert.Equal(t, tt.want, a.Level)
			assert.Equal(t, tt.want == LevelEmergency, a.Emergency())
		})
	}
}

func TestAssessIgnoresOtherRecords(t *testing.T) {
	m := NewMonitor(DefaultConfig(), zerolog.Nop())
	voice := types.NewInputRecord(types.InputVoice, "mic", map[string]any{"battery_percentage": 1.0}, 1, 1)

	a := m.Assess([]types.InputRecord{voice})
	assert.Equal(t, LevelSafe, a.Level)
	assert.Nil(t, a.Battery)
}

func TestHighestLevelWins(t *testing.T) {
	m := NewMonitor(DefaultConfig(), zerolog.Nop())
	a := m.Assess([]types.InputRecord{robot("collision", 5)})
	assert.Equal(t, LevelEmergency, a.Level)
	assert.Len(t, a.Reasons, 2)
	require.NotNil(t, a.Battery)
	assert.Equal(t, 5.0, *a.Battery)
}

func TestStatusCounters(t *testing.T) {
	m := NewMonitor(Config{EnableEmergencyStop: true}, zerolog.Nop())
	assert.True(t, m.EmergencyStopEnabled())

	m.Assess([]types.InputRecord{robot("safe", 50)})
	m.Assess([]types.InputRecord{robot("safe", 15)})
	m.Assess([]types.InputRecord{robot("emergency", 50)})

	s := m.Status()
	assert.Equal(t, LevelEmergency, s.Level)
	assert.Equal(t, uint64(3), s.Assessments)
	assert.Equal(t, uint64(1), s.Warnings)
	assert.Equal(t, uint64(1), s.Emergencies)
	assert.False(t, s.LastChange.IsZero())
}
