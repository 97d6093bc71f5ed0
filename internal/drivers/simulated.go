package drivers

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/t031a5/internal/plugin"
	"github.com/normanking/t031a5/pkg/types"
)

// Simulated produces deterministic synthetic frames for vision, state,
// sensor and GPS inputs. Frame n is a pure function of n and the options,
// so tests can predict every record.
type Simulated struct {
	*plugin.Lifecycle

	log        zerolog.Logger
	confidence float64
	frame      func(n int) map[string]any

	mu sync.Mutex
	n  int
}

// NewSimulated creates a simulated input for cfg.Type.
//
// Options: confidence (0.8), battery_start (95), discharge_per_frame (0.05),
// faces (true), safety_status override.
func NewSimulated(cfg plugin.Config, log zerolog.Logger) (*Simulated, error) {
	s := &Simulated{
		log:        log,
		confidence: types.ClampUnit(optFloat(cfg.Options, "confidence", 0.8)),
	}
	switch cfg.Type {
	case types.InputVision:
		faces := optBool(cfg.Options, "faces", true)
		s.frame = func(n int) map[string]any { return visionFrame(n, faces) }
	case types.InputState:
		start := optFloat(cfg.Options, "battery_start", 95)
		rate := optFloat(cfg.Options, "discharge_per_frame", 0.05)
		status := optString(cfg.Options, "safety_status", "")
		s.frame = func(n int) map[string]any { return stateFrame(n, start, rate, status) }
	case types.InputSensors:
		s.frame = sensorFrame
	case types.InputGPS:
		s.frame = gpsFrame
	default:
		return nil, fmt.Errorf("simulated driver does not support input type %q", cfg.Type)
	}
	s.Lifecycle = plugin.NewLifecycle(cfg, plugin.Hooks{
		Initialize: func(context.Context) error {
			s.mu.Lock()
			s.n = 0
			s.mu.Unlock()
			return nil
		},
	})
	return s, nil
}

// GetData returns the next frame.
func (s *Simulated) GetData(ctx context.Context) (*types.InputRecord, error) {
	if !s.Enabled() {
		return nil, nil
	}
	if !s.Active() {
		return nil, plugin.ErrNotRunning
	}
	s.mu.Lock()
	n := s.n
	s.n++
	s.mu.Unlock()

	rec := types.NewInputRecord(s.Type(), s.Name(), s.frame(n), s.confidence, s.Config().Priority)
	rec.Metadata = map[string]any{"frame": n, "simulated": true}
	return &rec, nil
}

var simulatedObjects = []string{"person", "chair", "cup"}

func visionFrame(n int, withFaces bool) map[string]any {
	objects := make([]any, 0, len(simulatedObjects))
	for i, kind := range simulatedObjects {
		x := 160 + 100*i + (n*7)%40
		y := 240 - 20*i
		w, h := 120-30*i, 200-60*i
		objects = append(objects, map[string]any{
			"type":       kind,
			"center":     []any{float64(x), float64(y)},
			"area":       float64(w * h),
			"bbox":       []any{float64(x - w/2), float64(y - h/2), float64(w), float64(h)},
			"confidence": 0.9 - 0.1*float64(i),
		})
	}

	var faces []any
	if withFaces && n%2 == 0 {
		faces = append(faces, map[string]any{
			"center": []any{float64(200 + (n*5)%60), 180.0},
			"area":   6400.0,
		})
	}

	activity := "low"
	if n%5 == 0 {
		activity = "medium"
	}
	return map[string]any{
		"objects": objects,
		"faces":   faces,
		"scene_analysis": map[string]any{
			"brightness":     "normal",
			"activity_level": activity,
		},
		"motion_detected": n%5 == 0,
	}
}

func stateFrame(n int, start, rate float64, status string) map[string]any {
	battery := math.Max(0, start-rate*float64(n))
	if status == "" {
		switch {
		case battery <= 10:
			status = "emergency"
		case battery <= 20:
			status = "warning"
		default:
			status = "safe"
		}
	}
	return map[string]any{
		"robot_state": map[string]any{
			"battery_percentage": battery,
			"temperature":        30 + 5*math.Abs(math.Sin(float64(n)*0.1)),
			"safety_status":      status,
			"posture":            "standing",
		},
	}
}

func sensorFrame(n int) map[string]any {
	t := float64(n) * 0.1
	return map[string]any{
		"imu": map[string]any{
			"roll":  0.5 * math.Sin(t),
			"pitch": 0.5 * math.Cos(t),
			"yaw":   0.0,
		},
		"temperature": 25.0,
	}
}

func gpsFrame(n int) map[string]any {
	return map[string]any{
		"latitude":  -23.5505 + float64(n)*1e-6,
		"longitude": -46.6333,
		"accuracy":  5.0,
	}
}
