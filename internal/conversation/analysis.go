package conversation

import (
	"fmt"
	"strings"

	"github.com/normanking/t031a5/pkg/types"
)

// Interaction kinds.
const (
	InteractionPassive = "passive"
	InteractionVisual  = "visual"
	InteractionActive  = "active"
)

// Point is a position in camera coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Entity is a detected object or face.
type Entity struct {
	Type   string  `json:"type"`
	Center *Point  `json:"center,omitempty"`
	Area   float64 `json:"area"`
}

// VisualContext is what the camera reported this cycle.
type VisualContext struct {
	Objects []Entity       `json:"objects,omitempty"`
	Faces   []Entity       `json:"faces,omitempty"`
	Scene   map[string]any `json:"scene_analysis,omitempty"`
	Motion  bool           `json:"motion_detected"`
}

// Empty reports whether nothing was seen.
func (v VisualContext) Empty() bool {
	return len(v.Objects) == 0 && len(v.Faces) == 0 && len(v.Scene) == 0 && !v.Motion
}

// Analysis is the conversational reading of one snapshot.
type Analysis struct {
	Utterance    string        `json:"utterance,omitempty"`
	Visual       VisualContext `json:"visual_context"`
	UserDetected bool          `json:"user_detected"`
	Interaction  string        `json:"interaction_type"`
	Urgency      float64       `json:"urgency"`
}

// Analyze extracts the utterance, visual entities and urgency from a
// snapshot. Unsafe status or a battery below 20% raise urgency.
func Analyze(records []types.InputRecord) Analysis {
	a := Analysis{Interaction: InteractionPassive}
	byType := types.ByType(records)

	if voice, ok := byType[types.InputVoice]; ok && truthy(voice.Data["speech_detected"]) {
		a.Utterance = strings.TrimSpace(str(voice.Data["transcription"]))
		a.Interaction = InteractionActive
		if c, ok := num(voice.Data["confidence"]); ok {
			a.Urgency = types.ClampUnit(c)
		} else {
			a.Urgency = voice.Confidence
		}
	}

	if vision, ok := byType[types.InputVision]; ok {
		a.Visual = VisualContext{
			Objects: entities(vision.Data["objects"], "objeto"),
			Faces:   entities(vision.Data["faces"], "face"),
			Motion:  truthy(vision.Data["motion_detected"]),
		}
		if scene, ok := vision.Data["scene_analysis"].(map[string]any); ok {
			a.Visual.Scene = scene
		}
		present := len(a.Visual.Faces) > 0
		for _, o := range a.Visual.Objects {
			if o.Type == "person" {
				present = true
			}
		}
		if present {
			a.UserDetected = true
			if a.Interaction == InteractionPassive {
				a.Interaction = InteractionVisual
			}
		}
	}

	if state, ok := byType[types.InputState]; ok {
		robot, _ := state.Data["robot_state"].(map[string]any)
		if battery, ok := num(robot["battery_percentage"]); ok && battery < 20 {
			a.Urgency = max(a.Urgency, 0.8)
		}
		if status, ok := robot["safety_status"].(string); ok && status != "" && status != "safe" {
			a.Urgency = 1.0
		}
	}
	return a
}

// VisualSummary renders the visual context for the prompt, or "" when there
// is nothing to say.
func VisualSummary(v VisualContext) string {
	var parts []string
	if len(v.Objects) > 0 {
		names := make([]string, len(v.Objects))
		for i, o := range v.Objects {
			names[i] = o.Type
		}
		parts = append(parts, "Objetos visíveis: "+strings.Join(names, ", "))
	}
	if len(v.Faces) > 0 {
		parts = append(parts, fmt.Sprintf("Pessoas detectadas: %d", len(v.Faces)))
	}
	if v.Motion {
		parts = append(parts, "Movimento detectado no ambiente")
	}
	if b := str(v.Scene["brightness"]); b != "" {
		parts = append(parts, "Iluminação: "+b)
	}
	if act := str(v.Scene["activity_level"]); act != "" {
		parts = append(parts, "Atividade: "+act)
	}
	return strings.Join(parts, "; ")
}

// SituationSummary renders the current situation line.
func SituationSummary(a Analysis) string {
	var parts []string
	if a.Utterance != "" {
		parts = append(parts, fmt.Sprintf("Usuário disse: '%s'", a.Utterance))
	}
	switch a.Interaction {
	case InteractionVisual:
		parts = append(parts, "Usuário está presente mas não falou")
	case InteractionActive:
		parts = append(parts, "Usuário está interagindo ativamente")
	}
	switch {
	case a.Urgency > 0.7:
		parts = append(parts, "Situação requer atenção imediata")
	case a.Urgency > 0.3:
		parts = append(parts, "Situação merece atenção")
	}
	if len(parts) == 0 {
		return "Situação normal"
	}
	return strings.Join(parts, "; ")
}

// Gaze picks the largest face, else the largest object, that has a centre.
func Gaze(v VisualContext) *Point {
	if p := largest(v.Faces); p != nil {
		return p
	}
	return largest(v.Objects)
}

func largest(es []Entity) *Point {
	var best *Entity
	for i := range es {
		e := &es[i]
		if e.Center == nil {
			continue
		}
		if best == nil || e.Area > best.Area {
			best = e
		}
	}
	if best == nil {
		return nil
	}
	p := *best.Center
	return &p
}

func entities(raw any, fallbackType string) []Entity {
	var items []map[string]any
	switch v := raw.(type) {
	case []any:
		for _, it := range v {
			if m, ok := it.(map[string]any); ok {
				items = append(items, m)
			}
		}
	case []map[string]any:
		items = v
	}

	out := make([]Entity, 0, len(items))
	for _, m := range items {
		e := Entity{Type: str(m["type"])}
		if e.Type == "" {
			e.Type = fallbackType
		}
		e.Area, _ = num(m["area"])
		e.Center = point(m["center"])
		out = append(out, e)
	}
	return out
}

func point(raw any) *Point {
	switch v := raw.(type) {
	case []any:
		if len(v) >= 2 {
			x, okx := num(v[0])
			y, oky := num(v[1])
			if okx && oky {
				return &Point{X: x, Y: y}
			}
		}
	case []float64:
		if len(v) >= 2 {
			return &Point{X: v[0], Y: v[1]}
		}
	case map[string]any:
		x, okx := num(v["x"])
		y, oky := num(v["y"])
		if okx && oky {
			return &Point{X: x, Y: y}
		}
	}
	return nil
}

func num(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	return fmt.Sprint(v)
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
