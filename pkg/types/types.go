// Package types defines the records that flow through one decision cycle:
// sensor snapshots, the fused context, and actuator requests/results.
package types

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════════
// INPUT TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// Input type identifiers. The orchestrator keys input plugins by these values.
const (
	InputVoice   = "G1Voice"
	InputVision  = "G1Vision"
	InputState   = "G1State"
	InputSensors = "G1Sensors"
	InputGPS     = "G1GPS"
)

// InputRecord is one observation produced by an input plugin during a cycle.
// Records are treated as immutable once returned by GetData.
type InputRecord struct {
	Type       string         `json:"type"`   // input type identifier (G1Voice, ...)
	Source     string         `json:"source"` // producing plugin
	Timestamp  time.Time      `json:"timestamp"`
	Data       map[string]any `json:"data"`
	Confidence float64        `json:"confidence"` // 0.0 - 1.0
	Priority   int            `json:"priority"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewInputRecord creates a record stamped with the current time.
func NewInputRecord(inputType, source string, data map[string]any, confidence float64, priority int) InputRecord {
	return InputRecord{
		Type:       inputType,
		Source:     source,
		Timestamp:  time.Now(),
		Data:       data,
		Confidence: ClampUnit(confidence),
		Priority:   priority,
	}
}

// ByType indexes a snapshot by input type. When several records share a type,
// the one with the highest confidence is kept.
func ByType(records []InputRecord) map[string]InputRecord {
	out := make(map[string]InputRecord, len(records))
	for _, r := range records {
		if prev, ok := out[r.Type]; ok && prev.Confidence >= r.Confidence {
			continue
		}
		out[r.Type] = r
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════════
// FUSION TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// FusedContext is the single context record built from a cycle's snapshot.
type FusedContext struct {
	Strategy     string         `json:"strategy"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data"`
	Confidence   float64        `json:"confidence"`
	SourceInputs []string       `json:"source_inputs"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// ACTION TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// Action plugin names. Requests are routed by name.
const (
	ActionSpeech   = "G1Speech"
	ActionEmotion  = "G1Emotion"
	ActionArms     = "G1Arms"
	ActionMovement = "G1Movement"
	ActionAudio    = "G1Audio"
)

// DefaultActionTimeout bounds a single request when none is given.
const DefaultActionTimeout = 30 * time.Second

// ActionRequest addresses one action plugin by name.
type ActionRequest struct {
	ID        string         `json:"id"`
	Category  string         `json:"category"` // verb understood by the plugin (speak, set_emotion, ...)
	Name      string         `json:"name"`     // target plugin
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Priority  int            `json:"priority"`
	Timeout   time.Duration  `json:"timeout"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewActionRequest creates a request with a fresh ID and the default timeout.
func NewActionRequest(name, category string, data map[string]any) ActionRequest {
	return ActionRequest{
		ID:        uuid.NewString(),
		Category:  category,
		Name:      name,
		Timestamp: time.Now(),
		Data:      data,
		Priority:  1,
		Timeout:   DefaultActionTimeout,
	}
}

// ActionResult reports the outcome of one ActionRequest.
type ActionResult struct {
	RequestID string         `json:"request_id"`
	Category  string         `json:"category"`
	Name      string         `json:"name"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Error     string         `json:"error,omitempty"`
}

// Succeeded builds a successful result for req.
func Succeeded(req ActionRequest, data map[string]any, took time.Duration) ActionResult {
	return ActionResult{
		RequestID: req.ID,
		Category:  req.Category,
		Name:      req.Name,
		Timestamp: time.Now(),
		Success:   true,
		Data:      data,
		Duration:  took,
	}
}

// Failed builds a failed result for req carrying err's message.
func Failed(req ActionRequest, err error, took time.Duration) ActionResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ActionResult{
		RequestID: req.ID,
		Category:  req.Category,
		Name:      req.Name,
		Timestamp: time.Now(),
		Success:   false,
		Duration:  took,
		Error:     msg,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONVERSATION TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// Turn kinds.
const (
	TurnUser = "user_input"
	TurnBot  = "bot_response"
)

// ConversationTurn is one entry of the conversation history.
type ConversationTurn struct {
	SessionID string    `json:"session_id,omitempty"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	Affect    string    `json:"affect,omitempty"`
	Gestures  []string  `json:"gestures,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClampUnit limits v to [0, 1].
func ClampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
