// Package conversation drives one conversational turn per cycle: it reads
// the snapshot, decides whether to answer, asks the response generator for
// text and turns the reply into a synchronized batch of actuator requests
// (LED affect, gestures, audio cues, speech, gaze).
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/normanking/t031a5/internal/llm"
	"github.com/normanking/t031a5/internal/logging"
	"github.com/normanking/t031a5/internal/metrics"
	"github.com/normanking/t031a5/internal/movement"
	"github.com/normanking/t031a5/pkg/types"
)

// State is the engine's conversational state.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
	StateGesture    State = "gesture"
	StateThinking   State = "thinking"
)

// DefaultPolicy is the persona prompt used when no system prompt is
// configured.
const DefaultPolicy = `Você é um assistente robótico G1 inteligente e expressivo.

Características:
- Conversação natural e empática
- Usa informações visuais do ambiente
- Expressa emoções através de gestos e voz
- Mantém contexto da conversa
- É proativo e engajado

Sempre considere:
- O que você está vendo no ambiente
- O estado emocional da conversa
- Gestos apropriados para suas respostas
- Tom de voz adequado`

const defaultResponseConfidence = 0.8

// Config tunes the engine.
type Config struct {
	Enabled                bool          `mapstructure:"enabled" yaml:"enabled"`
	EnableVisionContext    bool          `mapstructure:"enable_vision_context" yaml:"enable_vision_context"`
	EnableGestureSync      bool          `mapstructure:"enable_gesture_sync" yaml:"enable_gesture_sync"`
	EnableEmotionDetection bool          `mapstructure:"enable_emotion_detection" yaml:"enable_emotion_detection"`
	ConversationTimeout    time.Duration `mapstructure:"conversation_timeout" yaml:"conversation_timeout"`
	ResponseDelay          time.Duration `mapstructure:"response_delay" yaml:"response_delay"`
	VisualCooldown         time.Duration `mapstructure:"visual_cooldown" yaml:"visual_cooldown"`
	UrgencyThreshold       float64       `mapstructure:"urgency_threshold" yaml:"urgency_threshold"`
	HistorySize            int           `mapstructure:"history_size" yaml:"history_size"`
	PromptHistory          int           `mapstructure:"prompt_history" yaml:"prompt_history"`
	MaxGestures            int           `mapstructure:"max_gestures" yaml:"max_gestures"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                true,
		EnableVisionContext:    true,
		EnableGestureSync:      true,
		EnableEmotionDetection: true,
		ConversationTimeout:    30 * time.Second,
		ResponseDelay:          500 * time.Millisecond,
		VisualCooldown:         5 * time.Second,
		UrgencyThreshold:       0.7,
		HistorySize:            50,
		PromptHistory:          5,
		MaxGestures:            3,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.VisualCooldown <= 0 {
		c.VisualCooldown = d.VisualCooldown
	}
	if c.UrgencyThreshold <= 0 {
		c.UrgencyThreshold = d.UrgencyThreshold
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.PromptHistory <= 0 {
		c.PromptHistory = d.PromptHistory
	}
	if c.MaxGestures <= 0 {
		c.MaxGestures = d.MaxGestures
	}
}

// Generator produces reply text. *llm.Generator satisfies it.
type Generator interface {
	Process(ctx context.Context, fused *types.FusedContext, policy string) (*llm.Response, error)
}

// Dispatcher executes action batches. *action.Orchestrator satisfies it.
type Dispatcher interface {
	Has(name string) bool
	ExecuteActions(ctx context.Context, reqs []types.ActionRequest) []types.ActionResult
}

// HistorySink persists conversation turns.
type HistorySink interface {
	RecordTurn(ctx context.Context, turn types.ConversationTurn) error
}

// Response is a planned multimodal reply.
type Response struct {
	Text       string    `json:"text"`
	Affect     Affect    `json:"affect"`
	Gestures   []Gesture `json:"-"`
	AudioCues  []string  `json:"audio_cues,omitempty"`
	LookAt     *Point    `json:"look_at,omitempty"`
	Confidence float64   `json:"confidence"`
	Provider   string    `json:"provider,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// GestureNames renders the gestures as strings.
func (r *Response) GestureNames() []string {
	out := make([]string, len(r.Gestures))
	for i, g := range r.Gestures {
		out[i] = g.String()
	}
	return out
}

// Context is the engine's conversational memory.
type Context struct {
	History         []types.ConversationTurn
	CurrentAffect   Affect
	DetectedObjects []string
	DetectedFaces   []string
	Environment     map[string]any
	LastInteraction time.Time
	LastResponse    time.Time
}

// Status describes the engine for status reports.
type Status struct {
	State             State     `json:"state"`
	CurrentAffect     Affect    `json:"current_emotion"`
	Conversations     int       `json:"conversations_count"`
	AvgResponseTime   float64   `json:"avg_response_time"`
	TotalResponseTime float64   `json:"total_response_time"`
	AffectChanges     int       `json:"emotion_changes"`
	GesturesPerformed int       `json:"gestures_performed"`
	HistoryLength     int       `json:"conversation_history_length"`
	DetectedObjects   []string  `json:"detected_objects"`
	DetectedFaces     []string  `json:"detected_faces"`
	LastInteraction   time.Time `json:"last_interaction,omitempty"`
	Actions           []string  `json:"actions_available"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLexicon replaces the keyword tables.
func WithLexicon(l *Lexicon) Option {
	return func(e *Engine) { e.lex = l }
}

// WithHistorySink persists every turn to sink.
func WithHistorySink(sink HistorySink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithMetrics reports affects to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.prom = m }
}

// WithPolicy overrides the persona prompt.
func WithPolicy(policy string) Option {
	return func(e *Engine) {
		if strings.TrimSpace(policy) != "" {
			e.policy = policy
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSessionID tags persisted turns.
func WithSessionID(id string) Option {
	return func(e *Engine) { e.session = id }
}

// Engine runs conversation cycles. ProcessCycle and ExecuteResponse are
// called from the runtime loop; Status may be called from anywhere.
type Engine struct {
	cfg     Config
	gen     Generator
	actions Dispatcher
	catalog *movement.Catalog
	lex     *Lexicon
	sink    HistorySink
	prom    *metrics.Metrics
	policy  string
	session string
	log     zerolog.Logger
	now     func() time.Time

	mu                sync.Mutex
	state             State
	ctx               Context
	conversations     int
	totalResponseTime time.Duration
	affectChanges     int
	gesturesPerformed int
}

// New creates an engine. catalog may be nil for the default catalogue.
func New(cfg Config, gen Generator, actions Dispatcher, catalog *movement.Catalog, log zerolog.Logger, opts ...Option) *Engine {
	cfg.applyDefaults()
	if catalog == nil {
		catalog = movement.Default()
	}
	e := &Engine{
		cfg:     cfg,
		gen:     gen,
		actions: actions,
		catalog: catalog,
		lex:     DefaultLexicon(),
		policy:  DefaultPolicy,
		log:     log.With().Str("component", "conversation").Logger(),
		now:     time.Now,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ctx = Context{CurrentAffect: AffectNeutral, Environment: map[string]any{}}
	return e
}

// Initialize resets the conversational memory.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx.LastInteraction = e.now()
	e.state = StateIdle
	e.log.Info().Bool("vision", e.cfg.EnableVisionContext).Bool("gestures", e.cfg.EnableGestureSync).Msg("conversation engine ready")
	return nil
}

// WarmStart seeds the history with previously persisted turns, oldest first.
func (e *Engine) WarmStart(turns []types.ConversationTurn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range turns {
		e.appendTurnLocked(t)
	}
}

// Policy returns the persona prompt.
func (e *Engine) Policy() string { return e.policy }

// State returns the current conversational state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// History returns a copy of the conversation history.
func (e *Engine) History() []types.ConversationTurn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.ConversationTurn(nil), e.ctx.History...)
}

// ProcessCycle runs analysis, the response gate, generation and planning.
// It returns nil when there is nothing to say; that is not an error.
func (e *Engine) ProcessCycle(ctx context.Context, records []types.InputRecord) *Response {
	start := e.now()
	analysis := Analyze(records)
	if analysis.Utterance == "" && !analysis.UserDetected && analysis.Urgency <= e.cfg.UrgencyThreshold {
		return nil
	}
	if analysis.Utterance != "" {
		e.setState(StateListening)
	}

	e.updateContext(ctx, analysis)
	if !e.shouldRespond(analysis) {
		e.setState(StateIdle)
		return nil
	}

	e.setState(StateProcessing)
	reply, err := e.generate(ctx, analysis)
	if err != nil {
		if errors.Is(err, llm.ErrNoResponse) || ctx.Err() != nil {
			e.log.Debug().Err(err).Msg("no response this cycle")
		} else {
			e.log.Warn().Err(err).Str("op", "generate").Msg("response generation failed")
		}
		e.setState(StateIdle)
		return nil
	}

	resp := e.plan(reply, analysis)
	e.recordResponse(ctx, resp)

	took := e.now().Sub(start)
	e.mu.Lock()
	e.conversations++
	e.totalResponseTime += took
	e.mu.Unlock()

	e.prom.Response(string(resp.Affect))
	e.log.Info().
		Dur("took", took).
		Str("affect", string(resp.Affect)).
		Strs("gestures", resp.GestureNames()).
		Str("text", truncate(resp.Text, 50)).
		Msg("response planned")
	return resp
}

func (e *Engine) updateContext(ctx context.Context, a Analysis) {
	now := e.now()

	e.mu.Lock()
	if e.cfg.ConversationTimeout > 0 && !e.ctx.LastInteraction.IsZero() &&
		now.Sub(e.ctx.LastInteraction) > e.cfg.ConversationTimeout {
		e.ctx.DetectedObjects = nil
		e.ctx.DetectedFaces = nil
		e.log.Debug().Msg("conversation timed out, entity memory cleared")
	}

	var turn *types.ConversationTurn
	if a.Utterance != "" {
		t := types.ConversationTurn{SessionID: e.session, Kind: types.TurnUser, Content: a.Utterance, Timestamp: now}
		e.appendTurnLocked(t)
		turn = &t
	}
	if len(a.Visual.Objects) > 0 {
		e.ctx.DetectedObjects = make([]string, len(a.Visual.Objects))
		for i, o := range a.Visual.Objects {
			e.ctx.DetectedObjects[i] = o.Type
		}
	}
	if len(a.Visual.Faces) > 0 {
		e.ctx.DetectedFaces = make([]string, len(a.Visual.Faces))
		for i := range a.Visual.Faces {
			e.ctx.DetectedFaces[i] = fmt.Sprintf("person_%d", i)
		}
	}
	e.ctx.Environment = map[string]any{
		"motion_detected":  a.Visual.Motion,
		"interaction_type": a.Interaction,
		"urgency":          a.Urgency,
	}
	e.ctx.LastInteraction = now
	e.mu.Unlock()

	if turn != nil {
		e.persist(ctx, *turn)
	}
}

// shouldRespond answers speech and urgent situations; visual-only presence
// is answered at most once per cooldown, measured from the last response.
func (e *Engine) shouldRespond(a Analysis) bool {
	if a.Utterance != "" {
		return true
	}
	if a.Urgency > e.cfg.UrgencyThreshold {
		return true
	}
	if a.UserDetected && a.Interaction == InteractionVisual && e.cfg.EnableVisionContext {
		e.mu.Lock()
		last := e.ctx.LastResponse
		e.mu.Unlock()
		return last.IsZero() || e.now().Sub(last) >= e.cfg.VisualCooldown
	}
	return false
}

// Prompt builds the composite prompt: policy, visual context, recent
// history and the current situation, separated by blank lines.
func (e *Engine) Prompt(a Analysis) string {
	parts := []string{e.policy}
	if e.cfg.EnableVisionContext {
		if v := VisualSummary(a.Visual); v != "" {
			parts = append(parts, "Contexto Visual: "+v)
		}
	}
	if h := e.recentHistory(); h != "" {
		parts = append(parts, "Histórico Recente: "+h)
	}
	parts = append(parts, "Situação Atual: "+SituationSummary(a))
	return strings.Join(parts, "\n\n")
}

func (e *Engine) recentHistory() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.ctx.History
	if len(h) > e.cfg.PromptHistory {
		h = h[len(h)-e.cfg.PromptHistory:]
	}
	lines := make([]string, 0, len(h))
	for _, t := range h {
		stamp := t.Timestamp.Format("15:04")
		switch t.Kind {
		case types.TurnUser:
			lines = append(lines, fmt.Sprintf("[%s] Usuário: %s", stamp, t.Content))
		case types.TurnBot:
			lines = append(lines, fmt.Sprintf("[%s] G1: %s", stamp, t.Content))
		}
	}
	return strings.Join(lines, "\n")
}

func (e *Engine) generate(ctx context.Context, a Analysis) (*llm.Response, error) {
	e.mu.Lock()
	turns := len(e.ctx.History)
	e.mu.Unlock()

	data := map[string]any{
		"interaction_type": a.Interaction,
		"urgency":          a.Urgency,
	}
	if a.Utterance != "" {
		data["transcription"] = a.Utterance
	}
	if !a.Visual.Empty() {
		data["visual_context"] = VisualSummary(a.Visual)
	}
	confidence := a.Urgency
	if confidence == 0 {
		confidence = 0.5
	}
	fused := &types.FusedContext{
		Strategy:     "conversation",
		Timestamp:    e.now(),
		Data:         data,
		Confidence:   types.ClampUnit(confidence),
		SourceInputs: []string{"conversation_engine"},
		Metadata: map[string]any{
			"conversation_turn": turns,
			"response_type":     "conversational",
		},
	}
	return e.gen.Process(ctx, fused, e.Prompt(a))
}

func (e *Engine) plan(reply *llm.Response, a Analysis) *Response {
	affect := e.detectAffect(reply.Content, a.Urgency)
	return &Response{
		Text:       reply.Content,
		Affect:     affect,
		Gestures:   e.PlanGestures(reply.Content, affect),
		AudioCues:  e.planAudioCues(reply.Content, affect),
		LookAt:     Gaze(a.Visual),
		Confidence: defaultResponseConfidence,
		Provider:   reply.Provider,
		CreatedAt:  e.now(),
	}
}

func (e *Engine) detectAffect(text string, urgency float64) Affect {
	if !e.cfg.EnableEmotionDetection {
		return AffectNeutral
	}
	scores := e.lex.ScoreAffects(text)
	best, bestScore := AffectNeutral, 0
	for _, p := range e.lex.Affects {
		if s := scores[p.Affect]; s > bestScore {
			best, bestScore = p.Affect, s
		}
	}
	if bestScore == 0 && urgency > e.cfg.UrgencyThreshold {
		return AffectFocused
	}
	return best
}

// PlanGestures collects every matching keyword set plus the affect-linked
// set, drops FSM-only ids and unknown commands, dedupes and caps the list.
func (e *Engine) PlanGestures(text string, affect Affect) []Gesture {
	if !e.cfg.EnableGestureSync {
		return nil
	}
	lower := strings.ToLower(text)
	var sets []string
	for _, rule := range e.lex.GestureRules {
		if containsAny(lower, rule.Keywords) {
			sets = append(sets, rule.Set)
		}
	}
	if set, ok := e.lex.AffectGestures[affect]; ok {
		sets = append(sets, set)
	}

	seen := make(map[Gesture]bool)
	var out []Gesture
	for _, set := range sets {
		for _, g := range e.lex.GestureSets[set] {
			if seen[g] || !e.conversational(g) {
				continue
			}
			seen[g] = true
			out = append(out, g)
			if len(out) == e.cfg.MaxGestures {
				return out
			}
		}
	}
	return out
}

func (e *Engine) conversational(g Gesture) bool {
	if g.IsLocomotion() {
		_, ok := e.catalog.Locomotion(g.Command)
		return ok
	}
	_, ok := e.catalog.ArmGesture(g.ID)
	return ok
}

func (e *Engine) planAudioCues(text string, affect Affect) []string {
	var cues []string
	if cue, ok := e.lex.AffectCues[affect]; ok {
		cues = append(cues, cue)
	}
	if containsAny(strings.ToLower(text), e.lex.SuccessWords) {
		cues = append(cues, "success")
	}
	return cues
}

func (e *Engine) recordResponse(ctx context.Context, r *Response) {
	turn := types.ConversationTurn{
		SessionID: e.session,
		Kind:      types.TurnBot,
		Content:   r.Text,
		Affect:    string(r.Affect),
		Gestures:  r.GestureNames(),
		Timestamp: r.CreatedAt,
	}
	e.mu.Lock()
	e.appendTurnLocked(turn)
	if r.Affect != e.ctx.CurrentAffect {
		e.ctx.CurrentAffect = r.Affect
		e.affectChanges++
	}
	e.ctx.LastResponse = r.CreatedAt
	e.mu.Unlock()

	e.persist(ctx, turn)
}

func (e *Engine) appendTurnLocked(t types.ConversationTurn) {
	e.ctx.History = append(e.ctx.History, t)
	if over := len(e.ctx.History) - e.cfg.HistorySize; over > 0 {
		e.ctx.History = append(e.ctx.History[:0:0], e.ctx.History[over:]...)
	}
}

func (e *Engine) persist(ctx context.Context, t types.ConversationTurn) {
	if e.sink == nil {
		return
	}
	writeCtx, cancel := logging.DetachContextWithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := e.sink.RecordTurn(writeCtx, t); err != nil {
		e.log.Warn().Err(err).Str("op", "record_turn").Msg("history write failed")
	}
}

// Requests turns a planned response into the action batch. Requests are
// only built for action plugins that are present.
func (e *Engine) Requests(r *Response) []types.ActionRequest {
	var reqs []types.ActionRequest

	if e.actions.Has(types.ActionEmotion) {
		p := e.lex.Profile(r.Affect)
		reqs = append(reqs, types.NewActionRequest(types.ActionEmotion, "set_emotion", map[string]any{
			"emotion":   string(r.Affect),
			"color":     []int{p.Color[0], p.Color[1], p.Color[2]},
			"intensity": p.Intensity,
			"duration":  float64(utf8.RuneCountInString(r.Text)) * 0.1,
		}))
	}

	for _, g := range r.Gestures {
		if g.IsLocomotion() {
			m, ok := e.catalog.Locomotion(g.Command)
			if !ok || !e.actions.Has(types.ActionMovement) {
				continue
			}
			reqs = append(reqs, types.NewActionRequest(types.ActionMovement, "execute_locomotion", map[string]any{
				"command":  g.Command,
				"name":     m.Name,
				"duration": m.Duration.Seconds(),
			}))
			continue
		}
		m, ok := e.catalog.ArmGesture(g.ID)
		if !ok {
			e.log.Warn().Int("movement_id", g.ID).Msg("ignoring non-conversational movement")
			continue
		}
		if !e.actions.Has(types.ActionArms) {
			continue
		}
		reqs = append(reqs, types.NewActionRequest(types.ActionArms, "execute_movement", map[string]any{
			"movement_id":    g.ID,
			"name":           m.Name,
			"duration":       m.Duration.Seconds(),
			"requires_relax": m.RequiresRelax,
		}))
	}

	if e.actions.Has(types.ActionAudio) {
		for _, cue := range r.AudioCues {
			reqs = append(reqs, types.NewActionRequest(types.ActionAudio, "play", map[string]any{
				"sound":  cue,
				"volume": 0.6,
			}))
		}
	}

	if e.actions.Has(types.ActionSpeech) {
		reqs = append(reqs, types.NewActionRequest(types.ActionSpeech, "speak", map[string]any{
			"text":    r.Text,
			"emotion": string(r.Affect),
			"speed":   0.9,
			"volume":  0.8,
		}))
	}

	if r.LookAt != nil && e.actions.Has(types.ActionMovement) {
		reqs = append(reqs, types.NewActionRequest(types.ActionMovement, "look_at", map[string]any{
			"x":     r.LookAt.X,
			"y":     r.LookAt.Y,
			"speed": 0.5,
		}))
	}
	return reqs
}

// ExecuteResponse dispatches the response as one concurrent batch, waits
// the response delay and returns to idle. The batch succeeds when at least
// one request succeeds.
func (e *Engine) ExecuteResponse(ctx context.Context, r *Response) (bool, []types.ActionResult) {
	if r == nil {
		return false, nil
	}
	reqs := e.Requests(r)
	if len(reqs) == 0 {
		e.log.Warn().Msg("no action plugins to render the response")
		e.setState(StateIdle)
		return false, nil
	}

	e.setState(StateSpeaking)
	results := e.actions.ExecuteActions(ctx, reqs)

	ok := 0
	for _, res := range results {
		if res.Success {
			ok++
		}
	}
	e.log.Info().Int("succeeded", ok).Int("total", len(results)).Msg("response executed")

	e.mu.Lock()
	e.gesturesPerformed += len(r.Gestures)
	e.mu.Unlock()

	if e.cfg.ResponseDelay > 0 {
		timer := time.NewTimer(e.cfg.ResponseDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	e.setState(StateIdle)
	return ok > 0, results
}

// Stop returns the engine to idle.
func (e *Engine) Stop(ctx context.Context) error {
	e.setState(StateIdle)
	e.log.Info().Msg("conversation engine stopped")
	return nil
}

// Status reports counters and conversational memory.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Status{
		State:             e.state,
		CurrentAffect:     e.ctx.CurrentAffect,
		Conversations:     e.conversations,
		TotalResponseTime: e.totalResponseTime.Seconds(),
		AffectChanges:     e.affectChanges,
		GesturesPerformed: e.gesturesPerformed,
		HistoryLength:     len(e.ctx.History),
		DetectedObjects:   append([]string(nil), e.ctx.DetectedObjects...),
		DetectedFaces:     append([]string(nil), e.ctx.DetectedFaces...),
		LastInteraction:   e.ctx.LastInteraction,
	}
	if e.conversations > 0 {
		s.AvgResponseTime = s.TotalResponseTime / float64(e.conversations)
	}
	for _, name := range []string{types.ActionSpeech, types.ActionEmotion, types.ActionArms, types.ActionMovement, types.ActionAudio} {
		if e.actions.Has(name) {
			s.Actions = append(s.Actions, name)
		}
	}
	return s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
