package conversation

import (
	"strconv"
	"strings"
)

// Affect is the emotional state attributed to a response.
type Affect string

const (
	AffectHappy     Affect = "happy"
	AffectExcited   Affect = "excited"
	AffectCalm      Affect = "calm"
	AffectThinking  Affect = "thinking"
	AffectConcerned Affect = "concerned"
	AffectSad       Affect = "sad"
	AffectConfused  Affect = "confused"
	AffectFocused   Affect = "focused"
	AffectNeutral   Affect = "neutral"
)

// RGB is an LED colour.
type RGB [3]int

// AffectProfile binds an affect to its trigger keywords and LED rendering.
type AffectProfile struct {
	Affect    Affect
	Keywords  []string
	Color     RGB
	Intensity float64
}

// Gesture is either an arm gesture id or a locomotion command name.
type Gesture struct {
	ID      int
	Command string
}

// Arm returns an arm gesture by id.
func Arm(id int) Gesture { return Gesture{ID: id} }

// Loco returns a locomotion gesture by command name.
func Loco(command string) Gesture { return Gesture{Command: command} }

// IsLocomotion reports whether g names a locomotion command.
func (g Gesture) IsLocomotion() bool { return g.Command != "" }

func (g Gesture) String() string {
	if g.IsLocomotion() {
		return g.Command
	}
	return strconv.Itoa(g.ID)
}

// GestureRule selects a gesture set when any keyword appears in the text.
type GestureRule struct {
	Set      string
	Keywords []string
}

// Lexicon holds the locale-specific tables used to plan a response. It is
// read-only once handed to an engine.
type Lexicon struct {
	// Affects in tie-break order.
	Affects []AffectProfile
	// GestureRules are all evaluated; every matching set contributes.
	GestureRules []GestureRule
	// AffectGestures maps an affect to an extra gesture set.
	AffectGestures map[Affect]string
	// GestureSets maps a set name to its gestures.
	GestureSets map[string][]Gesture
	// AffectCues maps an affect to an audio cue.
	AffectCues map[Affect]string
	// SuccessWords trigger the "success" cue.
	SuccessWords []string
}

// DefaultLexicon returns the Portuguese tables.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		Affects: []AffectProfile{
			{AffectHappy, []string{"feliz", "alegre", "ótimo", "excelente", "maravilhoso", "perfeito", "sucesso", "bom"}, RGB{0, 255, 0}, 0.8},
			{AffectExcited, []string{"animado", "empolgado", "incrível", "fantástico", "wow", "uau", "impressionante", "interessante", "nossa"}, RGB{255, 128, 0}, 0.9},
			{AffectCalm, []string{"calmo", "tranquilo", "relaxado", "pacífico", "sereno", "suave"}, RGB{0, 255, 255}, 0.6},
			{AffectThinking, []string{"pensando", "analisando", "considerando", "avaliando", "hmm", "refletindo", "deixe-me pensar", "não tenho certeza"}, RGB{128, 0, 128}, 0.5},
			{AffectConcerned, []string{"preocupado", "cuidado", "atenção", "problema", "erro", "alerta"}, RGB{255, 255, 0}, 0.7},
			{AffectSad, []string{"triste", "ruim", "falha", "erro", "problema", "não funcionou", "decepcionado"}, RGB{0, 0, 255}, 0.4},
			{AffectConfused, []string{"não entendi", "confuso", "perdão"}, RGB{255, 0, 255}, 0.6},
			{AffectFocused, []string{"observando", "vejo", "analisando"}, RGB{255, 255, 255}, 0.7},
			{AffectNeutral, []string{"neutro", "ok", "normal", "padrão", "regular"}, RGB{128, 128, 128}, 0.5},
		},
		GestureRules: []GestureRule{
			{"greeting", []string{"olá", "oi", "saudações", "bem-vindo"}},
			{"pointing", []string{"isso", "aquilo", "ali", "aqui"}},
			{"explanation", []string{"explicar", "mostrar", "demonstrar"}},
			{"thinking", []string{"pensar", "considerar", "analisar"}},
			{"agreement", []string{"sim", "correto", "exato", "concordo"}},
			{"disagreement", []string{"não", "incorreto", "discordo"}},
		},
		AffectGestures: map[Affect]string{
			AffectHappy:    "excitement",
			AffectExcited:  "celebration",
			AffectConfused: "confusion",
			AffectThinking: "thinking",
		},
		GestureSets: map[string][]Gesture{
			"greeting":      {Arm(26), Arm(18)},
			"farewell":      {Arm(25), Arm(11)},
			"welcome":       {Arm(19), Arm(27)},
			"pointing":      {Arm(31)},
			"explanation":   {Arm(35), Arm(15)},
			"thinking":      {Arm(32)},
			"agreement":     {Arm(15), Arm(17)},
			"disagreement":  {Arm(22)},
			"attention":     {Arm(31), Arm(35)},
			"excitement":    {Arm(15), Arm(24)},
			"love":          {Arm(33), Arm(13)},
			"celebration":   {Arm(15), Arm(24)},
			"confusion":     {Arm(32), Arm(22)},
			"surprise":      {Arm(23), Arm(15)},
			"applause":      {Arm(17)},
			"kiss":          {Arm(13)},
			"heart":         {Arm(33)},
			"reject":        {Arm(22)},
			"wave":          {Arm(26)},
			"relax":         {Arm(99)},
			"move_forward":  {Loco("move_forward")},
			"move_backward": {Loco("move_backward")},
			"move_left":     {Loco("move_left")},
			"move_right":    {Loco("move_right")},
			"turn_left":     {Loco("rotate_left_medium")},
			"turn_right":    {Loco("rotate_right_medium")},
			"stop":          {Loco("stop_movement")},
			"dance":         {Loco("circular_movement")},
			"spin":          {Loco("rotate_left_fast"), Loco("rotate_right_fast")},
			"balance":       {Loco("balance_mode_1")},
		},
		AffectCues: map[Affect]string{
			AffectHappy:    "happy",
			AffectExcited:  "excited",
			AffectThinking: "notification",
		},
		SuccessWords: []string{"sucesso", "consegui"},
	}
}

// Profile returns the profile of a, falling back to neutral.
func (l *Lexicon) Profile(a Affect) AffectProfile {
	for _, p := range l.Affects {
		if p.Affect == a {
			return p
		}
	}
	return AffectProfile{Affect: AffectNeutral, Color: RGB{128, 128, 128}, Intensity: 0.5}
}

// ScoreAffects counts keyword hits per affect and adds punctuation bonuses:
// "!" adds 2 to excited, "?" and "..." add 1 each to thinking.
func (l *Lexicon) ScoreAffects(text string) map[Affect]int {
	lower := strings.ToLower(text)
	scores := make(map[Affect]int, len(l.Affects))
	for _, p := range l.Affects {
		for _, kw := range p.Keywords {
			if strings.Contains(lower, kw) {
				scores[p.Affect]++
			}
		}
	}
	if strings.Contains(text, "!") {
		scores[AffectExcited] += 2
	}
	if strings.Contains(text, "?") {
		scores[AffectThinking]++
	}
	if strings.Contains(text, "...") {
		scores[AffectThinking]++
	}
	return scores
}

// DetectAffect returns the highest scoring affect, the first in table order
// on ties, or neutral when nothing scores.
func (l *Lexicon) DetectAffect(text string) Affect {
	scores := l.ScoreAffects(text)
	best, bestScore := AffectNeutral, 0
	for _, p := range l.Affects {
		if s := scores[p.Affect]; s > bestScore {
			best, bestScore = p.Affect, s
		}
	}
	return best
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
