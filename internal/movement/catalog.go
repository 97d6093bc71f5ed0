// Package movement is the static catalogue of what the G1 body can do: arm
// gestures addressed by numeric id, FSM posture states (also numeric, never
// used in conversation), named locomotion commands and gesture patterns.
//
// The catalogue is immutable. Default returns a shared instance; components
// receive it through their constructors.
package movement

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Kind classifies a movement.
type Kind string

const (
	KindArm        Kind = "arm_gesture"
	KindFSM        Kind = "fsm_state"
	KindLocomotion Kind = "locomotion"
)

// RelaxID is the arm movement that releases the arms between gestures.
const RelaxID = 99

var (
	// ErrUnavailable marks ids the firmware rejects (error 7402).
	ErrUnavailable = errors.New("movement not available")
	// ErrUnknown marks ids missing from the catalogue.
	ErrUnknown = errors.New("movement not recognized")
)

// Movement is one catalogue entry. Locomotion commands have no numeric id
// and are addressed by Name.
type Movement struct {
	ID            int           `json:"id"`
	Name          string        `json:"name"`
	DisplayName   string        `json:"display_name"`
	Description   string        `json:"description"`
	Kind          Kind          `json:"kind"`
	Duration      time.Duration `json:"duration"`
	RequiresRelax bool          `json:"requires_relax"`
	IsRelax       bool          `json:"is_relax,omitempty"`
}

// Pattern is a named gesture sequence.
type Pattern struct {
	Key         string        `json:"key"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Movements   []int         `json:"movements"`
	Duration    time.Duration `json:"total_duration"`
}

// Stats summarizes the catalogue.
type Stats struct {
	Arms        int `json:"arm_movements"`
	FSMStates   int `json:"fsm_states"`
	Locomotion  int `json:"locomotion_commands"`
	Total       int `json:"total_movements"`
	Unavailable int `json:"unavailable_movements"`
	Patterns    int `json:"movement_patterns"`
}

// Catalog indexes the movement tables.
type Catalog struct {
	arms     map[int]Movement
	fsm      map[int]Movement
	loco     map[string]Movement
	patterns map[string]Pattern

	armOrder     []int
	fsmOrder     []int
	locoOrder    []string
	patternOrder []string
	unavailable  map[int]bool
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	return newCatalog(armTable, fsmTable, locomotionTable, patternTable, unavailableIDs)
})

// Default returns the shared G1 catalogue.
func Default() *Catalog { return defaultCatalog() }

func newCatalog(arms, fsm, loco []Movement, patterns []Pattern, unavailable []int) *Catalog {
	c := &Catalog{
		arms:        make(map[int]Movement, len(arms)),
		fsm:         make(map[int]Movement, len(fsm)),
		loco:        make(map[string]Movement, len(loco)),
		patterns:    make(map[string]Pattern, len(patterns)),
		unavailable: make(map[int]bool, len(unavailable)),
	}
	for _, m := range arms {
		c.arms[m.ID] = m
		c.armOrder = append(c.armOrder, m.ID)
	}
	for _, m := range fsm {
		c.fsm[m.ID] = m
		c.fsmOrder = append(c.fsmOrder, m.ID)
	}
	for _, m := range loco {
		c.loco[m.Name] = m
		c.locoOrder = append(c.locoOrder, m.Name)
	}
	for _, p := range patterns {
		c.patterns[p.Key] = p
		c.patternOrder = append(c.patternOrder, p.Key)
	}
	for _, id := range unavailable {
		c.unavailable[id] = true
	}
	return c
}

// ByID looks up a numeric id. Arm gestures shadow FSM states that share an
// id.
func (c *Catalog) ByID(id int) (Movement, bool) {
	if m, ok := c.arms[id]; ok {
		return m, true
	}
	m, ok := c.fsm[id]
	return m, ok
}

// ByName looks up arm gestures, FSM states and locomotion commands by name.
func (c *Catalog) ByName(name string) (Movement, bool) {
	for _, id := range c.armOrder {
		if c.arms[id].Name == name {
			return c.arms[id], true
		}
	}
	for _, id := range c.fsmOrder {
		if c.fsm[id].Name == name {
			return c.fsm[id], true
		}
	}
	m, ok := c.loco[name]
	return m, ok
}

// ArmGesture returns the arm gesture with id. FSM states are rejected.
func (c *Catalog) ArmGesture(id int) (Movement, bool) {
	m, ok := c.ByID(id)
	if !ok || m.Kind != KindArm {
		return Movement{}, false
	}
	return m, true
}

// Locomotion returns the locomotion command called name.
func (c *Catalog) Locomotion(name string) (Movement, bool) {
	m, ok := c.loco[name]
	return m, ok
}

// Arms lists the arm gestures in catalogue order.
func (c *Catalog) Arms() []Movement {
	out := make([]Movement, 0, len(c.armOrder))
	for _, id := range c.armOrder {
		out = append(out, c.arms[id])
	}
	return out
}

// FSMStates lists the FSM states in catalogue order.
func (c *Catalog) FSMStates() []Movement {
	out := make([]Movement, 0, len(c.fsmOrder))
	for _, id := range c.fsmOrder {
		out = append(out, c.fsm[id])
	}
	return out
}

// LocomotionCommands lists the locomotion commands in catalogue order.
func (c *Catalog) LocomotionCommands() []Movement {
	out := make([]Movement, 0, len(c.locoOrder))
	for _, name := range c.locoOrder {
		out = append(out, c.loco[name])
	}
	return out
}

// Pattern returns the named pattern.
func (c *Catalog) Pattern(key string) (Pattern, bool) {
	p, ok := c.patterns[key]
	if !ok {
		return Pattern{}, false
	}
	p.Movements = append([]int(nil), p.Movements...)
	return p, true
}

// Patterns lists the patterns in catalogue order.
func (c *Catalog) Patterns() []Pattern {
	out := make([]Pattern, 0, len(c.patternOrder))
	for _, key := range c.patternOrder {
		p, _ := c.Pattern(key)
		out = append(out, p)
	}
	return out
}

// IsAvailable reports whether the firmware accepts id.
func (c *Catalog) IsAvailable(id int) bool {
	return !c.unavailable[id]
}

// WorkingIDs returns every arm and FSM id, sorted.
func (c *Catalog) WorkingIDs() []int {
	seen := make(map[int]bool)
	var ids []int
	for _, id := range append(append([]int(nil), c.armOrder...), c.fsmOrder...) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Sequence resolves ids into a playable sequence: unknown ids are skipped,
// a relax is inserted before every gesture that requires one (except the
// first) and a final relax closes the sequence.
func (c *Catalog) Sequence(ids ...int) []Movement {
	relax, hasRelax := c.ByID(RelaxID)
	var seq []Movement
	for _, id := range ids {
		m, ok := c.ByID(id)
		if !ok {
			continue
		}
		if len(seq) > 0 && m.RequiresRelax && hasRelax {
			seq = append(seq, relax)
		}
		seq = append(seq, m)
	}
	if len(seq) > 0 && hasRelax {
		seq = append(seq, relax)
	}
	return seq
}

// Validate returns one error per id that cannot be executed. Errors wrap
// ErrUnavailable or ErrUnknown.
func (c *Catalog) Validate(ids []int) []error {
	var errs []error
	for _, id := range ids {
		switch {
		case c.unavailable[id]:
			errs = append(errs, fmt.Errorf("movement id %d: %w (error 7402)", id, ErrUnavailable))
		default:
			if _, ok := c.ByID(id); !ok {
				errs = append(errs, fmt.Errorf("movement id %d: %w", id, ErrUnknown))
			}
		}
	}
	return errs
}

// Stats counts the catalogue entries.
func (c *Catalog) Stats() Stats {
	return Stats{
		Arms:        len(c.arms),
		FSMStates:   len(c.fsm),
		Locomotion:  len(c.loco),
		Total:       len(c.arms) + len(c.fsm) + len(c.loco),
		Unavailable: len(c.unavailable),
		Patterns:    len(c.patterns),
	}
}
