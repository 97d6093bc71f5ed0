package movement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByIDPrefersArmGesture(t *testing.T) {
	c := Default()

	m, ok := c.ByID(1)
	require.True(t, ok)
	assert.Equal(t, KindArm, m.Kind)
	assert.Equal(t, "turn_back_wave", m.Name)

	m, ok = c.ByID(702)
	require.True(t, ok)
	assert.Equal(t, KindFSM, m.Kind)

	_, ok = c.ByID(10)
	assert.False(t, ok)
}

func TestArmGestureRejectsFSMStates(t *testing.T) {
	c := Default()
	for _, id := range []int{0, 2, 3, 4, 200, 702, 706} {
		_, ok := c.ArmGesture(id)
		assert.False(t, ok, "id %d", id)
	}
	for _, id := range []int{1, 15, 26, 99} {
		_, ok := c.ArmGesture(id)
		assert.True(t, ok, "id %d", id)
	}
}

func TestByName(t *testing.T) {
	c := Default()

	m, ok := c.ByName("wave_above_head")
	require.True(t, ok)
	assert.Equal(t, 26, m.ID)

	m, ok = c.ByName("squat2standup")
	require.True(t, ok)
	assert.Equal(t, KindFSM, m.Kind)

	m, ok = c.ByName("rotate_left_medium")
	require.True(t, ok)
	assert.Equal(t, KindLocomotion, m.Kind)

	_, ok = c.Locomotion("moonwalk")
	assert.False(t, ok)
}

func TestSequenceInsertsRelax(t *testing.T) {
	seq := Default().Sequence(26, 404, 18)
	names := make([]string, len(seq))
	for i, m := range seq {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"wave_above_head", "release_arm", "high_five_opt", "release_arm"}, names)
	assert.Empty(t, Default().Sequence())
}

func TestValidate(t *testing.T) {
	errs := Default().Validate([]int{26, 10, 404, 702})
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], ErrUnavailable)
	assert.ErrorIs(t, errs[1], ErrUnknown)
}

func TestStatsAndListings(t *testing.T) {
	c := Default()
	s := c.Stats()
	assert.Equal(t, 20, s.Arms)
	assert.Equal(t, 8, s.FSMStates)
	assert.Equal(t, 22, s.Locomotion)
	assert.Equal(t, 50, s.Total)
	assert.Equal(t, 9, s.Patterns)
	assert.Equal(t, 23, s.Unavailable)

	assert.Len(t, c.Arms(), 20)
	assert.Len(t, c.FSMStates(), 8)
	assert.Len(t, c.LocomotionCommands(), 22)
	assert.Len(t, c.Patterns(), 9)
	assert.False(t, c.IsAvailable(14))
	assert.True(t, c.IsAvailable(26))

	ids := c.WorkingIDs()
	assert.Len(t, ids, 27) // id 1 is both an arm gesture and an FSM state
	assert.Equal(t, 0, ids[0])
}

func TestPatternIsACopy(t *testing.T) {
	c := Default()
	p, ok := c.Pattern("greeting")
	require.True(t, ok)
	p.Movements[0] = 1

	again, _ := c.Pattern("greeting")
	assert.Equal(t, []int{26, 18}, again.Movements)
}
