package delay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChecker(t *testing.T) *Checker {
	t.Helper()
	c, err := NewChecker(0.1)
	require.NoError(t, err)
	return c
}

func TestNewChecker(t *testing.T) {
	_, err := NewChecker(0)
	assert.ErrorIs(t, err, ErrInvalidResolution)
	_, err = NewChecker(-1)
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

func TestStepsFromMS(t *testing.T) {
	c := newChecker(t)

	steps, err := c.StepsFromMS(1.0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), steps)

	// Rounds to nearest step.
	steps, err = c.StepsFromMS(0.97)
	require.NoError(t, err)
	assert.Equal(t, int64(10), steps)

	// Below resolution is invalid.
	_, err = c.StepsFromMS(0.01)
	var below *ErrBelowResolution
	require.ErrorAs(t, err, &below)
	assert.Equal(t, 0.01, below.DelayMS)

	_, err = c.StepsFromMS(0)
	assert.Error(t, err)
}

func TestExtremaWiden(t *testing.T) {
	c := newChecker(t)

	// Defaults before any registration.
	assert.Equal(t, int64(1), c.MinDelaySteps())
	assert.Equal(t, int64(1), c.MaxDelaySteps())

	_, err := c.AssertValidDelayMS(1.0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), c.MinDelaySteps())
	assert.Equal(t, int64(10), c.MaxDelaySteps())

	_, err = c.AssertValidDelayMS(2.5)
	require.NoError(t, err)
	_, err = c.AssertValidDelayMS(0.3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.MinDelaySteps())
	assert.Equal(t, int64(25), c.MaxDelaySteps())
}

func TestFreeze(t *testing.T) {
	c := newChecker(t)
	_, err := c.AssertValidDelayMS(1.0)
	require.NoError(t, err)
	c.Freeze()
	assert.True(t, c.Frozen())

	// In-range delays remain valid.
	_, err = c.AssertValidDelayMS(1.0)
	assert.NoError(t, err)

	// Widening is rejected after the freeze.
	_, err = c.AssertValidDelayMS(2.0)
	var oor *ErrOutOfRange
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, int64(20), oor.DelaySteps)

	_, err = c.AssertValidDelayMS(0.5)
	assert.Error(t, err)

	// Extrema can no longer be set.
	assert.ErrorIs(t, c.SetExtremaMS(0.1, 5.0), ErrFrozen)

	// Bounds are unchanged by failed validations.
	assert.Equal(t, int64(10), c.MinDelaySteps())
	assert.Equal(t, int64(10), c.MaxDelaySteps())
}

func TestFreezeWithoutConnections(t *testing.T) {
	c := newChecker(t)
	c.Freeze()
	assert.Equal(t, int64(1), c.MinDelaySteps())
	assert.Equal(t, int64(1), c.MaxDelaySteps())
}

func TestUserSetExtrema(t *testing.T) {
	c := newChecker(t)
	require.NoError(t, c.SetExtremaMS(0.5, 2.0))

	// In range: fine, extrema unchanged.
	_, err := c.AssertValidDelayMS(1.0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.MinDelaySteps())
	assert.Equal(t, int64(20), c.MaxDelaySteps())

	// Out of range is a hard error even though nothing is frozen.
	_, err = c.AssertValidDelayMS(3.0)
	var oor *ErrOutOfRange
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, int64(5), oor.MinSteps)
	assert.Equal(t, int64(20), oor.MaxSteps)

	_, err = c.AssertValidDelayMS(0.3)
	assert.Error(t, err)

	// min > max rejected.
	assert.ErrorIs(t, c.SetExtremaMS(2.0, 0.5), ErrInvalidExtrema)
}

func TestSetExtremaRejectsRegisteredDelaysOutside(t *testing.T) {
	c := newChecker(t)

	// A 10 ms delay is registered and widens the extrema to [100, 100].
	steps, err := c.AssertValidDelayMS(10.0)
	require.NoError(t, err)
	require.Equal(t, int64(100), steps)

	// Fixing a narrower interval would orphan that connection.
	var oor *ErrOutOfRange
	err = c.SetExtremaMS(0.5, 2.0)
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, int64(100), oor.DelaySteps)
	assert.Equal(t, int64(5), oor.MinSteps)
	assert.Equal(t, int64(20), oor.MaxSteps)

	// Extrema unchanged by the failed call.
	assert.Equal(t, int64(100), c.MinDelaySteps())
	assert.Equal(t, int64(100), c.MaxDelaySteps())

	// The same rejection applies below the registered minimum.
	err = c.SetExtremaMS(20.0, 50.0)
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, int64(100), oor.DelaySteps)

	// An interval containing every registered delay is accepted.
	require.NoError(t, c.SetExtremaMS(1.0, 20.0))
	assert.Equal(t, int64(10), c.MinDelaySteps())
	assert.Equal(t, int64(200), c.MaxDelaySteps())
}

func TestAssertTwoValidDelaysSteps(t *testing.T) {
	c := newChecker(t)

	require.NoError(t, c.AssertTwoValidDelaysSteps(3, 7))
	assert.Equal(t, int64(3), c.MinDelaySteps())
	assert.Equal(t, int64(7), c.MaxDelaySteps())

	assert.Error(t, c.AssertTwoValidDelaysSteps(0, 5))

	c.Freeze()
	assert.Error(t, c.AssertTwoValidDelaysSteps(1, 2))
	assert.NoError(t, c.AssertTwoValidDelaysSteps(3, 7))
}
