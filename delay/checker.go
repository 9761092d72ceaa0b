// Package delay validates transmission delays against the process-wide
// [min_delay, max_delay] invariant.
//
// The extrema start unset and widen as connections register delays. Once
// the first simulation step has run they are frozen: a delay outside the
// frozen interval is rejected because communication buffers are sized from
// it. Users may also fix the extrema explicitly up front, which turns any
// out-of-range delay into a hard error even before the freeze.
package delay

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// tolerance absorbs floating-point noise when rounding milliseconds to
// steps, so 1.0 ms at 0.1 ms resolution is exactly 10 steps.
const tolerance = 1e-9

var (
	// ErrFrozen is returned when extrema are modified after the first
	// simulation step.
	ErrFrozen = errors.New("delay: extrema are frozen once simulation has started")

	// ErrInvalidResolution is returned for non-positive resolutions.
	ErrInvalidResolution = errors.New("delay: resolution must be positive")

	// ErrInvalidExtrema is returned when min > max or either is < one step.
	ErrInvalidExtrema = errors.New("delay: invalid extrema")
)

// ErrBelowResolution indicates a delay that rounds below one step.
type ErrBelowResolution struct {
	DelayMS      float64
	ResolutionMS float64
}

func (e *ErrBelowResolution) Error() string {
	return fmt.Sprintf("delay: %g ms rounds below resolution %g ms", e.DelayMS, e.ResolutionMS)
}

// ErrOutOfRange indicates a delay outside fixed extrema.
type ErrOutOfRange struct {
	DelaySteps int64
	MinSteps   int64
	MaxSteps   int64
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("delay: %d steps outside [%d, %d]", e.DelaySteps, e.MinSteps, e.MaxSteps)
}

// Checker tracks the process-wide delay extrema. It is safe for concurrent
// use from parallel build regions; validation on the hot path takes one
// short critical section.
type Checker struct {
	mu sync.Mutex

	resolutionMS float64

	minSteps int64
	maxSteps int64

	userMin bool
	userMax bool
	frozen  bool
}

// NewChecker creates a checker for the given resolution (milliseconds per
// step).
func NewChecker(resolutionMS float64) (*Checker, error) {
	if resolutionMS <= 0 || math.IsNaN(resolutionMS) || math.IsInf(resolutionMS, 0) {
		return nil, ErrInvalidResolution
	}
	return &Checker{
		resolutionMS: resolutionMS,
		minSteps:     math.MaxInt64,
		maxSteps:     0,
	}, nil
}

// ResolutionMS returns the configured resolution.
func (c *Checker) ResolutionMS() float64 { return c.resolutionMS }

// StepsFromMS converts a delay in milliseconds to resolution steps,
// rounding to nearest. Delays that round below one step are invalid.
func (c *Checker) StepsFromMS(ms float64) (int64, error) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0, &ErrBelowResolution{DelayMS: ms, ResolutionMS: c.resolutionMS}
	}
	steps := int64(math.Floor(ms/c.resolutionMS + 0.5 + tolerance))
	if steps < 1 {
		return 0, &ErrBelowResolution{DelayMS: ms, ResolutionMS: c.resolutionMS}
	}
	return steps, nil
}

// MSFromSteps converts steps back to milliseconds.
func (c *Checker) MSFromSteps(steps int64) float64 {
	return float64(steps) * c.resolutionMS
}

// AssertValidDelayMS validates one delay and, while the extrema are still
// open, widens them as a side effect. It returns the delay in steps.
func (c *Checker) AssertValidDelayMS(ms float64) (int64, error) {
	steps, err := c.StepsFromMS(ms)
	if err != nil {
		return 0, err
	}
	if err := c.register(steps, steps); err != nil {
		return 0, err
	}
	return steps, nil
}

// AssertTwoValidDelaysSteps validates a pair of step delays with the same
// contract as AssertValidDelayMS. Synapse models that split a continuous
// delay into an integer step plus fractional offset validate both parts.
func (c *Checker) AssertTwoValidDelaysSteps(d1, d2 int64) error {
	if d1 < 1 || d2 < 1 {
		return &ErrBelowResolution{DelayMS: c.MSFromSteps(min(d1, d2)), ResolutionMS: c.resolutionMS}
	}
	return c.register(min(d1, d2), max(d1, d2))
}

// register widens [min,max] to include [lo,hi], or rejects when the
// extrema are fixed (frozen or user-set).
func (c *Checker) register(lo, hi int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fixedMin := c.frozen || c.userMin
	fixedMax := c.frozen || c.userMax

	if fixedMin && c.hasExtrema() && lo < c.minSteps {
		return &ErrOutOfRange{DelaySteps: lo, MinSteps: c.minSteps, MaxSteps: c.maxSteps}
	}
	if fixedMax && c.hasExtrema() && hi > c.maxSteps {
		return &ErrOutOfRange{DelaySteps: hi, MinSteps: c.minSteps, MaxSteps: c.maxSteps}
	}

	if !fixedMin && lo < c.minSteps {
		c.minSteps = lo
	}
	if !fixedMax && hi > c.maxSteps {
		c.maxSteps = hi
	}
	return nil
}

// SetExtremaMS fixes the extrema explicitly. Any later delay outside the
// fixed interval is a hard error, regardless of freeze state.
func (c *Checker) SetExtremaMS(minMS, maxMS float64) error {
	minSteps, err := c.StepsFromMS(minMS)
	if err != nil {
		return err
	}
	maxSteps, err := c.StepsFromMS(maxMS)
	if err != nil {
		return err
	}
	if minSteps > maxSteps {
		return ErrInvalidExtrema
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return ErrFrozen
	}
	// Delays already registered must stay inside the fixed interval;
	// narrowing below them would orphan existing connections.
	if c.hasExtrema() {
		if c.minSteps < minSteps {
			return &ErrOutOfRange{DelaySteps: c.minSteps, MinSteps: minSteps, MaxSteps: maxSteps}
		}
		if c.maxSteps > maxSteps {
			return &ErrOutOfRange{DelaySteps: c.maxSteps, MinSteps: minSteps, MaxSteps: maxSteps}
		}
	}
	c.minSteps = minSteps
	c.maxSteps = maxSteps
	c.userMin = true
	c.userMax = true
	return nil
}

// Freeze fixes the extrema permanently. Called before the first simulation
// step; communication buffers are sized from the frozen interval.
func (c *Checker) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasExtrema() {
		// No connections were created; fall back to a single step so
		// the scheduler has a valid communication interval.
		c.minSteps = 1
		c.maxSteps = 1
	}
	c.frozen = true
}

// Frozen reports whether the extrema are frozen.
func (c *Checker) Frozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}

// MinDelaySteps returns the current lower extremum (1 if nothing has been
// registered yet).
func (c *Checker) MinDelaySteps() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasExtrema() {
		return 1
	}
	return c.minSteps
}

// MaxDelaySteps returns the current upper extremum (1 if nothing has been
// registered yet).
func (c *Checker) MaxDelaySteps() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasExtrema() {
		return 1
	}
	return c.maxSteps
}

func (c *Checker) hasExtrema() bool {
	return c.maxSteps != 0 && c.minSteps != math.MaxInt64
}
