package synet

import (
	"errors"
	"fmt"

	"github.com/nest/nest-simulator-sub010/builder"
	"github.com/nest/nest-simulator-sub010/coordinator"
	"github.com/nest/nest-simulator-sub010/delay"
	"github.com/nest/nest-simulator-sub010/store"
	"github.com/nest/nest-simulator-sub010/synapse"
)

var (
	// ErrNotFound is returned when a referenced connection does not exist.
	ErrNotFound = errors.New("connection not found")

	// ErrUnknownRule is returned for an unregistered connection rule.
	ErrUnknownRule = errors.New("unknown connection rule")

	// ErrUnknownModel is returned for an unregistered synapse model.
	ErrUnknownModel = errors.New("unknown synapse model")

	// ErrEmptyCollection is returned when a connect request names an empty
	// node collection.
	ErrEmptyCollection = errors.New("empty node collection")

	// ErrBadDelay is returned for delays below the resolution or outside
	// fixed extrema.
	ErrBadDelay = errors.New("invalid delay")

	// ErrTooManyConnections is returned when a storage slab hits the
	// per-type connection limit.
	ErrTooManyConnections = errors.New("too many connections for one synapse type")

	// ErrPlasticityDisabled is returned when a plasticity operation runs
	// before EnableStructuralPlasticity.
	ErrPlasticityDisabled = errors.New("structural plasticity not enabled")
)

// translateError maps internal errors onto the facade's taxonomy, keeping
// the original cause reachable through errors.Unwrap.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, coordinator.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, builder.ErrUnknownRule) {
		return fmt.Errorf("%w: %w", ErrUnknownRule, err)
	}
	if errors.Is(err, builder.ErrEmptyCollection) {
		return fmt.Errorf("%w: %w", ErrEmptyCollection, err)
	}

	var unknown *synapse.ErrUnknownModel
	if errors.As(err, &unknown) {
		return fmt.Errorf("%w: %w", ErrUnknownModel, err)
	}

	var below *delay.ErrBelowResolution
	if errors.As(err, &below) {
		return fmt.Errorf("%w: %w", ErrBadDelay, err)
	}
	var outOfRange *delay.ErrOutOfRange
	if errors.As(err, &outOfRange) {
		return fmt.Errorf("%w: %w", ErrBadDelay, err)
	}

	var full *store.ErrTooManyConnections
	if errors.As(err, &full) {
		return fmt.Errorf("%w: %w", ErrTooManyConnections, err)
	}

	return err
}
