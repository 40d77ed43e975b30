package core

import "errors"

var (
	// ErrInvalidResolution is returned for a grid resolution that has no
	// projection.
	ErrInvalidResolution = errors.New("invalid grid resolution")

	// ErrInvalidInterpolationMethod is returned for an unrecognised
	// interpolation method tag.
	ErrInvalidInterpolationMethod = errors.New("invalid interpolation method")

	// ErrOutOfBoundsNeighborhood is returned when an interpolation window
	// would read outside the velocity field. It is fatal for the sample.
	ErrOutOfBoundsNeighborhood = errors.New("interpolation neighborhood out of bounds")

	// ErrMissingVelocityData marks a sample whose contributing cells are
	// masked. Integration absorbs it by substituting zero velocity; it is
	// reported through Sample.Masked and metrics, not returned.
	ErrMissingVelocityData = errors.New("missing velocity data")
)
