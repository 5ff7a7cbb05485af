package forest

import "errors"

var (
	// ErrInvalidConfiguration is returned when a Config fails validation.
	ErrInvalidConfiguration = errors.New("invalid forest configuration")

	// ErrDimensionMismatch is returned when a point's length does not match
	// the configured dimensionality. The forest is never partially updated.
	ErrDimensionMismatch = errors.New("point dimension mismatch")

	// ErrNonFiniteInput is returned when a point carries NaN or Inf values in
	// a position where they are not interpretable as missing.
	ErrNonFiniteInput = errors.New("non-finite input value")
)
