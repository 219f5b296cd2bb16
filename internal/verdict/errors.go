package verdict

import "errors"

var (
	// ErrEmptyInput is returned when aggregation is attempted over zero samples.
	// A media item with no analyzable units must not silently default to a verdict.
	ErrEmptyInput = errors.New("no score samples to aggregate")

	// ErrInvalidWeight is returned when a sample carries a non-positive weight.
	ErrInvalidWeight = errors.New("sample weight must be positive")

	// ErrInvalidScore is returned when a raw score falls outside [0,1].
	ErrInvalidScore = errors.New("raw score must be in [0,1]")
)
