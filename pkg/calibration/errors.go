package calibration

import "errors"

// Calibration errors
var (
	// ErrDuplicateChannel indicates two reference points share a channel,
	// which makes the fit singular
	ErrDuplicateChannel = errors.New("duplicate reference channel")

	// ErrNonFinitePoint indicates a reference point contains NaN or Inf
	ErrNonFinitePoint = errors.New("reference point is not finite")
)
