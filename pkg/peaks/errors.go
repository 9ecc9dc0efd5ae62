package peaks

import "errors"

// ErrInvalidConfig indicates an out-of-range detector tunable
var ErrInvalidConfig = errors.New("invalid peak finder configuration")
