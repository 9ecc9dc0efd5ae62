package mcaconf

import "errors"

// ErrInvalidSettings indicates an out-of-range configuration value
var ErrInvalidSettings = errors.New("invalid settings")
