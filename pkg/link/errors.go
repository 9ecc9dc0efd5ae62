package link

import "errors"

// Link errors
var (
	// ErrNotOpen indicates an operation on a link that is not open
	ErrNotOpen = errors.New("link is not open")

	// ErrAlreadyOpen indicates a second Open on a live link
	ErrAlreadyOpen = errors.New("link is already open")

	// ErrNoDevice indicates no matching USB device was found
	ErrNoDevice = errors.New("no matching device found")
)
