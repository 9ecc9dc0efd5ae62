// Package link abstracts the physical byte link to a detector: a
// native serial port or a USB CDC bridge. The rest of the pipeline
// only sees the Link interface and never knows which variant is
// active.
package link

import "context"

// Link is one physical byte link to a detector device.
//
// Read blocks until at least one byte is available or a bounded idle
// timeout elapses; the timeout case returns an empty, nil-error
// result. Callers must treat an empty read as "no data yet", never as
// end of stream.
//
// Close is idempotent and swallows peer-already-gone errors: an
// unplugged device is a normal disconnect, not a failure.
type Link interface {
	Open(baud int) error
	Close() error
	Read(ctx context.Context) ([]byte, error)
	Write(p []byte) error
	IsOpen() bool
	// String identifies the link for logs and device pickers.
	String() string
	// Matches reports whether this link wraps the given physical port
	// handle, so a reconnect can find the same device again.
	Matches(handle string) bool
}
