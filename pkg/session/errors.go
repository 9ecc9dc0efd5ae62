package session

import "errors"

// Session errors
var (
	// ErrAlreadyRecording indicates a second Start while a session is live
	ErrAlreadyRecording = errors.New("a recording session is already active")

	// ErrNotRecording indicates Pause or Stop without an active session
	ErrNotRecording = errors.New("no recording session is active")

	// ErrNotPaused indicates Resume on a session that is not paused
	ErrNotPaused = errors.New("session is not paused")
)
