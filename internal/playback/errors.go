package playback

import "errors"

var (
	// ErrPlayback wraps decode and output failures from the sink.
	ErrPlayback = errors.New("playback error")

	// ErrStopped is returned by Play when the clip was stopped or superseded
	// by a newer clip before it finished.
	ErrStopped = errors.New("playback stopped")
)
