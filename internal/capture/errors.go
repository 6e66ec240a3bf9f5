package capture

import "errors"

var (
	// ErrCaptureUnavailable is returned by Start when no recognition
	// capability (microphone or recognizer) can be opened.
	ErrCaptureUnavailable = errors.New("capture unavailable")

	// ErrPermissionDenied is returned when the user or OS denies microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceError is reported through OnFatal when the capture device fails
	// while listening. The controller is forced back to idle.
	ErrDeviceError = errors.New("capture device error")
)
