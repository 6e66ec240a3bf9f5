package capture

import (
	"context"

	"github.com/sjawhar/interview-coach/internal/transcript"
)

// Recognizer opens continuous speech recognition sessions.
type Recognizer interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is one open recognition session. Events stops delivering once Done
// is closed; Close is safe to call more than once.
type Stream interface {
	Events() <-chan Event
	Done() <-chan struct{}
	Close() error
}

type EventKind int

const (
	EventResult EventKind = iota
	EventError
	EventEnded
)

// ErrorCode classifies recognition errors the way the restart policy needs them.
type ErrorCode string

const (
	ErrorNoSpeech     ErrorCode = "no-speech"
	ErrorNetwork      ErrorCode = "network"
	ErrorAudioCapture ErrorCode = "audio-capture"
	ErrorNotAllowed   ErrorCode = "not-allowed"
	ErrorOther        ErrorCode = "other"
)

// Fatal reports whether the code ends listening instead of restarting it.
func (c ErrorCode) Fatal() bool {
	return c == ErrorAudioCapture || c == ErrorNotAllowed
}

type Event struct {
	Kind     EventKind
	Fragment transcript.Fragment
	Code     ErrorCode
	Err      error
}
