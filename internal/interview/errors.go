package interview

import "errors"

var (
	// ErrTurnActive is returned when the mic is toggled while a turn is
	// awaiting a reply or playing it back. The toggle is ignored.
	ErrTurnActive = errors.New("a turn is already in progress")

	// ErrEnded is returned for any turn action after the interview has ended.
	ErrEnded = errors.New("interview has ended")

	// ErrNotRunning is returned when the coordinator loop has exited.
	ErrNotRunning = errors.New("coordinator is not running")
)
