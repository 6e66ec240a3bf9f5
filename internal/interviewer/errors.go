package interviewer

import "errors"

var (
	ErrEmptyText  = errors.New("candidate text is empty")
	ErrNoSession  = errors.New("session id is required")
	ErrEmptyReply = errors.New("model returned an empty reply")
)
