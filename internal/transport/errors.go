package transport

import (
	"errors"
	"fmt"
)

// Kind classifies a failed turn request.
type Kind string

const (
	KindNetwork   Kind = "NETWORK"
	KindHTTP      Kind = "HTTP_ERROR"
	KindTimeout   Kind = "TIMEOUT"
	KindMalformed Kind = "MALFORMED_RESPONSE"
)

// Error is returned for every failed exchange with the reasoning service.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d)", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a transport error, or "" for any other error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
