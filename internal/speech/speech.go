// Package speech turns interviewer replies into playable MP3 audio.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Synthesizer renders text as an encoded (MP3) clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

var ErrNoAPIKey = errors.New("speech: API key required")

// APIError is a non-2xx answer from a speech vendor.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("speech [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Chain tries each synthesizer in order and returns the first clip produced.
type Chain []Synthesizer

func (c Chain) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if len(c) == 0 {
		return nil, errors.New("speech: no synthesizers configured")
	}
	var errs []error
	for i, s := range c {
		clip, err := s.Synthesize(ctx, text)
		if err == nil {
			if i > 0 {
				slog.Info("fallback synthesizer succeeded", "component", "speech", "index", i, "chars", len(text))
			}
			return clip, nil
		}
		errs = append(errs, err)
		slog.Warn("synthesizer failed, trying next", "component", "speech", "index", i, "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("all synthesizers failed: %w", errors.Join(errs...))
}
