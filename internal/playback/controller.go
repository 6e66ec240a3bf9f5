package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sjawhar/interview-coach/internal/metrics"
)

// Sink renders one encoded clip, blocking until it ends or ctx is cancelled.
type Sink interface {
	Play(ctx context.Context, clip []byte) error
}

// handle owns one clip for as long as it is playing.
type handle struct {
	id     uint64
	clip   []byte
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller plays at most one clip at a time. Starting a clip stops and
// releases the previous one first.
type Controller struct {
	sink Sink

	mu     sync.Mutex
	active *handle
	nextID uint64
}

func NewController(sink Sink) *Controller {
	return &Controller{sink: sink}
}

// Play blocks until the clip ends naturally (nil), fails (ErrPlayback),
// or is stopped or superseded (ErrStopped).
func (c *Controller) Play(ctx context.Context, clip []byte) error {
	if len(clip) == 0 {
		metrics.RecordPlaybackFailure()
		return fmt.Errorf("%w: empty audio payload", ErrPlayback)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	playCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.nextID++
	h := &handle{id: c.nextID, clip: clip, cancel: cancel, done: make(chan struct{})}
	prev := c.active
	c.active = h
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	err := c.sink.Play(playCtx, h.clip)
	superseded := playCtx.Err() != nil && ctx.Err() == nil
	c.release(h)

	switch {
	case superseded:
		return ErrStopped
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		metrics.RecordPlaybackFailure()
		slog.Warn("playback failed", "component", "playback", "clip", h.id, "error", err)
		if errors.Is(err, ErrPlayback) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrPlayback, err)
	default:
		return nil
	}
}

// Stop halts the active clip, if any, and waits for its resources to be released.
func (c *Controller) Stop() {
	c.mu.Lock()
	h := c.active
	c.mu.Unlock()
	if h == nil {
		return
	}
	h.cancel()
	<-h.done
}

func (c *Controller) release(h *handle) {
	c.mu.Lock()
	if c.active == h {
		c.active = nil
	}
	h.clip = nil
	c.mu.Unlock()
	h.cancel()
	close(h.done)
}
