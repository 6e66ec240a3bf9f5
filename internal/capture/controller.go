package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sjawhar/interview-coach/internal/metrics"
	"github.com/sjawhar/interview-coach/internal/transcript"
)

type State int

const (
	Idle State = iota
	Listening
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	noSpeechRestartDelay = 500 * time.Millisecond
	networkRestartDelay  = 1000 * time.Millisecond
	maxRestartJitter     = 1000 * time.Millisecond

	// consecutive reopen failures tolerated before the device is declared broken
	maxRestartFailures = 5
)

// Hooks receive controller output. Both are called from controller goroutines
// and must not block for long.
type Hooks struct {
	OnFragment func(transcript.Fragment)
	OnFatal    func(error)
}

type timer interface {
	Stop() bool
}

// Controller owns the lifecycle of one continuous listening session and
// transparently reopens it when the recognizer ends on its own.
type Controller struct {
	rec   Recognizer
	hooks Hooks

	afterFunc func(time.Duration, func()) timer
	jitter    func() time.Duration

	mu       sync.Mutex
	state    State
	gen      uint64
	stream   Stream
	cancel   context.CancelFunc
	pending  timer
	failures int
}

func NewController(rec Recognizer, hooks Hooks) *Controller {
	return &Controller{
		rec:   rec,
		hooks: hooks,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		jitter: func() time.Duration {
			return rand.N(maxRestartJitter + time.Millisecond)
		},
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens the capture session. It is a no-op while already listening.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Listening {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	c.state = Listening
	c.failures = 0
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.mu.Unlock()

	stream, err := c.rec.Open(runCtx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		cancel()
		if c.gen == gen {
			c.state = Idle
			c.cancel = nil
		}
		return classifyOpenError(err)
	}
	if c.gen != gen {
		// stopped while the session was opening
		_ = stream.Close()
		cancel()
		return nil
	}
	c.stream = stream
	go c.pump(gen, stream)
	return nil
}

// Stop releases the capture session and suppresses any pending or future
// auto-restart. Safe to call in any state.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Listening {
		return
	}
	c.gen++
	c.state = Stopped
	c.releaseLocked()
}

func (c *Controller) releaseLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			slog.Warn("capture stream close failed", "component", "capture", "error", err)
		}
		c.stream = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) pump(gen uint64, stream Stream) {
	for {
		select {
		case <-stream.Done():
			c.sessionEnded(gen, ErrorOther, nil)
			return
		case ev := <-stream.Events():
			switch ev.Kind {
			case EventResult:
				if !c.current(gen) {
					return
				}
				if c.hooks.OnFragment != nil {
					c.hooks.OnFragment(ev.Fragment)
				}
			case EventError:
				if ev.Code.Fatal() {
					c.fail(gen, ev.Code, ev.Err)
					return
				}
				c.sessionEnded(gen, ev.Code, ev.Err)
				return
			case EventEnded:
				c.sessionEnded(gen, ErrorOther, nil)
				return
			}
		}
	}
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.state == Listening
}

// sessionEnded schedules a reopen after the delay the end reason calls for.
func (c *Controller) sessionEnded(gen uint64, code ErrorCode, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != Listening {
		return
	}
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}

	delay := c.restartDelay(code)
	slog.Warn("capture session ended, restarting",
		"component", "capture", "reason", string(code), "delay", delay, "error", cause)
	metrics.RecordCaptureRestart(string(code))

	c.gen++
	next := c.gen
	c.pending = c.afterFunc(delay, func() { c.restart(next) })
}

func (c *Controller) restartDelay(code ErrorCode) time.Duration {
	switch code {
	case ErrorNoSpeech:
		return noSpeechRestartDelay
	case ErrorNetwork:
		return networkRestartDelay
	default:
		return c.jitter()
	}
}

func (c *Controller) restart(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != Listening {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	if c.cancel != nil {
		c.cancel()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	stream, err := c.rec.Open(runCtx)

	c.mu.Lock()
	if c.gen != gen || c.state != Listening {
		c.mu.Unlock()
		if stream != nil {
			_ = stream.Close()
		}
		cancel()
		return
	}
	if err != nil {
		c.failures++
		failures := c.failures
		c.mu.Unlock()
		if errors.Is(err, ErrPermissionDenied) {
			c.fail(gen, ErrorNotAllowed, err)
			return
		}
		if failures >= maxRestartFailures {
			c.fail(gen, ErrorAudioCapture, err)
			return
		}
		c.sessionEnded(gen, ErrorNetwork, err)
		return
	}
	c.failures = 0
	c.stream = stream
	c.mu.Unlock()
	go c.pump(gen, stream)
}

// fail forces the controller back to idle and reports the fatal condition once.
func (c *Controller) fail(gen uint64, code ErrorCode, cause error) {
	c.mu.Lock()
	if c.gen != gen || c.state != Listening {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.state = Idle
	c.releaseLocked()
	c.mu.Unlock()

	sentinel := ErrDeviceError
	if code == ErrorNotAllowed {
		sentinel = ErrPermissionDenied
	}
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %v", sentinel, cause)
	}
	slog.Error("capture failed", "component", "capture", "reason", string(code), "error", err)
	if c.hooks.OnFatal != nil {
		c.hooks.OnFatal(err)
	}
}

func classifyOpenError(err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrCaptureUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
}
