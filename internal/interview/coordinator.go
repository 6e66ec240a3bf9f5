package interview

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sjawhar/interview-coach/internal/capture"
	"github.com/sjawhar/interview-coach/internal/directive"
	"github.com/sjawhar/interview-coach/internal/metrics"
	"github.com/sjawhar/interview-coach/internal/playback"
	"github.com/sjawhar/interview-coach/internal/transcript"
	"github.com/sjawhar/interview-coach/internal/transport"
)

const (
	eventQueueSize = 256
	finishTimeout  = 30 * time.Second
)

type Deps struct {
	SessionID string
	Capture   Capture
	Transport Transport
	Player    Player
	Finisher  Finisher
	Events    EventBroadcaster
}

// Coordinator sequences interview turns. Every transition runs on the single
// goroutine started by Run; callers and collaborators only enqueue work.
type Coordinator struct {
	sessionID string
	capture   Capture
	transport Transport
	player    Player
	finisher  Finisher
	events    EventBroadcaster
	now       func() time.Time

	queue   chan func()
	stopped chan struct{}
	runCtx  context.Context

	// owned by the loop goroutine
	state       State
	micOn       bool
	buffer      *transcript.Buffer
	messages    []Message
	turn        uint64
	turnStarted time.Time
	openSeq     uint64
	opening     uint64 // non-zero while capture is being opened
	openErr     error  // fatal capture error reported while opening
	cancelPlay  context.CancelFunc
	directives  directive.Directives
	lastError   string
	results     json.RawMessage
}

func NewCoordinator(deps Deps) *Coordinator {
	sessionID := deps.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	events := deps.Events
	if events == nil {
		events = nopBroadcaster{}
	}
	c := &Coordinator{
		sessionID: sessionID,
		capture:   deps.Capture,
		transport: deps.Transport,
		player:    deps.Player,
		finisher:  deps.Finisher,
		events:    events,
		now:       time.Now,
		queue:     make(chan func(), eventQueueSize),
		stopped:   make(chan struct{}),
		runCtx:    context.Background(),
		state:     StateIdle,
	}
	c.buffer = transcript.NewBuffer(c.now())
	return c
}

func (c *Coordinator) SessionID() string { return c.sessionID }

// Run processes queued transitions until ctx is cancelled, then releases
// capture and playback.
func (c *Coordinator) Run(ctx context.Context) error {
	c.runCtx = ctx
	defer close(c.stopped)
	for {
		select {
		case <-ctx.Done():
			c.capture.Stop()
			c.player.Stop()
			return nil
		case fn := <-c.queue:
			fn()
		}
	}
}

// ToggleMic is the user's mic button: it opens a turn from idle and closes
// the utterance while listening. Capture is opened off the loop, so other
// transitions keep flowing while the recognizer connects.
func (c *Coordinator) ToggleMic(ctx context.Context) error {
	var (
		open uint64
		err  error
	)
	if callErr := c.call(ctx, func() { open, err = c.toggleMic() }); callErr != nil {
		return callErr
	}
	if err != nil || open == 0 {
		return err
	}

	startErr := c.capture.Start(ctx)
	done := make(chan struct{})
	c.post(func() {
		err = c.captureStarted(open, startErr)
		close(done)
	})
	select {
	case <-done:
		return err
	case <-c.stopped:
		return ErrNotRunning
	}
}

// End ends the interview. Calling it again is a no-op.
func (c *Coordinator) End(ctx context.Context) error {
	return c.call(ctx, func() { c.end("manual") })
}

func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.call(ctx, func() { snap = c.snapshot() })
	return snap, err
}

// Conversation returns a copy of the appended messages in turn order.
func (c *Coordinator) Conversation(ctx context.Context) ([]Message, error) {
	var msgs []Message
	err := c.call(ctx, func() { msgs = append([]Message(nil), c.messages...) })
	return msgs, err
}

// OnFragment feeds a recognition result into the current utterance. It never
// blocks; results are dropped if the queue is full.
func (c *Coordinator) OnFragment(f transcript.Fragment) {
	select {
	case c.queue <- func() { c.addFragment(f) }:
	default:
		slog.Warn("fragment dropped, coordinator queue full", "component", "interview")
	}
}

// OnCaptureFatal forces the mic off after an unrecoverable capture failure.
func (c *Coordinator) OnCaptureFatal(err error) {
	c.post(func() { c.captureFailed(err) })
}

func (c *Coordinator) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case c.queue <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrNotRunning
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrNotRunning
	}
}

func (c *Coordinator) post(fn func()) {
	select {
	case c.queue <- fn:
	case <-c.stopped:
	}
}

// toggleMic returns a non-zero open sequence when the caller must open capture.
func (c *Coordinator) toggleMic() (uint64, error) {
	switch c.state {
	case StateEnded:
		return 0, ErrEnded
	case StateProcessing, StateResponding:
		return 0, ErrTurnActive
	case StateListening:
		c.closeUtterance()
		return 0, nil
	}
	if c.opening != 0 {
		return 0, ErrTurnActive
	}

	c.buffer.Reset(c.now())
	c.openSeq++
	c.opening = c.openSeq
	return c.opening, nil
}

func (c *Coordinator) captureStarted(open uint64, err error) error {
	if open != c.opening {
		// ended while opening
		if err == nil {
			c.capture.Stop()
		}
		return ErrEnded
	}
	c.opening = 0
	if err == nil && c.openErr != nil {
		err = c.openErr
	}
	c.openErr = nil
	if err != nil {
		c.buffer.Freeze()
		c.surfaceError(errorKind(err), err)
		return err
	}
	c.micOn = true
	c.lastError = ""
	c.setState(StateListening)
	return nil
}

func (c *Coordinator) closeUtterance() {
	c.capture.Stop()
	c.micOn = false
	c.buffer.Freeze()
	text := c.buffer.View(c.now()).Committed()
	if text == "" {
		metrics.RecordTurn("empty", c.now())
		c.setState(StateIdle)
		return
	}

	at := c.now()
	c.appendMessage(Candidate, text, at)
	c.turn++
	c.turnStarted = at
	c.setState(StateProcessing)

	turn := c.turn
	sessionID := c.sessionID
	ctx := c.runCtx
	go func() {
		res, err := c.transport.SendTurn(ctx, sessionID, text)
		c.post(func() { c.turnReplied(turn, res, err) })
	}()
}

func (c *Coordinator) turnReplied(turn uint64, res transport.Result, err error) {
	if turn != c.turn || c.state != StateProcessing {
		slog.Info("discarding stale turn reply", "component", "interview", "turn", turn, "state", string(c.state))
		return
	}

	if err != nil {
		metrics.RecordTurn("transport_error", c.turnStarted)
		c.surfaceError(errorKind(err), err)
		c.setState(StateIdle)
		return
	}

	c.directives = res.Directives
	c.appendMessage(Interviewer, res.Text, c.now())

	if res.Directives.CodingTask {
		c.events.BroadcastCodingTask(c.sessionID)
	}
	if res.Directives.EndInterview {
		metrics.RecordTurn("ended", c.turnStarted)
		c.end("directive")
		return
	}

	c.setState(StateResponding)
	if len(res.Audio) == 0 {
		c.playbackFinished(turn, nil)
		return
	}
	ctx, cancel := context.WithCancel(c.runCtx)
	c.cancelPlay = cancel
	go func() {
		err := c.player.Play(ctx, res.Audio)
		cancel()
		c.post(func() { c.playbackFinished(turn, err) })
	}()
}

func (c *Coordinator) playbackFinished(turn uint64, err error) {
	if turn != c.turn || c.state != StateResponding {
		return
	}
	c.cancelPlay = nil
	if err != nil && !errors.Is(err, playback.ErrStopped) {
		slog.Warn("reply playback failed", "component", "interview", "turn", turn, "error", err)
	}
	metrics.RecordTurn("completed", c.turnStarted)
	c.setState(StateIdle)
}

func (c *Coordinator) end(reason string) {
	if c.state == StateEnded {
		return
	}
	c.micOn = false
	c.opening = 0
	c.openErr = nil
	c.capture.Stop()
	if c.cancelPlay != nil {
		c.cancelPlay()
		c.cancelPlay = nil
	}
	c.player.Stop()
	c.buffer.Freeze()

	sessionID := c.sessionID
	if c.finisher != nil {
		ctx := c.runCtx
		go func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
			defer cancel()
			results, err := c.finisher.EndInterview(ctx, sessionID)
			c.post(func() { c.finished(results, err) })
		}()
	}
	slog.Info("interview ended", "component", "interview", "session_id", sessionID, "reason", reason)
	c.setState(StateEnded)
}

func (c *Coordinator) finished(results json.RawMessage, err error) {
	if err != nil {
		c.lastError = err.Error()
		slog.Error("fetch interview results failed", "component", "interview", "session_id", c.sessionID, "error", err)
		c.events.BroadcastInterviewEnded(c.sessionID, nil, err.Error())
		return
	}
	c.results = results
	c.events.BroadcastInterviewEnded(c.sessionID, results, "")
}

func (c *Coordinator) addFragment(f transcript.Fragment) {
	// results can arrive before the open completes on the loop
	if c.state != StateListening && c.opening == 0 {
		return
	}
	if !c.buffer.Add(f) {
		return
	}
	c.events.BroadcastLiveTranscript(c.sessionID, c.buffer.View(c.now()))
}

func (c *Coordinator) captureFailed(err error) {
	if c.opening != 0 {
		c.openErr = err
		return
	}
	if c.state != StateListening {
		return
	}
	c.micOn = false
	c.buffer.Freeze()
	c.surfaceError(errorKind(err), err)
	c.setState(StateIdle)
}

func (c *Coordinator) appendMessage(speaker Speaker, text string, at time.Time) {
	c.messages = append(c.messages, Message{Speaker: speaker, Text: text, Timestamp: at})
	c.events.BroadcastMessage(c.sessionID, string(speaker), text, at)
}

func (c *Coordinator) setState(s State) {
	c.state = s
	c.events.BroadcastStateChanged(c.sessionID, string(s), c.micOn)
}

func (c *Coordinator) surfaceError(kind string, err error) {
	c.lastError = err.Error()
	slog.Warn("turn failed", "component", "interview", "kind", kind, "error", err)
	c.events.BroadcastTurnError(c.sessionID, kind, err.Error())
}

func (c *Coordinator) snapshot() Snapshot {
	view := c.buffer.View(c.now())
	return Snapshot{
		SessionID:  c.sessionID,
		State:      c.state,
		MicOn:      c.micOn,
		LiveText:   view.Display,
		StableText: strings.TrimSpace(view.StableText),
		Messages:   append([]Message(nil), c.messages...),
		Directives: c.directives,
		LastError:  c.lastError,
		Results:    c.results,
	}
}

func errorKind(err error) string {
	if kind := transport.KindOf(err); kind != "" {
		return string(kind)
	}
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "PERMISSION_DENIED"
	case errors.Is(err, capture.ErrDeviceError):
		return "DEVICE_ERROR"
	case errors.Is(err, capture.ErrCaptureUnavailable):
		return "CAPTURE_UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastStateChanged(string, string, bool)              {}
func (nopBroadcaster) BroadcastLiveTranscript(string, transcript.View)         {}
func (nopBroadcaster) BroadcastMessage(string, string, string, time.Time)      {}
func (nopBroadcaster) BroadcastTurnError(string, string, string)               {}
func (nopBroadcaster) BroadcastCodingTask(string)                              {}
func (nopBroadcaster) BroadcastInterviewEnded(string, json.RawMessage, string) {}
