package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/sjawhar/interview-coach/internal/audio"
	"github.com/sjawhar/interview-coach/internal/transcript"
)

// MicSource is the PCM16 input the recognizer streams to Deepgram.
type MicSource interface {
	SampleRate() int
	Start() error
	Stop() error
	Close() error
	Stream(w io.Writer) error
}

type DeepgramOptions struct {
	APIKey       string
	Model        string
	Language     string
	Alternatives int
	SampleRates  []int
}

// DeepgramRecognizer opens one microphone + Deepgram live session per Open.
type DeepgramRecognizer struct {
	opts    DeepgramOptions
	openMic func(rates []int) (MicSource, error)
	now     func() time.Time
}

var initDeepgram sync.Once

func NewDeepgramRecognizer(opts DeepgramOptions) *DeepgramRecognizer {
	if opts.Model == "" {
		opts.Model = "nova-2"
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.Alternatives <= 0 {
		opts.Alternatives = 3
	}
	initDeepgram.Do(func() {
		client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
	})
	return &DeepgramRecognizer{
		opts: opts,
		openMic: func(rates []int) (MicSource, error) {
			return audio.OpenMic(rates)
		},
		now: time.Now,
	}
}

func (r *DeepgramRecognizer) Open(ctx context.Context) (Stream, error) {
	if r.opts.APIKey == "" {
		return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY is not set", ErrCaptureUnavailable)
	}

	mic, err := r.openMic(r.opts.SampleRates)
	if err != nil {
		return nil, classifyDeviceError(err)
	}
	if err := mic.Start(); err != nil {
		_ = mic.Close()
		return nil, classifyDeviceError(err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &deepgramStream{
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		mic:    mic,
		cancel: cancel,
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          r.opts.Model,
		Language:       r.opts.Language,
		Alternatives:   r.opts.Alternatives,
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		Encoding:       "linear16",
		SampleRate:     mic.SampleRate(),
		Channels:       1,
	}
	cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}

	dg, err := client.NewWSUsingCallback(streamCtx, r.opts.APIKey, cOptions, tOptions, deepgramCallback{stream: s, now: r.now})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create deepgram client: %w", err)
	}
	s.setLive(dg)
	if ok := dg.Connect(); !ok {
		_ = s.Close()
		return nil, errors.New("deepgram connect failed")
	}

	go s.streamMic(streamCtx, dg)
	return s, nil
}

func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "denied") || strings.Contains(msg, "not allowed") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
}

type liveClient interface {
	Stop()
}

type deepgramStream struct {
	events chan Event
	done   chan struct{}
	mic    MicSource
	cancel context.CancelFunc

	mu        sync.Mutex
	live      liveClient
	closeOnce sync.Once
}

func (s *deepgramStream) Events() <-chan Event  { return s.events }
func (s *deepgramStream) Done() <-chan struct{} { return s.done }

func (s *deepgramStream) setLive(c liveClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = c
}

func (s *deepgramStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
		s.mu.Lock()
		live := s.live
		s.mu.Unlock()
		if live != nil {
			live.Stop()
		}
		err = errors.Join(s.mic.Stop(), s.mic.Close())
	})
	return err
}

func (s *deepgramStream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *deepgramStream) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *deepgramStream) streamMic(ctx context.Context, w io.Writer) {
	err := streamMicWithRetry(ctx, s.mic, w, time.Sleep)
	if err == nil || s.closed() {
		return
	}
	s.emit(Event{Kind: EventError, Code: ErrorAudioCapture, Err: err})
}

type micStreamer interface {
	Stream(writer io.Writer) error
}

// streamMicWithRetry pumps PCM until ctx ends. Input overflows restart the
// read loop; any other error is returned.
func streamMicWithRetry(ctx context.Context, streamer micStreamer, writer io.Writer, wait func(time.Duration)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := streamer.Stream(writer)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		if strings.Contains(strings.ToLower(err.Error()), "overflow") {
			slog.Warn("mic input overflow, restarting stream", "component", "capture")
			wait(250 * time.Millisecond)
			continue
		}

		return err
	}
}

// deepgramCallback translates Deepgram live events into capture events.
type deepgramCallback struct {
	stream *deepgramStream
	now    func() time.Time
}

func (c deepgramCallback) Message(mr *api.MessageResponse) error {
	if frag, ok := fragmentFromMessage(mr, c.now()); ok {
		c.stream.emit(Event{Kind: EventResult, Fragment: frag})
	}
	return nil
}

func fragmentFromMessage(mr *api.MessageResponse, at time.Time) (transcript.Fragment, bool) {
	if mr == nil || len(mr.Channel.Alternatives) == 0 {
		return transcript.Fragment{}, false
	}
	alts := make([]transcript.Alternative, 0, len(mr.Channel.Alternatives))
	hasText := false
	for _, alt := range mr.Channel.Alternatives {
		text := strings.TrimSpace(alt.Transcript)
		if text != "" {
			hasText = true
		}
		alts = append(alts, transcript.Alternative{Text: text, Confidence: alt.Confidence})
	}
	if !hasText {
		return transcript.Fragment{}, false
	}
	return transcript.Fragment{Alternatives: alts, Final: mr.IsFinal, CapturedAt: at}, true
}

func (c deepgramCallback) Open(*api.OpenResponse) error {
	slog.Info("connected to Deepgram", "component", "capture")
	return nil
}

func (c deepgramCallback) Metadata(*api.MetadataResponse) error { return nil }

func (c deepgramCallback) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (c deepgramCallback) UtteranceEnd(*api.UtteranceEndResponse) error { return nil }

func (c deepgramCallback) Close(*api.CloseResponse) error {
	if !c.stream.closed() {
		c.stream.emit(Event{Kind: EventEnded})
	}
	return nil
}

func (c deepgramCallback) Error(er *api.ErrorResponse) error {
	c.stream.emit(errorEvent(er))
	return nil
}

func errorEvent(er *api.ErrorResponse) Event {
	if er == nil {
		return Event{Kind: EventError, Code: ErrorOther, Err: errors.New("deepgram error without details")}
	}
	return Event{
		Kind: EventError,
		Code: errorCodeFor(er),
		Err:  fmt.Errorf("deepgram error %s: %s", er.ErrCode, er.Description),
	}
}

func (c deepgramCallback) UnhandledEvent([]byte) error { return nil }

func errorCodeFor(er *api.ErrorResponse) ErrorCode {
	if er == nil {
		return ErrorOther
	}
	text := strings.ToLower(er.ErrCode + " " + er.Description)
	switch {
	case strings.Contains(text, "net"), strings.Contains(text, "timeout"), strings.Contains(text, "connection"):
		return ErrorNetwork
	case strings.Contains(text, "no speech"), strings.Contains(text, "silence"):
		return ErrorNoSpeech
	case strings.Contains(text, "unauthorized"), strings.Contains(text, "forbidden"):
		return ErrorNotAllowed
	default:
		return ErrorOther
	}
}
