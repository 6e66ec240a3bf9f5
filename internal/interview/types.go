package interview

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sjawhar/interview-coach/internal/directive"
	"github.com/sjawhar/interview-coach/internal/transcript"
	"github.com/sjawhar/interview-coach/internal/transport"
)

type Capture interface {
	Start(ctx context.Context) error
	Stop()
}

type Transport interface {
	SendTurn(ctx context.Context, sessionID, text string) (transport.Result, error)
}

type Player interface {
	Play(ctx context.Context, clip []byte) error
	Stop()
}

type Finisher interface {
	EndInterview(ctx context.Context, sessionID string) (json.RawMessage, error)
}

type EventBroadcaster interface {
	BroadcastStateChanged(sessionID, state string, micOn bool)
	BroadcastLiveTranscript(sessionID string, view transcript.View)
	BroadcastMessage(sessionID, speaker, text string, at time.Time)
	BroadcastTurnError(sessionID, kind, message string)
	BroadcastCodingTask(sessionID string)
	BroadcastInterviewEnded(sessionID string, results json.RawMessage, failure string)
}

type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateResponding State = "responding"
	StateEnded      State = "ended"
)

type Speaker string

const (
	Candidate   Speaker = "candidate"
	Interviewer Speaker = "interviewer"
)

// Message is one appended line of dialogue. Messages are never edited.
type Message struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a consistent copy of the session taken between transitions.
type Snapshot struct {
	SessionID  string               `json:"session_id"`
	State      State                `json:"state"`
	MicOn      bool                 `json:"mic_on"`
	LiveText   string               `json:"live_text"`
	StableText string               `json:"stable_text"`
	Messages   []Message            `json:"messages"`
	Directives directive.Directives `json:"directives"`
	LastError  string               `json:"last_error,omitempty"`
	Results    json.RawMessage      `json:"results,omitempty"`
}
