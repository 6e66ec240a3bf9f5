package server

import (
	"encoding/json"
	"time"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type StateChangedEvent struct {
	Event
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	MicOn     bool   `json:"mic_on"`
}

type LiveTranscriptEvent struct {
	Event
	SessionID  string  `json:"session_id"`
	StableText string  `json:"stable_text"`
	LiveText   string  `json:"live_text"`
	Display    string  `json:"display"`
	Threshold  float64 `json:"threshold"`
}

type MessageEvent struct {
	Event
	SessionID string `json:"session_id"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
}

type TurnErrorEvent struct {
	Event
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

type CodingTaskEvent struct {
	Event
	SessionID string `json:"session_id"`
}

type InterviewEndedEvent struct {
	Event
	SessionID string          `json:"session_id"`
	Results   json.RawMessage `json:"results,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
