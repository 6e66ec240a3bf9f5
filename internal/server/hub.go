package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/interview-coach/internal/transcript"
)

// Hub fans coordinator events out to websocket subscribers. Slow
// subscribers drop events instead of blocking the coordinator.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastStateChanged(sessionID, state string, micOn bool) {
	h.broadcastEvent(StateChangedEvent{
		Event:     newEvent("state_changed", time.Now().UTC()),
		SessionID: sessionID,
		State:     state,
		MicOn:     micOn,
	})
}

func (h *Hub) BroadcastLiveTranscript(sessionID string, view transcript.View) {
	h.broadcastEvent(LiveTranscriptEvent{
		Event:      newEvent("live_transcript", time.Now().UTC()),
		SessionID:  sessionID,
		StableText: view.StableText,
		LiveText:   view.LiveText,
		Display:    view.Display,
		Threshold:  view.Threshold,
	})
}

func (h *Hub) BroadcastMessage(sessionID, speaker, text string, at time.Time) {
	h.broadcastEvent(MessageEvent{
		Event:     newEvent("message", at),
		SessionID: sessionID,
		Speaker:   speaker,
		Text:      text,
	})
}

func (h *Hub) BroadcastTurnError(sessionID, kind, message string) {
	h.broadcastEvent(TurnErrorEvent{
		Event:     newEvent("turn_error", time.Now().UTC()),
		SessionID: sessionID,
		Kind:      kind,
		Message:   message,
	})
}

func (h *Hub) BroadcastCodingTask(sessionID string) {
	h.broadcastEvent(CodingTaskEvent{
		Event:     newEvent("coding_task", time.Now().UTC()),
		SessionID: sessionID,
	})
}

func (h *Hub) BroadcastInterviewEnded(sessionID string, results json.RawMessage, failure string) {
	h.broadcastEvent(InterviewEndedEvent{
		Event:     newEvent("interview_ended", time.Now().UTC()),
		SessionID: sessionID,
		Results:   results,
		Error:     failure,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("event marshal failed", "component", "hub", "error", err)
		return
	}
	h.Broadcast(payload)
}
