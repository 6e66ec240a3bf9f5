package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sjawhar/interview-coach/internal/interview"
)

type mockCoach struct {
	mu        sync.Mutex
	toggleErr error
	endErr    error
	snapErr   error
	snap      interview.Snapshot
	messages  []interview.Message
	toggles   int
	ends      int
}

func (m *mockCoach) ToggleMic(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.toggleErr != nil {
		return m.toggleErr
	}
	m.toggles++
	m.snap.MicOn = !m.snap.MicOn
	if m.snap.MicOn {
		m.snap.State = interview.StateListening
	}
	return nil
}

func (m *mockCoach) End(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ends++
	return m.endErr
}

func (m *mockCoach) Snapshot(context.Context) (interview.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, m.snapErr
}

func (m *mockCoach) Conversation(context.Context) ([]interview.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages, m.snapErr
}

func serveCoach(t *testing.T, coach Coach, warnings []string, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	CoachHandler(NewHub(), coach, warnings).ServeHTTP(rr, req)
	return rr
}

func TestCoachMicToggle(t *testing.T) {
	coach := &mockCoach{snap: interview.Snapshot{SessionID: "s1", State: interview.StateIdle}}

	rr := serveCoach(t, coach, nil, http.MethodPost, "/api/mic")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["mic_on"] != true || body["state"] != "listening" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCoachMicRejectedDuringTurn(t *testing.T) {
	coach := &mockCoach{toggleErr: interview.ErrTurnActive}

	rr := serveCoach(t, coach, nil, http.MethodPost, "/api/mic")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "error") {
		t.Fatalf("expected JSON error body, got %s", rr.Body.String())
	}
}

func TestCoachEnd(t *testing.T) {
	coach := &mockCoach{}
	rr := serveCoach(t, coach, nil, http.MethodPost, "/api/end")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if coach.ends != 1 {
		t.Fatalf("expected one End call, got %d", coach.ends)
	}

	coach.endErr = interview.ErrNotRunning
	rr = serveCoach(t, coach, nil, http.MethodPost, "/api/end")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the coordinator is down, got %d", rr.Code)
	}
}

func TestCoachStatusWithWarnings(t *testing.T) {
	coach := &mockCoach{snap: interview.Snapshot{
		SessionID: "s1",
		State:     interview.StateProcessing,
		LiveText:  "I led the migration",
	}}

	rr := serveCoach(t, coach, []string{"tts_voice not set"}, http.MethodGet, "/api/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		State     string              `json:"state"`
		SessionID string              `json:"session_id"`
		LiveText  string              `json:"live_text"`
		Messages  []interview.Message `json:"messages"`
		Warnings  []string            `json:"warnings"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.State != "processing" || body.SessionID != "s1" || body.LiveText != "I led the migration" {
		t.Fatalf("unexpected status %+v", body)
	}
	if body.Messages == nil || len(body.Warnings) != 1 {
		t.Fatalf("expected empty messages and one warning, got %+v", body)
	}
}

func TestCoachStatusNoWarnings(t *testing.T) {
	rr := serveCoach(t, &mockCoach{}, nil, http.MethodGet, "/api/status")
	if !strings.Contains(rr.Body.String(), `"warnings":[]`) {
		t.Fatalf("expected empty warnings array, got %s", rr.Body.String())
	}
}

func TestCoachConversation(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	coach := &mockCoach{messages: []interview.Message{
		{Speaker: interview.Candidate, Text: "Hello.", Timestamp: at},
		{Speaker: interview.Interviewer, Text: "Welcome.", Timestamp: at.Add(time.Second)},
	}}

	rr := serveCoach(t, coach, nil, http.MethodGet, "/api/conversation")
	var body struct {
		Success      bool                `json:"success"`
		Conversation []interview.Message `json:"conversation"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !body.Success || len(body.Conversation) != 2 || body.Conversation[1].Speaker != interview.Interviewer {
		t.Fatalf("unexpected conversation %+v", body)
	}
}

func TestCoachMetricsRoute(t *testing.T) {
	rr := serveCoach(t, &mockCoach{}, nil, http.MethodGet, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
