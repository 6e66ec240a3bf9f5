package feedback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sjawhar/interview-coach/internal/llm"
	"github.com/sjawhar/interview-coach/internal/storage"
)

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 123,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index": 0,
			"message": map[string]any{
				"role":    "assistant",
				"content": content,
			},
			"finish_reason": "stop",
		}},
	}
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedSession(t *testing.T, store *storage.SQLiteStore, id string, answerWords int) {
	t.Helper()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := store.EnsureSession(id, "backend engineer", now); err != nil {
		t.Fatalf("EnsureSession failed: %v", err)
	}
	err := store.AppendExchange(id,
		storage.Message{Speaker: storage.SpeakerCandidate, Text: strings.TrimSpace(strings.Repeat("golang ", answerWords)), Timestamp: now},
		storage.Message{Speaker: storage.SpeakerInterviewer, Text: "Thanks, that was thorough.", Timestamp: now.Add(time.Second)},
	)
	if err != nil {
		t.Fatalf("AppendExchange failed: %v", err)
	}
}

func newOpenAIClient(t *testing.T, url string) llm.Client {
	t.Helper()
	client, err := llm.NewClient("openai", "test-key", "gpt-4o-mini", llm.WithBaseURL(url+"/v1"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestEvaluateStoresFeedback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(chatCompletion("## Overall\nSolid answers."))
	}))
	defer server.Close()

	store := newTestStore(t)
	seedSession(t, store, "s1", 30)

	eval := NewEvaluator(newOpenAIClient(t, server.URL), store)
	eval.sleep = func(time.Duration) {}

	got, err := eval.Evaluate(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !strings.Contains(got, "## Overall") {
		t.Fatalf("unexpected feedback %q", got)
	}

	sess, _ := store.GetSession("s1")
	if sess.FeedbackStatus != storage.FeedbackCompleted || sess.Feedback != got {
		t.Fatalf("feedback not stored: %+v", sess)
	}
}

func TestEvaluateSkipsShortTranscript(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := newTestStore(t)
	seedSession(t, store, "s2", 5)

	got, err := NewEvaluator(newOpenAIClient(t, server.URL), store).Evaluate(context.Background(), "s2")
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if got != "" || calls.Load() != 0 {
		t.Fatalf("expected no evaluation, got %q after %d calls", got, calls.Load())
	}
	sess, _ := store.GetSession("s2")
	if sess.FeedbackStatus != storage.FeedbackCompleted {
		t.Fatalf("expected completed status, got %q", sess.FeedbackStatus)
	}
}

func TestEvaluateRetriesOnFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "rate limit"}})
			return
		}
		_ = json.NewEncoder(w).Encode(chatCompletion("retry success"))
	}))
	defer server.Close()

	store := newTestStore(t)
	seedSession(t, store, "s3", 30)

	var waits []time.Duration
	eval := NewEvaluator(newOpenAIClient(t, server.URL), store)
	eval.sleep = func(d time.Duration) { waits = append(waits, d) }

	got, err := eval.Evaluate(context.Background(), "s3")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != "retry success" || calls.Load() != 3 {
		t.Fatalf("expected success on third call, got %q after %d calls", got, calls.Load())
	}
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 4*time.Second {
		t.Fatalf("unexpected backoff %v", waits)
	}
}

func TestEvaluateMarksFailedAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := newTestStore(t)
	seedSession(t, store, "s4", 30)

	eval := NewEvaluator(newOpenAIClient(t, server.URL), store)
	eval.sleep = func(time.Duration) {}

	if _, err := eval.Evaluate(context.Background(), "s4"); err == nil {
		t.Fatal("expected error after retries")
	}
	sess, _ := store.GetSession("s4")
	if sess.FeedbackStatus != storage.FeedbackFailed {
		t.Fatalf("expected failed status, got %q", sess.FeedbackStatus)
	}
}

func TestEvaluateIdempotencySkipsDuplicate(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(chatCompletion("first"))
	}))
	defer server.Close()

	store := newTestStore(t)
	seedSession(t, store, "s5", 30)
	eval := NewEvaluator(newOpenAIClient(t, server.URL), store)

	if _, err := eval.Evaluate(context.Background(), "s5"); err != nil {
		t.Fatalf("first Evaluate failed: %v", err)
	}
	got, err := eval.Evaluate(context.Background(), "s5")
	if err != nil {
		t.Fatalf("second Evaluate failed: %v", err)
	}
	if got != "" || calls.Load() != 1 {
		t.Fatalf("expected duplicate to be skipped, got %q after %d calls", got, calls.Load())
	}
}

func TestCandidateWords(t *testing.T) {
	msgs := []storage.Message{
		{Speaker: storage.SpeakerCandidate, Text: "I like Go a lot"},
		{Speaker: storage.SpeakerInterviewer, Text: "Why is that?"},
		{Speaker: storage.SpeakerCandidate, Text: "Simple concurrency."},
	}
	if got := CandidateWords(msgs); got != 7 {
		t.Fatalf("expected 7 words, got %d", got)
	}
}
