package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConvertGeminiMessages(t *testing.T) {
	systemInstruction, contents := convertGeminiMessages([]Message{
		{Role: RoleSystem, Content: "You are a hiring manager."},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
		{Role: RoleUser, Content: "how are you"},
	})

	if systemInstruction == nil {
		t.Fatalf("expected system instruction, got nil")
	}
	if len(systemInstruction.Parts) != 1 || systemInstruction.Parts[0].Text != "You are a hiring manager." {
		t.Fatalf("unexpected system instruction: %#v", systemInstruction)
	}

	if len(contents) != 3 {
		t.Fatalf("expected 3 conversation messages, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[0].Parts[0].Text != "hello" {
		t.Fatalf("unexpected first message: %#v", contents[0])
	}
	if contents[1].Role != "model" || contents[1].Parts[0].Text != "hi there" {
		t.Fatalf("unexpected second message: %#v", contents[1])
	}
	if contents[2].Role != "user" || contents[2].Parts[0].Text != "how are you" {
		t.Fatalf("unexpected third message: %#v", contents[2])
	}
}

func TestGemini_Complete_EmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{
					"content": map[string]any{
						"parts": []map[string]any{
							{"text": ""},
						},
						"role": "model",
					},
					"finishReason": "STOP",
				},
			},
		})
	}))
	defer server.Close()

	client, err := newGeminiClient("test-key", "gemini-test", &clientOptions{baseURL: server.URL})
	if err != nil {
		t.Fatalf("newGeminiClient failed: %v", err)
	}

	_, err = client.Complete(context.Background(), []Message{
		{Role: RoleUser, Content: "hello"},
	})
	if err == nil {
		t.Fatal("expected error for empty result, got nil")
	}
	if !strings.Contains(err.Error(), "empty response") {
		t.Fatalf("expected 'empty response' in error, got %q", err.Error())
	}
}

func TestGemini_Complete_SendsPersonaAndHistory(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-test:generateContent") {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{
					"content": map[string]any{
						"parts": []map[string]any{{"text": "  Tell me more about that project.  "}},
						"role":  "model",
					},
					"finishReason": "STOP",
				},
			},
		})
	}))
	defer server.Close()

	temp := 1.0
	client, err := newGeminiClient("test-key", "gemini-test", &clientOptions{baseURL: server.URL, maxTokens: 400, temperature: &temp})
	if err != nil {
		t.Fatalf("newGeminiClient failed: %v", err)
	}

	got, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are Saarthi, an interviewer."},
		{Role: RoleUser, Content: "I built a payments service."},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "Tell me more about that project." {
		t.Fatalf("unexpected reply %q", got)
	}
	for _, want := range []string{"You are Saarthi, an interviewer.", "I built a payments service.", "maxOutputTokens"} {
		if !strings.Contains(body, want) {
			t.Fatalf("request body missing %q: %s", want, body)
		}
	}
}

func TestGemini_Complete_RequiresCandidateMessage(t *testing.T) {
	client, err := newGeminiClient("test-key", "gemini-test", &clientOptions{baseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("newGeminiClient failed: %v", err)
	}
	_, err = client.Complete(context.Background(), []Message{{Role: RoleSystem, Content: "persona only"}})
	if err == nil || !strings.Contains(err.Error(), "no user message") {
		t.Fatalf("expected missing user message error, got %v", err)
	}
}
