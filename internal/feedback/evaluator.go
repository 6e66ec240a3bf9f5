// Package feedback writes the end-of-interview evaluation of a candidate.
package feedback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sjawhar/interview-coach/internal/llm"
	"github.com/sjawhar/interview-coach/internal/storage"
)

// minCandidateWords is the least a candidate must have said before an
// evaluation is worth generating.
const minCandidateWords = 20

const systemPrompt = `You are an experienced hiring manager reviewing a mock interview for a {{role}} position.
Write concise feedback for the candidate in markdown with these sections:
## Overall
## Strengths
## Areas to improve
## Suggested practice
Base every point on what the candidate actually said. Do not invent answers.`

type Store interface {
	GetSession(id string) (storage.Session, error)
	GetMessages(sessionID string) ([]storage.Message, error)
	UpdateFeedback(sessionID, feedback, status string) error
	ClaimFeedbackRequest(sessionID, promptHash string) (bool, error)
}

type Evaluator struct {
	client llm.Client
	store  Store
	sleep  func(time.Duration)
}

func NewEvaluator(client llm.Client, store Store) *Evaluator {
	return &Evaluator{client: client, store: store, sleep: time.Sleep}
}

// Evaluate generates and stores feedback for an ended session. It returns
// an empty string when the transcript is too short or an identical
// transcript was already claimed for evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, sessionID string) (string, error) {
	sess, err := e.store.GetSession(sessionID)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	messages, err := e.store.GetMessages(sessionID)
	if err != nil {
		return "", fmt.Errorf("load messages: %w", err)
	}

	if CandidateWords(messages) < minCandidateWords {
		if err := e.store.UpdateFeedback(sessionID, "", storage.FeedbackCompleted); err != nil {
			return "", err
		}
		return "", nil
	}

	transcript := plainTranscript(messages)
	hash := sha256.Sum256([]byte(transcript))
	claimed, err := e.store.ClaimFeedbackRequest(sessionID, hex.EncodeToString(hash[:]))
	if err != nil {
		return "", fmt.Errorf("claim feedback request: %w", err)
	}
	if !claimed {
		return "", nil
	}

	if err := e.store.UpdateFeedback(sessionID, "", storage.FeedbackRunning); err != nil {
		return "", err
	}

	prompt := []llm.Message{
		{Role: llm.RoleSystem, Content: strings.ReplaceAll(systemPrompt, "{{role}}", roleOrDefault(sess.Role))},
		{Role: llm.RoleUser, Content: transcript},
	}

	backoff := []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	var lastErr error
	for attempt := range backoff {
		result, err := e.client.Complete(ctx, prompt)
		if err == nil {
			result = strings.TrimSpace(result)
			if err := e.store.UpdateFeedback(sessionID, result, storage.FeedbackCompleted); err != nil {
				return "", err
			}
			return result, nil
		}
		lastErr = err
		slog.Warn("feedback attempt failed", "component", "feedback", "session", sessionID, "attempt", attempt+1, "error", err)
		if ctx.Err() != nil {
			break
		}
		if attempt < len(backoff)-1 {
			e.sleep(backoff[attempt])
		}
	}

	if err := e.store.UpdateFeedback(sessionID, "", storage.FeedbackFailed); err != nil {
		slog.Warn("failed to mark feedback failed", "component", "feedback", "session", sessionID, "error", err)
	}
	return "", fmt.Errorf("feedback failed after retries: %w", lastErr)
}

// CandidateWords counts the words the candidate spoke.
func CandidateWords(messages []storage.Message) int {
	n := 0
	for _, m := range messages {
		if m.Speaker == storage.SpeakerCandidate {
			n += len(strings.Fields(m.Text))
		}
	}
	return n
}

func plainTranscript(messages []storage.Message) string {
	var b strings.Builder
	for _, m := range messages {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		label := "Interviewer"
		if m.Speaker == storage.SpeakerCandidate {
			label = "Candidate"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, m.Text)
	}
	return b.String()
}

func roleOrDefault(role string) string {
	if strings.TrimSpace(role) == "" {
		return "software engineer"
	}
	return role
}
