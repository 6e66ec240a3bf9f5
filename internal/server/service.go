package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sjawhar/interview-coach/internal/feedback"
	"github.com/sjawhar/interview-coach/internal/interviewer"
	"github.com/sjawhar/interview-coach/internal/storage"
)

const finalizeTimeout = 3 * time.Minute

type Replier interface {
	Reply(ctx context.Context, sessionID, role, text string) (interviewer.Reply, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, sessionID string) (string, error)
}

// Archiver receives every ended interview after feedback has been written.
type Archiver interface {
	Archive(ctx context.Context, sess storage.Session, messages []storage.Message) error
}

// Service backs the interview service routes. Evaluator and archivers are
// optional.
type Service struct {
	replier   Replier
	store     SessionStore
	evaluator Evaluator
	archivers []Archiver
	now       func() time.Time

	wg sync.WaitGroup
}

func NewService(replier Replier, store SessionStore, evaluator Evaluator, archivers ...Archiver) *Service {
	return &Service{
		replier:   replier,
		store:     store,
		evaluator: evaluator,
		archivers: archivers,
		now:       time.Now,
	}
}

// Wait blocks until background feedback and archiving have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Results summarizes an ended interview.
type Results struct {
	SessionID        string    `json:"session_id"`
	Role             string    `json:"role"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	DurationSeconds  float64   `json:"duration_seconds"`
	CandidateTurns   int       `json:"candidate_turns"`
	InterviewerTurns int       `json:"interviewer_turns"`
	CandidateWords   int       `json:"candidate_words"`
	FeedbackStatus   string    `json:"feedback_status"`
}

type generateRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Text      string `json:"text"`
	Role      string `json:"role"`
}

type generateActions struct {
	EndInterview bool `json:"endInterview"`
	CodingTask   bool `json:"codingTask"`
}

type generateResponse struct {
	Success bool            `json:"success"`
	Text    string          `json:"text"`
	Audio   string          `json:"audio"`
	Actions generateActions `json:"actions"`
}

func registerServiceRoutes(mux *http.ServeMux, svc *Service) {
	mux.HandleFunc("POST /generate-voice", svc.handleGenerate)

	mux.HandleFunc("GET /get-conversation/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeFailure(w, http.StatusForbidden, "invalid session id")
			return
		}
		if _, err := svc.store.GetSession(sessionID); err != nil {
			writeFailure(w, statusFor(err), err.Error())
			return
		}
		messages, err := svc.store.GetMessages(sessionID)
		if err != nil {
			writeFailure(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "conversation": messages})
	})

	mux.HandleFunc("POST /api/sessions/{id}/end", svc.handleEnd)
}

func (s *Service) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(req.UserID)
	}
	if sessionID != "" && !validSessionID(sessionID) {
		writeFailure(w, http.StatusForbidden, "invalid session id")
		return
	}

	reply, err := s.replier.Reply(r.Context(), sessionID, req.Role, req.Text)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, interviewer.ErrEmptyText) || errors.Is(err, interviewer.ErrNoSession) {
			status = http.StatusBadRequest
		}
		slog.Warn("generate reply failed", "component", "service", "session", sessionID, "error", err)
		writeFailure(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Success: true,
		Text:    reply.Text,
		Audio:   base64.StdEncoding.EncodeToString(reply.Audio),
		Actions: generateActions{
			EndInterview: reply.Directives.EndInterview,
			CodingTask:   reply.Directives.CodingTask,
		},
	})
}

func (s *Service) handleEnd(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if !validSessionID(sessionID) {
		writeJSONError(w, http.StatusForbidden, "invalid session id")
		return
	}

	before, err := s.store.GetSession(sessionID)
	if err != nil {
		writeJSONError(w, statusFor(err), fmt.Sprintf("end session: %v", err))
		return
	}
	if err := s.store.EndSession(sessionID, s.now()); err != nil {
		writeJSONError(w, statusFor(err), fmt.Sprintf("end session: %v", err))
		return
	}

	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		writeJSONError(w, statusFor(err), fmt.Sprintf("end session: %v", err))
		return
	}
	messages, err := s.store.GetMessages(sessionID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("end session messages: %v", err))
		return
	}

	if before.EndedAt == nil {
		s.wg.Add(1)
		go s.finalize(sessionID)
	}

	writeJSON(w, http.StatusOK, buildResults(sess, messages))
}

// finalize writes feedback and archives the transcript of an ended session.
func (s *Service) finalize(sessionID string) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if s.evaluator != nil {
		if _, err := s.evaluator.Evaluate(ctx, sessionID); err != nil {
			slog.Warn("feedback generation failed", "component", "service", "session", sessionID, "error", err)
		}
	}
	if len(s.archivers) == 0 {
		return
	}

	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		slog.Warn("reload ended session failed", "component", "service", "session", sessionID, "error", err)
		return
	}
	messages, err := s.store.GetMessages(sessionID)
	if err != nil {
		slog.Warn("reload ended session messages failed", "component", "service", "session", sessionID, "error", err)
		return
	}
	for _, a := range s.archivers {
		if err := a.Archive(ctx, sess, messages); err != nil {
			slog.Warn("archive transcript failed", "component", "service", "session", sessionID, "error", err)
		}
	}
}

func buildResults(sess storage.Session, messages []storage.Message) Results {
	res := Results{
		SessionID:      sess.ID,
		Role:           sess.Role,
		StartedAt:      sess.StartedAt,
		CandidateWords: feedback.CandidateWords(messages),
		FeedbackStatus: sess.FeedbackStatus,
	}
	if sess.EndedAt != nil {
		res.EndedAt = *sess.EndedAt
		res.DurationSeconds = sess.EndedAt.Sub(sess.StartedAt).Seconds()
	}
	for _, m := range messages {
		switch m.Speaker {
		case storage.SpeakerCandidate:
			res.CandidateTurns++
		case storage.SpeakerInterviewer:
			res.InterviewerTurns++
		}
	}
	return res
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
