// Package interviewer generates the interviewer's side of a mock interview:
// it prompts an LLM with the session history, stores the exchange and
// synthesizes the spoken reply.
package interviewer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sjawhar/interview-coach/internal/directive"
	"github.com/sjawhar/interview-coach/internal/llm"
	"github.com/sjawhar/interview-coach/internal/metrics"
	"github.com/sjawhar/interview-coach/internal/speech"
	"github.com/sjawhar/interview-coach/internal/storage"
)

type Store interface {
	EnsureSession(id, role string, startedAt time.Time) error
	GetMessages(sessionID string) ([]storage.Message, error)
	AppendExchange(sessionID string, candidate, interviewer storage.Message) error
}

// Reply is one generated interviewer turn. Text keeps any control markers;
// Audio is the speech for the marker-free text and may be empty.
type Reply struct {
	Text       string
	Audio      []byte
	Directives directive.Directives
}

type Option func(*Service)

// WithPersona replaces DefaultPersona. {{role}} is substituted.
func WithPersona(template string) Option {
	return func(s *Service) {
		if strings.TrimSpace(template) != "" {
			s.persona = template
		}
	}
}

func WithDefaultRole(role string) Option {
	return func(s *Service) {
		if strings.TrimSpace(role) != "" {
			s.defaultRole = role
		}
	}
}

type Service struct {
	client      llm.Client
	synth       speech.Synthesizer
	store       Store
	persona     string
	defaultRole string
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(client llm.Client, synth speech.Synthesizer, store Store, opts ...Option) *Service {
	s := &Service{
		client:      client,
		synth:       synth,
		store:       store,
		persona:     DefaultPersona,
		defaultRole: defaultRole,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reply answers the candidate's text within the session's conversation.
// Requests for the same session are serialized so history stays ordered.
func (s *Service) Reply(ctx context.Context, sessionID, role, text string) (reply Reply, err error) {
	started := s.now()
	defer func() { metrics.RecordReasoning(err == nil, started) }()

	sessionID = strings.TrimSpace(sessionID)
	text = strings.TrimSpace(text)
	if sessionID == "" {
		return Reply{}, ErrNoSession
	}
	if text == "" {
		return Reply{}, ErrEmptyText
	}
	if strings.TrimSpace(role) == "" {
		role = s.defaultRole
	}

	unlock := s.lockSession(sessionID)
	defer unlock()

	if err := s.store.EnsureSession(sessionID, role, started); err != nil {
		return Reply{}, fmt.Errorf("ensure session: %w", err)
	}
	history, err := s.store.GetMessages(sessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("load history: %w", err)
	}

	raw, err := s.client.Complete(ctx, s.prompt(role, history, text))
	if err != nil {
		return Reply{}, fmt.Errorf("generate reply: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reply{}, ErrEmptyReply
	}

	spoken, dirs := directive.Extract(raw)

	var audio []byte
	if spoken != "" && s.synth != nil {
		audio, err = s.synth.Synthesize(ctx, spoken)
		if err != nil {
			return Reply{}, fmt.Errorf("synthesize reply: %w", err)
		}
	}

	candidate := storage.Message{Speaker: storage.SpeakerCandidate, Text: text, Timestamp: started}
	interviewer := storage.Message{Speaker: storage.SpeakerInterviewer, Text: spoken, Timestamp: s.now()}
	if err := s.store.AppendExchange(sessionID, candidate, interviewer); err != nil {
		return Reply{}, fmt.Errorf("store exchange: %w", err)
	}

	if dirs.Any() {
		slog.Info("interviewer directives", "component", "interviewer", "session", sessionID,
			"end_interview", dirs.EndInterview, "coding_task", dirs.CodingTask)
	}

	return Reply{Text: raw, Audio: audio, Directives: dirs}, nil
}

func (s *Service) prompt(role string, history []storage.Message, text string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: renderPersona(s.persona, role)})
	for _, m := range history {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		r := llm.RoleUser
		if m.Speaker == storage.SpeakerInterviewer {
			r = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: r, Content: m.Text})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: text})
}

func (s *Service) lockSession(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
