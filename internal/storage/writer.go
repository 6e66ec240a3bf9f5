package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Writer archives finished interview transcripts as markdown files under
// <dir>/<date>/<session id>.md.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Write(sess Session, messages []Message) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dayDir := filepath.Join(w.dir, sess.StartedAt.UTC().Format("2006-01-02"))
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dayDir, err)
	}

	path := filepath.Join(dayDir, sess.ID+".md")
	if err := os.WriteFile(path, []byte(FormatTranscript(sess, messages)), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	return path, nil
}

// Archive writes the transcript, ignoring the path.
func (w *Writer) Archive(_ context.Context, sess Session, messages []Message) error {
	_, err := w.Write(sess, messages)
	return err
}

// FormatTranscript renders a session and its messages as markdown.
func FormatTranscript(sess Session, messages []Message) string {
	var b strings.Builder

	title := sess.Role
	if strings.TrimSpace(title) == "" {
		title = "Mock interview"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- Session: %s\n", sess.ID)
	fmt.Fprintf(&b, "- Started: %s\n", sess.StartedAt.UTC().Format(time.RFC3339))
	if sess.EndedAt != nil {
		fmt.Fprintf(&b, "- Ended: %s\n", sess.EndedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n## Transcript\n\n")

	for _, m := range messages {
		fmt.Fprintf(&b, "**%s** (%s): %s\n\n", speakerLabel(m.Speaker), m.Timestamp.UTC().Format("15:04:05"), m.Text)
	}

	if strings.TrimSpace(sess.Feedback) != "" {
		b.WriteString("## Feedback\n\n")
		b.WriteString(strings.TrimSpace(sess.Feedback))
		b.WriteString("\n")
	}

	return b.String()
}

func speakerLabel(speaker string) string {
	switch speaker {
	case SpeakerCandidate:
		return "Candidate"
	case SpeakerInterviewer:
		return "Interviewer"
	default:
		return speaker
	}
}
