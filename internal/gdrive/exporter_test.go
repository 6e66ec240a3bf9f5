package gdrive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/sjawhar/interview-coach/internal/storage"
)

type driveStub struct {
	mu      sync.Mutex
	methods []string
	bodies  []string
}

func (d *driveStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	d.mu.Lock()
	d.methods = append(d.methods, r.Method)
	d.bodies = append(d.bodies, string(body))
	d.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"id":"doc-1","name":"transcript"}`)
}

func TestArchiveCreatesThenUpdates(t *testing.T) {
	stub := &driveStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	exp, err := newExporter(context.Background(), "folder-1", option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("newExporter failed: %v", err)
	}

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sess := storage.Session{ID: "s1", Role: "backend engineer", StartedAt: started}
	msgs := []storage.Message{{Speaker: storage.SpeakerCandidate, Text: "I built a queue in Go.", Timestamp: started}}

	if err := exp.Archive(context.Background(), sess, msgs); err != nil {
		t.Fatalf("first Archive failed: %v", err)
	}
	sess.Feedback = "Clear answers."
	if err := exp.Archive(context.Background(), sess, msgs); err != nil {
		t.Fatalf("second Archive failed: %v", err)
	}

	if len(stub.methods) != 2 || stub.methods[0] != http.MethodPost || stub.methods[1] != http.MethodPatch {
		t.Fatalf("expected create then update, got %v", stub.methods)
	}
	if !strings.Contains(stub.bodies[0], "folder-1") || !strings.Contains(stub.bodies[0], "I built a queue in Go.") {
		t.Fatalf("create request missing metadata or transcript: %s", stub.bodies[0])
	}
	if !strings.Contains(stub.bodies[1], "Clear answers.") {
		t.Fatalf("update request missing feedback: %s", stub.bodies[1])
	}
}

func TestDocName(t *testing.T) {
	sess := storage.Session{ID: "s1", StartedAt: time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)}
	if got := docName(sess); got != "mock-interview-2026-03-01-interview-s1" {
		t.Fatalf("unexpected doc name %q", got)
	}
}
