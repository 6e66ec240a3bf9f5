// Package gdrive exports finished interview transcripts to Google Drive.
package gdrive

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sjawhar/interview-coach/internal/storage"
)

const docMimeType = "application/vnd.google-apps.document"

// Exporter uploads each transcript as a Google Doc. Re-exporting a session
// updates its existing document.
type Exporter struct {
	service  *drive.Service
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewExporter(ctx context.Context, credPath, folderID string) (*Exporter, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	return newExporter(ctx, folderID, option.WithCredentials(config))
}

func newExporter(ctx context.Context, folderID string, opts ...option.ClientOption) (*Exporter, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Exporter{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

func (e *Exporter) Archive(ctx context.Context, sess storage.Session, messages []storage.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	body := strings.NewReader(storage.FormatTranscript(sess, messages))
	media := googleapi.ContentType("text/markdown")

	if fileID, ok := e.fileIDs[sess.ID]; ok {
		if _, err := e.service.Files.Update(fileID, &drive.File{}).Media(body, media).Context(ctx).Do(); err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	doc, err := e.service.Files.Create(&drive.File{
		Name:     docName(sess),
		MimeType: docMimeType,
		Parents:  []string{e.folderID},
	}).Media(body, media).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	e.fileIDs[sess.ID] = doc.Id
	return nil
}

func docName(sess storage.Session) string {
	role := strings.TrimSpace(sess.Role)
	if role == "" {
		role = "interview"
	}
	return fmt.Sprintf("mock-interview-%s-%s-%s", sess.StartedAt.UTC().Format("2006-01-02"), role, sess.ID)
}
