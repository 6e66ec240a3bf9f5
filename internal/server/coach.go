package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sjawhar/interview-coach/internal/interview"
)

type Coach interface {
	ToggleMic(ctx context.Context) error
	End(ctx context.Context) error
	Snapshot(ctx context.Context) (interview.Snapshot, error)
	Conversation(ctx context.Context) ([]interview.Message, error)
}

func registerCoachRoutes(mux *http.ServeMux, coach Coach, warnings []string) {
	if warnings == nil {
		warnings = []string{}
	}

	mux.HandleFunc("POST /api/mic", func(w http.ResponseWriter, r *http.Request) {
		if err := coach.ToggleMic(r.Context()); err != nil {
			writeJSONError(w, coachStatus(err), err.Error())
			return
		}
		snap, err := coach.Snapshot(r.Context())
		if err != nil {
			writeJSONError(w, coachStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"state": snap.State, "mic_on": snap.MicOn})
	})

	mux.HandleFunc("POST /api/end", func(w http.ResponseWriter, r *http.Request) {
		if err := coach.End(r.Context()); err != nil {
			writeJSONError(w, coachStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ending"})
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		snap, err := coach.Snapshot(r.Context())
		if err != nil {
			writeJSONError(w, coachStatus(err), fmt.Sprintf("status: %v", err))
			return
		}
		messages := snap.Messages
		if messages == nil {
			messages = []interview.Message{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"state":       snap.State,
			"session_id":  snap.SessionID,
			"mic_on":      snap.MicOn,
			"live_text":   snap.LiveText,
			"stable_text": snap.StableText,
			"messages":    messages,
			"directives":  snap.Directives,
			"last_error":  snap.LastError,
			"results":     snap.Results,
			"warnings":    warnings,
		})
	})

	mux.HandleFunc("GET /api/conversation", func(w http.ResponseWriter, r *http.Request) {
		messages, err := coach.Conversation(r.Context())
		if err != nil {
			writeJSON(w, coachStatus(err), map[string]any{"success": false, "error": err.Error()})
			return
		}
		if messages == nil {
			messages = []interview.Message{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "conversation": messages})
	})
}

func coachStatus(err error) int {
	switch {
	case errors.Is(err, interview.ErrTurnActive), errors.Is(err, interview.ErrEnded):
		return http.StatusConflict
	case errors.Is(err, interview.ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
