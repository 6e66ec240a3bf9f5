package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io/v1"
	elevenLabsDefaultModel = "eleven_flash_v2_5"
)

type ElevenLabs struct {
	apiKey  string
	voiceID string
	model   string
	baseURL string
	client  *http.Client
}

func NewElevenLabs(apiKey, voiceID, model string) (*ElevenLabs, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}
	if strings.TrimSpace(voiceID) == "" {
		return nil, fmt.Errorf("speech: elevenlabs voice id required")
	}
	if strings.TrimSpace(model) == "" {
		model = elevenLabsDefaultModel
	}
	return &ElevenLabs{
		apiKey:  apiKey,
		voiceID: voiceID,
		model:   model,
		baseURL: elevenLabsBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": e.model,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal elevenlabs payload: %w", err)
	}

	endpoint := e.baseURL + "/text-to-speech/" + url.PathEscape(e.voiceID) + "?output_format=mp3_44100_128"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create elevenlabs request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Provider: "elevenlabs", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	clip, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read elevenlabs audio: %w", err)
	}
	if len(clip) == 0 {
		return nil, fmt.Errorf("elevenlabs: empty audio")
	}
	return clip, nil
}
