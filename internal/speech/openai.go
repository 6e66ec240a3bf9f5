package speech

import (
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAI struct {
	client *openai.Client
	model  string
	voice  string
}

// NewOpenAI builds a synthesizer for the OpenAI speech endpoint. baseURL may
// be empty to use the public API.
func NewOpenAI(apiKey, baseURL, model, voice string) (*OpenAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if strings.TrimSpace(model) == "" {
		model = string(openai.TTSModel1)
	}
	if strings.TrimSpace(voice) == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAI{client: openai.NewClientWithConfig(config), model: model, voice: voice}, nil
}

func (o *OpenAI) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          text,
		Voice:          openai.SpeechVoice(o.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	clip, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read openai speech: %w", err)
	}
	if len(clip) == 0 {
		return nil, fmt.Errorf("openai speech: empty audio")
	}
	return clip, nil
}
