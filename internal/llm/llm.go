// Package llm is a provider-neutral chat completion client used for the
// interviewer persona and for end-of-interview feedback.
package llm

import (
	"context"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const defaultMaxTokens = 8192

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Keys holds one API key per provider; only the selected provider's key is used.
type Keys struct {
	OpenAI    string
	Anthropic string
	Gemini    string
}

func (k Keys) forProvider(provider string) string {
	switch provider {
	case "openai":
		return k.OpenAI
	case "anthropic":
		return k.Anthropic
	case "gemini":
		return k.Gemini
	default:
		return ""
	}
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL     string
	maxTokens   int
	temperature *float64
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithMaxTokens caps the reply length. Spoken replies want a small cap.
func WithMaxTokens(n int) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

func WithTemperature(t float64) Option {
	return func(o *clientOptions) {
		o.temperature = &t
	}
}

func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

// FromModel builds a client for a "provider/model" string using the matching key.
func FromModel(model string, keys Keys, opts ...Option) (Client, error) {
	provider, name, err := ParseModel(model)
	if err != nil {
		return nil, err
	}
	key := keys.forProvider(provider)
	if key == "" {
		return nil, fmt.Errorf("no API key configured for LLM provider %q", provider)
	}
	return NewClient(provider, key, name, opts...)
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return newOpenAIClient(apiKey, model, o)
	case "anthropic":
		return newAnthropicClient(apiKey, model, o)
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
}
