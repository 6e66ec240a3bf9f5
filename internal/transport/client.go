package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sjawhar/interview-coach/internal/directive"
	"github.com/sjawhar/interview-coach/internal/metrics"
)

const (
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 32 << 20
)

// Result is one successful interviewer reply.
type Result struct {
	Text       string
	Audio      []byte
	Directives directive.Directives
}

type turnRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Role      string `json:"role"`
}

type turnResponse struct {
	Success *bool   `json:"success"`
	Text    *string `json:"text"`
	Audio   string  `json:"audio"`
	Actions struct {
		EndInterview bool `json:"endInterview"`
		CodingTask   bool `json:"codingTask"`
	} `json:"actions"`
	Error string `json:"error"`
}

// Client talks to the reasoning service. Each call gets its own deadline.
type Client struct {
	baseURL string
	role    string
	timeout time.Duration
	http    *http.Client
	backoff []time.Duration
	wait    func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewClient(baseURL, role string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		role:    role,
		timeout: DefaultTimeout,
		http:    &http.Client{},
		backoff: []time.Duration{250 * time.Millisecond, 750 * time.Millisecond},
		wait:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendTurn posts the candidate's utterance and returns the interviewer's
// reply with control markers stripped and reported as directives.
func (c *Client) SendTurn(ctx context.Context, sessionID, text string) (Result, error) {
	body, err := json.Marshal(turnRequest{SessionID: sessionID, Text: text, Role: c.role})
	if err != nil {
		return Result{}, fmt.Errorf("encode turn request: %w", err)
	}

	var resp turnResponse
	status, err := c.do(ctx, http.MethodPost, "/generate-voice", body, &resp)
	if err != nil {
		return Result{}, err
	}
	if resp.Success == nil || !*resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "service reported failure"
		}
		return Result{}, c.fail(&Error{Kind: KindMalformed, StatusCode: status, Err: errors.New(msg)})
	}
	if resp.Text == nil {
		return Result{}, c.fail(&Error{Kind: KindMalformed, Err: errors.New("response missing text")})
	}

	var audio []byte
	if resp.Audio != "" {
		audio, err = base64.StdEncoding.DecodeString(resp.Audio)
		if err != nil {
			return Result{}, c.fail(&Error{Kind: KindMalformed, Err: fmt.Errorf("decode audio: %w", err)})
		}
	}

	clean, found := directive.Extract(*resp.Text)
	return Result{
		Text:  clean,
		Audio: audio,
		Directives: found.Merge(directive.Directives{
			EndInterview: resp.Actions.EndInterview,
			CodingTask:   resp.Actions.CodingTask,
		}),
	}, nil
}

// EndInterview asks the service to close the session and returns its results
// payload untouched.
func (c *Client) EndInterview(ctx context.Context, sessionID string) (json.RawMessage, error) {
	var results json.RawMessage
	if _, err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/end", nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// ConversationEntry mirrors one row of the service's stored conversation.
type ConversationEntry struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation fetches the service's copy of the session history.
func (c *Client) Conversation(ctx context.Context, sessionID string) ([]ConversationEntry, error) {
	var resp struct {
		Success      bool                `json:"success"`
		Conversation []ConversationEntry `json:"conversation"`
		Error        string              `json:"error"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/get-conversation/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, c.fail(&Error{Kind: KindMalformed, Err: errors.New(resp.Error)})
	}
	return resp.Conversation, nil
}

// do runs one request under a fresh deadline. Only failures to connect are
// retried; anything that may have reached the service is not re-sent.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, reqErr := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
		if reqErr != nil {
			return 0, fmt.Errorf("build request: %w", reqErr)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err = c.http.Do(req)
		if err == nil {
			break
		}
		if !isDialError(err) || attempt >= len(c.backoff) || reqCtx.Err() != nil {
			return 0, c.fail(c.classify(ctx, reqCtx, err))
		}
		if waitErr := c.wait(reqCtx, c.backoff[attempt]); waitErr != nil {
			return 0, c.fail(c.classify(ctx, reqCtx, err))
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, c.fail(c.classify(ctx, reqCtx, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		var cause error
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			cause = errors.New(payload.Error)
		}
		return resp.StatusCode, c.fail(&Error{Kind: KindHTTP, StatusCode: resp.StatusCode, Err: cause})
	}

	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, c.fail(&Error{Kind: KindMalformed, Err: fmt.Errorf("decode response: %w", err)})
	}
	return resp.StatusCode, nil
}

func (c *Client) classify(parent, reqCtx context.Context, err error) *Error {
	if parent.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: fmt.Errorf("no response within %s", c.timeout)}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

func (c *Client) fail(err *Error) error {
	metrics.RecordTransportError(string(err.Kind))
	return err
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
