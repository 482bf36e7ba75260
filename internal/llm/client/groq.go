package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultTimeout     = 60 * time.Second

	maxErrorBody = 2048
)

// GroqClient calls the Groq Chat Completions API (OpenAI-compatible).
// See: https://console.groq.com/docs/api-reference
type GroqClient struct {
	http    *http.Client
	apiKey  string
	baseURL string

	rlMu      sync.RWMutex
	rlLast    RateLimitHeaders
	rlHasLast bool
}

// GroqOption customizes a GroqClient.
type GroqOption func(*GroqClient)

// WithBaseURL points the client at another OpenAI-compatible endpoint.
func WithBaseURL(u string) GroqOption {
	return func(g *GroqClient) {
		if u = strings.TrimSpace(u); u != "" {
			g.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the transport. The client's Timeout bounds each call.
func WithHTTPClient(c *http.Client) GroqOption {
	return func(g *GroqClient) {
		if c != nil {
			g.http = c
		}
	}
}

// WithTimeout sets the overall per-request timeout.
func WithTimeout(d time.Duration) GroqOption {
	return func(g *GroqClient) {
		if d > 0 {
			g.http = &http.Client{Timeout: d, Transport: g.http.Transport}
		}
	}
}

// NewGroqClient creates a Groq client bound to one API key.
func NewGroqClient(apiKey string, opts ...GroqOption) *GroqClient {
	g := &GroqClient{
		http:    &http.Client{Timeout: DefaultTimeout},
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: DefaultGroqBaseURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GroqFactory returns a Factory producing Groq clients with shared options.
func GroqFactory(opts ...GroqOption) Factory {
	return func(_ context.Context, apiKey string) (ChatClient, error) {
		if strings.TrimSpace(apiKey) == "" {
			return nil, fmt.Errorf("%w: api key is required", ErrInvalidRequest)
		}
		return NewGroqClient(apiKey, opts...), nil
	}
}

func (g *GroqClient) Name() string { return "groq" }
func (g *GroqClient) Close() error { return nil }

// LastRateLimitHeaders returns the most recent rate-limit signals seen.
func (g *GroqClient) LastRateLimitHeaders() (RateLimitHeaders, bool) {
	g.rlMu.RLock()
	defer g.rlMu.RUnlock()
	return g.rlLast, g.rlHasLast
}

type groqChatResp struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"message"`
	} `json:"choices"`
}

type groqErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete issues a single chat-completion request.
func (g *GroqClient) Complete(ctx context.Context, in Request) (Response, error) {
	if err := in.Validate(); err != nil {
		return Response{}, err
	}
	body, err := json.Marshal(in)
	if err != nil {
		return Response{}, fmt.Errorf("groq: encode request: %w", err)
	}
	raw, err := g.post(ctx, body)
	if err != nil {
		return Response{}, err
	}
	var out groqChatResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return Response{}, &UpstreamError{Provider: g.Name(), Message: "malformed response body: " + err.Error(), Err: err}
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return Response{}, &UpstreamError{Provider: g.Name(), Message: ErrEmptyResponse.Error(), Err: ErrEmptyResponse}
	}
	msg := out.Choices[0].Message
	return Response{Content: msg.Content, Reasoning: msg.Reasoning}, nil
}

// CreateCompletion forwards a caller-built chat-completion payload unchanged
// except for forcing stream=false, and returns the provider's JSON verbatim.
func (g *GroqClient) CreateCompletion(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidRequest)
	}
	fields["stream"] = false
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("groq: encode request: %w", err)
	}
	raw, err := g.post(ctx, body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, &UpstreamError{Provider: g.Name(), Message: "malformed response body"}
	}
	return raw, nil
}

// post sends body to the chat-completions endpoint and returns the 2xx body.
func (g *GroqClient) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("groq: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{Provider: g.Name(), Message: transportMessage(err), Err: err}
	}
	defer resp.Body.Close()
	limits := g.captureRateLimitHeaders(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		uErr := &UpstreamError{
			Provider:   g.Name(),
			Status:     resp.StatusCode,
			Message:    upstreamMessage(resp.StatusCode, raw),
			RetryAfter: limits.NextWait(),
		}
		if resp.StatusCode == http.StatusBadRequest && bytes.Contains(raw, []byte(`"code":"context_length_exceeded"`)) {
			return nil, NewPermanentError(uErr)
		}
		return nil, uErr
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Provider: g.Name(), Message: transportMessage(err), Err: err}
	}
	return raw, nil
}

func (g *GroqClient) captureRateLimitHeaders(h http.Header) RateLimitHeaders {
	parsed, ok := parseGroqRateLimitHeaders(h)
	if !ok {
		return RateLimitHeaders{}
	}
	g.rlMu.Lock()
	g.rlLast = parsed
	g.rlHasLast = true
	g.rlMu.Unlock()
	return parsed
}

func upstreamMessage(status int, raw []byte) string {
	var e groqErrorResp
	if err := json.Unmarshal(raw, &e); err == nil && strings.TrimSpace(e.Error.Message) != "" {
		return strings.TrimSpace(e.Error.Message)
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	if t := http.StatusText(status); t != "" {
		return t
	}
	return "Unknown error"
}

func transportMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return err.Error()
}
