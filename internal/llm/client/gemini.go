package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli *genai.Client
}

// NewGeminiClient creates a Gemini API client bound to one API key.
func NewGeminiClient(ctx context.Context, apiKey string, httpClient *http.Client) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrInvalidRequest)
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: init client: %w", err)
	}
	return &GeminiClient{cli: cli}, nil
}

// GeminiFactory returns a Factory producing Gemini clients.
func GeminiFactory(httpClient *http.Client) Factory {
	return func(ctx context.Context, apiKey string) (ChatClient, error) {
		return NewGeminiClient(ctx, apiKey, httpClient)
	}
}

func (g *GeminiClient) Name() string { return "gemini" }
func (g *GeminiClient) Close() error { return nil }

// Complete maps the chat turns onto a single GenerateContent call. System turns
// become the system instruction; assistant turns are sent with the model role.
func (g *GeminiClient) Complete(ctx context.Context, in Request) (Response, error) {
	if err := in.Validate(); err != nil {
		return Response{}, err
	}
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(in.MaxTokens)}
	if in.Temperature != nil {
		t := float32(*in.Temperature)
		cfg.Temperature = &t
	}

	var system []string
	contents := make([]*genai.Content, 0, len(in.Messages))
	for _, m := range in.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}
	if len(contents) == 0 {
		return Response{}, fmt.Errorf("%w: at least one non-system message is required", ErrInvalidRequest)
	}

	resp, err := g.cli.Models.GenerateContent(ctx, in.Model, contents, cfg)
	if err != nil {
		return Response{}, &UpstreamError{Provider: g.Name(), Message: transportMessage(err), Err: err}
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Response{}, &UpstreamError{Provider: g.Name(), Message: ErrEmptyResponse.Error(), Err: ErrEmptyResponse}
	}
	var text, thought strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.Thought {
			thought.WriteString(p.Text)
			continue
		}
		text.WriteString(p.Text)
	}
	if text.Len() == 0 {
		return Response{}, &UpstreamError{Provider: g.Name(), Message: ErrEmptyResponse.Error(), Err: ErrEmptyResponse}
	}
	return Response{Content: text.String(), Reasoning: thought.String()}, nil
}
