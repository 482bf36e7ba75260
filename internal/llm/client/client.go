package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Message roles accepted by chat-completion providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatClient performs exactly one chat completion per Complete call.
// Implementations must not retry internally.
type ChatClient interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
	Close() error
}

// Factory builds a provider client bound to one caller's credential.
type Factory func(ctx context.Context, apiKey string) (ChatClient, error)

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the unit of work sent to a provider.
type Request struct {
	// Provider selects the backend when the request goes through a Dispatch.
	// Empty means the dispatch default.
	Provider        string            `json:"-"`
	Model           string            `json:"model"`
	Messages        []Message         `json:"messages"`
	MaxTokens       int               `json:"max_tokens"`
	Temperature     *float64          `json:"temperature,omitempty"`
	ReasoningEffort string            `json:"reasoning_effort,omitempty"`
	ToolChoice      json.RawMessage   `json:"tool_choice,omitempty"`
	Tools           []json.RawMessage `json:"tools,omitempty"`
}

// Response is the normalized provider answer.
type Response struct {
	Content   string
	Reasoning string
}

// UserPrompt is a convenience for the common single-user-turn request.
func UserPrompt(text string) []Message {
	return []Message{{Role: RoleUser, Content: text}}
}

// Validate enforces the input constraints shared by every provider.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrInvalidRequest)
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive (got %d)", ErrInvalidRequest, r.MaxTokens)
	}
	return nil
}

// Float returns a pointer to v, for optional generation parameters.
func Float(v float64) *float64 { return &v }
