package middleware

import (
	"context"
	"log"
	"time"

	llmclient "council/internal/llm/client"
)

// WithLogging logs request size, latency and errors. Provide a custom logger or nil
// to use log.Default().
func WithLogging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next llmclient.ChatClient) llmclient.ChatClient {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next llmclient.ChatClient
	log  *log.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }

func (l *logging) Complete(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	stage := StageFrom(ctx)
	l.log.Printf("LLM request (%s): model=%s ~%d tokens max_tokens=%d", stage, req.Model, llmclient.RequestTokens(req), req.MaxTokens)
	start := time.Now()
	resp, err := l.next.Complete(ctx, req)
	if err != nil {
		l.log.Printf("LLM error (%s): %v", stage, err)
		return resp, err
	}
	l.log.Printf("LLM response (%s): %d bytes in %s", stage, len(resp.Content), time.Since(start).Round(time.Millisecond))
	return resp, nil
}
