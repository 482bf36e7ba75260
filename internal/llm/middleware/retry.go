package middleware

import (
	"context"
	"errors"
	"time"

	llmclient "council/internal/llm/client"
)

const defaultMaxDelay = 10 * time.Second

// Retry retries Complete up to maxAttempts with exponential backoff starting
// at baseDelay. Only retryable failures (429, 5xx, transport) are retried; a
// provider Retry-After hint replaces the backoff when it is not above the cap.
// maxAttempts <= 1 disables retrying.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next llmclient.ChatClient) llmclient.ChatClient {
		if maxAttempts == 1 {
			return next
		}
		return &retrying{next: next, max: maxAttempts, base: baseDelay, cap: defaultMaxDelay}
	}
}

type retrying struct {
	next llmclient.ChatClient
	max  int
	base time.Duration
	cap  time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) Complete(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.next.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		last = err
		if !llmclient.IsRetryable(err) || i == r.max-1 {
			break
		}
		if err := sleepCtx(ctx, r.delay(i, err)); err != nil {
			return llmclient.Response{}, err
		}
	}
	return llmclient.Response{}, last
}

func (r *retrying) delay(attempt int, err error) time.Duration {
	d := r.base * time.Duration(1<<attempt)
	var uErr *llmclient.UpstreamError
	if errors.As(err, &uErr) && uErr.RetryAfter > 0 && uErr.RetryAfter <= r.cap {
		d = uErr.RetryAfter
	}
	if d > r.cap {
		d = r.cap
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
