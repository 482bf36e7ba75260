package middleware

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	llmclient "council/internal/llm/client"
)

// Limits describes per-model throughput caps. Zero disables a dimension.
type Limits struct {
	RPM int
	TPM int
}

func (l Limits) enabled() bool { return l.RPM > 0 || l.TPM > 0 }

// ModelLimit throttles calls per model id. The limiter set is created once per
// Middleware value and shared by every client it wraps, so one instance caps
// the whole process. overrides replaces defaults for specific model ids.
func ModelLimit(defaults Limits, overrides map[string]Limits) Middleware {
	set := &limiterSet{defaults: defaults, overrides: map[string]Limits{}, byModel: map[string]*modelLimiter{}}
	for model, l := range overrides {
		set.overrides[strings.TrimSpace(model)] = l
	}
	return func(next llmclient.ChatClient) llmclient.ChatClient {
		return &rateLimited{next: next, set: set}
	}
}

type modelLimiter struct {
	rpm *rate.Limiter
	tpm *rate.Limiter
}

type limiterSet struct {
	defaults  Limits
	overrides map[string]Limits

	mu      sync.Mutex
	byModel map[string]*modelLimiter
}

func (s *limiterSet) get(model string) *modelLimiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ml, ok := s.byModel[model]; ok {
		return ml
	}
	l, ok := s.overrides[model]
	if !ok {
		l = s.defaults
	}
	var ml *modelLimiter
	if l.enabled() {
		ml = &modelLimiter{}
		if l.RPM > 0 {
			ml.rpm = rate.NewLimiter(rate.Limit(float64(l.RPM)/60.0), l.RPM)
		}
		if l.TPM > 0 {
			ml.tpm = rate.NewLimiter(rate.Limit(float64(l.TPM)/60.0), l.TPM)
		}
	}
	s.byModel[model] = ml
	return ml
}

type rateLimited struct {
	next llmclient.ChatClient
	set  *limiterSet
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error { return c.next.Close() }

func (c *rateLimited) Complete(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	if ml := c.set.get(req.Model); ml != nil {
		if ml.rpm != nil {
			if err := ml.rpm.Wait(ctx); err != nil {
				return llmclient.Response{}, err
			}
		}
		if ml.tpm != nil {
			// Budget the prompt plus the requested completion; WaitN rejects n above burst.
			n := llmclient.RequestTokens(req) + req.MaxTokens
			if n > ml.tpm.Burst() {
				n = ml.tpm.Burst()
			}
			if n < 1 {
				n = 1
			}
			if err := ml.tpm.WaitN(ctx, n); err != nil {
				return llmclient.Response{}, err
			}
		}
	}
	return c.next.Complete(ctx, req)
}
