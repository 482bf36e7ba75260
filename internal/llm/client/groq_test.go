package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGroqServer(t *testing.T, h http.HandlerFunc) *GroqClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewGroqClient("gsk_test", WithBaseURL(srv.URL))
}

func TestGroqComplete_SendsWireFormat(t *testing.T) {
	var got map[string]any
	var auth, path string
	cli := newGroqServer(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello","reasoning":"because"}}]}`))
	})

	resp, err := cli.Complete(context.Background(), Request{
		Model:           "openai/gpt-oss-120b",
		Messages:        UserPrompt("hi"),
		MaxTokens:       4096,
		Temperature:     Float(0.5),
		ReasoningEffort: "medium",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "because", resp.Reasoning)
	assert.Equal(t, "Bearer gsk_test", auth)
	assert.Equal(t, "/chat/completions", path)
	assert.Equal(t, "openai/gpt-oss-120b", got["model"])
	assert.Equal(t, float64(4096), got["max_tokens"])
	assert.Equal(t, 0.5, got["temperature"])
	assert.Equal(t, "medium", got["reasoning_effort"])
	assert.NotContains(t, got, "tools")
	assert.NotContains(t, got, "tool_choice")
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]any{"role": "user", "content": "hi"}, msgs[0])
}

func TestGroqComplete_OmitsOptionalParams(t *testing.T) {
	var got map[string]any
	cli := newGroqServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})
	_, err := cli.Complete(context.Background(), Request{Model: "m", Messages: UserPrompt("x"), MaxTokens: 1})
	require.NoError(t, err)
	assert.NotContains(t, got, "temperature")
	assert.NotContains(t, got, "reasoning_effort")
}

func TestGroqComplete_Non2xxCarriesStatusAndMessage(t *testing.T) {
	cli := newGroqServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("retry-after", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached for model","type":"tokens"}}`))
	})

	_, err := cli.Complete(context.Background(), Request{Model: "m", Messages: UserPrompt("x"), MaxTokens: 1})
	require.Error(t, err)
	var uErr *UpstreamError
	require.True(t, errors.As(err, &uErr))
	assert.Equal(t, http.StatusTooManyRequests, uErr.Status)
	assert.Equal(t, "Rate limit reached for model", uErr.Message)
	assert.Equal(t, 7*time.Second, uErr.RetryAfter)
	assert.Contains(t, err.Error(), "429")
	assert.True(t, IsRetryable(err))

	h, ok := cli.LastRateLimitHeaders()
	require.True(t, ok)
	assert.Equal(t, 7, h.RetryAfterSeconds)
}

func TestGroqComplete_NonJSONErrorBody(t *testing.T) {
	cli := newGroqServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	})
	_, err := cli.Complete(context.Background(), Request{Model: "m", Messages: UserPrompt("x"), MaxTokens: 1})
	require.Error(t, err)
	assert.Equal(t, "groq API error (502): upstream exploded", err.Error())
}

func TestGroqComplete_ContextLengthIsPermanent(t *testing.T) {
	cli := newGroqServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"too long","code":"context_length_exceeded"}}`))
	})
	_, err := cli.Complete(context.Background(), Request{Model: "m", Messages: UserPrompt("x"), MaxTokens: 1})
	var pErr *PermanentError
	require.True(t, errors.As(err, &pErr))
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "400")
}

func TestGroqComplete_MalformedAndEmptyBodies(t *testing.T) {
	cases := map[string]string{
		"malformed":     `{"choices":`,
		"no choices":    `{"choices":[]}`,
		"empty content": `{"choices":[{"message":{"content":""}}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cli := newGroqServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := cli.Complete(context.Background(), Request{Model: "m", Messages: UserPrompt("x"), MaxTokens: 1})
			var uErr *UpstreamError
			require.True(t, errors.As(err, &uErr))
			assert.Equal(t, 0, uErr.Status)
		})
	}
}

func TestGroqComplete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	cli := NewGroqClient("k", WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond))

	_, err := cli.Complete(context.Background(), Request{Model: "m", Messages: UserPrompt("x"), MaxTokens: 1})
	var uErr *UpstreamError
	require.True(t, errors.As(err, &uErr))
	assert.True(t, uErr.Retryable())
}

func TestGroqComplete_ValidatesBeforeCalling(t *testing.T) {
	called := false
	cli := newGroqServer(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	cases := []Request{
		{Messages: UserPrompt("x"), MaxTokens: 1},
		{Model: "m", MaxTokens: 1},
		{Model: "m", Messages: UserPrompt("x")},
	}
	for _, req := range cases {
		_, err := cli.Complete(context.Background(), req)
		require.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.False(t, called)
}

func TestGroqFactory_RequiresKey(t *testing.T) {
	_, err := GroqFactory()(context.Background(), "  ")
	require.ErrorIs(t, err, ErrInvalidRequest)

	cli, err := GroqFactory(WithBaseURL("http://example.invalid/v1/"))(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(cli.(*GroqClient).baseURL, "/v1"))
}

func TestGroqCreateCompletion_ForcesNonStreaming(t *testing.T) {
	var got map[string]any
	cli := newGroqServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"cmpl-1","choices":[{"message":{"content":"ok"}}]}`))
	})

	raw, err := cli.CreateCompletion(context.Background(), json.RawMessage(`{"model":"m","stream":true,"messages":[{"role":"user","content":"x"}]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"cmpl-1","choices":[{"message":{"content":"ok"}}]}`, string(raw))
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, "m", got["model"])
}

func TestGroqCreateCompletion_Errors(t *testing.T) {
	cli := newGroqServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API Key"}}`))
	})

	_, err := cli.CreateCompletion(context.Background(), json.RawMessage(`[1,2]`))
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = cli.CreateCompletion(context.Background(), json.RawMessage(`{"model":"m"}`))
	var uErr *UpstreamError
	require.ErrorAs(t, err, &uErr)
	assert.Equal(t, http.StatusUnauthorized, uErr.Status)
	assert.Equal(t, "Invalid API Key", uErr.Message)
}
