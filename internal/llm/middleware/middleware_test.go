package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmclient "council/internal/llm/client"
)

// scriptedClient replays errs in order and then succeeds.
type scriptedClient struct {
	mu    sync.Mutex
	errs  []error
	calls int
	times []time.Time
}

func (s *scriptedClient) Name() string { return "scripted" }
func (s *scriptedClient) Close() error { return nil }
func (s *scriptedClient) Complete(_ context.Context, req llmclient.Request) (llmclient.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.times = append(s.times, time.Now())
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return llmclient.Response{}, err
		}
	}
	return llmclient.Response{Content: "ok " + req.Model}, nil
}

func testRequest(model string) llmclient.Request {
	return llmclient.Request{Model: model, Messages: llmclient.UserPrompt("two words"), MaxTokens: 8}
}

func TestWrap_OrderAndNil(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next llmclient.ChatClient) llmclient.ChatClient {
			order = append(order, name)
			return next
		}
	}
	base := &scriptedClient{}
	cli := Wrap(base, tag("outer"), nil, tag("inner"))
	assert.Equal(t, []string{"inner", "outer"}, order)
	assert.Same(t, base, cli)
}

func TestStage_DefaultsToUnknown(t *testing.T) {
	assert.Equal(t, "unknown", StageFrom(context.Background()))
	assert.Equal(t, "compound-beta", StageFrom(WithStage(context.Background(), "compound-beta")))
}

func TestRetry_SingleAttemptIsPassthrough(t *testing.T) {
	base := &scriptedClient{}
	assert.Same(t, base, Wrap(base, Retry(1, time.Millisecond)))
}

func TestRetry_RetriesTransientThenSucceeds(t *testing.T) {
	base := &scriptedClient{errs: []error{
		&llmclient.UpstreamError{Provider: "groq", Status: 503, Message: "busy"},
		&llmclient.UpstreamError{Provider: "groq", Status: 429, Message: "slow down", RetryAfter: time.Millisecond},
	}}
	cli := Wrap(base, Retry(3, time.Millisecond))

	resp, err := cli.Complete(context.Background(), testRequest("m"))
	require.NoError(t, err)
	assert.Equal(t, "ok m", resp.Content)
	assert.Equal(t, 3, base.calls)
}

func TestRetry_StopsOnPermanentAndClientErrors(t *testing.T) {
	cases := map[string]error{
		"bad request": &llmclient.UpstreamError{Provider: "groq", Status: 400, Message: "nope"},
		"permanent":   llmclient.NewPermanentError(errors.New("context length")),
		"invalid":     llmclient.ErrInvalidRequest,
	}
	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			base := &scriptedClient{errs: []error{want}}
			cli := Wrap(base, Retry(4, time.Millisecond))
			_, err := cli.Complete(context.Background(), testRequest("m"))
			require.ErrorIs(t, err, want)
			assert.Equal(t, 1, base.calls)
		})
	}
}

func TestRetry_ReturnsLastErrorWhenExhausted(t *testing.T) {
	last := &llmclient.UpstreamError{Provider: "groq", Status: 502, Message: "second"}
	base := &scriptedClient{errs: []error{
		&llmclient.UpstreamError{Provider: "groq", Status: 502, Message: "first"},
		last,
	}}
	cli := Wrap(base, Retry(2, time.Millisecond))
	_, err := cli.Complete(context.Background(), testRequest("m"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second")
	assert.Equal(t, 2, base.calls)
}

func TestRetry_HonorsCancellationWhileWaiting(t *testing.T) {
	base := &scriptedClient{errs: []error{
		&llmclient.UpstreamError{Provider: "groq", Status: 429, Message: "wait", RetryAfter: 5 * time.Second},
	}}
	cli := Wrap(base, Retry(2, time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := cli.Complete(ctx, testRequest("m"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, base.calls)
}

func TestRetry_DelayCapsRetryAfter(t *testing.T) {
	r := &retrying{base: 100 * time.Millisecond, cap: time.Second}
	assert.Equal(t, 100*time.Millisecond, r.delay(0, errors.New("x")))
	assert.Equal(t, 400*time.Millisecond, r.delay(2, errors.New("x")))
	assert.Equal(t, time.Second, r.delay(5, errors.New("x")))
	hinted := &llmclient.UpstreamError{Status: 429, RetryAfter: 250 * time.Millisecond}
	assert.Equal(t, 250*time.Millisecond, r.delay(3, hinted))
	tooLong := &llmclient.UpstreamError{Status: 429, RetryAfter: time.Minute}
	assert.Equal(t, 200*time.Millisecond, r.delay(1, tooLong))
}

func TestModelLimit_SpacesCallsPerModel(t *testing.T) {
	// 60 rpm refills one call per second after a burst of 60.
	base := &scriptedClient{}
	cli := Wrap(base, ModelLimit(Limits{}, map[string]Limits{"slow": {RPM: 60}}))
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		_, err := cli.Complete(ctx, testRequest("slow"))
		require.NoError(t, err)
	}
	start := time.Now()
	_, err := cli.Complete(ctx, testRequest("slow"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 800*time.Millisecond)

	// Unlisted models fall back to the disabled default.
	start = time.Now()
	for i := 0; i < 100; i++ {
		_, err := cli.Complete(ctx, testRequest("fast"))
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestModelLimit_SharedAcrossWrappedClients(t *testing.T) {
	mw := ModelLimit(Limits{RPM: 1}, nil)
	a := Wrap(&scriptedClient{}, mw)
	b := Wrap(&scriptedClient{}, mw)

	_, err := a.Complete(context.Background(), testRequest("m"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = b.Complete(ctx, testRequest("m"))
	require.Error(t, err)
}

func TestModelLimit_TokenBudgetClampedToBurst(t *testing.T) {
	cli := Wrap(&scriptedClient{}, ModelLimit(Limits{TPM: 4}, nil))
	req := testRequest("m")
	req.MaxTokens = 4096
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := cli.Complete(ctx, req)
	require.NoError(t, err)
}

func TestWithLogging_RecordsStageAndErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	base := &scriptedClient{errs: []error{nil, errors.New("kaput")}}
	cli := Wrap(base, WithLogging(logger))
	ctx := WithStage(context.Background(), "researcher")

	_, err := cli.Complete(ctx, testRequest("m1"))
	require.NoError(t, err)
	_, err = cli.Complete(ctx, testRequest("m2"))
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "LLM request (researcher): model=m1")
	assert.Contains(t, out, "LLM response (researcher)")
	assert.Contains(t, out, "LLM error (researcher): kaput")
}

func TestUsageLedger_AggregatesPerModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage", "llm_usage.json")
	ledger := NewUsageLedger(path, nil)
	ledger.now = func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }

	base := &scriptedClient{errs: []error{nil, errors.New("fail")}}
	cli := Wrap(base, WithUsageLedger(ledger))
	_, err := cli.Complete(context.Background(), testRequest("alpha"))
	require.NoError(t, err)
	_, err = cli.Complete(context.Background(), testRequest("alpha"))
	require.Error(t, err)
	_, err = cli.Complete(context.Background(), testRequest("beta"))
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var f usageLedgerFile
	require.NoError(t, json.Unmarshal(raw, &f))

	day, ok := f.Days["2026-03-04"]
	require.True(t, ok)
	assert.EqualValues(t, 3, day.Requests)
	assert.EqualValues(t, 1, day.Errors)
	assert.EqualValues(t, 2, day.Models["alpha"].Requests)
	assert.EqualValues(t, 1, day.Models["alpha"].Errors)
	assert.EqualValues(t, 1, day.Models["beta"].Requests)
	assert.Positive(t, day.Tokens)
}

func TestUsageLedger_DisabledWithoutPath(t *testing.T) {
	base := &scriptedClient{}
	assert.Same(t, base, Wrap(base, WithUsageLedger(nil)))
	assert.Same(t, base, Wrap(base, WithUsageLedger(NewUsageLedger("", nil))))
}

func TestUsageLedger_LogsWriteFailures(t *testing.T) {
	// A regular file where the ledger's directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	var buf bytes.Buffer
	ledger := NewUsageLedger(filepath.Join(blocker, "llm_usage.json"), log.New(&buf, "", 0))
	cli := Wrap(&scriptedClient{}, WithUsageLedger(ledger))

	_, err := cli.Complete(context.Background(), testRequest("alpha"))
	require.NoError(t, err, "ledger failures never fail the request")
	assert.Contains(t, buf.String(), "usage ledger: create dir:")
}

func TestUsageLedger_ReplacesUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm_usage.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var buf bytes.Buffer
	ledger := NewUsageLedger(path, log.New(&buf, "", 0))
	_, err := Wrap(&scriptedClient{}, WithUsageLedger(ledger)).Complete(context.Background(), testRequest("alpha"))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "usage ledger: discarding unreadable")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var f usageLedgerFile
	require.NoError(t, json.Unmarshal(raw, &f))
	for _, day := range f.Days {
		assert.EqualValues(t, 1, day.Models["alpha"].Requests)
	}
	assert.Len(t, f.Days, 1)
}
