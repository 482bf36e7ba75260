package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council/internal/council"
	"council/internal/gateway/config"
	"council/internal/gateway/natsbus"
)

func fakeGroq(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		content := "notes from " + req.Model
		if req.Model == "openai/gpt-oss-120b" {
			content = council.VerdictHeading + "\n**No.**\n\n" + council.ReasoningHeading + "\nThe Researcher, The Analyst, and The Philosopher agree."
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]string{"content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, groqURL string) *config.Config {
	return &config.Config{
		Port: ":0",
		Env:  "test",
		Council: config.CouncilConfig{
			Pacer:            "fixed",
			StageMaxAttempts: 1,
		},
		LLM: config.LLMConfig{
			GroqBaseURL:    groqURL,
			RequestTimeout: 5 * time.Second,
		},
		Report: config.ReportConfig{
			Store:      "sqlite",
			SQLitePath: t.TempDir() + "/reports.db",
		},
		NATS: config.NATSConfig{Embedded: true, Port: -1, DataDir: t.TempDir()},
	}
}

func TestApp_EndToEndSession(t *testing.T) {
	groq := fakeGroq(t)
	a, err := NewFromConfig(context.Background(), testConfig(t, groq.URL))
	require.NoError(t, err)

	sub, err := natsbus.Connect(a.bus.ClientURL())
	require.NoError(t, err)
	published := make(chan council.EventType, 32)
	_, err = sub.Subscribe("*", func(_ string, ev council.RawEvent) { published <- ev.Type })
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/council", "application/json",
		strings.NewReader(`{"prompt":"Should remote work be mandatory?","apiKey":"gsk_test"}`))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"type":"synthesis_complete"`)
	id := resp.Header.Get("X-Council-Session")
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		for {
			select {
			case typ := <-published:
				if typ == council.EventSynthesisComplete {
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, 20*time.Millisecond)

	a.council.WaitArchived()
	rep, err := http.Get(srv.URL + "/api/reports/" + id)
	require.NoError(t, err)
	defer rep.Body.Close()
	require.Equal(t, http.StatusOK, rep.StatusCode)
	var got struct {
		Appendix []council.Section `json:"appendix"`
	}
	require.NoError(t, json.NewDecoder(rep.Body).Decode(&got))
	require.Len(t, got.Appendix, 3)
	assert.Equal(t, "notes from llama-3.1-8b-instant", got.Appendix[1].Text)

	sub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
}

func TestInitReportStore_RejectsUnknownKind(t *testing.T) {
	_, err := initReportStore(context.Background(), config.ReportConfig{Store: "floppy"})
	require.Error(t, err)

	s, err := initReportStore(context.Background(), config.ReportConfig{Store: "none"})
	require.NoError(t, err)
	assert.Nil(t, s)
}
