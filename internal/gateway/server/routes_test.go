package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council/internal/council"
	"council/internal/gateway/handler"
)

func TestNewMux_RoutesAndMiddleware(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	ctrl := council.NewController(council.DefaultRegistry(), nil, council.WithLogger(quiet))
	completion := handler.NewCompletionHandler(func(context.Context, string, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"id":"x"}`), nil
	}, quiet)
	mux := NewMux(handler.NewCouncilHandler(ctrl, nil, quiet), completion, "", quiet)

	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/api/council/members", "", http.StatusOK},
		{http.MethodGet, "/api/council", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/council", `{"prompt":"p"}`, http.StatusBadRequest},
		{http.MethodGet, "/api/reports/abc", "", http.StatusNotFound},
		{http.MethodPost, "/api/groq", `{"apiKey":"k","payload":{}}`, http.StatusOK},
		{http.MethodOptions, "/api/council", "", http.StatusNoContent},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
			require.Equal(t, tc.want, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
