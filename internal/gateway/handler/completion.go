package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
)

// CompletionFunc forwards one chat-completion payload with the caller's key.
type CompletionFunc func(ctx context.Context, apiKey string, payload json.RawMessage) (json.RawMessage, error)

// CompletionHandler is a non-streaming chat-completion proxy for browser
// clients that cannot call the provider directly.
type CompletionHandler struct {
	complete CompletionFunc
	logger   *log.Logger
}

func NewCompletionHandler(complete CompletionFunc, logger *log.Logger) *CompletionHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &CompletionHandler{complete: complete, logger: logger}
}

type completionRequest struct {
	APIKey  string          `json:"apiKey"`
	Payload json.RawMessage `json:"payload"`
}

func (h *CompletionHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var in completionRequest
	if !decodeBody(w, r, maxCompletionBody, &in) {
		return
	}
	payload := bytes.TrimSpace(in.Payload)
	if strings.TrimSpace(in.APIKey) == "" || len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		writeError(w, http.StatusBadRequest, "API key and payload are required.")
		return
	}
	out, err := h.complete(r.Context(), in.APIKey, payload)
	if err != nil {
		h.logger.Printf("completion proxy: %v", err)
		writeError(w, http.StatusInternalServerError, "An error occurred on the server.")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
