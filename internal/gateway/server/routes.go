package server

import (
	"log"
	"net/http"

	"council/internal/gateway/handler"
	"council/internal/gateway/middleware"
)

func NewMux(
	councilHandler *handler.CouncilHandler,
	completionHandler *handler.CompletionHandler,
	allowedOrigin string,
	logger *log.Logger,
) http.Handler {
	mux := http.NewServeMux()

	// Council sessions
	mux.HandleFunc("/api/council", councilHandler.HandleCouncil)
	mux.HandleFunc("/api/council/ws", councilHandler.HandleCouncilWS)
	mux.HandleFunc("/api/council/members", councilHandler.HandleMembers)
	mux.HandleFunc("/api/reports/{id}", councilHandler.HandleReport)

	// Provider proxy
	mux.HandleFunc("/api/groq", completionHandler.HandleCompletion)

	mux.HandleFunc("/healthz", handler.HandleHealth)

	return middleware.Chain(mux,
		middleware.Recover(logger),
		middleware.AccessLog(logger),
		middleware.CORS(allowedOrigin),
	)
}
