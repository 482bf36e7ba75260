package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"council/internal/council"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// wsEmitter writes each event as one JSON text frame.
type wsEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (e *wsEmitter) Emit(ctx context.Context, ev council.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return e.conn.WriteJSON(ev)
}

func (e *wsEmitter) ping() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return e.conn.WriteMessage(websocket.PingMessage, nil)
}

func (e *wsEmitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait))
}

// HandleCouncilWS runs one session per connection. The client sends a single
// {prompt, apiKey} message and then receives the session's events. Closing
// the connection cancels the session.
func (h *CouncilHandler) HandleCouncilWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		h.logger.Printf("council ws: set read deadline: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	em := &wsEmitter{conn: conn}
	var in councilRequest
	if err := conn.ReadJSON(&in); err != nil {
		_ = em.Emit(ctx, council.ErrorEvent("Invalid request body"))
		em.close()
		return
	}
	if in.missing() {
		_ = em.Emit(ctx, council.ErrorEvent(council.MissingInputMessage))
		em.close()
		return
	}

	// Reads after the request only service control frames and notice the
	// client leaving.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	go func() {
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := em.ping(); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	h.run(ctx, council.Input{SessionID: h.ctrl.NewSessionID(), Prompt: in.Prompt, APIKey: in.APIKey}, em)
	em.close()
}
