package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"mixfm/core/auth"
	"mixfm/core/player"
	"mixfm/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// PlayerWSHandler upgrades the connection and attaches it to the push hub.
// Browsers cannot set an Authorization header on a websocket, so the token
// rides in the query string.
func (h *APIHandler) PlayerWSHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Token is required", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ParseToken(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed",
			logger.Int64("listenerId", claims.UserID), logger.ErrorField(err))
		return
	}

	client := &player.Client{
		Hub:    h.hub,
		Conn:   conn,
		Send:   make(chan []byte, 64),
		UserID: claims.UserID,
	}
	h.hub.Register(client)

	// The request context dies when the handler returns; the hijacked
	// connection outlives it.
	go client.WritePump()
	go client.ReadPump(context.Background())
}
