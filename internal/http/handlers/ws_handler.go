// Websocket entrypoint.
//
// This file bridges the HTTP layer and the chat gateway. It authenticates the
// upgrade request (the JWT middleware has already run), performs the websocket
// handshake, and hands the connection to chat.Gateway, which owns the
// connection for its lifetime. The HTTP request completes only when the
// session ends.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/leaseline/lease-chat-backend/internal/chat"
	"github.com/leaseline/lease-chat-backend/internal/http/middleware"
)

// WSHandler upgrades authenticated requests to chat sessions.
type WSHandler struct {
	gateway  *chat.Gateway
	upgrader websocket.Upgrader
}

// NewWSHandler constructs a WSHandler. allowedOrigins mirrors the CORS
// configuration; an empty list admits any origin (development mode).
func NewWSHandler(gateway *chat.Gateway, allowedOrigins []string) *WSHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &WSHandler{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Non-browser clients send no Origin header.
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// Serve handles GET /ws/chat.
//
// The identity must already be present in the Gin context; the websocket
// protocol cannot carry a 401 after the handshake, so authentication failures
// are rejected before upgrading.
func (h *WSHandler) Serve(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error to the client.
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(err).Str("user_id", uid).Msg("websocket upgrade failed")
		return
	}

	// Blocks for the lifetime of the session. Use the request context so
	// server shutdown propagates to the read loop.
	h.gateway.HandleConn(c.Request.Context(), conn, uid)
}
