package handler

import (
	"net/http"

	"github.com/mediagate/modgate/internal/pkg/logger"
	"github.com/mediagate/modgate/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks happen at the upstream gateway
	CheckOrigin: func(r *http.Request) bool { return true },
}

type StreamHandler struct {
	hub *stream.Hub
}

func NewStreamHandler(hub *stream.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// Events upgrades the connection and attaches it to the moderation event
// feed.
func (h *StreamHandler) Events(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	h.hub.Register(conn)
}
