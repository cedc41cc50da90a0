package ws

import (
	"context"
	"net/http"

	"github.com/HerbHall/campusnet/internal/event"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Handler upgrades requests and streams hub events until the client leaves.
// Authentication is left to the surrounding middleware.
type Handler struct {
	hub    *Hub
	logger *zap.Logger
}

// NewHandler creates a handler serving clients of hub.
func NewHandler(hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Status clients are local tools, not browsers on other origins.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		remote: r.RemoteAddr,
		send:   make(chan event.Event, sendBuffer),
		logger: h.logger,
	}
	h.hub.register(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	client.readPump(ctx)

	h.hub.unregister(client)
	cancel()
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}
