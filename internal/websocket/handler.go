package websocket

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development (use proper CORS in production)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests to WebSocket connections and hands them
// to the hub.
type Handler struct {
	hub     *Hub
	bids    BidHandler
	baseCtx context.Context
	log     *logrus.Logger
}

// NewHandler creates a WebSocket handler. baseCtx bounds the lifetime of
// every connection's bid processing; it is the service's run context.
func NewHandler(baseCtx context.Context, hub *Hub, bids BidHandler, log *logrus.Logger) *Handler {
	return &Handler{
		hub:     hub,
		bids:    bids,
		baseCtx: baseCtx,
		log:     log,
	}
}

// ServeWS upgrades the connection and registers the client.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 256), // buffered so one send never blocks routing
		hub:  h.hub,
		bids: h.bids,
		log:  h.log,
	}

	h.hub.Register(client)
	go client.readPump(h.baseCtx)
}
