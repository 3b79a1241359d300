package websocket

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Hub is the connection registry for the event distribution layer. It owns
// who is connected and which bidder identity each connection bids as, and
// routes payloads to all observers or to one bidder's live connections.
//
// All registry state is owned by the Run goroutine; every mutation and
// delivery goes through its channels. The hub is created at service start
// and torn down when Run's context is cancelled.
type Hub struct {
	clients  map[*Client]bool
	byBidder map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	identify   chan identity
	broadcast  chan []byte
	direct     chan directMessage
	toClient   chan clientMessage

	// closed when Run exits so senders never block on a dead hub
	done chan struct{}

	log *logrus.Logger
}

type identity struct {
	client *Client
	bidder string
}

type directMessage struct {
	bidder  string
	payload []byte
}

type clientMessage struct {
	client  *Client
	payload []byte
}

// NewHub creates an empty hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byBidder:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		identify:   make(chan identity),
		broadcast:  make(chan []byte, 256),
		direct:     make(chan directMessage, 256),
		toClient:   make(chan clientMessage, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run is the hub's main loop. It exits when ctx is cancelled, closing every
// client connection on the way out.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.dropClient(client)
			}
			h.log.Info("Connection hub stopped")
			return ctx.Err()

		case client := <-h.register:
			h.clients[client] = true
			h.log.WithField("client_id", client.ID).Debug("Client connected")
			go client.writePump()

		case client := <-h.unregister:
			if h.clients[client] {
				h.dropClient(client)
				h.log.WithField("client_id", client.ID).Debug("Client disconnected")
			}

		case id := <-h.identify:
			h.setBidder(id.client, id.bidder)

		case payload := <-h.broadcast:
			for client := range h.clients {
				h.send(client, payload)
			}

		case msg := <-h.direct:
			for client := range h.byBidder[msg.bidder] {
				h.send(client, msg.payload)
			}

		case msg := <-h.toClient:
			if h.clients[msg.client] {
				h.send(msg.client, msg.payload)
			}
		}
	}
}

// send enqueues a payload without blocking. A client whose buffer is full
// is dropped so one slow reader cannot stall delivery to everyone else.
func (h *Hub) send(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		h.log.WithField("client_id", client.ID).Warn("Client send buffer full, disconnecting")
		h.dropClient(client)
	}
}

func (h *Hub) dropClient(client *Client) {
	delete(h.clients, client)
	if client.bidder != "" {
		if set := h.byBidder[client.bidder]; set != nil {
			delete(set, client)
			if len(set) == 0 {
				delete(h.byBidder, client.bidder)
			}
		}
	}
	close(client.send)
	client.conn.Close()
}

func (h *Hub) setBidder(client *Client, bidder string) {
	if !h.clients[client] || client.bidder == bidder {
		return
	}
	if client.bidder != "" {
		if set := h.byBidder[client.bidder]; set != nil {
			delete(set, client)
			if len(set) == 0 {
				delete(h.byBidder, client.bidder)
			}
		}
	}
	client.bidder = bidder
	if h.byBidder[bidder] == nil {
		h.byBidder[bidder] = make(map[*Client]bool)
	}
	h.byBidder[bidder][client] = true
}

// Register adds a connection to the registry.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a connection from the registry.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Identify binds a connection to the bidder name it bids as, so targeted
// outbid notifications can find it.
func (h *Hub) Identify(client *Client, bidder string) {
	select {
	case h.identify <- identity{client: client, bidder: bidder}:
	case <-h.done:
	}
}

// BroadcastAll delivers payload to every connected client.
func (h *Hub) BroadcastAll(payload []byte) {
	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
}

// sendDirect delivers payload to one specific connection. The hub loop
// verifies the client is still registered, so a reply racing a disconnect
// is dropped instead of hitting a closed channel.
func (h *Hub) sendDirect(client *Client, payload []byte) {
	select {
	case h.toClient <- clientMessage{client: client, payload: payload}:
	case <-h.done:
	}
}

// SendToBidder delivers payload to every connection bidding as bidder.
func (h *Hub) SendToBidder(bidder string, payload []byte) {
	select {
	case h.direct <- directMessage{bidder: bidder, payload: payload}:
	case <-h.done:
	}
}
