package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/openbidder/live-auction/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
)

// BidHandler processes an inbound bid and returns the direct reply payload
// for the submitting client.
type BidHandler interface {
	PlaceBid(ctx context.Context, req *models.BidPlaced) (interface{}, error)
}

// Client is one WebSocket connection.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte

	// bidder is the identity this connection bids as; owned by the hub's
	// Run goroutine.
	bidder string

	hub  *Hub
	bids BidHandler
	log  *logrus.Logger
}

// readPump consumes inbound messages until the connection drops. Each
// BID_PLACED goes through validation and arbitration; the reply comes back
// on this same connection.
func (c *Client) readPump(ctx context.Context) {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithField("client_id", c.ID).Debugf("WebSocket closed: %v", err)
			}
			return
		}
		c.handleMessage(ctx, message)
	}
}

func (c *Client) handleMessage(ctx context.Context, message []byte) {
	var req models.BidPlaced
	if err := json.Unmarshal(message, &req); err != nil {
		c.reply(&models.ErrorEvent{Type: models.EventError, Message: "Malformed message"})
		return
	}
	if req.Type != models.EventBidPlaced {
		c.reply(&models.ErrorEvent{Type: models.EventError, Message: "Unsupported message type"})
		return
	}

	if req.BidderName != "" {
		c.hub.Identify(c, req.BidderName)
	}

	reply, err := c.bids.PlaceBid(ctx, &req)
	if err != nil {
		// Infrastructure fault: the bid was not processed. Tell the client
		// without crashing the connection.
		c.log.WithFields(logrus.Fields{
			"client_id": c.ID,
			"item_id":   req.ItemID,
		}).Errorf("Failed to process bid: %v", err)
		c.reply(&models.ErrorEvent{Type: models.EventError, Message: "Failed to process bid, please try again"})
		return
	}
	c.reply(reply)
}

// reply routes a direct payload to this connection through the hub, which
// checks the client is still registered before touching its channel.
func (c *Client) reply(payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Errorf("Failed to marshal reply: %v", err)
		return
	}
	c.hub.sendDirect(c, data)
}

// writePump pumps payloads from the send channel to the connection and
// keeps it alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
