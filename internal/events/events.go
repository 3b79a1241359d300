package events

import (
	"context"
	"encoding/json"
)

// Audience selectors carried on every envelope.
const (
	AudienceAll    = "all"
	AudienceBidder = "bidder"
)

// Envelope wraps an outbound wire event with its delivery audience so the
// routing decision made at arbitration time survives the trip through the
// pub/sub channel.
type Envelope struct {
	Audience string          `json:"audience"`
	Bidder   string          `json:"bidder,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// Publisher routes outcome notifications to their audience. Delivery is
// fire-and-forget: a client disconnected at delivery time misses the event.
type Publisher interface {
	// Broadcast delivers payload to every connected observer.
	Broadcast(ctx context.Context, itemID string, payload interface{}) error

	// ToBidder delivers payload to every live connection identified by
	// the given bidder name.
	ToBidder(ctx context.Context, itemID, bidder string, payload interface{}) error
}

// Sink is the delivery end of the distribution layer. The WebSocket hub
// implements it.
type Sink interface {
	BroadcastAll(payload []byte)
	SendToBidder(bidder string, payload []byte)
}

func envelope(audience, bidder string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Envelope{
		Audience: audience,
		Bidder:   bidder,
		Payload:  body,
	})
}

// Deliver hands a parsed envelope to the sink.
func Deliver(sink Sink, env *Envelope) {
	switch env.Audience {
	case AudienceBidder:
		sink.SendToBidder(env.Bidder, env.Payload)
	default:
		sink.BroadcastAll(env.Payload)
	}
}
