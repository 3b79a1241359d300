package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbidder/live-auction/internal/models"
)

type captureSink struct {
	broadcasts [][]byte
	direct     map[string][][]byte
}

func newCaptureSink() *captureSink {
	return &captureSink{direct: make(map[string][][]byte)}
}

func (s *captureSink) BroadcastAll(payload []byte) {
	s.broadcasts = append(s.broadcasts, payload)
}

func (s *captureSink) SendToBidder(bidder string, payload []byte) {
	s.direct[bidder] = append(s.direct[bidder], payload)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	event := &models.OutbidEvent{
		Type:       models.EventOutbid,
		ItemID:     "lot-1",
		CurrentBid: 5200,
		Message:    "You have been outbid",
	}

	data, err := envelope(AudienceBidder, "A", event)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, AudienceBidder, env.Audience)
	assert.Equal(t, "A", env.Bidder)

	var decoded models.OutbidEvent
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))
	assert.Equal(t, *event, decoded)
}

func TestDeliver_RoutesByAudience(t *testing.T) {
	sink := newCaptureSink()

	Deliver(sink, &Envelope{Audience: AudienceAll, Payload: []byte(`{"a":1}`)})
	Deliver(sink, &Envelope{Audience: AudienceBidder, Bidder: "A", Payload: []byte(`{"b":2}`)})

	require.Len(t, sink.broadcasts, 1)
	require.Len(t, sink.direct["A"], 1)
	assert.JSONEq(t, `{"a":1}`, string(sink.broadcasts[0]))
	assert.JSONEq(t, `{"b":2}`, string(sink.direct["A"][0]))
}

func TestLocalBus_DeliversInProcess(t *testing.T) {
	sink := newCaptureSink()
	bus := NewLocalBus(sink)
	ctx := context.Background()

	update := &models.ItemEvent{
		Type: models.EventUpdateBid,
		AuctionItem: models.AuctionItem{
			ID: "lot-1", CurrentBid: 5100, HighestBidder: "A", Version: 1,
		},
	}
	require.NoError(t, bus.Broadcast(ctx, "lot-1", update))
	require.NoError(t, bus.ToBidder(ctx, "lot-1", "B", &models.OutbidEvent{
		Type: models.EventOutbid, ItemID: "lot-1", CurrentBid: 5100,
	}))

	require.Len(t, sink.broadcasts, 1)
	require.Len(t, sink.direct["B"], 1)

	// Item fields are inlined next to the event type on the wire
	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(sink.broadcasts[0], &wire))
	assert.Equal(t, "UPDATE_BID", wire["type"])
	assert.Equal(t, "lot-1", wire["id"])
	assert.Equal(t, 5100.0, wire["currentBid"])
}
