package events

import (
	"encoding/json"
	"sync"

	"github.com/openbidder/live-auction/internal/models"
)

// versionedEvent is the slice of a broadcast payload the gate needs: item
// events inline the record, so type, id, version and ended sit at the top
// level of the wire JSON.
type versionedEvent struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Ended   bool   `json:"ended"`
	Version int64  `json:"version"`
}

// OrderedSink wraps a Sink and drops broadcasts that arrived out of store
// order. Arbitration publishes after the atomic step, so two bids
// serialized as v1 then v2 can still reach the broker as v2 then v1 when
// goroutine or network scheduling inverts the publish round-trips. Every
// item event carries the version stamped inside the atomic step; the gate
// tracks the highest delivered version per item and discards anything
// older, so observers see a record's updates in the order the store
// accepted them. A dropped event is never a loss of information: the
// admitted newer event already carries the full record.
type OrderedSink struct {
	sink Sink

	mu   sync.Mutex
	seen map[string]itemProgress
}

type itemProgress struct {
	version int64
	ended   bool
}

// NewOrderedSink wraps sink with the per-item version gate.
func NewOrderedSink(sink Sink) *OrderedSink {
	return &OrderedSink{
		sink: sink,
		seen: make(map[string]itemProgress),
	}
}

// BroadcastAll delivers payload unless a newer event for the same item has
// already been delivered. Payloads without an item version (errors,
// foreign messages) pass through untouched.
func (o *OrderedSink) BroadcastAll(payload []byte) {
	var ev versionedEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.ID == "" {
		o.sink.BroadcastAll(payload)
		return
	}
	if ev.Type != models.EventUpdateBid && ev.Type != models.EventAuctionEnded {
		o.sink.BroadcastAll(payload)
		return
	}

	// Admission and delivery stay under one lock: releasing it between the
	// two would let a concurrent later event slip its delivery in first,
	// recreating the inversion the gate exists to prevent.
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.admit(&ev) {
		o.sink.BroadcastAll(payload)
	}
}

// admit records the event's position and reports whether it advances the
// item. AUCTION_ENDED does not bump the version, so at an equal version
// the ended transition still ranks above the update that preceded it.
// Callers hold o.mu.
func (o *OrderedSink) admit(ev *versionedEvent) bool {
	last, ok := o.seen[ev.ID]
	if ok {
		if ev.Version < last.version {
			return false
		}
		if ev.Version == last.version && (last.ended || !ev.Ended) {
			return false
		}
	}
	o.seen[ev.ID] = itemProgress{version: ev.Version, ended: ev.Ended || (ok && last.ended)}
	return true
}

// SendToBidder passes through: targeted notifications carry no version and
// each concerns a single bid outcome.
func (o *OrderedSink) SendToBidder(bidder string, payload []byte) {
	o.sink.SendToBidder(bidder, payload)
}
