package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const channelPrefix = "auction_events:"

func channelFor(itemID string) string {
	return channelPrefix + itemID
}

// RedisPublisher publishes audience envelopes to a per-item Pub/Sub
// channel. Publish happens after the atomic step, so channel order is not
// guaranteed to match store order; the subscriber delivers through an
// OrderedSink, which drops the stale side of any inversion.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps an existing Redis connection.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Broadcast publishes an all-observers envelope.
func (p *RedisPublisher) Broadcast(ctx context.Context, itemID string, payload interface{}) error {
	data, err := envelope(AudienceAll, "", payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.client.Publish(ctx, channelFor(itemID), data).Err()
}

// ToBidder publishes an envelope addressed to one bidder identity.
func (p *RedisPublisher) ToBidder(ctx context.Context, itemID, bidder string, payload interface{}) error {
	data, err := envelope(AudienceBidder, bidder, payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.client.Publish(ctx, channelFor(itemID), data).Err()
}

// RedisSubscriber pattern-subscribes to every auction channel and forwards
// envelopes to the sink.
type RedisSubscriber struct {
	client *redis.Client
	pubsub *redis.PubSub
	sink   Sink
	log    *logrus.Logger
}

// NewRedisSubscriber subscribes to all auction event channels.
func NewRedisSubscriber(ctx context.Context, client *redis.Client, sink Sink, log *logrus.Logger) *RedisSubscriber {
	return &RedisSubscriber{
		client: client,
		pubsub: client.PSubscribe(ctx, channelPrefix+"*"),
		sink:   sink,
		log:    log,
	}
}

// Listen forwards messages until the context is cancelled. Run in its own
// goroutine; malformed messages are logged and skipped.
func (s *RedisSubscriber) Listen(ctx context.Context) error {
	ch := s.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				s.log.WithFields(logrus.Fields{
					"channel": msg.Channel,
					"error":   err.Error(),
				}).Warn("Dropping malformed event")
				continue
			}
			s.log.WithFields(logrus.Fields{
				"item_id":  strings.TrimPrefix(msg.Channel, channelPrefix),
				"audience": env.Audience,
			}).Debug("Routing event")
			Deliver(s.sink, &env)
		}
	}
}

// Close tears down the subscription.
func (s *RedisSubscriber) Close() error {
	return s.pubsub.Close()
}

// LocalBus is the in-process Publisher used with the memory store: the
// same routing decisions, delivered straight to the sink without a broker.
type LocalBus struct {
	sink Sink
}

// NewLocalBus creates a publisher that delivers directly to sink.
func NewLocalBus(sink Sink) *LocalBus {
	return &LocalBus{sink: sink}
}

// Broadcast delivers an all-observers envelope in-process.
func (b *LocalBus) Broadcast(ctx context.Context, itemID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	b.sink.BroadcastAll(data)
	return nil
}

// ToBidder delivers a bidder-addressed envelope in-process.
func (b *LocalBus) ToBidder(ctx context.Context, itemID, bidder string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	b.sink.SendToBidder(bidder, data)
	return nil
}
