package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openbidder/live-auction/internal/models"
)

// arbitrateScript runs the whole bid decision procedure server-side so the
// read and write steps can never interleave between two competing bids.
// Redis executes scripts one at a time - the store's own serialization is
// the lock.
//
// KEYS[1]: auction:{id} hash
// ARGV[1]: proposed amount (decimal text)
// ARGV[2]: bidder identity
// ARGV[3]: now, unix milliseconds
//
// Reply: {outcome, endedNow, previousLeader, HGETALL of the record}
var arbitrateScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return {'missing'}
	end

	local now = tonumber(ARGV[3])
	local endsAt = tonumber(redis.call('HGET', KEYS[1], 'endsAt'))

	if redis.call('HGET', KEYS[1], 'ended') == 'true' then
		return {'ended', 0, '', redis.call('HGETALL', KEYS[1])}
	end

	if now > endsAt then
		-- Lazy expiry: the deadline passed but nothing flagged the record
		-- yet, so this arbitration performs the transition itself.
		redis.call('HSET', KEYS[1], 'ended', 'true')
		return {'ended', 1, '', redis.call('HGETALL', KEYS[1])}
	end

	local current = tonumber(redis.call('HGET', KEYS[1], 'currentBid'))
	local amount = tonumber(ARGV[1])

	if amount <= current then
		return {'too_low', 0, '', redis.call('HGETALL', KEYS[1])}
	end

	local prev = redis.call('HGET', KEYS[1], 'highestBidder')
	if not prev then
		prev = ''
	end
	local version = tonumber(redis.call('HGET', KEYS[1], 'version'))

	redis.call('HSET', KEYS[1],
		'currentBid', ARGV[1],
		'highestBidder', ARGV[2],
		'version', tostring(version + 1))

	return {'accepted', 0, prev, redis.call('HGETALL', KEYS[1])}
`)

// markEndedScript flips ended exactly once. Reply: 1 if this call performed
// the transition, 0 if the record was already ended, -1 if it is missing.
var markEndedScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return -1
	end
	if redis.call('HGET', KEYS[1], 'ended') == 'true' then
		return 0
	end
	redis.call('HSET', KEYS[1], 'ended', 'true')
	return 1
`)

// RedisStore keeps one hash per auction and delegates arbitration to Lua
// scripts executed atomically by the server.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: rdb}, nil
}

// Client exposes the underlying connection for the pub/sub layer.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func auctionKey(id string) string {
	return fmt.Sprintf("auction:%s", id)
}

// Get returns the record for id or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, id string) (models.AuctionItem, error) {
	fields, err := s.client.HGetAll(ctx, auctionKey(id)).Result()
	if err != nil {
		return models.AuctionItem{}, fmt.Errorf("failed to read auction %s: %w", id, err)
	}
	if len(fields) == 0 {
		return models.AuctionItem{}, ErrNotFound
	}
	return decodeItem(fields)
}

// GetAll scans every auction hash.
func (s *RedisStore) GetAll(ctx context.Context) ([]models.AuctionItem, error) {
	var items []models.AuctionItem

	iter := s.client.Scan(ctx, 0, auctionKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		fields, err := s.client.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", iter.Val(), err)
		}
		if len(fields) == 0 {
			// Deleted between SCAN and HGETALL
			continue
		}
		item, err := decodeItem(fields)
		if err != nil {
			return nil, fmt.Errorf("corrupt record %s: %w", iter.Val(), err)
		}
		items = append(items, item)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan auctions: %w", err)
	}

	return items, nil
}

// Put upserts the full record.
func (s *RedisStore) Put(ctx context.Context, item models.AuctionItem) error {
	fields := encodeItem(item)
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := s.client.HSet(ctx, auctionKey(item.ID), args...).Err(); err != nil {
		return fmt.Errorf("failed to write auction %s: %w", item.ID, err)
	}
	return nil
}

// MarkEnded flips ended to true, reporting whether this call did it.
func (s *RedisStore) MarkEnded(ctx context.Context, id string) (bool, error) {
	res, err := markEndedScript.Run(ctx, s.client, []string{auctionKey(id)}).Int()
	if err != nil {
		return false, fmt.Errorf("failed to mark auction %s ended: %w", id, err)
	}
	if res < 0 {
		return false, ErrNotFound
	}
	return res == 1, nil
}

// Arbitrate executes the decision procedure atomically on the server.
func (s *RedisStore) Arbitrate(ctx context.Context, id string, amount float64, bidder string, nowMillis int64) (*ArbitrationResult, error) {
	raw, err := arbitrateScript.Run(ctx, s.client,
		[]string{auctionKey(id)},
		formatPrice(amount), bidder, nowMillis,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to execute arbitration script: %w", err)
	}

	return parseArbitrationReply(raw)
}

func parseArbitrationReply(raw interface{}) (*ArbitrationResult, error) {
	reply, ok := raw.([]interface{})
	if !ok || len(reply) == 0 {
		return nil, errors.New("unexpected arbitration reply format")
	}

	outcome, _ := reply[0].(string)
	if outcome == "missing" {
		return &ArbitrationResult{Outcome: OutcomeEnded, Found: false}, nil
	}
	if len(reply) != 4 {
		return nil, errors.New("unexpected arbitration reply format")
	}

	endedNow, _ := reply[1].(int64)
	prev, _ := reply[2].(string)

	pairs, ok := reply[3].([]interface{})
	if !ok || len(pairs)%2 != 0 {
		return nil, errors.New("unexpected arbitration record format")
	}
	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		fields[k] = v
	}
	item, err := decodeItem(fields)
	if err != nil {
		return nil, err
	}

	result := &ArbitrationResult{
		Found:          true,
		Item:           item,
		PreviousLeader: prev,
		EndedNow:       endedNow == 1,
	}
	switch outcome {
	case "accepted":
		result.Outcome = OutcomeAccepted
	case "too_low":
		result.Outcome = OutcomeTooLow
	case "ended":
		result.Outcome = OutcomeEnded
	default:
		return nil, fmt.Errorf("unknown arbitration outcome %q", outcome)
	}

	return result, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
