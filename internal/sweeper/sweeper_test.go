package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbidder/live-auction/internal/clock"
	"github.com/openbidder/live-auction/internal/logging"
	"github.com/openbidder/live-auction/internal/models"
	"github.com/openbidder/live-auction/internal/store"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *capturePublisher) Broadcast(ctx context.Context, itemID string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload)
	return nil
}

func (p *capturePublisher) ToBidder(ctx context.Context, itemID, bidder string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload)
	return nil
}

func (p *capturePublisher) all() []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]interface{}(nil), p.events...)
}

type failingStore struct{ store.Store }

func (failingStore) GetAll(context.Context) ([]models.AuctionItem, error) {
	return nil, errors.New("store unreachable")
}

func newTestSweeper(t *testing.T) (*Sweeper, *store.MemoryStore, *capturePublisher, *clock.Manual) {
	t.Helper()
	st := store.NewMemoryStore()
	pub := &capturePublisher{}
	clk := clock.NewManual(time.UnixMilli(1_700_000_000_000))
	sw := New(st, clk, pub, 10*time.Millisecond, logging.New("test"))
	return sw, st, pub, clk
}

func seed(t *testing.T, st *store.MemoryStore, id string, endsAt int64) {
	t.Helper()
	require.NoError(t, st.Put(context.Background(), models.AuctionItem{
		ID:         id,
		Title:      "Test Lot",
		CurrentBid: 100,
		EndsAt:     endsAt,
	}))
}

func TestSweep_EndsExpiredAuctions(t *testing.T) {
	sw, st, pub, clk := newTestSweeper(t)
	now := clk.Now().UnixMilli()

	seed(t, st, "expired", now-1)
	seed(t, st, "open", now+60000)

	require.NoError(t, sw.Sweep(context.Background()))

	expired, err := st.Get(context.Background(), "expired")
	require.NoError(t, err)
	assert.True(t, expired.Ended)

	open, err := st.Get(context.Background(), "open")
	require.NoError(t, err)
	assert.False(t, open.Ended)

	events := pub.all()
	require.Len(t, events, 1)
	ended, ok := events[0].(*models.ItemEvent)
	require.True(t, ok)
	assert.Equal(t, models.EventAuctionEnded, ended.Type)
	assert.Equal(t, "expired", ended.ID)
	assert.True(t, ended.Ended)
}

func TestSweep_ReportsEachRecordOnce(t *testing.T) {
	sw, st, pub, clk := newTestSweeper(t)
	seed(t, st, "expired", clk.Now().UnixMilli()-1)

	require.NoError(t, sw.Sweep(context.Background()))
	require.NoError(t, sw.Sweep(context.Background()))
	require.NoError(t, sw.Sweep(context.Background()))

	assert.Len(t, pub.all(), 1)
}

func TestSweep_SilentWhenLazyExpiryWonTheRace(t *testing.T) {
	sw, st, pub, clk := newTestSweeper(t)
	now := clk.Now().UnixMilli()
	seed(t, st, "expired", now-1)

	// A late bid performed the transition (and its path reported it)
	res, err := st.Arbitrate(context.Background(), "expired", 500, "A", now)
	require.NoError(t, err)
	require.True(t, res.EndedNow)

	require.NoError(t, sw.Sweep(context.Background()))
	assert.Empty(t, pub.all())
}

func TestSweep_DeadlineNotYetPassed(t *testing.T) {
	sw, st, pub, clk := newTestSweeper(t)
	// Exactly at the deadline counts as still open
	seed(t, st, "boundary", clk.Now().UnixMilli())

	require.NoError(t, sw.Sweep(context.Background()))

	item, err := st.Get(context.Background(), "boundary")
	require.NoError(t, err)
	assert.False(t, item.Ended)
	assert.Empty(t, pub.all())
}

func TestSweep_StoreFailureIsReturnedNotFatal(t *testing.T) {
	pub := &capturePublisher{}
	clk := clock.NewManual(time.UnixMilli(1_700_000_000_000))
	sw := New(failingStore{}, clk, pub, 10*time.Millisecond, logging.New("test"))

	assert.Error(t, sw.Sweep(context.Background()))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	sw, st, pub, clk := newTestSweeper(t)
	seed(t, st, "expired", clk.Now().UnixMilli()-1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	// Let at least one tick fire
	assert.Eventually(t, func() bool {
		return len(pub.all()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancellation")
	}
}
