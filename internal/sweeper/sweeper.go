package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openbidder/live-auction/internal/clock"
	"github.com/openbidder/live-auction/internal/events"
	"github.com/openbidder/live-auction/internal/models"
	"github.com/openbidder/live-auction/internal/store"
)

// Sweeper periodically closes auctions whose deadline has passed even when
// no bid arrives to trigger lazy expiry. It only announces transitions its
// own MarkEnded performed, so a record is never reported as newly ended by
// both the sweep and the arbitration path.
type Sweeper struct {
	store     store.Store
	clock     clock.Clock
	publisher events.Publisher
	interval  time.Duration
	log       *logrus.Logger
}

// New creates a sweeper with the given sweep period.
func New(st store.Store, clk clock.Clock, pub events.Publisher, interval time.Duration, log *logrus.Logger) *Sweeper {
	return &Sweeper{
		store:     st,
		clock:     clk,
		publisher: pub,
		interval:  interval,
		log:       log,
	}
}

// Run sweeps on every tick until the context is cancelled. A failed pass
// is logged and retried on the next tick; it never brings the process down.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval.String()).Info("Sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			passCtx, cancel := context.WithTimeout(ctx, s.interval*2+time.Second)
			if err := s.Sweep(passCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warnf("Sweep pass failed: %v", err)
			}
			cancel()
		}
	}
}

// Sweep runs a single pass: every open record past its deadline is marked
// ended, and the ones this pass actually transitioned are broadcast.
func (s *Sweeper) Sweep(ctx context.Context) error {
	items, err := s.store.GetAll(ctx)
	if err != nil {
		return err
	}

	now := clock.NowMillis(s.clock)
	for i := range items {
		item := items[i]
		if item.Ended || item.Active(now) {
			continue
		}

		transitioned, err := s.store.MarkEnded(ctx, item.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			s.log.WithField("item_id", item.ID).Warnf("Failed to mark auction ended: %v", err)
			continue
		}
		if !transitioned {
			// Lazy expiry on a bid beat us to it and already reported.
			continue
		}

		item.Ended = true
		ended := &models.ItemEvent{Type: models.EventAuctionEnded, AuctionItem: item}
		if err := s.publisher.Broadcast(ctx, item.ID, ended); err != nil {
			s.log.WithField("item_id", item.ID).Warnf("Failed to broadcast auction end: %v", err)
		}

		s.log.WithFields(logrus.Fields{
			"item_id":   item.ID,
			"final_bid": item.CurrentBid,
			"winner":    item.HighestBidder,
		}).Info("Auction ended")
	}

	return nil
}
