package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openbidder/live-auction/internal/clock"
	"github.com/openbidder/live-auction/internal/events"
	"github.com/openbidder/live-auction/internal/models"
	"github.com/openbidder/live-auction/internal/store"
)

// BiddingService handles the business logic for bidding operations: it
// validates inbound bids, hands them to the store's atomic arbitration and
// turns the outcome into the notification plan.
type BiddingService struct {
	store        store.Store
	clock        clock.Clock
	publisher    events.Publisher
	log          *logrus.Logger
	storeTimeout time.Duration
}

// NewBiddingService creates a new bidding service.
func NewBiddingService(st store.Store, clk clock.Clock, pub events.Publisher, log *logrus.Logger, storeTimeout time.Duration) *BiddingService {
	return &BiddingService{
		store:        st,
		clock:        clk,
		publisher:    pub,
		log:          log,
		storeTimeout: storeTimeout,
	}
}

// PlaceBid runs one bid through validation and arbitration. The returned
// payload is the direct reply for the submitting client; broadcasts and
// outbid notifications are published as a side effect. A non-nil error
// means the bid was not processed at all (store unavailable) and the
// caller should surface a server error, not a rejection.
func (s *BiddingService) PlaceBid(ctx context.Context, req *models.BidPlaced) (interface{}, error) {
	if msg, ok := validateBid(req); !ok {
		return &models.ErrorEvent{Type: models.EventError, Message: msg}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	now := clock.NowMillis(s.clock)
	result, err := s.store.Arbitrate(ctx, req.ItemID, req.Amount, req.BidderName, now)
	if err != nil {
		return nil, fmt.Errorf("arbitration failed for %s: %w", req.ItemID, err)
	}

	s.log.WithFields(logrus.Fields{
		"item_id": req.ItemID,
		"bidder":  req.BidderName,
		"amount":  req.Amount,
		"outcome": string(result.Outcome),
	}).Debug("Bid arbitrated")

	switch result.Outcome {
	case store.OutcomeAccepted:
		return s.acceptedPlan(ctx, req, result), nil
	case store.OutcomeTooLow:
		return &models.OutbidEvent{
			Type:       models.EventOutbid,
			ItemID:     req.ItemID,
			CurrentBid: result.Item.CurrentBid,
			Message:    fmt.Sprintf("Bid too low. Current highest bid is $%.2f", result.Item.CurrentBid),
		}, nil
	default:
		return s.endedPlan(ctx, req, result), nil
	}
}

// acceptedPlan builds the BID_ACCEPTED reply and publishes the broadcast
// and outbid notifications for an accepted bid.
func (s *BiddingService) acceptedPlan(ctx context.Context, req *models.BidPlaced, result *store.ArbitrationResult) interface{} {
	update := &models.ItemEvent{Type: models.EventUpdateBid, AuctionItem: result.Item}
	if err := s.publisher.Broadcast(ctx, req.ItemID, update); err != nil {
		s.log.WithField("item_id", req.ItemID).Warnf("Failed to broadcast bid update: %v", err)
	}

	if prev := result.PreviousLeader; prev != "" && prev != req.BidderName {
		outbid := &models.OutbidEvent{
			Type:       models.EventOutbid,
			ItemID:     req.ItemID,
			CurrentBid: result.Item.CurrentBid,
			Message:    fmt.Sprintf("You have been outbid on %s. The new bid is $%.2f", result.Item.Title, result.Item.CurrentBid),
		}
		if err := s.publisher.ToBidder(ctx, req.ItemID, prev, outbid); err != nil {
			s.log.WithField("item_id", req.ItemID).Warnf("Failed to notify previous leader: %v", err)
		}
	}

	return &models.ItemEvent{Type: models.EventBidAccepted, AuctionItem: result.Item}
}

// endedPlan builds the submitter-only reply for a bid against an ended or
// missing auction. When this arbitration performed the lazy expiry
// transition, it also owns the one-time AUCTION_ENDED broadcast.
func (s *BiddingService) endedPlan(ctx context.Context, req *models.BidPlaced, result *store.ArbitrationResult) interface{} {
	if result.EndedNow {
		ended := &models.ItemEvent{Type: models.EventAuctionEnded, AuctionItem: result.Item}
		if err := s.publisher.Broadcast(ctx, req.ItemID, ended); err != nil {
			s.log.WithField("item_id", req.ItemID).Warnf("Failed to broadcast auction end: %v", err)
		}
	}

	reply := &models.OutbidEvent{
		Type:    models.EventAuctionEnded,
		ItemID:  req.ItemID,
		Message: "Auction has ended",
	}
	if result.Found {
		reply.CurrentBid = result.Item.CurrentBid
	}
	return reply
}

// validateBid checks the wire-level contract before anything touches the
// store. Invalid bids never count as system faults.
func validateBid(req *models.BidPlaced) (string, bool) {
	switch {
	case req.ItemID == "":
		return "Item ID is required", false
	case req.BidderName == "":
		return "Bidder name is required", false
	case req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0):
		return "Bid amount must be a positive number", false
	}
	return "", true
}

// State returns the initial-load payload: authoritative server time plus
// every known item.
func (s *BiddingService) State(ctx context.Context) (*models.StateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	items, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load auctions: %w", err)
	}
	if items == nil {
		items = []models.AuctionItem{}
	}
	return &models.StateResponse{
		ServerTime: clock.NowMillis(s.clock),
		Items:      items,
	}, nil
}

// GetItem returns a single record.
func (s *BiddingService) GetItem(ctx context.Context, id string) (models.AuctionItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.Get(ctx, id)
}

// CreateItem seeds a new auction. The current bid starts at the floor and
// the version counter at zero.
func (s *BiddingService) CreateItem(ctx context.Context, id, title string, startingPrice float64, endsAt int64) (models.AuctionItem, error) {
	if id == "" || title == "" {
		return models.AuctionItem{}, fmt.Errorf("id and title are required")
	}
	if startingPrice < 0 || math.IsNaN(startingPrice) || math.IsInf(startingPrice, 0) {
		return models.AuctionItem{}, fmt.Errorf("starting price must be a non-negative number")
	}

	item := models.AuctionItem{
		ID:            id,
		Title:         title,
		StartingPrice: startingPrice,
		CurrentBid:    startingPrice,
		EndsAt:        endsAt,
		Ended:         false,
		Version:       0,
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.store.Put(ctx, item); err != nil {
		return models.AuctionItem{}, fmt.Errorf("failed to create auction %s: %w", id, err)
	}

	s.log.WithFields(logrus.Fields{
		"item_id":        id,
		"starting_price": startingPrice,
	}).Info("Auction created")

	return item, nil
}
