package store

import (
	"context"
	"errors"

	"github.com/openbidder/live-auction/internal/models"
)

// ErrNotFound is returned when no record exists for the requested id.
var ErrNotFound = errors.New("auction not found")

// Outcome is the decision of a single bid arbitration.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeTooLow   Outcome = "too_low"
	OutcomeEnded    Outcome = "ended"
)

// ArbitrationResult is the outcome of one arbitration call plus the
// post-decision record snapshot taken inside the same atomic step.
type ArbitrationResult struct {
	Outcome Outcome
	// Found is false when no record exists for the id. The outcome is
	// still OutcomeEnded: a missing auction and an ended auction look
	// the same to a bidder.
	Found bool
	// Item is the record state after the decision was applied.
	Item models.AuctionItem
	// PreviousLeader is the bidder displaced by an accepted bid, empty
	// when there was none or the bid was not accepted.
	PreviousLeader string
	// EndedNow reports that this call performed the ended transition
	// (lazy expiry). The caller owns the end notification in that case.
	EndedNow bool
}

// Store is the auction record store. Arbitrate and MarkEnded are the only
// mutators after creation; Arbitrate executes as an indivisible unit per
// record id, so concurrent calls on the same id never interleave their
// read and write steps. Calls on different ids proceed in parallel.
type Store interface {
	// Get returns the record for id or ErrNotFound.
	Get(ctx context.Context, id string) (models.AuctionItem, error)

	// GetAll returns every record in no particular order.
	GetAll(ctx context.Context) ([]models.AuctionItem, error)

	// Put is a full upsert, used for creation and seeding only.
	Put(ctx context.Context, item models.AuctionItem) error

	// MarkEnded flips ended to true without touching bid fields. It is
	// idempotent; the returned bool is true only when this call performed
	// the false→true transition, so callers can report a record as newly
	// ended exactly once.
	MarkEnded(ctx context.Context, id string) (bool, error)

	// Arbitrate runs the bid decision procedure for one record:
	// ended/expired → OutcomeEnded (flipping ended as lazy expiry when the
	// deadline has passed), amount not strictly above the current bid →
	// OutcomeTooLow, otherwise the bid is accepted and currentBid,
	// highestBidder and version advance together.
	Arbitrate(ctx context.Context, id string, amount float64, bidder string, nowMillis int64) (*ArbitrationResult, error)
}
