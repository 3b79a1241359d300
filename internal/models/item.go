package models

// AuctionItem represents a single auction lot
type AuctionItem struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	StartingPrice float64 `json:"startingPrice"`
	CurrentBid    float64 `json:"currentBid"`
	HighestBidder string  `json:"highestBidder,omitempty"`
	EndsAt        int64   `json:"endsAt"` // unix milliseconds
	Ended         bool    `json:"ended"`
	Version       int64   `json:"version"`
}

// Active reports whether the auction is still open at the given instant
// (unix milliseconds). A bid arriving exactly at EndsAt is still in time.
func (i *AuctionItem) Active(nowMillis int64) bool {
	return !i.Ended && nowMillis <= i.EndsAt
}
