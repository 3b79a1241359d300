package models

// Wire event types exchanged over the WebSocket connection.
const (
	EventBidPlaced    = "BID_PLACED"
	EventBidAccepted  = "BID_ACCEPTED"
	EventUpdateBid    = "UPDATE_BID"
	EventOutbid       = "OUTBID"
	EventAuctionEnded = "AUCTION_ENDED"
	EventError        = "ERROR"
)

// BidPlaced is the inbound bid request from a client
type BidPlaced struct {
	Type       string  `json:"type"`
	ItemID     string  `json:"itemId"`
	Amount     float64 `json:"amount"`
	BidderName string  `json:"bidderName"`
}

// ItemEvent is an outbound event carrying the full updated record.
// The embedded item fields are inlined into the JSON object.
type ItemEvent struct {
	Type string `json:"type"`
	AuctionItem
}

// OutbidEvent tells a bidder they were rejected or dethroned
type OutbidEvent struct {
	Type       string  `json:"type"`
	ItemID     string  `json:"itemId"`
	CurrentBid float64 `json:"currentBid"`
	Message    string  `json:"message"`
}

// ErrorEvent reports validation or infrastructure failures to the submitter
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StateResponse is the initial-load query payload: the authoritative
// server time plus every known item.
type StateResponse struct {
	ServerTime int64         `json:"serverTime"`
	Items      []AuctionItem `json:"items"`
}
