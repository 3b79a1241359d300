package store

import (
	"fmt"
	"strconv"

	"github.com/openbidder/live-auction/internal/models"
)

// Persisted field names. Every value is stored as text: prices and
// counters as decimal strings, ended as "true"/"false", endsAt as unix
// milliseconds.
const (
	fieldID            = "id"
	fieldTitle         = "title"
	fieldStartingPrice = "startingPrice"
	fieldCurrentBid    = "currentBid"
	fieldHighestBidder = "highestBidder"
	fieldEndsAt        = "endsAt"
	fieldEnded         = "ended"
	fieldVersion       = "version"
)

func formatPrice(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func encodeItem(item models.AuctionItem) map[string]string {
	return map[string]string{
		fieldID:            item.ID,
		fieldTitle:         item.Title,
		fieldStartingPrice: formatPrice(item.StartingPrice),
		fieldCurrentBid:    formatPrice(item.CurrentBid),
		fieldHighestBidder: item.HighestBidder,
		fieldEndsAt:        strconv.FormatInt(item.EndsAt, 10),
		fieldEnded:         formatBool(item.Ended),
		fieldVersion:       strconv.FormatInt(item.Version, 10),
	}
}

func decodeItem(fields map[string]string) (models.AuctionItem, error) {
	var item models.AuctionItem
	var err error

	item.ID = fields[fieldID]
	item.Title = fields[fieldTitle]
	item.HighestBidder = fields[fieldHighestBidder]
	item.Ended = fields[fieldEnded] == "true"

	if item.StartingPrice, err = strconv.ParseFloat(fields[fieldStartingPrice], 64); err != nil {
		return item, fmt.Errorf("bad startingPrice %q: %w", fields[fieldStartingPrice], err)
	}
	if item.CurrentBid, err = strconv.ParseFloat(fields[fieldCurrentBid], 64); err != nil {
		return item, fmt.Errorf("bad currentBid %q: %w", fields[fieldCurrentBid], err)
	}
	if item.EndsAt, err = strconv.ParseInt(fields[fieldEndsAt], 10, 64); err != nil {
		return item, fmt.Errorf("bad endsAt %q: %w", fields[fieldEndsAt], err)
	}
	if item.Version, err = strconv.ParseInt(fields[fieldVersion], 10, 64); err != nil {
		return item, fmt.Errorf("bad version %q: %w", fields[fieldVersion], err)
	}

	return item, nil
}
