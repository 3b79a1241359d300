package store

import (
	"context"
	"sync"

	"github.com/openbidder/live-auction/internal/models"
)

// MemoryStore is an in-process backend for single-node runs and tests.
// Each record carries its own mutex, so arbitration serializes per id
// while different auctions never block each other.
type MemoryStore struct {
	mu      sync.RWMutex // guards the records map, not the records
	records map[string]*memoryRecord
}

type memoryRecord struct {
	mu   sync.Mutex
	item models.AuctionItem
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memoryRecord),
	}
}

func (s *MemoryStore) lookup(id string) (*memoryRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Get returns a copy of the record for id or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (models.AuctionItem, error) {
	rec, ok := s.lookup(id)
	if !ok {
		return models.AuctionItem{}, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.item, nil
}

// GetAll returns a snapshot of every record.
func (s *MemoryStore) GetAll(ctx context.Context) ([]models.AuctionItem, error) {
	s.mu.RLock()
	recs := make([]*memoryRecord, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	items := make([]models.AuctionItem, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		items = append(items, rec.item)
		rec.mu.Unlock()
	}
	return items, nil
}

// Put upserts the full record.
func (s *MemoryStore) Put(ctx context.Context, item models.AuctionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[item.ID]; ok {
		rec.mu.Lock()
		rec.item = item
		rec.mu.Unlock()
		return nil
	}
	s.records[item.ID] = &memoryRecord{item: item}
	return nil
}

// MarkEnded flips ended to true, reporting whether this call did it.
func (s *MemoryStore) MarkEnded(ctx context.Context, id string) (bool, error) {
	rec, ok := s.lookup(id)
	if !ok {
		return false, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.item.Ended {
		return false, nil
	}
	rec.item.Ended = true
	return true, nil
}

// Arbitrate runs the decision procedure under the record's mutex.
func (s *MemoryStore) Arbitrate(ctx context.Context, id string, amount float64, bidder string, nowMillis int64) (*ArbitrationResult, error) {
	rec, ok := s.lookup(id)
	if !ok {
		return &ArbitrationResult{Outcome: OutcomeEnded, Found: false}, nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.item.Ended {
		return &ArbitrationResult{Outcome: OutcomeEnded, Found: true, Item: rec.item}, nil
	}

	if !rec.item.Active(nowMillis) {
		// Lazy expiry: this arbitration performs the transition itself.
		rec.item.Ended = true
		return &ArbitrationResult{
			Outcome:  OutcomeEnded,
			Found:    true,
			Item:     rec.item,
			EndedNow: true,
		}, nil
	}

	if amount <= rec.item.CurrentBid {
		return &ArbitrationResult{Outcome: OutcomeTooLow, Found: true, Item: rec.item}, nil
	}

	prev := rec.item.HighestBidder
	rec.item.CurrentBid = amount
	rec.item.HighestBidder = bidder
	rec.item.Version++

	return &ArbitrationResult{
		Outcome:        OutcomeAccepted,
		Found:          true,
		Item:           rec.item,
		PreviousLeader: prev,
	}, nil
}
