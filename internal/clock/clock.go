package clock

import (
	"sync"
	"time"
)

// Clock is the single source of truth for "now". All expiry comparisons go
// through it, and its value is what gets reported to clients as serverTime.
type Clock interface {
	Now() time.Time
}

// NowMillis returns the clock's current instant in unix milliseconds, the
// unit used for deadlines on the wire and in the store.
func NowMillis(c Clock) int64 {
	return c.Now().UnixMilli()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the wall clock.
func System() Clock { return systemClock{} }

// Manual is a settable clock for tests.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock frozen at the given instant.
func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set pins the clock to a specific instant.
func (m *Manual) Set(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
