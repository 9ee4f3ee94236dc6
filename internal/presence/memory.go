package presence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryTracker keeps presence in process memory behind one mutex.  No
// method performs I/O, so the context arguments are accepted only to satisfy
// Tracker.
type MemoryTracker struct {
	mu      sync.Mutex
	viewers map[uint64]map[string]*Viewer
	now     func() time.Time
}

// NewMemoryTracker returns an empty tracker using the wall clock.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		viewers: make(map[uint64]map[string]*Viewer),
		now:     time.Now,
	}
}

// WithClock replaces the tracker's clock.  Used by tests.
func (t *MemoryTracker) WithClock(now func() time.Time) *MemoryTracker {
	t.now = now
	return t
}

// AddViewer registers a viewer.  Adding an existing viewer refreshes its
// last-seen time and keeps the original join time.
func (t *MemoryTracker) AddViewer(_ context.Context, auctionID uint64, viewerID, wallet string) error {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	bucket, ok := t.viewers[auctionID]
	if !ok {
		bucket = make(map[string]*Viewer)
		t.viewers[auctionID] = bucket
	}
	if v, ok := bucket[viewerID]; ok {
		v.LastSeen = now
		if wallet != "" {
			v.Wallet = wallet
		}
		return nil
	}
	bucket[viewerID] = &Viewer{ID: viewerID, Wallet: wallet, JoinedAt: now, LastSeen: now}
	return nil
}

// Touch refreshes a connected viewer's last-seen time.  Unknown viewers are
// ignored.
func (t *MemoryTracker) Touch(_ context.Context, auctionID uint64, viewerID string) error {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.viewers[auctionID][viewerID]; ok {
		v.LastSeen = now
	}
	return nil
}

// RemoveViewer deregisters a viewer and drops the auction bucket once it is
// empty.  Removing an unknown viewer is a no-op.
func (t *MemoryTracker) RemoveViewer(_ context.Context, auctionID uint64, viewerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	bucket, ok := t.viewers[auctionID]
	if !ok {
		return nil
	}
	delete(bucket, viewerID)
	if len(bucket) == 0 {
		delete(t.viewers, auctionID)
	}
	return nil
}

// ViewerCount returns the number of viewers of an auction.
func (t *MemoryTracker) ViewerCount(_ context.Context, auctionID uint64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.viewers[auctionID]), nil
}

// Viewers returns a copy of an auction's viewers ordered by join time.
func (t *MemoryTracker) Viewers(auctionID uint64) []Viewer {
	t.mu.Lock()
	out := make([]Viewer, 0, len(t.viewers[auctionID]))
	for _, v := range t.viewers[auctionID] {
		out = append(out, *v)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

// CleanupStale removes viewers of one auction not seen for longer than
// timeout and returns how many were removed.
func (t *MemoryTracker) CleanupStale(_ context.Context, auctionID uint64, timeout time.Duration) (int, error) {
	cutoff := t.now().Add(-timeout)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cleanupLocked(auctionID, cutoff), nil
}

// CleanupAllStale runs CleanupStale over every tracked auction.
func (t *MemoryTracker) CleanupAllStale(_ context.Context, timeout time.Duration) (int, error) {
	cutoff := t.now().Add(-timeout)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id := range t.viewers {
		removed += t.cleanupLocked(id, cutoff)
	}
	return removed, nil
}

func (t *MemoryTracker) cleanupLocked(auctionID uint64, cutoff time.Time) int {
	bucket, ok := t.viewers[auctionID]
	if !ok {
		return 0
	}
	removed := 0
	for id, v := range bucket {
		if v.LastSeen.Before(cutoff) {
			delete(bucket, id)
			removed++
		}
	}
	if len(bucket) == 0 {
		delete(t.viewers, auctionID)
	}
	return removed
}

// ActiveAuctions lists auctions with at least one viewer.
func (t *MemoryTracker) ActiveAuctions(_ context.Context) ([]uint64, error) {
	t.mu.Lock()
	ids := make([]uint64, 0, len(t.viewers))
	for id := range t.viewers {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// GlobalStats returns total viewers and the number of watched auctions.
func (t *MemoryTracker) GlobalStats(_ context.Context) (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{ActiveAuctions: len(t.viewers)}
	for _, bucket := range t.viewers {
		s.TotalViewers += len(bucket)
	}
	return s, nil
}
