// Package presence tracks which viewers are watching which auction.  Counts
// are approximate display data only: nothing reads them as a source of
// truth, and the in-memory tracker loses everything on restart.
package presence

import (
	"context"
	"time"
)

// Viewer is one connected client of a live auction stream.
type Viewer struct {
	ID       string    `json:"viewerId"`
	Wallet   string    `json:"wallet,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
	LastSeen time.Time `json:"lastSeen"`
}

// Stats aggregates presence across all auctions.
type Stats struct {
	TotalViewers   int `json:"totalViewers"`
	ActiveAuctions int `json:"activeAuctions"`
}

// Tracker is the presence contract used by the live channel.  The memory
// implementation serves a single process; the Redis one shares counts
// between instances.
type Tracker interface {
	AddViewer(ctx context.Context, auctionID uint64, viewerID, wallet string) error
	Touch(ctx context.Context, auctionID uint64, viewerID string) error
	RemoveViewer(ctx context.Context, auctionID uint64, viewerID string) error
	ViewerCount(ctx context.Context, auctionID uint64) (int, error)
	CleanupStale(ctx context.Context, auctionID uint64, timeout time.Duration) (int, error)
	CleanupAllStale(ctx context.Context, timeout time.Duration) (int, error)
	ActiveAuctions(ctx context.Context) ([]uint64, error)
	GlobalStats(ctx context.Context) (Stats, error)
}
