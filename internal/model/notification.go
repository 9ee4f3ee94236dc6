package model

import "time"

// Notification types emitted by the auction core.
const (
	NotificationAuctionSold    = "AUCTION_SOLD"
	NotificationOrderConfirmed = "ORDER_CONFIRMED"
)

// Notification is a message addressed to one user.  The auction core only
// produces them; delivery belongs to the notification consumer.
type Notification struct {
	UserID    uint64         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
