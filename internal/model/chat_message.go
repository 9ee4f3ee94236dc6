package model

import "time"

// ChatMessage is one line of an auction's live chat, stored in the
// `auction_messages` table.  Messages are append-only.
//
// Fields:
//
//	ID        – auction_messages.id (auto increment).
//	AuctionID – auction the message belongs to.
//	UserID    – author.
//	Content   – message text (1–500 characters).
//	CreatedAt – microsecond precision creation time; with ID it forms the
//	            delivery watermark used by the live stream.
type ChatMessage struct {
	ID        uint64    `json:"id"`
	AuctionID uint64    `json:"auctionId"`
	UserID    uint64    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// After reports whether m sorts strictly after the (createdAt, id) watermark.
func (m ChatMessage) After(createdAt time.Time, id uint64) bool {
	if m.CreatedAt.After(createdAt) {
		return true
	}
	return m.CreatedAt.Equal(createdAt) && m.ID > id
}
