package broadcast

import (
	"github.com/shopspring/decimal"

	"github.com/iliyamo/dutch-auction/internal/model"
	"github.com/iliyamo/dutch-auction/internal/pricing"
)

// Event types.  State snapshots carry no type field; clients tell them
// apart by the absence of one.
const (
	EventConnected = "connected"
	EventMessage   = "message"
	EventEnded     = "ended"
)

// ConnectedEvent is the first frame of every stream.
type ConnectedEvent struct {
	Type      string `json:"type"`
	AuctionID uint64 `json:"auctionId"`
	ViewerID  string `json:"viewerId"`
}

// Snapshot is the periodic auction state frame.
type Snapshot struct {
	CurrentPriceSol   decimal.Decimal     `json:"currentPriceSol"`
	CurrentPriceUsdc  *decimal.Decimal    `json:"currentPriceUsdc,omitempty"`
	Temperature       int                 `json:"temperature"`
	TimeRemaining     pricing.Remaining   `json:"timeRemaining"`
	ViewerCount       int                 `json:"viewerCount"`
	QuantityRemaining int                 `json:"quantityRemaining"`
	Status            model.AuctionStatus `json:"status"`
}

// MessageEvent relays one chat message.
type MessageEvent struct {
	Type string `json:"type"`
	model.ChatMessage
}

// EndedEvent is the last frame; the stream closes right after it.
type EndedEvent struct {
	Type   string              `json:"type"`
	Status model.AuctionStatus `json:"status"`
}
