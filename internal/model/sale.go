package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale records one unit sold through the purchase coordinator, stored in the
// `auction_sales` table.  PaymentTx and PaymentReference are unique so a
// settled payment can pay for exactly one unit.
type Sale struct {
	ID               uint64          `json:"id"`
	AuctionID        uint64          `json:"auctionId"`
	BuyerID          uint64          `json:"buyerId"`
	Price            decimal.Decimal `json:"price"`
	Currency         Currency        `json:"currency"`
	PaymentTx        string          `json:"paymentTx"`
	PaymentReference string          `json:"paymentReference"`
	ShippingAddress  string          `json:"shippingAddress,omitempty"`
	SoldAt           time.Time       `json:"soldAt"`
}
