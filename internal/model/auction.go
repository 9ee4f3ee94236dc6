package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the persisted lifecycle state of an auction.
type AuctionStatus string

const (
	StatusDraft       AuctionStatus = "DRAFT"
	StatusScheduled   AuctionStatus = "SCHEDULED"
	StatusLive        AuctionStatus = "LIVE"
	StatusSold        AuctionStatus = "SOLD"
	StatusCancelled   AuctionStatus = "CANCELLED"
	StatusEndedUnsold AuctionStatus = "ENDED_UNSOLD"
)

// Terminal reports whether no further transition can leave the status.
func (s AuctionStatus) Terminal() bool {
	return s == StatusSold || s == StatusCancelled || s == StatusEndedUnsold
}

// Valid reports whether s is one of the known statuses.
func (s AuctionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusLive, StatusSold, StatusCancelled, StatusEndedUnsold:
		return true
	}
	return false
}

// DecayType selects the shape of the price curve.
type DecayType string

const (
	DecayLinear  DecayType = "LINEAR"
	DecayStepped DecayType = "STEPPED"
)

// DecayStep is one checkpoint of a stepped schedule: from OffsetSeconds after
// the start the price is held at Price until the next checkpoint.
type DecayStep struct {
	OffsetSeconds int64           `json:"offsetSeconds"`
	Price         decimal.Decimal `json:"price"`
}

// Currency identifies a settlement currency.
type Currency string

const (
	CurrencySOL  Currency = "SOL"
	CurrencyUSDC Currency = "USDC"
)

// Precision is the number of decimal places the currency settles in.
func (c Currency) Precision() int32 {
	switch c {
	case CurrencySOL:
		return 9
	case CurrencyUSDC:
		return 6
	}
	return 2
}

// PricingConfig is the immutable input of the price curve.  It is derived
// from an Auction and never persisted on its own.
type PricingConfig struct {
	StartPrice      decimal.Decimal
	FloorPrice      decimal.Decimal
	DecayType       DecayType
	DecaySteps      []DecayStep
	DurationMinutes int
	StartsAt        time.Time
}

// Duration returns the configured auction length.
func (p PricingConfig) Duration() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

// EndsAt is StartsAt plus the configured duration.
func (p PricingConfig) EndsAt() time.Time {
	return p.StartsAt.Add(p.Duration())
}

// Auction represents a descending-price sale as stored in the `auctions`
// table.  The current price is never stored; it is derived from the pricing
// configuration and the clock.  WinningPrice is the only persisted price
// fact besides the configuration and is written once, at sale.
//
// Fields:
//
//	ID, Slug           – identity; Slug is unique and human readable.
//	StoreID            – owning store; MerchantWallet is joined from stores.
//	MerchantID         – user who created the auction.
//	StartPrice..       – primary (SOL) pricing configuration.
//	StartPriceUsdc..   – optional mirror prices in the secondary currency.
//	StartsAt, EndsAt   – nil while the auction is a draft.
//	Quantity           – units offered; QuantitySold never exceeds it.
//	WinnerID..         – outcome fields, set when the final unit sells.
type Auction struct {
	ID          uint64   `json:"id"`
	Slug        string   `json:"slug"`
	StoreID     uint64   `json:"storeId"`
	MerchantID  uint64   `json:"merchantId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	VideoURL    *string  `json:"videoUrl,omitempty"`

	StartPrice      decimal.Decimal  `json:"startPrice"`
	FloorPrice      decimal.Decimal  `json:"floorPrice"`
	DecayType       DecayType        `json:"decayType"`
	DecaySteps      []DecayStep      `json:"decaySteps,omitempty"`
	DurationMinutes int              `json:"durationMinutes"`
	StartPriceUsdc  *decimal.Decimal `json:"startPriceUsdc,omitempty"`
	FloorPriceUsdc  *decimal.Decimal `json:"floorPriceUsdc,omitempty"`

	StartsAt       *time.Time `json:"startsAt,omitempty"`
	EndsAt         *time.Time `json:"endsAt,omitempty"`
	MediaExpiresAt *time.Time `json:"mediaExpiresAt,omitempty"`

	Quantity     int `json:"quantity"`
	QuantitySold int `json:"quantitySold"`

	WinnerID         *uint64          `json:"winnerId,omitempty"`
	WinningPrice     *decimal.Decimal `json:"winningPrice,omitempty"`
	SoldAt           *time.Time       `json:"soldAt,omitempty"`
	PaymentCurrency  *Currency        `json:"paymentCurrency,omitempty"`
	PaymentTx        *string          `json:"paymentTx,omitempty"`
	PaymentReference *string          `json:"paymentReference,omitempty"`

	Status         AuctionStatus `json:"status"`
	MerchantWallet string        `json:"merchantWallet,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Pricing returns the primary-currency pricing configuration.  For drafts
// without a start time StartsAt is the zero time.
func (a *Auction) Pricing() PricingConfig {
	cfg := PricingConfig{
		StartPrice:      a.StartPrice,
		FloorPrice:      a.FloorPrice,
		DecayType:       a.DecayType,
		DecaySteps:      a.DecaySteps,
		DurationMinutes: a.DurationMinutes,
	}
	if a.StartsAt != nil {
		cfg.StartsAt = *a.StartsAt
	}
	return cfg
}

// HasMirror reports whether secondary-currency prices are configured.
func (a *Auction) HasMirror() bool {
	return a.StartPriceUsdc != nil && a.FloorPriceUsdc != nil
}

// QuantityRemaining returns the number of unsold units.
func (a *Auction) QuantityRemaining() int {
	if a.QuantitySold >= a.Quantity {
		return 0
	}
	return a.Quantity - a.QuantitySold
}

// SoldOut reports whether every unit has been sold.
func (a *Auction) SoldOut() bool { return a.QuantitySold >= a.Quantity }
