package purchase

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/dutch-auction/internal/model"
)

// Payment describes a settled transfer the buyer claims to have made.
type Payment struct {
	AuctionID uint64
	BuyerID   uint64
	Tx        string
	Reference string
	Currency  model.Currency
	Declared  decimal.Decimal
	Recipient string
}

// PaymentVerifier confirms a payment on its rail and reports the amount
// actually received.
type PaymentVerifier interface {
	Verify(ctx context.Context, p Payment) (decimal.Decimal, error)
}

// TrustingVerifier accepts the declared amount as received.  It stands in
// until an on-chain verifier is plugged in.
type TrustingVerifier struct{}

func (TrustingVerifier) Verify(_ context.Context, p Payment) (decimal.Decimal, error) {
	return p.Declared, nil
}
