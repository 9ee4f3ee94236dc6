package purchase

import "errors"

// Errors returned by Quote and Confirm.  Each maps to one machine readable
// code at the HTTP layer; ErrAuctionAlreadySold is kept distinct from the
// generic not-live case so the losing buyer of a race can be told that
// someone else bought the item.
var (
	ErrAuctionNotFound      = errors.New("auction not found")
	ErrAuctionNotLive       = errors.New("auction is no longer active")
	ErrAuctionSoldOut       = errors.New("auction is sold out")
	ErrAuctionAlreadySold   = errors.New("someone else bought this auction")
	ErrPaymentReferenceUsed = errors.New("payment reference already used")
	ErrUnderpaid            = errors.New("payment is below the current price")
	ErrUnsupportedCurrency  = errors.New("currency not accepted for this auction")
	ErrInvalidRequest       = errors.New("invalid purchase request")
	ErrPaymentNotVerified   = errors.New("payment could not be verified")
)
