// Package purchase implements the two-phase buy flow of a descending-price
// auction.  Quote prices the item at the instant of the call without
// touching state; Confirm records the sale with a single conditional write
// once the buyer has paid.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/dutch-auction/internal/lifecycle"
	"github.com/iliyamo/dutch-auction/internal/model"
	"github.com/iliyamo/dutch-auction/internal/pricing"
	"github.com/iliyamo/dutch-auction/internal/repository"
)

// Store is the persistence the coordinator needs.
type Store interface {
	GetAuctionByRef(ctx context.Context, ref string) (*model.Auction, error)
	RecordSale(ctx context.Context, s repository.SaleRecord) (repository.SaleResult, error)
	SaleByReference(ctx context.Context, reference string) (*model.Sale, error)
}

// FeeSource supplies the platform fee percentage, read on every quote.
type FeeSource interface {
	FeePercent() decimal.Decimal
}

// Notifier delivers user notifications.  Failures never affect a sale.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Quote is the priced offer returned by Quote.  Price is the amount the
// buyer must pay; PlatformFee plus MerchantAmount equals Price.
type Quote struct {
	AuctionID        uint64          `json:"auctionId"`
	Currency         model.Currency  `json:"currency"`
	Price            decimal.Decimal `json:"price"`
	PlatformFee      decimal.Decimal `json:"platformFee"`
	MerchantAmount   decimal.Decimal `json:"merchantAmount"`
	PaymentReference string          `json:"paymentReference"`
	MerchantWallet   string          `json:"merchantWallet"`
	Memo             string          `json:"memo"`
	QuotedAt         time.Time       `json:"quotedAt"`
	ExpiresHint      *time.Time      `json:"expiresHint,omitempty"`
}

// ConfirmRequest carries the buyer's settled payment.
type ConfirmRequest struct {
	PaymentTx        string          `json:"paymentTx" validate:"required,max=128"`
	PaymentReference string          `json:"paymentReference" validate:"required,max=64"`
	Currency         model.Currency  `json:"currency" validate:"required,oneof=SOL USDC"`
	PricePaid        decimal.Decimal `json:"pricePaid"`
	ShippingAddress  string          `json:"shippingAddress" validate:"max=1000"`
}

// Outcome is the result of a successful Confirm.  Replayed is true when the
// same buyer retried a confirm that had already succeeded.
type Outcome struct {
	Auction  *model.Auction `json:"auction"`
	Sale     model.Sale     `json:"sale"`
	Final    bool           `json:"final"`
	Replayed bool           `json:"replayed"`
}

// Options tune a Coordinator.
type Options struct {
	MediaRetention time.Duration
	NotifyTimeout  time.Duration
}

// Coordinator runs quotes and confirms.  It is safe for concurrent use; the
// store's conditional write is the only serialization point.
type Coordinator struct {
	store    Store
	fees     FeeSource
	verifier PaymentVerifier
	notifier Notifier
	logger   *zap.Logger
	opts     Options
	now      func() time.Time
	pending  sync.WaitGroup
}

// NewCoordinator wires a coordinator.  A nil verifier trusts the declared
// amount and a nil notifier drops notifications.
func NewCoordinator(store Store, fees FeeSource, verifier PaymentVerifier, notifier Notifier, logger *zap.Logger, opts Options) *Coordinator {
	if verifier == nil {
		verifier = TrustingVerifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	return &Coordinator{
		store:    store,
		fees:     fees,
		verifier: verifier,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// WithClock replaces the coordinator clock.  Used by tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Wait blocks until every in-flight notification has been handed off.
func (c *Coordinator) Wait() { c.pending.Wait() }

func (c *Coordinator) load(ctx context.Context, ref string) (*model.Auction, error) {
	a, err := c.store.GetAuctionByRef(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAuctionNotFound
	}
	return a, err
}

// Quote prices the auction in currency at the instant of the call.  It
// mints a fresh payment reference and mutates nothing.
func (c *Coordinator) Quote(ctx context.Context, ref string, buyerID uint64, currency model.Currency) (*Quote, error) {
	if currency == "" {
		currency = model.CurrencySOL
	}
	a, err := c.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if !lifecycle.Purchasable(a, now) {
		if a.SoldOut() || a.Status == model.StatusSold {
			return nil, ErrAuctionSoldOut
		}
		return nil, ErrAuctionNotLive
	}
	price, ok := pricing.PriceIn(a, currency, now)
	if !ok {
		return nil, ErrUnsupportedCurrency
	}
	fee := SplitFee(currency, price, c.feePercent())
	reference := uuid.NewString()
	q := &Quote{
		AuctionID:        a.ID,
		Currency:         currency,
		Price:            price,
		PlatformFee:      fee,
		MerchantAmount:   price.Sub(fee),
		PaymentReference: reference,
		MerchantWallet:   a.MerchantWallet,
		Memo:             fmt.Sprintf("auction:%d:%s", a.ID, reference),
		QuotedAt:         now.UTC(),
		ExpiresHint:      a.EndsAt,
	}
	c.logger.Debug("quote issued",
		zap.Uint64("auction_id", a.ID), zap.Uint64("buyer_id", buyerID),
		zap.String("currency", string(currency)), zap.String("price", price.String()),
		zap.String("reference", reference))
	return q, nil
}

func (c *Coordinator) feePercent() decimal.Decimal {
	if c.fees == nil {
		return decimal.Zero
	}
	return c.fees.FeePercent()
}

// SplitFee returns the platform fee for price, rounded to the currency's
// precision.  The merchant receives the remainder.
func SplitFee(currency model.Currency, price, percent decimal.Decimal) decimal.Decimal {
	if percent.Sign() <= 0 {
		return decimal.Zero
	}
	fee := price.Mul(percent).Div(decimal.NewFromInt(100)).Round(currency.Precision())
	if fee.GreaterThan(price) {
		return price
	}
	return fee
}

// Confirm records a paid purchase.  The auction is re-validated at call
// time, the paid amount must cover the current price, and the sale is
// committed with one conditional write so two buyers can never take the
// same unit.  A retry with the same reference, tx and buyer returns the
// original outcome.
func (c *Coordinator) Confirm(ctx context.Context, ref string, buyerID uint64, req ConfirmRequest) (*Outcome, error) {
	req.PaymentTx = strings.TrimSpace(req.PaymentTx)
	req.PaymentReference = strings.TrimSpace(req.PaymentReference)
	if req.PaymentTx == "" || req.PaymentReference == "" || req.PricePaid.Sign() <= 0 {
		return nil, ErrInvalidRequest
	}
	a, err := c.load(ctx, ref)
	if err != nil {
		return nil, err
	}

	if out, err := c.replay(ctx, a.ID, buyerID, req); out != nil || err != nil {
		return out, err
	}

	now := c.now()
	if !lifecycle.Purchasable(a, now) {
		if a.SoldOut() || a.Status == model.StatusSold {
			return nil, ErrAuctionAlreadySold
		}
		return nil, ErrAuctionNotLive
	}
	price, ok := pricing.PriceIn(a, req.Currency, now)
	if !ok {
		return nil, ErrUnsupportedCurrency
	}
	if req.PricePaid.LessThan(price) {
		return nil, fmt.Errorf("%w: paid %s, price %s", ErrUnderpaid, req.PricePaid, price)
	}
	received, err := c.verifier.Verify(ctx, Payment{
		AuctionID: a.ID,
		BuyerID:   buyerID,
		Tx:        req.PaymentTx,
		Reference: req.PaymentReference,
		Currency:  req.Currency,
		Declared:  req.PricePaid,
		Recipient: a.MerchantWallet,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentNotVerified, err)
	}
	if received.LessThan(req.PricePaid) {
		return nil, fmt.Errorf("%w: received %s, declared %s", ErrUnderpaid, received, req.PricePaid)
	}

	res, err := c.store.RecordSale(ctx, repository.SaleRecord{
		AuctionID:        a.ID,
		BuyerID:          buyerID,
		Price:            req.PricePaid,
		Currency:         req.Currency,
		PaymentTx:        req.PaymentTx,
		PaymentReference: req.PaymentReference,
		ShippingAddress:  req.ShippingAddress,
		SoldAt:           now,
		MediaExpiresAt:   now.Add(c.opts.MediaRetention),
	})
	switch {
	case errors.Is(err, repository.ErrSaleConflict):
		if out, rerr := c.replay(ctx, a.ID, buyerID, req); out != nil || rerr != nil {
			return out, rerr
		}
		return nil, c.lostRace(ctx, a.ID)
	case errors.Is(err, repository.ErrDuplicatePayment):
		if out, rerr := c.replay(ctx, a.ID, buyerID, req); out != nil || rerr != nil {
			return out, rerr
		}
		return nil, ErrPaymentReferenceUsed
	case err != nil:
		return nil, err
	}

	c.logger.Info("auction unit sold",
		zap.Uint64("auction_id", a.ID), zap.Uint64("buyer_id", buyerID),
		zap.String("price", req.PricePaid.String()), zap.String("currency", string(req.Currency)),
		zap.String("reference", req.PaymentReference), zap.Bool("final", res.Final))
	c.notifySale(a, res.Sale)

	updated, err := c.store.GetAuctionByRef(ctx, strconv.FormatUint(a.ID, 10))
	if err != nil {
		// The sale is committed; report it even if the re-read failed.
		c.logger.Warn("reload after sale failed", zap.Uint64("auction_id", a.ID), zap.Error(err))
		updated = a
	}
	return &Outcome{Auction: updated, Sale: res.Sale, Final: res.Final}, nil
}

// replay resolves a payment reference that already has a sale.  It returns
// (nil, nil) when the reference is unused.
func (c *Coordinator) replay(ctx context.Context, auctionID, buyerID uint64, req ConfirmRequest) (*Outcome, error) {
	sale, err := c.store.SaleByReference(ctx, req.PaymentReference)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sale.AuctionID != auctionID || sale.BuyerID != buyerID || sale.PaymentTx != req.PaymentTx {
		return nil, ErrPaymentReferenceUsed
	}
	a, err := c.store.GetAuctionByRef(ctx, strconv.FormatUint(auctionID, 10))
	if err != nil {
		return nil, err
	}
	final := a.WinnerID != nil && a.PaymentReference != nil && *a.PaymentReference == sale.PaymentReference
	return &Outcome{Auction: a, Sale: *sale, Final: final, Replayed: true}, nil
}

// lostRace classifies a failed conditional write by re-reading the auction.
func (c *Coordinator) lostRace(ctx context.Context, auctionID uint64) error {
	a, err := c.store.GetAuctionByRef(ctx, strconv.FormatUint(auctionID, 10))
	if err != nil {
		return ErrAuctionAlreadySold
	}
	if a.Status == model.StatusSold || a.SoldOut() {
		return ErrAuctionAlreadySold
	}
	return ErrAuctionNotLive
}

// notifySale tells the seller and the buyer about the sale in the
// background.  Errors are logged and otherwise ignored.
func (c *Coordinator) notifySale(a *model.Auction, sale model.Sale) {
	if c.notifier == nil {
		return
	}
	meta := map[string]any{
		"auctionId":        a.ID,
		"auctionSlug":      a.Slug,
		"price":            sale.Price.String(),
		"currency":         string(sale.Currency),
		"paymentReference": sale.PaymentReference,
	}
	notes := []model.Notification{
		{
			UserID:   a.MerchantID,
			Type:     model.NotificationAuctionSold,
			Title:    "Your auction sold",
			Message:  fmt.Sprintf("%q sold for %s %s.", a.Title, sale.Price, sale.Currency),
			Metadata: meta,
		},
		{
			UserID:   sale.BuyerID,
			Type:     model.NotificationOrderConfirmed,
			Title:    "Order confirmed",
			Message:  fmt.Sprintf("You bought %q for %s %s.", a.Title, sale.Price, sale.Currency),
			Metadata: meta,
		},
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.NotifyTimeout)
		defer cancel()
		for _, n := range notes {
			n.CreatedAt = sale.SoldAt
			if err := c.notifier.Notify(ctx, n); err != nil {
				c.logger.Warn("notification failed",
					zap.Uint64("user_id", n.UserID), zap.String("type", n.Type), zap.Error(err))
			}
		}
	}()
}
