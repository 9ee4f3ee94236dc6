package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/dutch-auction/internal/model"
)

// AuctionFilter narrows ListAuctions.  Zero values mean "no filter".  Drafts
// are excluded unless IncludeDrafts is set or DRAFT is requested explicitly.
type AuctionFilter struct {
	Statuses      []model.AuctionStatus
	StoreID       uint64
	MerchantID    uint64
	IncludeDrafts bool
	Limit         int
	Offset        int
}

// Transition describes a conditional status change.  The update only
// applies while the auction is in one of From; RequireUnsold additionally
// demands quantity_sold = 0.  StartsAt and EndsAt are written when set.
type Transition struct {
	AuctionID     uint64
	From          []model.AuctionStatus
	To            model.AuctionStatus
	RequireUnsold bool
	StartsAt      *time.Time
	EndsAt        *time.Time
}

// SweepResult counts the rows moved by one SweepStatuses run.
type SweepResult struct {
	Started int64
	Ended   int64
}

// SaleRecord is the input of RecordSale.  Price is the amount the buyer
// actually paid and is stored verbatim.
type SaleRecord struct {
	AuctionID        uint64
	BuyerID          uint64
	Price            decimal.Decimal
	Currency         model.Currency
	PaymentTx        string
	PaymentReference string
	ShippingAddress  string
	SoldAt           time.Time
	MediaExpiresAt   time.Time
}

// SaleResult is returned by a successful RecordSale.  Final is true when the
// sale consumed the last unit and moved the auction to SOLD.
type SaleResult struct {
	Sale  model.Sale
	Final bool
}

// Store is the full persistence contract of the service.  SQLStore backs it
// with MySQL and MemoryStore keeps everything in process memory.
type Store interface {
	CreateAuction(ctx context.Context, a *model.Auction) error
	UpdateAuction(ctx context.Context, a *model.Auction) error
	GetAuction(ctx context.Context, id uint64) (*model.Auction, error)
	GetAuctionByRef(ctx context.Context, ref string) (*model.Auction, error)
	ListAuctions(ctx context.Context, f AuctionFilter) ([]model.Auction, error)
	CountByStatus(ctx context.Context) (map[model.AuctionStatus]int, error)
	TransitionStatus(ctx context.Context, t Transition) error
	SweepStatuses(ctx context.Context, now time.Time) (SweepResult, error)
	RecordSale(ctx context.Context, s SaleRecord) (SaleResult, error)
	SaleByReference(ctx context.Context, reference string) (*model.Sale, error)

	AppendMessage(ctx context.Context, m *model.ChatMessage) error
	MessagesSince(ctx context.Context, auctionID uint64, after time.Time, afterID uint64, limit int) ([]model.ChatMessage, error)
	RecentMessages(ctx context.Context, auctionID uint64, limit int) ([]model.ChatMessage, error)

	GetStore(ctx context.Context, id uint64) (*model.Store, error)
	UserIDByWallet(ctx context.Context, wallet string) (uint64, error)
	InsertNotification(ctx context.Context, n model.Notification) error
}

// editableStatuses are the statuses in which the pricing configuration and
// presentation fields may still change.
var editableStatuses = []model.AuctionStatus{model.StatusDraft, model.StatusScheduled}

func normalizeLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
