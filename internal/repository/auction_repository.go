package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/dutch-auction/internal/model"
)

// AuctionRepo provides persistence for auctions and their sales.  All
// timestamps are written and read in UTC.  Status changes are always
// conditional UPDATE statements so concurrent writers can never move an
// auction out of a state they did not observe.
type AuctionRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewAuctionRepo returns a new AuctionRepo bound to the given database.
func NewAuctionRepo(db *sql.DB) *AuctionRepo {
	return &AuctionRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const auctionSelect = `SELECT a.id, a.slug, a.store_id, a.merchant_id, a.title, a.description, a.images, a.video_url,
       a.start_price, a.floor_price, a.decay_type, a.decay_steps, a.duration_minutes,
       a.start_price_usdc, a.floor_price_usdc, a.starts_at, a.ends_at, a.media_expires_at,
       a.quantity, a.quantity_sold, a.winner_id, a.winning_price, a.sold_at,
       a.payment_currency, a.payment_tx, a.payment_reference, a.status,
       COALESCE(s.wallet_address, ''), a.created_at, a.updated_at
  FROM auctions a
  LEFT JOIN stores s ON s.id = a.store_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(sc rowScanner) (*model.Auction, error) {
	var (
		a                          model.Auction
		images, steps              []byte
		video, payCur, payTx       sql.NullString
		payRef                     sql.NullString
		startU, floorU, winPrice   decimal.NullDecimal
		startsAt, endsAt, mediaExp sql.NullTime
		soldAt                     sql.NullTime
		winner                     sql.NullInt64
		decay, status              string
	)
	err := sc.Scan(
		&a.ID, &a.Slug, &a.StoreID, &a.MerchantID, &a.Title, &a.Description, &images, &video,
		&a.StartPrice, &a.FloorPrice, &decay, &steps, &a.DurationMinutes,
		&startU, &floorU, &startsAt, &endsAt, &mediaExp,
		&a.Quantity, &a.QuantitySold, &winner, &winPrice, &soldAt,
		&payCur, &payTx, &payRef, &status,
		&a.MerchantWallet, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.DecayType = model.DecayType(decay)
	a.Status = model.AuctionStatus(status)
	a.Images = []string{}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &a.Images); err != nil {
			return nil, fmt.Errorf("auction %d images: %w", a.ID, err)
		}
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &a.DecaySteps); err != nil {
			return nil, fmt.Errorf("auction %d decay steps: %w", a.ID, err)
		}
	}
	a.VideoURL = stringPtr(video)
	a.PaymentTx = stringPtr(payTx)
	a.PaymentReference = stringPtr(payRef)
	if payCur.Valid {
		c := model.Currency(payCur.String)
		a.PaymentCurrency = &c
	}
	a.StartPriceUsdc = decimalPtr(startU)
	a.FloorPriceUsdc = decimalPtr(floorU)
	a.WinningPrice = decimalPtr(winPrice)
	a.StartsAt = timePtr(startsAt)
	a.EndsAt = timePtr(endsAt)
	a.MediaExpiresAt = timePtr(mediaExp)
	a.SoldAt = timePtr(soldAt)
	if winner.Valid {
		w := uint64(winner.Int64)
		a.WinnerID = &w
	}
	return &a, nil
}

// CreateAuction inserts a new auction and populates its ID and timestamps.
// A taken slug yields ErrConflict.
func (r *AuctionRepo) CreateAuction(ctx context.Context, a *model.Auction) error {
	images, steps, err := encodeAuctionJSON(a)
	if err != nil {
		return err
	}
	now := r.now()
	const q = `INSERT INTO auctions (slug, store_id, merchant_id, title, description, images, video_url,
        start_price, floor_price, decay_type, decay_steps, duration_minutes, start_price_usdc, floor_price_usdc,
        starts_at, ends_at, quantity, quantity_sold, status, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,0,?,?,?)`
	res, err := r.db.ExecContext(ctx, q,
		a.Slug, a.StoreID, a.MerchantID, a.Title, a.Description, images, a.VideoURL,
		a.StartPrice, a.FloorPrice, string(a.DecayType), steps, a.DurationMinutes, a.StartPriceUsdc, a.FloorPriceUsdc,
		a.StartsAt, a.EndsAt, a.Quantity, string(a.Status), now, now,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	a.QuantitySold = 0
	a.CreatedAt, a.UpdatedAt = now, now
	return nil
}

// UpdateAuction rewrites the editable fields of an auction.  The write only
// applies while the auction is DRAFT or SCHEDULED; otherwise ErrConflict is
// returned.  Status and outcome fields are never touched here.
func (r *AuctionRepo) UpdateAuction(ctx context.Context, a *model.Auction) error {
	images, steps, err := encodeAuctionJSON(a)
	if err != nil {
		return err
	}
	now := r.now()
	const q = `UPDATE auctions SET slug=?, title=?, description=?, images=?, video_url=?,
        start_price=?, floor_price=?, decay_type=?, decay_steps=?, duration_minutes=?,
        start_price_usdc=?, floor_price_usdc=?, starts_at=?, ends_at=?, quantity=?, updated_at=?
        WHERE id=? AND status IN (?,?)`
	res, err := r.db.ExecContext(ctx, q,
		a.Slug, a.Title, a.Description, images, a.VideoURL,
		a.StartPrice, a.FloorPrice, string(a.DecayType), steps, a.DurationMinutes,
		a.StartPriceUsdc, a.FloorPriceUsdc, a.StartsAt, a.EndsAt, a.Quantity, now,
		a.ID, string(editableStatuses[0]), string(editableStatuses[1]),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	if err := r.expectOne(ctx, res, a.ID); err != nil {
		return err
	}
	a.UpdatedAt = now
	return nil
}

// expectOne turns a zero-row conditional update into ErrNotFound or
// ErrConflict depending on whether the auction exists.
func (r *AuctionRepo) expectOne(ctx context.Context, res sql.Result, id uint64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM auctions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConflict
}

// GetAuction loads an auction by id.
func (r *AuctionRepo) GetAuction(ctx context.Context, id uint64) (*model.Auction, error) {
	a, err := scanAuction(r.db.QueryRowContext(ctx, auctionSelect+` WHERE a.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// GetAuctionByRef resolves a numeric id or a slug.
func (r *AuctionRepo) GetAuctionByRef(ctx context.Context, ref string) (*model.Auction, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return r.GetAuction(ctx, id)
	}
	a, err := scanAuction(r.db.QueryRowContext(ctx, auctionSelect+` WHERE a.slug = ?`, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAuctions returns auctions matching f, newest start first.
func (r *AuctionRepo) ListAuctions(ctx context.Context, f AuctionFilter) ([]model.Auction, error) {
	where := []string{"1=1"}
	args := []any{}
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ph[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "a.status IN ("+strings.Join(ph, ",")+")")
	} else if !f.IncludeDrafts {
		where = append(where, "a.status <> ?")
		args = append(args, string(model.StatusDraft))
	}
	if f.StoreID > 0 {
		where = append(where, "a.store_id = ?")
		args = append(args, f.StoreID)
	}
	if f.MerchantID > 0 {
		where = append(where, "a.merchant_id = ?")
		args = append(args, f.MerchantID)
	}
	q := auctionSelect + " WHERE " + strings.Join(where, " AND ") +
		" ORDER BY COALESCE(a.starts_at, a.created_at) DESC, a.id DESC LIMIT ? OFFSET ?"
	args = append(args, normalizeLimit(f.Limit, 20, 100), max(f.Offset, 0))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Auction{}
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of auctions per persisted status.
func (r *AuctionRepo) CountByStatus(ctx context.Context) (map[model.AuctionStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM auctions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[model.AuctionStatus]int{}
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[model.AuctionStatus(s)] = n
	}
	return out, rows.Err()
}

// TransitionStatus applies t as one conditional UPDATE.  It returns
// ErrConflict when the auction exists but is not in an expected state.
func (r *AuctionRepo) TransitionStatus(ctx context.Context, t Transition) error {
	if len(t.From) == 0 {
		return fmt.Errorf("transition to %s: no source status", t.To)
	}
	set := []string{"status = ?", "updated_at = ?"}
	args := []any{string(t.To), r.now()}
	if t.StartsAt != nil {
		set = append(set, "starts_at = ?")
		args = append(args, *t.StartsAt)
	}
	if t.EndsAt != nil {
		set = append(set, "ends_at = ?")
		args = append(args, *t.EndsAt)
	}
	ph := make([]string, len(t.From))
	args = append(args, t.AuctionID)
	for i, s := range t.From {
		ph[i] = "?"
		args = append(args, string(s))
	}
	q := "UPDATE auctions SET " + strings.Join(set, ", ") +
		" WHERE id = ? AND status IN (" + strings.Join(ph, ",") + ")"
	if t.RequireUnsold {
		q += " AND quantity_sold = 0"
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	return r.expectOne(ctx, res, t.AuctionID)
}

// SweepStatuses moves SCHEDULED auctions whose start has passed to LIVE and
// LIVE auctions whose end has passed with stock left to ENDED_UNSOLD.  The
// two statements run in that order so an overdue schedule ends in one pass.
func (r *AuctionRepo) SweepStatuses(ctx context.Context, now time.Time) (SweepResult, error) {
	var out SweepResult
	now = now.UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET status = ?, updated_at = ? WHERE status = ? AND starts_at IS NOT NULL AND starts_at <= ?`,
		string(model.StatusLive), now, string(model.StatusScheduled), now)
	if err != nil {
		return out, fmt.Errorf("start scheduled: %w", err)
	}
	out.Started, _ = res.RowsAffected()

	res, err = r.db.ExecContext(ctx,
		`UPDATE auctions SET status = ?, updated_at = ? WHERE status = ? AND ends_at <= ? AND quantity_sold < quantity`,
		string(model.StatusEndedUnsold), now, string(model.StatusLive), now)
	if err != nil {
		return out, fmt.Errorf("end expired: %w", err)
	}
	out.Ended, _ = res.RowsAffected()
	return out, nil
}

// RecordSale commits one sold unit.  Inside one transaction it increments
// quantity_sold with a conditional UPDATE (LIVE, stock left, not expired)
// and inserts the auction_sales row.  On the final unit the same UPDATE sets
// the auction to SOLD together with the outcome fields.  MySQL evaluates the
// SET list left to right, so the outcome columns are assigned before
// quantity_sold is incremented.
func (r *AuctionRepo) RecordSale(ctx context.Context, s SaleRecord) (SaleResult, error) {
	soldAt := s.SoldAt.UTC()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return SaleResult{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const upd = `UPDATE auctions SET
        status            = IF(quantity_sold + 1 >= quantity, ?, status),
        winner_id         = IF(quantity_sold + 1 >= quantity, ?, winner_id),
        winning_price     = IF(quantity_sold + 1 >= quantity, ?, winning_price),
        sold_at           = IF(quantity_sold + 1 >= quantity, ?, sold_at),
        payment_currency  = IF(quantity_sold + 1 >= quantity, ?, payment_currency),
        payment_tx        = IF(quantity_sold + 1 >= quantity, ?, payment_tx),
        payment_reference = IF(quantity_sold + 1 >= quantity, ?, payment_reference),
        media_expires_at  = IF(quantity_sold + 1 >= quantity, ?, media_expires_at),
        quantity_sold     = quantity_sold + 1,
        updated_at        = ?
        WHERE id = ? AND status = ? AND quantity_sold < quantity AND ends_at > ?`
	res, err := tx.ExecContext(ctx, upd,
		string(model.StatusSold), s.BuyerID, s.Price, soldAt, string(s.Currency),
		s.PaymentTx, s.PaymentReference, s.MediaExpiresAt.UTC(), soldAt,
		s.AuctionID, string(model.StatusLive), soldAt,
	)
	if err != nil {
		return SaleResult{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return SaleResult{}, err
	} else if n == 0 {
		return SaleResult{}, ErrSaleConflict
	}

	const ins = `INSERT INTO auction_sales (auction_id, buyer_id, price, currency, payment_tx, payment_reference, shipping_address, sold_at)
        VALUES (?,?,?,?,?,?,?,?)`
	ir, err := tx.ExecContext(ctx, ins,
		s.AuctionID, s.BuyerID, s.Price, string(s.Currency), s.PaymentTx, s.PaymentReference, s.ShippingAddress, soldAt)
	if err != nil {
		if isDuplicateKey(err) {
			return SaleResult{}, ErrDuplicatePayment
		}
		return SaleResult{}, err
	}
	saleID, err := ir.LastInsertId()
	if err != nil {
		return SaleResult{}, err
	}

	var status string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM auctions WHERE id = ?`, s.AuctionID).Scan(&status); err != nil {
		return SaleResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return SaleResult{}, err
	}
	committed = true

	return SaleResult{
		Sale: model.Sale{
			ID:               uint64(saleID),
			AuctionID:        s.AuctionID,
			BuyerID:          s.BuyerID,
			Price:            s.Price,
			Currency:         s.Currency,
			PaymentTx:        s.PaymentTx,
			PaymentReference: s.PaymentReference,
			ShippingAddress:  s.ShippingAddress,
			SoldAt:           soldAt,
		},
		Final: model.AuctionStatus(status) == model.StatusSold,
	}, nil
}

// SaleByReference loads the sale recorded under a payment reference.
func (r *AuctionRepo) SaleByReference(ctx context.Context, reference string) (*model.Sale, error) {
	const q = `SELECT id, auction_id, buyer_id, price, currency, payment_tx, payment_reference, shipping_address, sold_at
        FROM auction_sales WHERE payment_reference = ? LIMIT 1`
	var s model.Sale
	var cur string
	err := r.db.QueryRowContext(ctx, q, reference).Scan(
		&s.ID, &s.AuctionID, &s.BuyerID, &s.Price, &cur, &s.PaymentTx, &s.PaymentReference, &s.ShippingAddress, &s.SoldAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Currency = model.Currency(cur)
	return &s, nil
}

// encodeAuctionJSON renders the JSON columns.  Steps are NULL for linear
// decay.
func encodeAuctionJSON(a *model.Auction) (images string, steps any, err error) {
	imgs := a.Images
	if imgs == nil {
		imgs = []string{}
	}
	b, err := json.Marshal(imgs)
	if err != nil {
		return "", nil, err
	}
	if len(a.DecaySteps) == 0 {
		return string(b), nil, nil
	}
	sb, err := json.Marshal(a.DecaySteps)
	if err != nil {
		return "", nil, err
	}
	return string(b), string(sb), nil
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func decimalPtr(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}
