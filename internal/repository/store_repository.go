package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/dutch-auction/internal/model"
)

// StoreRepo reads merchant storefronts.  Only the owner and payout wallet
// matter to auctions.
type StoreRepo struct {
	db *sql.DB
}

// NewStoreRepo returns a new StoreRepo bound to the given database.
func NewStoreRepo(db *sql.DB) *StoreRepo { return &StoreRepo{db: db} }

// GetStore returns the store with the given id or ErrNotFound.
func (r *StoreRepo) GetStore(ctx context.Context, id uint64) (*model.Store, error) {
	const q = `SELECT id, owner_id, name, wallet_address, created_at FROM stores WHERE id = ?`
	var s model.Store
	err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.OwnerID, &s.Name, &s.WalletAddress, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
