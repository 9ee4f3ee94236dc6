package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// UserRepo resolves users.  Accounts are created by the marketplace; the
// auction service only reads them.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// UserIDByWallet returns the id of the user owning wallet, or ErrNotFound.
func (r *UserRepo) UserIDByWallet(ctx context.Context, wallet string) (uint64, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return 0, ErrNotFound
	}
	var id uint64
	err := r.DB.QueryRowContext(ctx,
		"SELECT id FROM users WHERE wallet_address=? LIMIT 1", wallet).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}
