package model

import "time"

// Store represents a merchant storefront.  Auctions belong to a store and
// payouts are sent to the store's wallet.  This struct corresponds to a row
// in the `stores` table.
//
// Fields:
//  ID            – primary key identifier.
//  OwnerID       – user ID of the merchant owning the store.
//  Name          – display name.
//  WalletAddress – payout destination for merchant amounts.
//  CreatedAt     – timestamp when the store was created.
type Store struct {
	ID            uint64    // stores.id
	OwnerID       uint64    // stores.owner_id
	Name          string    // stores.name
	WalletAddress string    // stores.wallet_address
	CreatedAt     time.Time // stores.created_at
}
