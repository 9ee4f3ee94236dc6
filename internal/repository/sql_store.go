package repository

import "database/sql"

// SQLStore bundles the MySQL repositories into one Store.
type SQLStore struct {
	*AuctionRepo
	*MessageRepo
	*UserRepo
	*StoreRepo
	*NotificationRepo
}

// NewSQLStore returns a Store backed by the given database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		AuctionRepo:      NewAuctionRepo(db),
		MessageRepo:      NewMessageRepo(db),
		UserRepo:         NewUserRepo(db),
		StoreRepo:        NewStoreRepo(db),
		NotificationRepo: NewNotificationRepo(db),
	}
}

var _ Store = (*SQLStore)(nil)
