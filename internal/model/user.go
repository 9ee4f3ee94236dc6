package model

import "time"

// Roles carried in the JWT "role" claim.
const (
	RoleBuyer    = "BUYER"
	RoleMerchant = "MERCHANT"
	RoleAdmin    = "ADMIN"
)

// User represents an application user record as stored in the `users`
// table.  Authentication itself (wallet signatures, sessions) happens outside
// this service; the auction core only needs the id, the wallet and the role.
//
// Fields:
//  ID            – primary key identifier of the user.
//  WalletAddress – unique wallet the user signs in with.
//  Role          – BUYER, MERCHANT or ADMIN.
//  CreatedAt     – timestamp of creation.
type User struct {
	ID            uint64    // users.id
	WalletAddress string    // users.wallet_address
	Role          string    // users.role
	CreatedAt     time.Time // users.created_at
}

// Actor is the authenticated caller of a lifecycle or purchase operation.
type Actor struct {
	UserID uint64
	Role   string
}

// IsAdmin reports whether the actor holds the ADMIN role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
