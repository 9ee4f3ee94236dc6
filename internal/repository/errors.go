// Package repository defines the persistence layer of the auction service
// and the error values shared by every store implementation.  These
// sentinel values allow higher layers such as the purchase coordinator and
// the HTTP handlers to distinguish between failure scenarios without
// depending on driver specific errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when an auction, sale, store or user does not
// exist.  Handlers translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate it into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a conditional update matched no row because
// the auction is no longer in the expected state, or when a unique key such
// as the slug is already taken.
var ErrConflict = errors.New("conflict")

// ErrSaleConflict is returned by RecordSale when the conditional update did
// not match: the auction is not LIVE any more, every unit is sold, or the
// auction has expired.
var ErrSaleConflict = errors.New("sale conflict")

// ErrDuplicatePayment is returned by RecordSale when the payment tx or the
// payment reference was already used by another sale.
var ErrDuplicatePayment = errors.New("payment already recorded")

// isDuplicateKey reports whether err is a MySQL duplicate entry error (1062).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
