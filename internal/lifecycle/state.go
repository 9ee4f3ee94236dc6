// Package lifecycle owns the auction state machine: which transitions exist,
// who may trigger them, and the merchant operations that drive an auction
// from draft to live.  Only the purchase coordinator moves an auction to
// SOLD; nothing here does.
package lifecycle

import (
	"errors"
	"time"

	"github.com/iliyamo/dutch-auction/internal/model"
	"github.com/iliyamo/dutch-auction/internal/repository"
)

var (
	// ErrForbidden means the actor neither owns the auction nor is an admin.
	ErrForbidden = repository.ErrForbidden
	// ErrInvalidTransition means the auction's status does not allow the action.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCancelAfterSale means a LIVE auction already sold a unit.
	ErrCancelAfterSale = errors.New("auction cannot be cancelled after a sale")
	// ErrValidation wraps every rejected auction input.
	ErrValidation = errors.New("validation failed")
)

// Action is a merchant or admin operation on an auction.
type Action string

const (
	ActionEdit     Action = "edit"
	ActionSchedule Action = "schedule"
	ActionCancel   Action = "cancel"
)

var transitions = map[model.AuctionStatus][]model.AuctionStatus{
	model.StatusDraft:     {model.StatusScheduled, model.StatusCancelled},
	model.StatusScheduled: {model.StatusLive, model.StatusCancelled},
	model.StatusLive:      {model.StatusSold, model.StatusEndedUnsold, model.StatusCancelled},
}

// CanTransition reports whether the state machine has an edge from -> to.
func CanTransition(from, to model.AuctionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Editable reports whether presentation and pricing fields may change.
func Editable(s model.AuctionStatus) bool {
	return s == model.StatusDraft || s == model.StatusScheduled
}

// EffectiveStatus is the status shown to viewers at now.  The persisted
// status only changes on a sweep, so a SCHEDULED auction past its start
// reads as LIVE and a LIVE auction past its end with stock left reads as
// ENDED_UNSOLD.  It never writes.
func EffectiveStatus(a *model.Auction, now time.Time) model.AuctionStatus {
	switch a.Status {
	case model.StatusScheduled:
		if a.StartsAt == nil || now.Before(*a.StartsAt) {
			return model.StatusScheduled
		}
		if expired(a, now) {
			return model.StatusEndedUnsold
		}
		return model.StatusLive
	case model.StatusLive:
		if a.SoldOut() {
			return model.StatusSold
		}
		if expired(a, now) {
			return model.StatusEndedUnsold
		}
	}
	return a.Status
}

// Purchasable reports whether a sale may be attempted at now: the persisted
// status is LIVE, stock remains and the end has not passed.
func Purchasable(a *model.Auction, now time.Time) bool {
	return a.Status == model.StatusLive && !a.SoldOut() && !expired(a, now)
}

func expired(a *model.Auction, now time.Time) bool {
	return a.EndsAt != nil && !now.Before(*a.EndsAt)
}

// Authorize checks that actor may perform action on a.  Ownership is checked
// first so a stranger never learns the auction's state.
func Authorize(actor model.Actor, a *model.Auction, action Action) error {
	if !actor.IsAdmin() && !(actor.Role == model.RoleMerchant && actor.UserID == a.MerchantID) {
		return ErrForbidden
	}
	switch action {
	case ActionEdit:
		if !Editable(a.Status) {
			return ErrInvalidTransition
		}
	case ActionSchedule:
		if !CanTransition(a.Status, model.StatusScheduled) {
			return ErrInvalidTransition
		}
	case ActionCancel:
		if !CanTransition(a.Status, model.StatusCancelled) {
			return ErrInvalidTransition
		}
		if a.Status == model.StatusLive && a.QuantitySold > 0 {
			return ErrCancelAfterSale
		}
	default:
		return ErrInvalidTransition
	}
	return nil
}
