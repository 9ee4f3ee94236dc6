package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dutch-auction/internal/model"
	"github.com/iliyamo/dutch-auction/internal/repository"
)

var now = time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)

var (
	merchant = model.Actor{UserID: 10, Role: model.RoleMerchant}
	stranger = model.Actor{UserID: 11, Role: model.RoleMerchant}
	admin    = model.Actor{UserID: 1, Role: model.RoleAdmin}
	buyer    = model.Actor{UserID: 20, Role: model.RoleBuyer}
)

func newService(t *testing.T) (*Service, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore().WithClock(func() time.Time { return now })
	store.AddStore(model.Store{ID: 5, OwnerID: merchant.UserID, Name: "Shop", WalletAddress: "shop-wallet"})
	return NewService(store, nil, nil).WithClock(func() time.Time { return now }), store
}

func input() AuctionInput {
	return AuctionInput{
		StoreID:         5,
		Title:           "Vintage Camera",
		StartPrice:      decimal.NewFromInt(10),
		FloorPrice:      decimal.NewFromInt(2),
		DecayType:       model.DecayLinear,
		DurationMinutes: 60,
		Quantity:        1,
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(model.StatusDraft, model.StatusScheduled))
	assert.True(t, CanTransition(model.StatusScheduled, model.StatusLive))
	assert.True(t, CanTransition(model.StatusLive, model.StatusSold))
	assert.True(t, CanTransition(model.StatusLive, model.StatusEndedUnsold))
	assert.True(t, CanTransition(model.StatusLive, model.StatusCancelled))
	assert.False(t, CanTransition(model.StatusDraft, model.StatusLive))
	assert.False(t, CanTransition(model.StatusSold, model.StatusCancelled))
	assert.False(t, CanTransition(model.StatusCancelled, model.StatusLive))
	assert.False(t, CanTransition(model.StatusEndedUnsold, model.StatusLive))
}

func TestEffectiveStatus(t *testing.T) {
	start, end := now, now.Add(time.Hour)
	a := &model.Auction{Status: model.StatusScheduled, StartsAt: &start, EndsAt: &end, Quantity: 1}

	assert.Equal(t, model.StatusScheduled, EffectiveStatus(a, now.Add(-time.Second)))
	assert.Equal(t, model.StatusLive, EffectiveStatus(a, now))
	assert.Equal(t, model.StatusEndedUnsold, EffectiveStatus(a, end))

	a.Status = model.StatusLive
	assert.Equal(t, model.StatusLive, EffectiveStatus(a, now.Add(30*time.Minute)))
	assert.Equal(t, model.StatusEndedUnsold, EffectiveStatus(a, end))
	assert.True(t, Purchasable(a, now.Add(30*time.Minute)))
	assert.False(t, Purchasable(a, end))

	a.QuantitySold = 1
	assert.Equal(t, model.StatusSold, EffectiveStatus(a, now))

	a.Status = model.StatusCancelled
	assert.Equal(t, model.StatusCancelled, EffectiveStatus(a, now))
}

func TestAuthorize(t *testing.T) {
	a := &model.Auction{MerchantID: merchant.UserID, Status: model.StatusDraft}
	assert.NoError(t, Authorize(merchant, a, ActionEdit))
	assert.NoError(t, Authorize(admin, a, ActionSchedule))
	assert.ErrorIs(t, Authorize(stranger, a, ActionEdit), ErrForbidden)
	assert.ErrorIs(t, Authorize(buyer, a, ActionCancel), ErrForbidden)

	a.Status = model.StatusLive
	assert.ErrorIs(t, Authorize(merchant, a, ActionEdit), ErrInvalidTransition)
	assert.NoError(t, Authorize(merchant, a, ActionCancel))
	a.QuantitySold = 1
	assert.ErrorIs(t, Authorize(merchant, a, ActionCancel), ErrCancelAfterSale)

	a.Status = model.StatusSold
	assert.ErrorIs(t, Authorize(admin, a, ActionCancel), ErrInvalidTransition)
}

func TestCreateValidates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	bad := input()
	bad.FloorPrice = decimal.NewFromInt(10)
	_, err := svc.Create(ctx, merchant, bad)
	assert.ErrorIs(t, err, ErrValidation)

	bad = input()
	bad.Title = ""
	_, err = svc.Create(ctx, merchant, bad)
	assert.ErrorIs(t, err, ErrValidation)

	bad = input()
	bad.DecayType = model.DecayStepped
	_, err = svc.Create(ctx, merchant, bad)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, stranger, input())
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Create(ctx, buyer, input())
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateScheduleCancel(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, merchant, input())
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, a.Status)
	assert.Equal(t, "vintage-camera", a.Slug)
	assert.Equal(t, "shop-wallet", a.MerchantWallet)

	second, err := svc.Create(ctx, merchant, input())
	require.NoError(t, err)
	assert.NotEqual(t, a.Slug, second.Slug)

	_, err = svc.Schedule(ctx, merchant, a.ID, nil)
	assert.ErrorIs(t, err, ErrValidation, "no start time")

	past := now.Add(-time.Minute)
	_, err = svc.Schedule(ctx, merchant, a.ID, &past)
	assert.ErrorIs(t, err, ErrValidation)

	start := now.Add(time.Hour)
	sched, err := svc.Schedule(ctx, merchant, a.ID, &start)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, sched.Status)
	require.NotNil(t, sched.EndsAt)
	assert.Equal(t, start.Add(time.Hour), *sched.EndsAt)

	_, err = svc.Schedule(ctx, merchant, a.ID, &start)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	in := input()
	in.Title = "Vintage Camera (boxed)"
	in.StartsAt = &start
	upd, err := svc.Update(ctx, merchant, a.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Vintage Camera (boxed)", upd.Title)

	_, err = svc.Cancel(ctx, stranger, a.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	c, err := svc.Cancel(ctx, merchant, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, c.Status)

	_, err = svc.Update(ctx, merchant, a.ID, in)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	counts, _ := store.CountByStatus(ctx)
	assert.Equal(t, 1, counts[model.StatusCancelled])
}

func TestCancelBlockedAfterSale(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, merchant, func() AuctionInput { in := input(); in.Quantity = 2; return in }())
	require.NoError(t, err)
	start := now.Add(time.Minute)
	_, err = svc.Schedule(ctx, merchant, a.ID, &start)
	require.NoError(t, err)

	_, err = store.SweepStatuses(ctx, start)
	require.NoError(t, err)
	_, err = store.RecordSale(ctx, repository.SaleRecord{
		AuctionID: a.ID, BuyerID: 20, Price: decimal.NewFromInt(9), Currency: model.CurrencySOL,
		PaymentTx: "tx", PaymentReference: "ref", SoldAt: start.Add(time.Minute),
	})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, admin, a.ID)
	assert.ErrorIs(t, err, ErrCancelAfterSale)
}

func TestSweep(t *testing.T) {
	clock := now
	store := repository.NewMemoryStore()
	store.AddStore(model.Store{ID: 5, OwnerID: merchant.UserID})
	svc := NewService(store, nil, nil).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	a, err := svc.Create(ctx, merchant, input())
	require.NoError(t, err)
	start := now.Add(time.Minute)
	_, err = svc.Schedule(ctx, merchant, a.ID, &start)
	require.NoError(t, err)

	res, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, repository.SweepResult{}, res)

	clock = start
	res, _ = svc.Sweep(ctx)
	assert.Equal(t, int64(1), res.Started)

	clock = start.Add(time.Hour)
	res, _ = svc.Sweep(ctx)
	assert.Equal(t, int64(1), res.Ended)
	got, _ := store.GetAuction(ctx, a.ID)
	assert.Equal(t, model.StatusEndedUnsold, got.Status)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "rare-1st-edition", Slug("  Rare 1st Edition!! ", false))
	assert.Equal(t, "auction-2024", Slug("2024", false))
	assert.Equal(t, "auction", Slug("¡¿?!", false))
	s := Slug("Lamp", true)
	assert.Regexp(t, `^lamp-[0-9a-f]{8}$`, s)
}
