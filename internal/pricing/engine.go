// Package pricing computes the descending price curve of an auction.  Every
// function is pure: the result depends only on the configuration and the
// time passed in, so any caller can re-derive the authoritative price for a
// given instant instead of trusting a cached or client-supplied value.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/dutch-auction/internal/model"
)

var hundred = decimal.NewFromInt(100)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid pricing configuration")

// Remaining is the countdown to the end of an auction.
type Remaining struct {
	Hours        int64 `json:"hours"`
	Minutes      int64 `json:"minutes"`
	Seconds      int64 `json:"seconds"`
	TotalSeconds int64 `json:"totalSeconds"`
	Expired      bool  `json:"expired"`
}

// Snapshot bundles everything the live channel shows for one instant.
type Snapshot struct {
	Price          decimal.Decimal
	SecondaryPrice *decimal.Decimal
	Temperature    int
	TimeRemaining  Remaining
}

// ElapsedFraction returns how far through its duration the auction is at
// now, clamped to [0, 1].
func ElapsedFraction(cfg model.PricingConfig, now time.Time) decimal.Decimal {
	total := cfg.Duration()
	if total <= 0 {
		return decimal.NewFromInt(1)
	}
	elapsed := now.Sub(cfg.StartsAt)
	if elapsed <= 0 {
		return decimal.Zero
	}
	if elapsed >= total {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(total)))
}

// CurrentPrice returns the unrounded price at now.  Before the start it is
// the start price; at or after the end it is exactly the floor price.
func CurrentPrice(cfg model.PricingConfig, now time.Time) decimal.Decimal {
	if !now.After(cfg.StartsAt) {
		return cfg.StartPrice
	}
	if !now.Before(cfg.EndsAt()) {
		return cfg.FloorPrice
	}
	var p decimal.Decimal
	switch cfg.DecayType {
	case model.DecayStepped:
		p = steppedPrice(cfg, now.Sub(cfg.StartsAt))
	default:
		frac := ElapsedFraction(cfg, now)
		p = cfg.StartPrice.Sub(cfg.StartPrice.Sub(cfg.FloorPrice).Mul(frac))
	}
	if p.LessThan(cfg.FloorPrice) {
		return cfg.FloorPrice
	}
	return p
}

// steppedPrice holds each checkpoint's price flat until the next one.
func steppedPrice(cfg model.PricingConfig, elapsed time.Duration) decimal.Decimal {
	secs := int64(elapsed / time.Second)
	p := cfg.StartPrice
	for _, st := range cfg.DecaySteps {
		if st.OffsetSeconds > secs {
			break
		}
		p = st.Price
	}
	return p
}

// MirrorPrice maps a primary price into the secondary currency range so the
// mirror decays with the same shape between its own start and floor.
func MirrorPrice(cfg model.PricingConfig, primary, start, floor decimal.Decimal) decimal.Decimal {
	span := cfg.StartPrice.Sub(cfg.FloorPrice)
	if span.Sign() <= 0 {
		return floor
	}
	pos := primary.Sub(cfg.FloorPrice).Div(span)
	return floor.Add(start.Sub(floor).Mul(pos))
}

// PriceIn returns the price of the auction at now in the requested currency,
// rounded up to the currency's precision.  The second result is false when
// the auction has no prices in that currency.
func PriceIn(a *model.Auction, currency model.Currency, now time.Time) (decimal.Decimal, bool) {
	cfg := a.Pricing()
	p := CurrentPrice(cfg, now)
	switch currency {
	case model.CurrencySOL:
		return Round(currency, p), true
	case model.CurrencyUSDC:
		if !a.HasMirror() {
			return decimal.Zero, false
		}
		return Round(currency, MirrorPrice(cfg, p, *a.StartPriceUsdc, *a.FloorPriceUsdc)), true
	}
	return decimal.Zero, false
}

// Round rounds a price up to the settlement precision of currency.  Rounding
// up keeps the rounded curve non-increasing and never below the floor.
func Round(currency model.Currency, p decimal.Decimal) decimal.Decimal {
	return p.RoundCeil(currency.Precision())
}

// Temperature is a 0–100 heat score: 100 when the auction has just started,
// 0 at the end.  It is presentation only.
func Temperature(cfg model.PricingConfig, now time.Time) int {
	frac := ElapsedFraction(cfg, now)
	t := hundred.Sub(frac.Mul(hundred)).Round(0).IntPart()
	if t < 0 {
		return 0
	}
	if t > 100 {
		return 100
	}
	return int(t)
}

// TimeRemaining returns the countdown from now to endsAt, clamped at zero.
func TimeRemaining(endsAt, now time.Time) Remaining {
	if !now.Before(endsAt) {
		return Remaining{Expired: true}
	}
	total := int64(endsAt.Sub(now) / time.Second)
	return Remaining{
		Hours:        total / 3600,
		Minutes:      (total % 3600) / 60,
		Seconds:      total % 60,
		TotalSeconds: total,
	}
}

// TakeSnapshot computes the full presentation snapshot for an auction.
func TakeSnapshot(a *model.Auction, now time.Time) Snapshot {
	cfg := a.Pricing()
	raw := CurrentPrice(cfg, now)
	s := Snapshot{
		Price:         Round(model.CurrencySOL, raw),
		Temperature:   Temperature(cfg, now),
		TimeRemaining: TimeRemaining(cfg.EndsAt(), now),
	}
	if a.StartsAt == nil {
		s.TimeRemaining = Remaining{}
	}
	if a.HasMirror() {
		m := Round(model.CurrencyUSDC, MirrorPrice(cfg, raw, *a.StartPriceUsdc, *a.FloorPriceUsdc))
		s.SecondaryPrice = &m
	}
	return s
}

// ValidateConfig checks a pricing configuration before it is persisted.
func ValidateConfig(cfg model.PricingConfig) error {
	if cfg.FloorPrice.Sign() < 0 {
		return fmt.Errorf("%w: floor price must not be negative", ErrInvalidConfig)
	}
	if !cfg.FloorPrice.LessThan(cfg.StartPrice) {
		return fmt.Errorf("%w: floor price must be below start price", ErrInvalidConfig)
	}
	if cfg.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidConfig)
	}
	switch cfg.DecayType {
	case model.DecayLinear:
		if len(cfg.DecaySteps) > 0 {
			return fmt.Errorf("%w: linear decay takes no steps", ErrInvalidConfig)
		}
	case model.DecayStepped:
		return validateSteps(cfg)
	default:
		return fmt.Errorf("%w: unknown decay type %q", ErrInvalidConfig, cfg.DecayType)
	}
	return nil
}

func validateSteps(cfg model.PricingConfig) error {
	if len(cfg.DecaySteps) == 0 {
		return fmt.Errorf("%w: stepped decay needs at least one step", ErrInvalidConfig)
	}
	limit := int64(cfg.DurationMinutes) * 60
	prevOffset := int64(-1)
	prevPrice := cfg.StartPrice
	for i, st := range cfg.DecaySteps {
		if st.OffsetSeconds <= prevOffset {
			return fmt.Errorf("%w: step %d offset must increase", ErrInvalidConfig, i)
		}
		if st.OffsetSeconds >= limit {
			return fmt.Errorf("%w: step %d offset beyond duration", ErrInvalidConfig, i)
		}
		if st.Price.GreaterThan(prevPrice) {
			return fmt.Errorf("%w: step %d price must not increase", ErrInvalidConfig, i)
		}
		if st.Price.LessThan(cfg.FloorPrice) {
			return fmt.Errorf("%w: step %d price below floor", ErrInvalidConfig, i)
		}
		prevOffset = st.OffsetSeconds
		prevPrice = st.Price
	}
	return nil
}

// ValidateMirror checks optional secondary-currency prices.
func ValidateMirror(start, floor *decimal.Decimal) error {
	if start == nil && floor == nil {
		return nil
	}
	if start == nil || floor == nil {
		return fmt.Errorf("%w: secondary start and floor must be set together", ErrInvalidConfig)
	}
	if floor.Sign() < 0 || !floor.LessThan(*start) {
		return fmt.Errorf("%w: secondary floor must be below secondary start", ErrInvalidConfig)
	}
	return nil
}
