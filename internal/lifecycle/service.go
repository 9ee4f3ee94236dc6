package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/dutch-auction/internal/model"
	"github.com/iliyamo/dutch-auction/internal/pricing"
	"github.com/iliyamo/dutch-auction/internal/repository"
)

// Store is the persistence the lifecycle service needs.
type Store interface {
	CreateAuction(ctx context.Context, a *model.Auction) error
	UpdateAuction(ctx context.Context, a *model.Auction) error
	GetAuction(ctx context.Context, id uint64) (*model.Auction, error)
	TransitionStatus(ctx context.Context, t repository.Transition) error
	SweepStatuses(ctx context.Context, now time.Time) (repository.SweepResult, error)
	GetStore(ctx context.Context, id uint64) (*model.Store, error)
}

// AuctionInput is the merchant-editable part of an auction.
type AuctionInput struct {
	StoreID         uint64            `json:"storeId" validate:"required"`
	Title           string            `json:"title" validate:"required,max=200"`
	Description     string            `json:"description" validate:"max=5000"`
	Images          []string          `json:"images" validate:"max=12,dive,required,max=500"`
	VideoURL        *string           `json:"videoUrl" validate:"omitempty,url,max=500"`
	StartPrice      decimal.Decimal   `json:"startPrice"`
	FloorPrice      decimal.Decimal   `json:"floorPrice"`
	DecayType       model.DecayType   `json:"decayType" validate:"required,oneof=LINEAR STEPPED"`
	DecaySteps      []model.DecayStep `json:"decaySteps" validate:"max=100"`
	DurationMinutes int               `json:"durationMinutes" validate:"required,min=1,max=10080"`
	StartPriceUsdc  *decimal.Decimal  `json:"startPriceUsdc"`
	FloorPriceUsdc  *decimal.Decimal  `json:"floorPriceUsdc"`
	Quantity        int               `json:"quantity" validate:"required,min=1,max=10000"`
	StartsAt        *time.Time        `json:"startsAt"`
}

// Service implements the merchant side of the auction lifecycle plus the
// periodic status sweep.
type Service struct {
	store    Store
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a lifecycle service.  A nil logger discards output.
func NewService(store Store, validate *validator.Validate, logger *zap.Logger) *Service {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, validate: validate, logger: logger, now: time.Now}
}

// WithClock replaces the service clock.  Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create stores a new DRAFT auction owned by actor.  The store must belong
// to the actor unless the actor is an admin.
func (s *Service) Create(ctx context.Context, actor model.Actor, in AuctionInput) (*model.Auction, error) {
	if actor.Role != model.RoleMerchant && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := s.check(in); err != nil {
		return nil, err
	}
	st, err := s.store.GetStore(ctx, in.StoreID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: store %d does not exist", ErrValidation, in.StoreID)
		}
		return nil, err
	}
	if !actor.IsAdmin() && st.OwnerID != actor.UserID {
		return nil, ErrForbidden
	}

	a := &model.Auction{
		StoreID:    in.StoreID,
		MerchantID: actor.UserID,
		Status:     model.StatusDraft,
	}
	apply(a, in)

	for attempt := 0; ; attempt++ {
		a.Slug = Slug(in.Title, attempt > 0)
		err = s.store.CreateAuction(ctx, a)
		if !errors.Is(err, repository.ErrConflict) || attempt == 3 {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	a.MerchantWallet = st.WalletAddress
	s.logger.Info("auction created", zap.Uint64("auction_id", a.ID), zap.String("slug", a.Slug), zap.Uint64("merchant_id", actor.UserID))
	return a, nil
}

// Update replaces the editable fields of a DRAFT or SCHEDULED auction.  A
// scheduled auction keeps its schedule only if the new start is still in
// the future.
func (s *Service) Update(ctx context.Context, actor model.Actor, id uint64, in AuctionInput) (*model.Auction, error) {
	a, err := s.store.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, a, ActionEdit); err != nil {
		return nil, err
	}
	in.StoreID = a.StoreID
	if err := s.check(in); err != nil {
		return nil, err
	}
	apply(a, in)
	if a.Status == model.StatusScheduled {
		if a.StartsAt == nil || !a.StartsAt.After(s.now()) {
			return nil, fmt.Errorf("%w: a scheduled auction needs a future start", ErrValidation)
		}
	}
	if err := s.store.UpdateAuction(ctx, a); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	s.logger.Info("auction updated", zap.Uint64("auction_id", a.ID))
	return s.store.GetAuction(ctx, id)
}

// Schedule moves a DRAFT auction to SCHEDULED.  startsAt overrides the
// stored start; either way the start must lie in the future.
func (s *Service) Schedule(ctx context.Context, actor model.Actor, id uint64, startsAt *time.Time) (*model.Auction, error) {
	a, err := s.store.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, a, ActionSchedule); err != nil {
		return nil, err
	}
	start := a.StartsAt
	if startsAt != nil {
		start = startsAt
	}
	if start == nil || !start.After(s.now()) {
		return nil, fmt.Errorf("%w: startsAt must be in the future", ErrValidation)
	}
	st := start.UTC()
	end := st.Add(time.Duration(a.DurationMinutes) * time.Minute)
	err = s.store.TransitionStatus(ctx, repository.Transition{
		AuctionID: id,
		From:      []model.AuctionStatus{model.StatusDraft},
		To:        model.StatusScheduled,
		StartsAt:  &st,
		EndsAt:    &end,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	s.logger.Info("auction scheduled", zap.Uint64("auction_id", id), zap.Time("starts_at", st), zap.Time("ends_at", end))
	return s.store.GetAuction(ctx, id)
}

// Cancel moves a DRAFT, SCHEDULED or unsold LIVE auction to CANCELLED.  The
// write is conditional, so a sale landing between the check and the write
// still blocks the cancel.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uint64) (*model.Auction, error) {
	a, err := s.store.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, a, ActionCancel); err != nil {
		return nil, err
	}
	err = s.store.TransitionStatus(ctx, repository.Transition{
		AuctionID:     id,
		From:          []model.AuctionStatus{model.StatusDraft, model.StatusScheduled, model.StatusLive},
		To:            model.StatusCancelled,
		RequireUnsold: true,
	})
	if errors.Is(err, repository.ErrConflict) {
		cur, gerr := s.store.GetAuction(ctx, id)
		if gerr == nil && cur.Status == model.StatusLive && cur.QuantitySold > 0 {
			return nil, ErrCancelAfterSale
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("auction cancelled", zap.Uint64("auction_id", id), zap.Uint64("actor_id", actor.UserID))
	return s.store.GetAuction(ctx, id)
}

// Sweep persists the time-driven transitions.
func (s *Service) Sweep(ctx context.Context) (repository.SweepResult, error) {
	res, err := s.store.SweepStatuses(ctx, s.now().UTC())
	if err != nil {
		return res, err
	}
	if res.Started > 0 || res.Ended > 0 {
		s.logger.Info("auction sweep", zap.Int64("started", res.Started), zap.Int64("ended", res.Ended))
	}
	return res, nil
}

// check runs the struct rules and the pricing rules.
func (s *Service) check(in AuctionInput) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, describe(err))
	}
	cfg := model.PricingConfig{
		StartPrice:      in.StartPrice,
		FloorPrice:      in.FloorPrice,
		DecayType:       in.DecayType,
		DecaySteps:      in.DecaySteps,
		DurationMinutes: in.DurationMinutes,
	}
	if err := pricing.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := pricing.ValidateMirror(in.StartPriceUsdc, in.FloorPriceUsdc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func apply(a *model.Auction, in AuctionInput) {
	a.Title = strings.TrimSpace(in.Title)
	a.Description = in.Description
	a.Images = in.Images
	a.VideoURL = in.VideoURL
	a.StartPrice = in.StartPrice
	a.FloorPrice = in.FloorPrice
	a.DecayType = in.DecayType
	a.DecaySteps = in.DecaySteps
	if in.DecayType == model.DecayLinear {
		a.DecaySteps = nil
	}
	a.DurationMinutes = in.DurationMinutes
	a.StartPriceUsdc = in.StartPriceUsdc
	a.FloorPriceUsdc = in.FloorPriceUsdc
	a.Quantity = in.Quantity
	a.StartsAt, a.EndsAt = nil, nil
	if in.StartsAt != nil {
		st := in.StartsAt.UTC()
		end := st.Add(time.Duration(in.DurationMinutes) * time.Minute)
		a.StartsAt, a.EndsAt = &st, &end
	}
}

func describe(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// Slug turns a title into a URL slug.  With suffix set a short random tail
// is appended to dodge collisions.  Purely numeric slugs get a prefix so
// they never shadow an auction id.
func Slug(title string, suffix bool) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 80 {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "auction"
	}
	if strings.IndexFunc(slug, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		slug = "auction-" + slug
	}
	if suffix {
		slug += "-" + uuid.NewString()[:8]
	}
	return slug
}
