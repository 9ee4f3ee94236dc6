package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/dutch-auction/internal/lifecycle"
    "github.com/iliyamo/dutch-auction/internal/middleware"
    "github.com/iliyamo/dutch-auction/internal/model"
    "github.com/iliyamo/dutch-auction/internal/repository"
)

// MerchantStore lists auctions for the merchant dashboard.
type MerchantStore interface {
    ListAuctions(ctx context.Context, f repository.AuctionFilter) ([]model.Auction, error)
}

// MerchantHandler drives the auction lifecycle for merchants and admins.
// Ownership is checked by the lifecycle service.
type MerchantHandler struct {
    Service *lifecycle.Service
    Store   MerchantStore
    Logger  *zap.Logger
}

// NewMerchantHandler constructs a MerchantHandler and panics if a dependency
// is nil.
func NewMerchantHandler(svc *lifecycle.Service, store MerchantStore, logger *zap.Logger) *MerchantHandler {
    if svc == nil || store == nil || logger == nil {
        panic("nil dependency passed to NewMerchantHandler")
    }
    return &MerchantHandler{Service: svc, Store: store, Logger: logger}
}

// CreateAuction handles POST /v1/merchant/auctions.  The auction starts as a
// DRAFT.
func (h *MerchantHandler) CreateAuction(c echo.Context) error {
    var in lifecycle.AuctionInput
    if err := c.Bind(&in); err != nil {
        return badRequest(c, err)
    }
    a, err := h.Service.Create(c.Request().Context(), middleware.Actor(c), in)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusCreated, a)
}

// UpdateAuction handles PUT /v1/merchant/auctions/:id.  Only DRAFT and
// SCHEDULED auctions can be edited.
func (h *MerchantHandler) UpdateAuction(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return fail(c, http.StatusBadRequest, "validation_error", "invalid auction id")
    }
    var in lifecycle.AuctionInput
    if err := c.Bind(&in); err != nil {
        return badRequest(c, err)
    }
    a, err := h.Service.Update(c.Request().Context(), middleware.Actor(c), id, in)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, a)
}

type scheduleRequest struct {
    StartsAt *time.Time `json:"startsAt"`
}

// ScheduleAuction handles POST /v1/merchant/auctions/:id/schedule.  The body
// may override the stored start time.
func (h *MerchantHandler) ScheduleAuction(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return fail(c, http.StatusBadRequest, "validation_error", "invalid auction id")
    }
    var body scheduleRequest
    if c.Request().ContentLength != 0 {
        if err := c.Bind(&body); err != nil {
            return badRequest(c, err)
        }
    }
    a, err := h.Service.Schedule(c.Request().Context(), middleware.Actor(c), id, body.StartsAt)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, a)
}

// CancelAuction handles POST /v1/merchant/auctions/:id/cancel.
func (h *MerchantHandler) CancelAuction(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return fail(c, http.StatusBadRequest, "validation_error", "invalid auction id")
    }
    a, err := h.Service.Cancel(c.Request().Context(), middleware.Actor(c), id)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, a)
}

// ListAuctions handles GET /v1/merchant/auctions, drafts included.  Admins
// see every merchant's auctions.
func (h *MerchantHandler) ListAuctions(c echo.Context) error {
    actor := middleware.Actor(c)
    f := repository.AuctionFilter{
        IncludeDrafts: true,
        Limit:         queryInt(c, "limit", 50),
        Offset:        queryInt(c, "offset", 0),
    }
    if !actor.IsAdmin() {
        f.MerchantID = actor.UserID
    }
    if v := model.AuctionStatus(c.QueryParam("status")); v != "" {
        if !v.Valid() {
            return fail(c, http.StatusBadRequest, "validation_error", "unknown status "+string(v))
        }
        f.Statuses = []model.AuctionStatus{v}
    }
    list, err := h.Store.ListAuctions(c.Request().Context(), f)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": list})
}
