package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/dutch-auction/internal/model"
    "github.com/iliyamo/dutch-auction/internal/purchase"
)

// PurchaseHandler exposes the two-phase buy flow.  Both endpoints require
// an authenticated buyer and sit behind the rate limiter.
type PurchaseHandler struct {
    Coordinator *purchase.Coordinator
    Logger      *zap.Logger
}

// NewPurchaseHandler constructs a PurchaseHandler and panics if a dependency
// is nil.
func NewPurchaseHandler(coord *purchase.Coordinator, logger *zap.Logger) *PurchaseHandler {
    if coord == nil || logger == nil {
        panic("nil dependency passed to NewPurchaseHandler")
    }
    return &PurchaseHandler{Coordinator: coord, Logger: logger}
}

type quoteRequest struct {
    Currency model.Currency `json:"currency" validate:"omitempty,oneof=SOL USDC"`
}

// Buy handles POST /v1/auctions/:ref/buy.  It returns a price quote with a
// fresh payment reference; nothing is reserved.
func (h *PurchaseHandler) Buy(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return fail(c, http.StatusUnauthorized, "unauthorized", "authentication required")
    }
    var body quoteRequest
    if err := c.Bind(&body); err != nil {
        return badRequest(c, err)
    }
    if err := c.Validate(&body); err != nil {
        return badRequest(c, err)
    }
    q, err := h.Coordinator.Quote(c.Request().Context(), c.Param("ref"), userID, body.Currency)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, q)
}

// Confirm handles POST /v1/auctions/:ref/confirm.  A replayed confirm with
// the same reference and tx returns the original outcome with 200; a fresh
// sale returns 201.
func (h *PurchaseHandler) Confirm(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return fail(c, http.StatusUnauthorized, "unauthorized", "authentication required")
    }
    var body purchase.ConfirmRequest
    if err := c.Bind(&body); err != nil {
        return badRequest(c, err)
    }
    if err := c.Validate(&body); err != nil {
        return badRequest(c, err)
    }
    out, err := h.Coordinator.Confirm(c.Request().Context(), c.Param("ref"), userID, body)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    status := http.StatusCreated
    if out.Replayed {
        status = http.StatusOK
    }
    return c.JSON(status, out)
}
