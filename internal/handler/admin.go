package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/dutch-auction/internal/model"
    "github.com/iliyamo/dutch-auction/internal/presence"
)

// StatusCounter counts auctions per persisted status.
type StatusCounter interface {
    CountByStatus(ctx context.Context) (map[model.AuctionStatus]int, error)
}

// AdminHandler serves operational endpoints for ADMIN users.
type AdminHandler struct {
    Tracker presence.Tracker
    Store   StatusCounter
    Logger  *zap.Logger
}

// NewAdminHandler constructs an AdminHandler and panics if a dependency is
// nil.
func NewAdminHandler(tracker presence.Tracker, store StatusCounter, logger *zap.Logger) *AdminHandler {
    if tracker == nil || store == nil || logger == nil {
        panic("nil dependency passed to NewAdminHandler")
    }
    return &AdminHandler{Tracker: tracker, Store: store, Logger: logger}
}

// LiveStats handles GET /v1/admin/live/stats: presence totals, per-auction
// viewer counts and auction counts by status.
func (h *AdminHandler) LiveStats(c echo.Context) error {
    ctx := c.Request().Context()
    stats, err := h.Tracker.GlobalStats(ctx)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    ids, err := h.Tracker.ActiveAuctions(ctx)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    viewers := make(map[uint64]int, len(ids))
    for _, id := range ids {
        n, err := h.Tracker.ViewerCount(ctx, id)
        if err != nil {
            return writeError(c, h.Logger, err)
        }
        viewers[id] = n
    }
    counts, err := h.Store.CountByStatus(ctx)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "presence": stats,
        "viewers":  viewers,
        "auctions": counts,
    })
}
