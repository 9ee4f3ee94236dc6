// Package handler exposes HTTP handlers for the public auction API, the
// buyer purchase flow, live streams and the merchant and admin surfaces.
// Every response that shows a price derives it from the clock at request
// time; nothing is served from a stored price.
package handler

import (
    "context"
    "net/http"
    "strings"
    "time"
    "unicode/utf8"

    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"
    "go.uber.org/zap"

    "github.com/iliyamo/dutch-auction/internal/lifecycle"
    "github.com/iliyamo/dutch-auction/internal/middleware"
    "github.com/iliyamo/dutch-auction/internal/model"
    "github.com/iliyamo/dutch-auction/internal/presence"
    "github.com/iliyamo/dutch-auction/internal/pricing"
    "github.com/iliyamo/dutch-auction/internal/repository"
)

// AuctionStore is the read side plus chat append used by the public
// handlers.
type AuctionStore interface {
    GetAuctionByRef(ctx context.Context, ref string) (*model.Auction, error)
    ListAuctions(ctx context.Context, f repository.AuctionFilter) ([]model.Auction, error)
    AppendMessage(ctx context.Context, m *model.ChatMessage) error
    RecentMessages(ctx context.Context, auctionID uint64, limit int) ([]model.ChatMessage, error)
}

// AuctionView is an auction as shown to clients: the stored record plus
// the values derived at request time.  Status is the effective status.
type AuctionView struct {
    model.Auction
    Status            model.AuctionStatus `json:"status"`
    CurrentPrice      decimal.Decimal     `json:"currentPrice"`
    CurrentPriceUsdc  *decimal.Decimal    `json:"currentPriceUsdc,omitempty"`
    Temperature       int                 `json:"temperature"`
    TimeRemaining     pricing.Remaining   `json:"timeRemaining"`
    QuantityRemaining int                 `json:"quantityRemaining"`
    ViewerCount       int                 `json:"viewerCount"`
}

// AuctionHandler serves the public auction endpoints.
type AuctionHandler struct {
    Store   AuctionStore
    Tracker presence.Tracker
    Logger  *zap.Logger
    Now     func() time.Time
}

// NewAuctionHandler constructs an AuctionHandler and panics if a dependency
// is nil.
func NewAuctionHandler(store AuctionStore, tracker presence.Tracker, logger *zap.Logger) *AuctionHandler {
    if store == nil || tracker == nil || logger == nil {
        panic("nil dependency passed to NewAuctionHandler")
    }
    return &AuctionHandler{Store: store, Tracker: tracker, Logger: logger, Now: time.Now}
}

func (h *AuctionHandler) view(ctx context.Context, a *model.Auction, now time.Time) AuctionView {
    snap := pricing.TakeSnapshot(a, now)
    count, err := h.Tracker.ViewerCount(ctx, a.ID)
    if err != nil {
        h.Logger.Debug("viewer count failed", zap.Uint64("auction_id", a.ID), zap.Error(err))
    }
    return AuctionView{
        Auction:           *a,
        Status:            lifecycle.EffectiveStatus(a, now),
        CurrentPrice:      snap.Price,
        CurrentPriceUsdc:  snap.SecondaryPrice,
        Temperature:       snap.Temperature,
        TimeRemaining:     snap.TimeRemaining,
        QuantityRemaining: a.QuantityRemaining(),
        ViewerCount:       count,
    }
}

// visible reports whether the caller may see a. Drafts are private to the
// owning merchant and admins.
func visible(c echo.Context, a *model.Auction) bool {
    if a.Status != model.StatusDraft {
        return true
    }
    actor := middleware.Actor(c)
    return actor.IsAdmin() || (actor.UserID > 0 && actor.UserID == a.MerchantID)
}

// load resolves the :ref path parameter and hides drafts from the public.
func (h *AuctionHandler) load(c echo.Context) (*model.Auction, error) {
    a, err := h.Store.GetAuctionByRef(c.Request().Context(), c.Param("ref"))
    if err != nil {
        return nil, err
    }
    if !visible(c, a) {
        return nil, repository.ErrNotFound
    }
    return a, nil
}

// ListAuctions handles GET /v1/auctions?status=LIVE,SCHEDULED&storeId=&limit=&offset=.
// Drafts are never listed publicly.
func (h *AuctionHandler) ListAuctions(c echo.Context) error {
    f := repository.AuctionFilter{
        Limit:  queryInt(c, "limit", 20),
        Offset: queryInt(c, "offset", 0),
    }
    if v := queryInt(c, "storeId", 0); v > 0 {
        f.StoreID = uint64(v)
    }
    for _, s := range strings.Split(c.QueryParam("status"), ",") {
        st := model.AuctionStatus(strings.ToUpper(strings.TrimSpace(s)))
        if st == "" {
            continue
        }
        if !st.Valid() {
            return fail(c, http.StatusBadRequest, "validation_error", "unknown status "+string(st))
        }
        if st != model.StatusDraft {
            f.Statuses = append(f.Statuses, st)
        }
    }
    if c.QueryParam("status") != "" && len(f.Statuses) == 0 {
        return c.JSON(http.StatusOK, echo.Map{"items": []AuctionView{}})
    }

    ctx := c.Request().Context()
    list, err := h.Store.ListAuctions(ctx, f)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    now := h.Now()
    out := make([]AuctionView, 0, len(list))
    for i := range list {
        out = append(out, h.view(ctx, &list[i], now))
    }
    return c.JSON(http.StatusOK, echo.Map{"items": out, "limit": f.Limit, "offset": f.Offset})
}

// GetAuction handles GET /v1/auctions/:ref where ref is an id or a slug.
func (h *AuctionHandler) GetAuction(c echo.Context) error {
    a, err := h.load(c)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, h.view(c.Request().Context(), a, h.Now()))
}

// ListMessages handles GET /v1/auctions/:ref/messages?limit=.  It returns the
// latest messages, oldest first.
func (h *AuctionHandler) ListMessages(c echo.Context) error {
    a, err := h.load(c)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    msgs, err := h.Store.RecentMessages(c.Request().Context(), a.ID, queryInt(c, "limit", 50))
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": msgs})
}

type postMessageRequest struct {
    Content string `json:"content"`
}

// PostMessage handles POST /v1/auctions/:ref/messages.  Content is trimmed
// and must be 1 to 500 characters.  Chat is open while the auction is
// scheduled or live.
func (h *AuctionHandler) PostMessage(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return fail(c, http.StatusUnauthorized, "unauthorized", "authentication required")
    }
    var body postMessageRequest
    if err := c.Bind(&body); err != nil {
        return badRequest(c, err)
    }
    content := strings.TrimSpace(body.Content)
    if n := utf8.RuneCountInString(content); n < 1 || n > 500 {
        return fail(c, http.StatusBadRequest, "validation_error", "content must be 1-500 characters")
    }
    a, err := h.load(c)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    switch lifecycle.EffectiveStatus(a, h.Now()) {
    case model.StatusLive, model.StatusScheduled:
    default:
        return fail(c, http.StatusConflict, "auction_not_live", "Chat is closed for this auction")
    }
    msg := &model.ChatMessage{AuctionID: a.ID, UserID: userID, Content: content}
    if err := h.Store.AppendMessage(c.Request().Context(), msg); err != nil {
        return writeError(c, h.Logger, err)
    }
    return c.JSON(http.StatusCreated, msg)
}
