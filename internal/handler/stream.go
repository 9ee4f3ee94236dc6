package handler

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/google/uuid"
    "github.com/gorilla/websocket"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/dutch-auction/internal/broadcast"
    "github.com/iliyamo/dutch-auction/internal/middleware"
    "github.com/iliyamo/dutch-auction/internal/model"
)

// StreamHandler upgrades requests into live auction streams.  SSE and
// WebSocket clients receive the same event sequence.
type StreamHandler struct {
    Auctions *AuctionHandler
    Channel  *broadcast.Channel
    Upgrader websocket.Upgrader
    Logger   *zap.Logger
}

// NewStreamHandler constructs a StreamHandler.  The WebSocket upgrader
// accepts any origin: the stream is public and read-only.
func NewStreamHandler(auctions *AuctionHandler, channel *broadcast.Channel, logger *zap.Logger) *StreamHandler {
    if auctions == nil || channel == nil || logger == nil {
        panic("nil dependency passed to NewStreamHandler")
    }
    return &StreamHandler{
        Auctions: auctions,
        Channel:  channel,
        Upgrader: websocket.Upgrader{
            ReadBufferSize:  1024,
            WriteBufferSize: 4096,
            CheckOrigin:     func(*http.Request) bool { return true },
        },
        Logger: logger,
    }
}

// subscriber identifies the viewer: authenticated users by id, everyone else
// by a fresh random id per connection.
func subscriber(c echo.Context) broadcast.Subscriber {
    if id, ok := middleware.UserID(c); ok {
        return broadcast.Subscriber{ViewerID: "user:" + strconv.FormatUint(id, 10), Wallet: middleware.Wallet(c)}
    }
    return broadcast.Subscriber{ViewerID: "anon:" + uuid.NewString()}
}

func (h *StreamHandler) resolve(c echo.Context) (*model.Auction, error) {
    return h.Auctions.load(c)
}

// Live handles GET /v1/auctions/:ref/live as a Server-Sent Events stream.
func (h *StreamHandler) Live(c echo.Context) error {
    a, err := h.resolve(c)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    sink, err := broadcast.NewSSESink(c.Response())
    if err != nil {
        return fail(c, http.StatusInternalServerError, "internal_error", err.Error())
    }
    h.serve(c.Request().Context(), a.ID, subscriber(c), sink, "sse")
    return nil
}

// WebSocket handles GET /v1/auctions/:ref/ws.
func (h *StreamHandler) WebSocket(c echo.Context) error {
    a, err := h.resolve(c)
    if err != nil {
        return writeError(c, h.Logger, err)
    }
    conn, err := h.Upgrader.Upgrade(c.Response(), c.Request(), nil)
    if err != nil {
        // Upgrade already wrote the HTTP error.
        h.Logger.Debug("websocket upgrade failed", zap.Error(err))
        return nil
    }
    sink := broadcast.NewWebSocketSink(conn, 10*time.Second)
    defer func() { _ = sink.Close() }()

    ctx, cancel := context.WithCancel(c.Request().Context())
    defer cancel()
    go sink.ReadLoop(cancel)
    h.serve(ctx, a.ID, subscriber(c), sink, "websocket")
    return nil
}

func (h *StreamHandler) serve(ctx context.Context, auctionID uint64, sub broadcast.Subscriber, sink broadcast.Sink, transport string) {
    err := h.Channel.Serve(ctx, auctionID, sub, sink)
    if err != nil && !errors.Is(err, context.Canceled) {
        h.Logger.Debug("stream closed", zap.String("transport", transport),
            zap.Uint64("auction_id", auctionID), zap.Error(err))
    }
}
