// Package broadcast pushes live auction state to connected viewers.  Each
// connection is served by one goroutine running three tickers: auction
// state, chat and heartbeat.  Nothing is shared between connections except
// the store and the presence tracker.
package broadcast

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/dutch-auction/internal/lifecycle"
	"github.com/iliyamo/dutch-auction/internal/model"
	"github.com/iliyamo/dutch-auction/internal/presence"
	"github.com/iliyamo/dutch-auction/internal/pricing"
)

// Store is the read side the channel polls.
type Store interface {
	GetAuction(ctx context.Context, id uint64) (*model.Auction, error)
	MessagesSince(ctx context.Context, auctionID uint64, after time.Time, afterID uint64, limit int) ([]model.ChatMessage, error)
}

// Sink is one client connection.  Send writes a JSON event; Heartbeat
// writes a keep-alive frame that carries no data.
type Sink interface {
	Send(v any) error
	Heartbeat() error
}

// Intervals configures the per-connection tickers.
type Intervals struct {
	State     time.Duration
	Chat      time.Duration
	Heartbeat time.Duration
	ChatBatch int
}

// Subscriber identifies the viewer behind a connection.
type Subscriber struct {
	ViewerID string
	Wallet   string
}

// Channel serves live streams.
type Channel struct {
	store   Store
	tracker presence.Tracker
	logger  *zap.Logger
	iv      Intervals
	now     func() time.Time
}

// NewChannel builds a channel.  Zero intervals fall back to 1s state, 500ms
// chat and 30s heartbeat.
func NewChannel(store Store, tracker presence.Tracker, logger *zap.Logger, iv Intervals) *Channel {
	if iv.State <= 0 {
		iv.State = time.Second
	}
	if iv.Chat <= 0 {
		iv.Chat = 500 * time.Millisecond
	}
	if iv.Heartbeat <= 0 {
		iv.Heartbeat = 30 * time.Second
	}
	if iv.ChatBatch <= 0 {
		iv.ChatBatch = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{store: store, tracker: tracker, logger: logger, iv: iv, now: time.Now}
}

// Serve streams auctionID to sink until ctx is cancelled, a write fails or
// the auction leaves the live phase.  It returns nil on a normal end and the
// write error otherwise.  The viewer is always removed from presence on
// return.
func (c *Channel) Serve(ctx context.Context, auctionID uint64, sub Subscriber, sink Sink) error {
	log := c.logger.With(zap.Uint64("auction_id", auctionID), zap.String("viewer_id", sub.ViewerID))
	a, err := c.store.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}

	if err := c.tracker.AddViewer(ctx, auctionID, sub.ViewerID, sub.Wallet); err != nil {
		log.Warn("presence add failed", zap.Error(err))
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.tracker.RemoveViewer(rctx, auctionID, sub.ViewerID); err != nil {
			log.Warn("presence remove failed", zap.Error(err))
		}
		log.Debug("viewer disconnected")
	}()

	if err := sink.Send(ConnectedEvent{Type: EventConnected, AuctionID: auctionID, ViewerID: sub.ViewerID}); err != nil {
		return fmt.Errorf("send connected: %w", err)
	}
	log.Debug("viewer connected")

	mark := watermark{at: c.now().UTC().Truncate(time.Microsecond)}
	ended, err := c.pushState(ctx, a, sub, sink)
	if err != nil || ended {
		return err
	}

	state := time.NewTicker(c.iv.State)
	defer state.Stop()
	chat := time.NewTicker(c.iv.Chat)
	defer chat.Stop()
	beat := time.NewTicker(c.iv.Heartbeat)
	defer beat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-state.C:
			a, err := c.store.GetAuction(ctx, auctionID)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Warn("state reload failed, skipping tick", zap.Error(err))
				continue
			}
			ended, err := c.pushState(ctx, a, sub, sink)
			if err != nil || ended {
				return err
			}
		case <-chat.C:
			if err := c.pushChat(ctx, auctionID, &mark, sink, log); err != nil {
				return err
			}
		case <-beat.C:
			if err := sink.Heartbeat(); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}
		}
	}
}

// pushState sends one snapshot and, when the auction has left the live
// phase, the ended event.  ended is true in that case.
func (c *Channel) pushState(ctx context.Context, a *model.Auction, sub Subscriber, sink Sink) (ended bool, err error) {
	now := c.now()
	if err := c.tracker.Touch(ctx, a.ID, sub.ViewerID); err != nil {
		c.logger.Debug("presence touch failed", zap.Uint64("auction_id", a.ID), zap.Error(err))
	}
	count, err := c.tracker.ViewerCount(ctx, a.ID)
	if err != nil {
		c.logger.Debug("viewer count failed", zap.Uint64("auction_id", a.ID), zap.Error(err))
	}
	status := lifecycle.EffectiveStatus(a, now)
	if err := sink.Send(TakeSnapshot(a, status, count, now)); err != nil {
		return false, fmt.Errorf("send snapshot: %w", err)
	}
	if status == model.StatusLive || status == model.StatusScheduled {
		return false, nil
	}
	if err := sink.Send(EndedEvent{Type: EventEnded, Status: status}); err != nil {
		return true, fmt.Errorf("send ended: %w", err)
	}
	return true, nil
}

// TakeSnapshot assembles the state frame for a at now.
func TakeSnapshot(a *model.Auction, status model.AuctionStatus, viewers int, now time.Time) Snapshot {
	p := pricing.TakeSnapshot(a, now)
	return Snapshot{
		CurrentPriceSol:   p.Price,
		CurrentPriceUsdc:  p.SecondaryPrice,
		Temperature:       p.Temperature,
		TimeRemaining:     p.TimeRemaining,
		ViewerCount:       viewers,
		QuantityRemaining: a.QuantityRemaining(),
		Status:            status,
	}
}

type watermark struct {
	at time.Time
	id uint64
}

func (c *Channel) pushChat(ctx context.Context, auctionID uint64, mark *watermark, sink Sink, log *zap.Logger) error {
	msgs, err := c.store.MessagesSince(ctx, auctionID, mark.at, mark.id, c.iv.ChatBatch)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("chat poll failed, skipping tick", zap.Error(err))
		}
		return nil
	}
	for _, m := range msgs {
		if err := sink.Send(MessageEvent{Type: EventMessage, ChatMessage: m}); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		mark.at, mark.id = m.CreatedAt, m.ID
	}
	return nil
}
