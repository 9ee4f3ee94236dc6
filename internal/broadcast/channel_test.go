package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dutch-auction/internal/model"
	"github.com/iliyamo/dutch-auction/internal/presence"
	"github.com/iliyamo/dutch-auction/internal/repository"
)

type fakeSink struct {
	mu        sync.Mutex
	events    []map[string]any
	beats     int
	failAfter int
}

func (s *fakeSink) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.events) >= s.failAfter {
		return errors.New("broken pipe")
	}
	s.events = append(s.events, m)
	return nil
}

func (s *fakeSink) Heartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beats++
	return nil
}

func (s *fakeSink) snapshot() ([]map[string]any, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.events...), s.beats
}

func (s *fakeSink) ofType(typ string) []map[string]any {
	events, _ := s.snapshot()
	var out []map[string]any
	for _, e := range events {
		t, _ := e["type"].(string)
		if t == typ {
			out = append(out, e)
		}
	}
	return out
}

var fast = Intervals{State: 10 * time.Millisecond, Chat: 5 * time.Millisecond, Heartbeat: 15 * time.Millisecond}

func liveAuction(t *testing.T, store *repository.MemoryStore, startOffset, duration time.Duration) *model.Auction {
	t.Helper()
	st := time.Now().Add(startOffset).UTC()
	end := st.Add(duration)
	a := &model.Auction{
		Slug: "stream-" + strings.ToLower(t.Name()), StoreID: 1, MerchantID: 1, Title: "Stream",
		StartPrice: decimal.NewFromInt(10), FloorPrice: decimal.NewFromInt(1),
		DecayType: model.DecayLinear, DurationMinutes: int(duration / time.Minute),
		StartsAt: &st, EndsAt: &end, Quantity: 1, Status: model.StatusLive,
	}
	require.NoError(t, store.CreateAuction(context.Background(), a))
	return a
}

func TestServeStreamsStateChatAndHeartbeat(t *testing.T) {
	store := repository.NewMemoryStore()
	tracker := presence.NewMemoryTracker()
	a := liveAuction(t, store, -10*time.Minute, time.Hour)
	ch := NewChannel(store, tracker, nil, fast)
	sink := &fakeSink{}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- ch.Serve(ctx, a.ID, Subscriber{ViewerID: "v1", Wallet: "w1"}, sink) }()

	require.Eventually(t, func() bool {
		events, _ := sink.snapshot()
		return len(events) >= 2
	}, time.Second, 5*time.Millisecond)

	events, _ := sink.snapshot()
	assert.Equal(t, EventConnected, events[0]["type"])
	assert.Equal(t, "v1", events[0]["viewerId"])
	_, typed := events[1]["type"]
	assert.False(t, typed, "snapshots are untyped")
	assert.Equal(t, "LIVE", events[1]["status"])
	assert.Contains(t, events[1], "currentPriceSol")
	assert.Contains(t, events[1], "timeRemaining")
	assert.EqualValues(t, 1, events[1]["viewerCount"])

	n, _ := tracker.ViewerCount(context.Background(), a.ID)
	assert.Equal(t, 1, n)

	for _, text := range []string{"first", "second"} {
		require.NoError(t, store.AppendMessage(context.Background(), &model.ChatMessage{AuctionID: a.ID, UserID: 3, Content: text}))
	}
	require.Eventually(t, func() bool { return len(sink.ofType(EventMessage)) == 2 }, time.Second, 5*time.Millisecond)
	msgs := sink.ofType(EventMessage)
	assert.Equal(t, "first", msgs[0]["content"])
	assert.Equal(t, "second", msgs[1]["content"])

	require.Eventually(t, func() bool { _, beats := sink.snapshot(); return beats > 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	n, _ = tracker.ViewerCount(context.Background(), a.ID)
	assert.Equal(t, 0, n)
	assert.Len(t, sink.ofType(EventMessage), 2, "messages are delivered once")
}

func TestServeEndsExpiredAuction(t *testing.T) {
	store := repository.NewMemoryStore()
	tracker := presence.NewMemoryTracker()
	a := liveAuction(t, store, -2*time.Hour, time.Hour)
	sink := &fakeSink{}

	err := NewChannel(store, tracker, nil, fast).Serve(context.Background(), a.ID, Subscriber{ViewerID: "v1"}, sink)
	require.NoError(t, err)

	events, _ := sink.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, EventConnected, events[0]["type"])
	assert.Equal(t, "ENDED_UNSOLD", events[1]["status"])
	assert.Equal(t, EventEnded, events[2]["type"])
	assert.Equal(t, "ENDED_UNSOLD", events[2]["status"])

	n, _ := tracker.ViewerCount(context.Background(), a.ID)
	assert.Equal(t, 0, n)
}

func TestServeEndsOnSale(t *testing.T) {
	store := repository.NewMemoryStore()
	tracker := presence.NewMemoryTracker()
	a := liveAuction(t, store, -time.Minute, time.Hour)
	sink := &fakeSink{}

	errc := make(chan error, 1)
	go func() {
		errc <- NewChannel(store, tracker, nil, fast).Serve(context.Background(), a.ID, Subscriber{ViewerID: "v1"}, sink)
	}()
	require.Eventually(t, func() bool { events, _ := sink.snapshot(); return len(events) >= 2 }, time.Second, 5*time.Millisecond)

	_, err := store.RecordSale(context.Background(), repository.SaleRecord{
		AuctionID: a.ID, BuyerID: 9, Price: decimal.NewFromInt(10), Currency: model.CurrencySOL,
		PaymentTx: "tx", PaymentReference: "ref", SoldAt: time.Now(),
	})
	require.NoError(t, err)

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stream did not end after the sale")
	}
	ended := sink.ofType(EventEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "SOLD", ended[0]["status"])
}

func TestServeStopsOnWriteFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	tracker := presence.NewMemoryTracker()
	a := liveAuction(t, store, -time.Minute, time.Hour)
	sink := &fakeSink{failAfter: 1}

	err := NewChannel(store, tracker, nil, fast).Serve(context.Background(), a.ID, Subscriber{ViewerID: "v1"}, sink)
	assert.Error(t, err)
	n, _ := tracker.ViewerCount(context.Background(), a.ID)
	assert.Equal(t, 0, n)
}

type flakyStore struct {
	*repository.MemoryStore
	failing atomic.Bool
}

func (s *flakyStore) GetAuction(ctx context.Context, id uint64) (*model.Auction, error) {
	if s.failing.Load() {
		return nil, errors.New("connection reset")
	}
	return s.MemoryStore.GetAuction(ctx, id)
}

func TestServeSurvivesStoreErrors(t *testing.T) {
	mem := repository.NewMemoryStore()
	a := liveAuction(t, mem, -time.Minute, time.Hour)
	store := &flakyStore{MemoryStore: mem}
	sink := &fakeSink{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- NewChannel(store, presence.NewMemoryTracker(), nil, fast).Serve(ctx, a.ID, Subscriber{ViewerID: "v1"}, sink)
	}()
	require.Eventually(t, func() bool { events, _ := sink.snapshot(); return len(events) >= 2 }, time.Second, 5*time.Millisecond)

	store.failing.Store(true)
	time.Sleep(30 * time.Millisecond)
	stalled, _ := sink.snapshot()
	require.Eventually(t, func() bool { _, beats := sink.snapshot(); return beats >= 2 }, time.Second, 5*time.Millisecond)
	after, _ := sink.snapshot()
	assert.Equal(t, len(stalled), len(after), "no snapshots while the store is down")

	store.failing.Store(false)
	require.Eventually(t, func() bool { events, _ := sink.snapshot(); return len(events) > len(after) }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-errc)
}

func TestSSESinkFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, err := NewSSESink(rec)
	require.NoError(t, err)

	require.NoError(t, sink.Send(EndedEvent{Type: EventEnded, Status: model.StatusSold}))
	require.NoError(t, sink.Heartbeat())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "data: {\"type\":\"ended\",\"status\":\"SOLD\"}\n\n: ping\n\n", rec.Body.String())
}
