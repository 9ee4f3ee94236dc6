package router

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/dutch-auction/internal/broadcast"
	"github.com/iliyamo/dutch-auction/internal/config"
	"github.com/iliyamo/dutch-auction/internal/handler"
	"github.com/iliyamo/dutch-auction/internal/lifecycle"
	"github.com/iliyamo/dutch-auction/internal/model"
	"github.com/iliyamo/dutch-auction/internal/presence"
	"github.com/iliyamo/dutch-auction/internal/purchase"
	"github.com/iliyamo/dutch-auction/internal/repository"
	"github.com/iliyamo/dutch-auction/internal/utils"
)

const secret = "router-test-secret"

const (
	merchantID = 10
	strangerID = 11
	buyerID    = 20
	rivalID    = 21
	adminID    = 1
)

type api struct {
	e     *echo.Echo
	store *repository.MemoryStore
	coord *purchase.Coordinator
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := zap.NewNop()
	store := repository.NewMemoryStore()
	store.AddStore(model.Store{ID: 1, OwnerID: merchantID, Name: "Shop", WalletAddress: "shop-wallet"})
	tracker := presence.NewMemoryTracker()
	auctionCfg := config.AuctionConfig{PlatformFeePercent: decimal.RequireFromString("2.5"), MediaRetention: time.Hour}

	coord := purchase.NewCoordinator(store, auctionCfg, nil, nil, logger, purchase.Options{MediaRetention: time.Hour})
	auctions := handler.NewAuctionHandler(store, tracker, logger)
	channel := broadcast.NewChannel(store, tracker, logger, broadcast.Intervals{})
	e := New(Deps{
		JWTSecret: secret,
		Users:     store,
		Logger:    logger,
		Health:    &handler.HealthHandler{},
		Auctions:  auctions,
		Streams:   handler.NewStreamHandler(auctions, channel, logger),
		Purchases: handler.NewPurchaseHandler(coord, logger),
		Merchant:  handler.NewMerchantHandler(lifecycle.NewService(store, nil, logger), store, logger),
		Admin:     handler.NewAdminHandler(tracker, store, logger),
	})
	return &api{e: e, store: store, coord: coord}
}

func bearer(t *testing.T, id uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, id, role, "", time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func (a *api) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = strings.NewReader(string(b))
	} else {
		rd = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

// seed stores an auction directly, bypassing the lifecycle.
func (a *api) seed(t *testing.T, slug string, status model.AuctionStatus, start time.Time, minutes int) *model.Auction {
	t.Helper()
	end := start.Add(time.Duration(minutes) * time.Minute)
	auc := &model.Auction{
		Slug: slug, StoreID: 1, MerchantID: merchantID, Title: slug,
		StartPrice: decimal.NewFromInt(10), FloorPrice: decimal.NewFromInt(2),
		DecayType: model.DecayLinear, DurationMinutes: minutes,
		StartsAt: &start, EndsAt: &end, Quantity: 1, Status: status,
	}
	require.NoError(t, a.store.CreateAuction(context.Background(), auc))
	return auc
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestPublicBrowse(t *testing.T) {
	a := newAPI(t)
	now := time.Now().UTC()
	a.seed(t, "live-lamp", model.StatusLive, now.Add(-time.Minute), 60)
	draft := a.seed(t, "secret-draft", model.StatusDraft, now.Add(time.Hour), 60)

	rec := a.do(t, http.MethodGet, "/v1/auctions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "live-lamp", item["slug"])
	assert.Equal(t, "LIVE", item["status"])
	assert.Contains(t, item, "currentPrice")
	assert.Contains(t, item, "timeRemaining")

	rec = a.do(t, http.MethodGet, "/v1/auctions?status=draft", "", nil)
	assert.Empty(t, decode(t, rec)["items"])
	rec = a.do(t, http.MethodGet, "/v1/auctions?status=BOGUS", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/auctions/live-lamp", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["quantityRemaining"])

	draftPath := "/v1/auctions/" + strconv.FormatUint(draft.ID, 10)
	rec = a.do(t, http.MethodGet, draftPath, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "auction_not_found", decode(t, rec)["error"])
	rec = a.do(t, http.MethodGet, draftPath, bearer(t, strangerID, model.RoleMerchant), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(t, http.MethodGet, draftPath, bearer(t, merchantID, model.RoleMerchant), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPurchaseFlow(t *testing.T) {
	a := newAPI(t)
	auc := a.seed(t, "camera", model.StatusLive, time.Now().UTC().Add(-time.Minute), 60)
	buyer := bearer(t, buyerID, model.RoleBuyer)

	rec := a.do(t, http.MethodPost, "/v1/auctions/camera/buy", "", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auctions/camera/buy", buyer, map[string]string{"currency": "EUR"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auctions/camera/buy", buyer, map[string]string{"currency": "SOL"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decode(t, rec)
	assert.Equal(t, "shop-wallet", quote["merchantWallet"])
	ref := quote["paymentReference"].(string)
	require.NotEmpty(t, ref)
	assert.True(t, strings.HasPrefix(quote["memo"].(string), "auction:"+strconv.FormatUint(auc.ID, 10)+":"))

	confirm := map[string]any{
		"paymentTx": "tx-1", "paymentReference": ref, "currency": "SOL", "pricePaid": "1",
	}
	rec = a.do(t, http.MethodPost, "/v1/auctions/camera/confirm", buyer, confirm)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "underpaid", decode(t, rec)["error"])

	confirm["pricePaid"] = quote["price"]
	rec = a.do(t, http.MethodPost, "/v1/auctions/camera/confirm", buyer, confirm)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, true, out["final"])
	assert.Equal(t, "SOLD", out["auction"].(map[string]any)["status"])

	rec = a.do(t, http.MethodPost, "/v1/auctions/camera/confirm", buyer, confirm)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["replayed"])

	rival := map[string]any{
		"paymentTx": "tx-2", "paymentReference": "other-ref", "currency": "SOL", "pricePaid": "10",
	}
	rec = a.do(t, http.MethodPost, "/v1/auctions/camera/confirm", bearer(t, rivalID, model.RoleBuyer), rival)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "auction_already_sold", body["error"])
	assert.Equal(t, "Someone else bought this auction", body["message"])

	rec = a.do(t, http.MethodPost, "/v1/auctions/camera/buy", buyer, map[string]string{})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "auction_sold_out", decode(t, rec)["error"])

	a.coord.Wait()
}

func TestMerchantLifecycle(t *testing.T) {
	a := newAPI(t)
	merchant := bearer(t, merchantID, model.RoleMerchant)
	input := map[string]any{
		"storeId": 1, "title": "Vintage Watch", "startPrice": "10", "floorPrice": "2",
		"decayType": "LINEAR", "durationMinutes": 30, "quantity": 1,
	}

	rec := a.do(t, http.MethodPost, "/v1/merchant/auctions", bearer(t, buyerID, model.RoleBuyer), input)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/merchant/auctions", merchant, map[string]any{"storeId": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode(t, rec)["error"])

	rec = a.do(t, http.MethodPost, "/v1/merchant/auctions", merchant, input)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, "DRAFT", created["status"])
	assert.Equal(t, "vintage-watch", created["slug"])
	id := strconv.FormatUint(uint64(created["id"].(float64)), 10)

	start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rec = a.do(t, http.MethodPost, "/v1/merchant/auctions/"+id+"/schedule", merchant, map[string]string{"startsAt": start})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SCHEDULED", decode(t, rec)["status"])

	rec = a.do(t, http.MethodPost, "/v1/merchant/auctions/"+id+"/schedule", merchant, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode(t, rec)["error"])

	rec = a.do(t, http.MethodGet, "/v1/merchant/auctions", merchant, nil)
	assert.Len(t, decode(t, rec)["items"], 1)
	rec = a.do(t, http.MethodGet, "/v1/merchant/auctions", bearer(t, strangerID, model.RoleMerchant), nil)
	assert.Empty(t, decode(t, rec)["items"])

	rec = a.do(t, http.MethodPost, "/v1/merchant/auctions/"+id+"/cancel", bearer(t, strangerID, model.RoleMerchant), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode(t, rec)["error"])

	rec = a.do(t, http.MethodPost, "/v1/merchant/auctions/"+id+"/cancel", merchant, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", decode(t, rec)["status"])

	rec = a.do(t, http.MethodPut, "/v1/merchant/auctions/"+id, merchant, input)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/merchant/auctions/abc/cancel", merchant, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat(t *testing.T) {
	a := newAPI(t)
	a.seed(t, "chatty", model.StatusLive, time.Now().UTC().Add(-time.Minute), 60)
	a.seed(t, "over", model.StatusEndedUnsold, time.Now().UTC().Add(-2*time.Hour), 60)
	buyer := bearer(t, buyerID, model.RoleBuyer)

	rec := a.do(t, http.MethodPost, "/v1/auctions/chatty/messages", "", map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auctions/chatty/messages", buyer, map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/auctions/chatty/messages", buyer, map[string]string{"content": strings.Repeat("é", 501)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, msg := range []string{"first", strings.Repeat("é", 500)} {
		rec = a.do(t, http.MethodPost, "/v1/auctions/chatty/messages", buyer, map[string]string{"content": msg})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec = a.do(t, http.MethodPost, "/v1/auctions/over/messages", buyer, map[string]string{"content": "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/auctions/chatty/messages", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "first", items[0].(map[string]any)["content"])
}

func TestAdminStats(t *testing.T) {
	a := newAPI(t)
	a.seed(t, "one", model.StatusLive, time.Now().UTC().Add(-time.Minute), 60)

	rec := a.do(t, http.MethodGet, "/v1/admin/live/stats", bearer(t, buyerID, model.RoleBuyer), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/admin/live/stats", bearer(t, adminID, model.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["auctions"].(map[string]any)["LIVE"])
	assert.Contains(t, body, "presence")
}

func TestLiveStreamSSE(t *testing.T) {
	a := newAPI(t)
	a.seed(t, "finished", model.StatusLive, time.Now().UTC().Add(-2*time.Hour), 60)
	srv := httptest.NewServer(a.e)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/auctions/finished/live", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []map[string]any
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	assert.Equal(t, "connected", events[0]["type"])
	assert.Equal(t, "ENDED_UNSOLD", events[1]["status"])
	assert.Equal(t, "ended", events[2]["type"])
}

func TestLiveStreamWebSocket(t *testing.T) {
	a := newAPI(t)
	a.seed(t, "ws-finished", model.StatusLive, time.Now().UTC().Add(-2*time.Hour), 60)
	srv := httptest.NewServer(a.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/auctions/ws-finished/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var types []any
	for i := 0; i < 3; i++ {
		var ev map[string]any
		require.NoError(t, conn.ReadJSON(&ev))
		types = append(types, ev["type"])
	}
	assert.Equal(t, []any{"connected", nil, "ended"}, types)

	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "server closes after the ended event")
}

func TestStreamUnknownAuction(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, http.MethodGet, "/v1/auctions/nope/live", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
