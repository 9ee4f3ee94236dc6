package middleware

import (
    "context"
    "errors"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/dutch-auction/internal/config"
    "github.com/iliyamo/dutch-auction/internal/model"
    "github.com/iliyamo/dutch-auction/internal/utils"
)

const secret = "test-secret"

type wallets map[string]uint64

func (w wallets) UserIDByWallet(_ context.Context, wallet string) (uint64, error) {
    if id, ok := w[wallet]; ok {
        return id, nil
    }
    return 0, errors.New("not found")
}

func whoami(c echo.Context) error {
    a := Actor(c)
    return c.JSON(http.StatusOK, echo.Map{"id": a.UserID, "role": a.Role, "wallet": Wallet(c)})
}

func token(t *testing.T, id uint64, role, wallet string) string {
    t.Helper()
    tok, err := utils.NewAccessToken(secret, id, role, wallet, time.Hour)
    require.NoError(t, err)
    return tok.Token
}

func serve(e *echo.Echo, method, path, bearer string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, path, nil)
    if bearer != "" {
        req.Header.Set("Authorization", "Bearer "+bearer)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestJWTAuth(t *testing.T) {
    e := echo.New()
    users := wallets{"So1ana": 42}
    e.GET("/me", whoami, JWTAuth(secret, users))

    rec := serve(e, http.MethodGet, "/me", "")
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
    assert.Contains(t, rec.Body.String(), `"unauthorized"`)

    rec = serve(e, http.MethodGet, "/me", token(t, 7, model.RoleBuyer, ""))
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"id":7,"role":"BUYER","wallet":""}`, rec.Body.String())

    rec = serve(e, http.MethodGet, "/me", token(t, 0, model.RoleMerchant, "So1ana"))
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"id":42,"role":"MERCHANT","wallet":"So1ana"}`, rec.Body.String())

    rec = serve(e, http.MethodGet, "/me", token(t, 0, model.RoleBuyer, "unknown"))
    assert.Equal(t, http.StatusUnauthorized, rec.Code)

    str, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
        "sub": "15", "role": "admin", "exp": time.Now().Add(time.Minute).Unix(),
    }).SignedString([]byte(secret))
    require.NoError(t, err)
    rec = serve(e, http.MethodGet, "/me", str)
    assert.JSONEq(t, `{"id":15,"role":"ADMIN","wallet":""}`, rec.Body.String())

    forged, err := utils.NewAccessToken("other", 7, model.RoleAdmin, "", time.Hour)
    require.NoError(t, err)
    rec = serve(e, http.MethodGet, "/me", forged.Token)
    assert.Equal(t, http.StatusUnauthorized, rec.Code)

    expired, err := utils.NewAccessToken(secret, 7, model.RoleAdmin, "", -time.Minute)
    require.NoError(t, err)
    rec = serve(e, http.MethodGet, "/me", expired.Token)
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalJWT(t *testing.T) {
    e := echo.New()
    e.GET("/me", whoami, OptionalJWT(secret, nil))

    rec := serve(e, http.MethodGet, "/me", "")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"id":0,"role":"","wallet":""}`, rec.Body.String())

    rec = serve(e, http.MethodGet, "/me", token(t, 9, model.RoleBuyer, "w"))
    assert.JSONEq(t, `{"id":9,"role":"BUYER","wallet":"w"}`, rec.Body.String())

    rec = serve(e, http.MethodGet, "/me", "garbage")
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
    e := echo.New()
    e.GET("/admin", whoami, JWTAuth(secret, nil), RequireRole(model.RoleAdmin))

    assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin", token(t, 1, model.RoleBuyer, "")).Code)
    assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/admin", token(t, 1, model.RoleAdmin, "")).Code)
}

func newRedis(t *testing.T) *redis.Client {
    t.Helper()
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })
    return rdb
}

func TestTokenBucket(t *testing.T) {
    cfg := config.RateLimitConfig{
        Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
        TTL: time.Hour, KeyStrategy: "user_auction", Prefix: "rl",
    }
    e := echo.New()
    ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
    e.POST("/v1/auctions/:ref/buy", ok, JWTAuth(secret, nil), NewTokenBucket(cfg, newRedis(t), nil))

    buyer := token(t, 5, model.RoleBuyer, "")
    assert.Equal(t, http.StatusNoContent, serve(e, http.MethodPost, "/v1/auctions/1/buy", buyer).Code)
    rec := serve(e, http.MethodPost, "/v1/auctions/1/buy", buyer)
    assert.Equal(t, http.StatusNoContent, rec.Code)
    assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

    rec = serve(e, http.MethodPost, "/v1/auctions/1/buy", buyer)
    assert.Equal(t, http.StatusTooManyRequests, rec.Code)
    assert.NotEmpty(t, rec.Header().Get("Retry-After"))

    assert.Equal(t, http.StatusNoContent, serve(e, http.MethodPost, "/v1/auctions/2/buy", buyer).Code, "separate auction budget")
    assert.Equal(t, http.StatusNoContent, serve(e, http.MethodPost, "/v1/auctions/1/buy", token(t, 6, model.RoleBuyer, "")).Code)
}

func TestTokenBucketFailsOpen(t *testing.T) {
    cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour, TTL: time.Hour}
    rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
    t.Cleanup(func() { _ = rdb.Close() })
    e := echo.New()
    e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(cfg, rdb, nil))
    for i := 0; i < 3; i++ {
        assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/x", "").Code)
    }
}

func TestRedisCache(t *testing.T) {
    cfg := config.CacheConfig{
        Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute,
        KeyStrategy: "route_query", Prefix: "c", MaxBodyBytes: 1024,
    }
    calls := 0
    e := echo.New()
    e.GET("/v1/auctions/:ref", func(c echo.Context) error {
        calls++
        return c.JSON(http.StatusOK, echo.Map{"ref": c.Param("ref")})
    }, NewRedisCache(cfg, newRedis(t)))

    rec := serve(e, http.MethodGet, "/v1/auctions/1", "")
    assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
    rec = serve(e, http.MethodGet, "/v1/auctions/1", "")
    assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
    assert.JSONEq(t, `{"ref":"1"}`, rec.Body.String())
    assert.Equal(t, echo.MIMEApplicationJSON, rec.Header().Get("Content-Type"))
    assert.Equal(t, 1, calls)

    rec = serve(e, http.MethodGet, "/v1/auctions/2", "")
    assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
    assert.JSONEq(t, `{"ref":"2"}`, rec.Body.String())

    rec = serve(e, http.MethodGet, "/v1/auctions/1", token(t, 1, model.RoleBuyer, ""))
    assert.Empty(t, rec.Header().Get("X-Cache"), "credentialed requests bypass the cache")
    assert.Equal(t, 3, calls)
}
