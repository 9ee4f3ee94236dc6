package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/dutch-auction/internal/config"
	"github.com/iliyamo/dutch-auction/internal/handler"
	"github.com/iliyamo/dutch-auction/internal/middleware"
)

// Deps bundles everything the routes need.  Redis may be nil, which turns
// the response cache and the rate limiter into pass-throughs.
type Deps struct {
	JWTSecret string
	Users     middleware.WalletResolver
	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
	Logger    *zap.Logger

	Health    *handler.HealthHandler
	Auctions  *handler.AuctionHandler
	Streams   *handler.StreamHandler
	Purchases *handler.PurchaseHandler
	Merchant  *handler.MerchantHandler
	Admin     *handler.AdminHandler
}

// New builds the Echo instance with the global middleware chain and every
// route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator(nil)
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Logger))

	RegisterRoutes(e, d.Health)
	RegisterPublic(e, d)
	RegisterBuyer(e, d)
	RegisterMerchant(e, d)
	RegisterAdmin(e, d)
	return e
}

// RegisterRoutes registers non-authenticated operational routes.  GET
// /healthz is polled by load balancers.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterPublic registers the browse, stream and chat-history endpoints.
// They accept an optional token so owners can see their own drafts.  Only
// the list and detail responses are cached: streams must never be.
func RegisterPublic(e *echo.Echo, d Deps) {
	optional := middleware.OptionalJWT(d.JWTSecret, d.Users)
	cache := middleware.NewRedisCache(d.Cache, d.Redis)

	e.GET("/v1/auctions", d.Auctions.ListAuctions, cache)
	e.GET("/v1/auctions/:ref", d.Auctions.GetAuction, optional, cache)
	e.GET("/v1/auctions/:ref/messages", d.Auctions.ListMessages, optional)
	e.GET("/v1/auctions/:ref/live", d.Streams.Live, optional)
	e.GET("/v1/auctions/:ref/ws", d.Streams.WebSocket, optional)
}
