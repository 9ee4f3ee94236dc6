package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dutch-auction/internal/middleware"
	"github.com/iliyamo/dutch-auction/internal/model"
)

// RegisterBuyer registers the authenticated auction actions.  Any role may
// chat and buy; quote and confirm are rate limited per user.
func RegisterBuyer(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1/auctions",
		middleware.JWTAuth(d.JWTSecret, d.Users),
		middleware.RequireRole(model.RoleBuyer, model.RoleMerchant, model.RoleAdmin),
	)
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Logger)

	g.POST("/:ref/messages", d.Auctions.PostMessage)
	g.POST("/:ref/buy", d.Purchases.Buy, limit)
	g.POST("/:ref/confirm", d.Purchases.Confirm, limit)
}
