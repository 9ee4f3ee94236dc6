package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dutch-auction/internal/middleware"
	"github.com/iliyamo/dutch-auction/internal/model"
)

// RegisterMerchant registers the lifecycle endpoints under /v1/merchant.
// Routes require a MERCHANT or ADMIN token; ownership of the individual
// auction is checked by the lifecycle service.
func RegisterMerchant(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1/merchant",
		middleware.JWTAuth(d.JWTSecret, d.Users),
		middleware.RequireRole(model.RoleMerchant, model.RoleAdmin),
	)
	g.GET("/auctions", d.Merchant.ListAuctions)
	g.POST("/auctions", d.Merchant.CreateAuction)
	g.PUT("/auctions/:id", d.Merchant.UpdateAuction)
	g.POST("/auctions/:id/schedule", d.Merchant.ScheduleAuction)
	g.POST("/auctions/:id/cancel", d.Merchant.CancelAuction)
}

// RegisterAdmin registers ADMIN-only operational endpoints.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(d.JWTSecret, d.Users),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.GET("/live/stats", d.Admin.LiveStats)
}
