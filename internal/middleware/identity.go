package middleware

// identity.go exposes the caller identity stored by the auth middleware.
// Anonymous requests have no user id; the rate limiter keys them as "anon".

import (
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/dutch-auction/internal/model"
)

// UserID returns the authenticated user id, if any.
func UserID(c echo.Context) (uint64, bool) {
    switch v := c.Get(ctxUserID).(type) {
    case uint64:
        return v, v > 0
    case int64:
        return uint64(v), v > 0
    case int:
        return uint64(v), v > 0
    case string:
        n, err := strconv.ParseUint(v, 10, 64)
        return n, err == nil && n > 0
    }
    return 0, false
}

// Role returns the caller's role, or "" for anonymous requests.
func Role(c echo.Context) string {
    r, _ := c.Get(ctxRole).(string)
    return r
}

// Wallet returns the wallet claim of the caller's token, if any.
func Wallet(c echo.Context) string {
    w, _ := c.Get(ctxWallet).(string)
    return w
}

// Actor bundles the caller identity for service calls.
func Actor(c echo.Context) model.Actor {
    id, _ := UserID(c)
    return model.Actor{UserID: id, Role: Role(c)}
}

// currentUserID renders the caller for rate-limit keys.
func currentUserID(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    return "anon"
}
