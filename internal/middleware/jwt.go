package middleware // reusable HTTP middleware for the auction API

import (
    "context"
    "fmt"
    "net/http"
    "strconv"
    "strings"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
)

// Context keys written by the auth middleware.
const (
    ctxUserID = "user_id"
    ctxRole   = "role"
    ctxWallet = "wallet"
)

// WalletResolver maps a wallet address to a user id.  Tokens issued by the
// wallet sign-in service carry the wallet instead of a numeric subject.
type WalletResolver interface {
    UserIDByWallet(ctx context.Context, wallet string) (uint64, error)
}

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the caller's id, role and wallet into the request context.  The
// provided secret must match the one used when issuing tokens.  Handlers
// read the identity through UserID, Role and Actor.
func JWTAuth(secret string, users WalletResolver) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw, ok := bearer(c)
            if !ok {
                return unauthorized(c, "missing bearer token")
            }
            if err := authenticate(c, secret, users, raw); err != nil {
                return unauthorized(c, err.Error())
            }
            return next(c)
        }
    }
}

// OptionalJWT authenticates the caller when a Bearer token is present and
// lets anonymous requests through otherwise.  A token that is present but
// invalid is still rejected.
func OptionalJWT(secret string, users WalletResolver) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw, ok := bearer(c)
            if !ok {
                return next(c)
            }
            if err := authenticate(c, secret, users, raw); err != nil {
                return unauthorized(c, err.Error())
            }
            return next(c)
        }
    }
}

func bearer(c echo.Context) (string, bool) {
    auth := c.Request().Header.Get("Authorization")
    if !strings.HasPrefix(auth, "Bearer ") {
        return "", false
    }
    raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
    return raw, raw != ""
}

func unauthorized(c echo.Context, msg string) error {
    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": msg})
}

// authenticate parses raw with HS256 and stores the identity on c.
func authenticate(c echo.Context, secret string, users WalletResolver, raw string) error {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        // Reject any algorithm other than HMAC.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, echo.ErrUnauthorized
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return fmt.Errorf("invalid token")
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return fmt.Errorf("invalid claims")
    }

    wallet, _ := claims["wallet"].(string)
    id, ok := subject(claims["sub"])
    if !ok && wallet != "" && users != nil {
        resolved, err := users.UserIDByWallet(c.Request().Context(), wallet)
        if err == nil {
            id, ok = resolved, true
        }
    }
    if !ok {
        return fmt.Errorf("unknown subject")
    }
    role, _ := claims["role"].(string)

    c.Set(ctxUserID, id)
    c.Set(ctxRole, strings.ToUpper(role))
    if wallet != "" {
        c.Set(ctxWallet, wallet)
    }
    return nil
}

// subject accepts a numeric sub claim in either JSON number or string form.
func subject(v any) (uint64, bool) {
    switch t := v.(type) {
    case float64:
        if t > 0 && t == float64(uint64(t)) {
            return uint64(t), true
        }
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
            return n, true
        }
    }
    return 0, false
}
