package handler // handler defines http handlers

import (
    "errors"
    "net/http"
    "strconv"
    "strings"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/dutch-auction/internal/lifecycle"
    "github.com/iliyamo/dutch-auction/internal/middleware"
    "github.com/iliyamo/dutch-auction/internal/purchase"
    "github.com/iliyamo/dutch-auction/internal/repository"
)

// fail writes the standard error body {"error": code, "message": msg}.
func fail(c echo.Context, status int, code, msg string) error {
    return c.JSON(status, echo.Map{"error": code, "message": msg})
}

// apiError maps a domain error to its HTTP status and machine code.
type apiError struct {
    target error
    status int
    code   string
    msg    string
}

var apiErrors = []apiError{
    {purchase.ErrAuctionNotFound, http.StatusNotFound, "auction_not_found", "Auction not found"},
    {repository.ErrNotFound, http.StatusNotFound, "auction_not_found", "Auction not found"},
    {purchase.ErrAuctionNotLive, http.StatusConflict, "auction_not_live", "Auction is no longer active"},
    {purchase.ErrAuctionSoldOut, http.StatusConflict, "auction_sold_out", "Auction is sold out"},
    {purchase.ErrAuctionAlreadySold, http.StatusConflict, "auction_already_sold", "Someone else bought this auction"},
    {purchase.ErrPaymentReferenceUsed, http.StatusConflict, "payment_reference_used", "Payment reference already used"},
    {purchase.ErrUnderpaid, http.StatusPaymentRequired, "underpaid", ""},
    {purchase.ErrPaymentNotVerified, http.StatusPaymentRequired, "payment_not_verified", ""},
    {purchase.ErrUnsupportedCurrency, http.StatusBadRequest, "validation_error", ""},
    {purchase.ErrInvalidRequest, http.StatusBadRequest, "validation_error", ""},
    {lifecycle.ErrValidation, http.StatusBadRequest, "validation_error", ""},
    {lifecycle.ErrForbidden, http.StatusForbidden, "forbidden", "Not allowed"},
    {lifecycle.ErrCancelAfterSale, http.StatusConflict, "invalid_transition", ""},
    {lifecycle.ErrInvalidTransition, http.StatusConflict, "invalid_transition", ""},
}

// writeError renders err.  Unknown errors are logged and reported as 500
// without details.
func writeError(c echo.Context, logger *zap.Logger, err error) error {
    for _, e := range apiErrors {
        if errors.Is(err, e.target) {
            msg := e.msg
            if msg == "" {
                msg = err.Error()
            }
            return fail(c, e.status, e.code, msg)
        }
    }
    logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
    return fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
}

// badRequest reports a bind or validation failure.
func badRequest(c echo.Context, err error) error {
    var ve validator.ValidationErrors
    if errors.As(err, &ve) {
        parts := make([]string, 0, len(ve))
        for _, fe := range ve {
            parts = append(parts, fe.Field()+" failed "+fe.Tag())
        }
        return fail(c, http.StatusBadRequest, "validation_error", strings.Join(parts, "; "))
    }
    return fail(c, http.StatusBadRequest, "validation_error", "invalid request body")
}

// getUserID extracts the authenticated user id or writes a 401.
func getUserID(c echo.Context) (uint64, error) {
    id, ok := middleware.UserID(c)
    if !ok {
        return 0, errors.New("invalid user_id in context")
    }
    return id, nil
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    return id, err == nil && id > 0
}

// queryInt reads an integer query parameter with a default.
func queryInt(c echo.Context, name string, def int) int {
    v := c.QueryParam(name)
    if v == "" {
        return def
    }
    n, err := strconv.Atoi(v)
    if err != nil {
        return def
    }
    return n
}
