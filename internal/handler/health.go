package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthHandler reports liveness plus the state of the configured
// dependencies (database, redis).  Load balancers poll GET /healthz.
type HealthHandler struct {
    Checks map[string]Check
}

// Health returns 200 {"status":"ok"} when every check passes and 503 with the
// failing checks otherwise.
func (h *HealthHandler) Health(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
    defer cancel()
    status, code := "ok", http.StatusOK
    checks := make(map[string]string, len(h.Checks))
    for name, check := range h.Checks {
        if err := check(ctx); err != nil {
            checks[name] = err.Error()
            status, code = "degraded", http.StatusServiceUnavailable
            continue
        }
        checks[name] = "ok"
    }
    return c.JSON(code, echo.Map{"status": status, "checks": checks})
}
