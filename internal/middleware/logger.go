package middleware

import (
    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "go.uber.org/zap"
)

// RequestLogger writes one structured line per request to logger.  Server
// errors log at error level, client errors at warn.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
    return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
        LogMethod:    true,
        LogURI:       true,
        LogStatus:    true,
        LogLatency:   true,
        LogRemoteIP:  true,
        LogRequestID: true,
        LogError:     true,
        HandleError:  true,
        LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
            fields := []zap.Field{
                zap.String("method", v.Method),
                zap.String("uri", v.URI),
                zap.Int("status", v.Status),
                zap.Duration("latency", v.Latency),
                zap.String("remote_ip", v.RemoteIP),
            }
            if v.RequestID != "" {
                fields = append(fields, zap.String("request_id", v.RequestID))
            }
            if id, ok := UserID(c); ok {
                fields = append(fields, zap.Uint64("user_id", id))
            }
            switch {
            case v.Error != nil || v.Status >= 500:
                logger.Error("request", append(fields, zap.Error(v.Error))...)
            case v.Status >= 400:
                logger.Warn("request", fields...)
            default:
                logger.Info("request", fields...)
            }
            return nil
        },
    })
}
