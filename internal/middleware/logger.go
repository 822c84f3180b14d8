package middleware

import (
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"
)

// RequestLogger assigns a request id (kept from X-Request-ID when the
// client sends one) and logs one line per request.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            rid := c.Request().Header.Get(echo.HeaderXRequestID)
            if rid == "" {
                rid = uuid.NewString()
            }
            c.Response().Header().Set(echo.HeaderXRequestID, rid)

            err := next(c)
            if err != nil {
                // let the error handler write the response so the status is known
                c.Error(err)
            }

            status := c.Response().Status
            fields := []zap.Field{
                zap.String("request_id", rid),
                zap.String("method", c.Request().Method),
                zap.String("route", c.Path()),
                zap.Int("status", status),
                zap.Duration("latency", time.Since(start)),
            }
            if uid := UserID(c); uid != 0 {
                fields = append(fields, zap.Uint64("user_id", uid))
            }
            switch {
            case status >= 500:
                log.Error("request", fields...)
            case status >= 400:
                log.Warn("request", fields...)
            default:
                log.Info("request", fields...)
            }
            return nil
        }
    }
}
