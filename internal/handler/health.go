package handler // handler package contains the HTTP handlers of the routine tracker API

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Health is the liveness check for load balancers and monitoring.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}
