package handler

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/routine-tracker/internal/calendar"
    "github.com/iliyamo/routine-tracker/internal/repository"
    "github.com/iliyamo/routine-tracker/internal/storage"
    "github.com/iliyamo/routine-tracker/internal/tracker"
)

var errUnauthorized = errors.New("unauthorized")

// getUserID extracts the user_id set by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
    if id, ok := c.Get("user_id").(uint64); ok && id != 0 {
        return id, nil
    }
    return 0, errUnauthorized
}

// routineID parses the :id path parameter.
func routineID(c echo.Context) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    return id, err == nil && id != 0
}

func jsonError(c echo.Context, status int, msg string) error {
    return c.JSON(status, echo.Map{"error": msg})
}

// respondError maps domain errors onto HTTP statuses.  Unknown errors are
// logged and reported as a generic 500.
func respondError(c echo.Context, log *zap.Logger, err error) error {
    var upErr *storage.UploadError
    switch {
    case errors.Is(err, errUnauthorized):
        return jsonError(c, http.StatusUnauthorized, "unauthorized")
    case errors.Is(err, repository.ErrNotFound):
        return jsonError(c, http.StatusNotFound, "not found")
    case errors.Is(err, repository.ErrConflict):
        return jsonError(c, http.StatusConflict, "concurrent update, please retry")
    case errors.Is(err, tracker.ErrEmptyTitle):
        return jsonError(c, http.StatusBadRequest, "title is required")
    case errors.Is(err, tracker.ErrTitleTooLong):
        return jsonError(c, http.StatusBadRequest, "title is too long")
    case errors.Is(err, tracker.ErrInvalidColor):
        return jsonError(c, http.StatusBadRequest, "invalid color")
    case errors.Is(err, tracker.ErrNoChanges):
        return jsonError(c, http.StatusBadRequest, "no changes")
    case errors.Is(err, tracker.ErrInvalidRange):
        return jsonError(c, http.StatusBadRequest, "invalid range")
    case errors.Is(err, calendar.ErrInvalidDate):
        return jsonError(c, http.StatusBadRequest, "invalid date")
    case errors.Is(err, storage.ErrNotConfigured):
        return jsonError(c, http.StatusInternalServerError, "storage is not configured")
    case errors.As(err, &upErr):
        log.Warn("storage upload failed", zap.Int("upstream_status", upErr.Status), zap.Error(err))
        return jsonError(c, http.StatusBadGateway, upErr.Message)
    }
    log.Error("request failed",
        zap.String("method", c.Request().Method), zap.String("route", c.Path()), zap.Error(err))
    return jsonError(c, http.StatusInternalServerError, "internal error")
}
