package middleware // middleware holds the echo middleware shared by all protected routes

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/routine-tracker/internal/model"
    "github.com/iliyamo/routine-tracker/internal/utils"
)

// UserResolver maps a verified identity to the local user row, creating
// or refreshing it as needed.
type UserResolver interface {
    Upsert(ctx context.Context, email string, name, image *string) (model.User, error)
}

// JWTAuth validates the Bearer token, upserts the user it names and stores
// the numeric user id in the context under "user_id" (uint64).  Name is
// refreshed from the token; the picture only fills an empty avatar.
func JWTAuth(secret string, users UserResolver, log *zap.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
            defer cancel()
            user, err := users.Upsert(ctx, claims.Email, optional(claims.Name), optional(claims.Picture))
            if err != nil {
                log.Error("resolve user", zap.String("email", claims.Email), zap.Error(err))
                return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
            }

            c.Set("user_id", user.ID)
            return next(c)
        }
    }
}

// UserID returns the authenticated user id, or 0 outside JWTAuth.
func UserID(c echo.Context) uint64 {
    id, _ := c.Get("user_id").(uint64)
    return id
}

func optional(s string) *string {
    s = strings.TrimSpace(s)
    if s == "" {
        return nil
    }
    return &s
}
