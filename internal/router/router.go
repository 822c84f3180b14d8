package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/routine-tracker/internal/calendar"
	"github.com/iliyamo/routine-tracker/internal/config"
	"github.com/iliyamo/routine-tracker/internal/handler"
	"github.com/iliyamo/routine-tracker/internal/middleware"
)

// Protected bundles what the authenticated route groups need.
type Protected struct {
	JWTSecret string
	Users     middleware.UserResolver
	Redis     *redis.Client // nil disables caching and rate limiting
	Cache     config.CacheConfig
	Calendar  *calendar.Calendar // day boundary for cached entries
	RateLimit config.RateLimitConfig
	Log       *zap.Logger
}

// middlewares returns the chain applied to every protected route: identity
// first, then limiting and caching, both of which key on the user.
func (p Protected) middlewares() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		middleware.JWTAuth(p.JWTSecret, p.Users, p.Log),
		middleware.TokenBucket(p.RateLimit, p.Redis, p.Log),
		middleware.UserCache(p.Cache, p.Redis, p.Calendar, p.Log),
	}
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterRoutines registers the routine endpoints.
func RegisterRoutines(e *echo.Echo, h *handler.RoutineHandler, p Protected) {
	g := e.Group("/routines", p.middlewares()...)
	g.GET("", h.List)
	g.POST("", h.Create)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/check", h.Check)
	g.GET("/:id/history", h.History)
}

// RegisterUser registers the avatar endpoints under /user.
func RegisterUser(e *echo.Echo, h *handler.AvatarHandler, p Protected) {
	g := e.Group("/user", p.middlewares()...)
	g.GET("/avatar", h.Get)
	g.PATCH("/avatar", h.Patch)
	g.POST("/avatar/upload", h.Upload)
}
