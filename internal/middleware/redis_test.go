package middleware

import (
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap/zaptest"

    "github.com/iliyamo/routine-tracker/internal/calendar"
    "github.com/iliyamo/routine-tracker/internal/config"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
    t.Helper()
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { rdb.Close() })
    return mr, rdb
}

// asUser stands in for JWTAuth.
func asUser(id uint64) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            c.Set("user_id", id)
            return next(c)
        }
    }
}

// cachedAPI serves GET /routines from a counter so hits are observable, and
// POST /routines as a write.
func cachedAPI(t *testing.T, rdb *redis.Client, cal *calendar.Calendar, uid uint64) (*echo.Echo, *int) {
    t.Helper()
    cfg := config.CacheConfig{Enabled: true, TTL: 30 * time.Second, Prefix: "cache", MaxBodyBytes: 1 << 20}
    calls := 0
    e := echo.New()
    g := e.Group("/routines", asUser(uid), UserCache(cfg, rdb, cal, zaptest.NewLogger(t)))
    g.GET("", func(c echo.Context) error {
        calls++
        return c.JSON(http.StatusOK, echo.Map{"calls": calls})
    })
    g.POST("", func(c echo.Context) error {
        return c.JSON(http.StatusCreated, echo.Map{"id": 1})
    })
    g.GET("/missing", func(c echo.Context) error {
        calls++
        return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
    })
    return e, &calls
}

func call(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
    return rec
}

func TestUserCache_HitThenInvalidateOnWrite(t *testing.T) {
    _, rdb := newRedis(t)
    e, calls := cachedAPI(t, rdb, calendar.New(time.UTC), 7)

    first := call(e, http.MethodGet, "/routines")
    require.Equal(t, http.StatusOK, first.Code)
    assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

    second := call(e, http.MethodGet, "/routines")
    require.Equal(t, http.StatusOK, second.Code)
    assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
    assert.JSONEq(t, first.Body.String(), second.Body.String())
    assert.Equal(t, echo.MIMEApplicationJSON, second.Header().Get(echo.HeaderContentType))
    assert.Equal(t, 1, *calls)

    require.Equal(t, http.StatusCreated, call(e, http.MethodPost, "/routines").Code)

    third := call(e, http.MethodGet, "/routines")
    assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
    assert.JSONEq(t, `{"calls":2}`, third.Body.String())
    assert.Equal(t, 2, *calls)
}

func TestUserCache_ScopedPerUser(t *testing.T) {
    _, rdb := newRedis(t)
    ada, _ := cachedAPI(t, rdb, calendar.New(time.UTC), 1)
    bob, bobCalls := cachedAPI(t, rdb, calendar.New(time.UTC), 2)

    call(ada, http.MethodGet, "/routines")
    rec := call(bob, http.MethodGet, "/routines")
    assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
    assert.Equal(t, 1, *bobCalls)

    // a write by one user leaves the other's entries alone
    call(ada, http.MethodPost, "/routines")
    assert.Equal(t, "HIT", call(bob, http.MethodGet, "/routines").Header().Get("X-Cache"))
}

func TestUserCache_SkipsNon200(t *testing.T) {
    _, rdb := newRedis(t)
    e, calls := cachedAPI(t, rdb, calendar.New(time.UTC), 3)

    call(e, http.MethodGet, "/routines/missing")
    rec := call(e, http.MethodGet, "/routines/missing")
    assert.Equal(t, http.StatusNotFound, rec.Code)
    assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
    assert.Equal(t, 2, *calls)
}

func TestUserCache_EntryEndsAtLocalMidnight(t *testing.T) {
    mr, rdb := newRedis(t)
    loc, err := time.LoadLocation("Europe/Berlin")
    require.NoError(t, err)
    now := time.Date(2024, 3, 9, 23, 59, 50, 0, loc)
    cal := calendar.New(loc).WithClock(func() time.Time { return now })
    e, calls := cachedAPI(t, rdb, cal, 4)

    call(e, http.MethodGet, "/routines")
    var entry string
    for _, k := range mr.Keys() {
        if strings.HasPrefix(k, "cache:u:4:") {
            entry = k
        }
    }
    require.NotEmpty(t, entry)
    assert.Contains(t, entry, ":2024-03-09:")
    assert.Equal(t, 10*time.Second, mr.TTL(entry))

    // after midnight the previous day's entry is not served
    now = now.Add(20 * time.Second)
    rec := call(e, http.MethodGet, "/routines")
    assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
    assert.Equal(t, 2, *calls)
}

func TestEntryTTL(t *testing.T) {
    now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
    cal := calendar.New(time.UTC).WithClock(func() time.Time { return now })
    assert.Equal(t, 30*time.Second, entryTTL(30*time.Second, cal))
    assert.Equal(t, 12*time.Hour, entryTTL(48*time.Hour, cal))
}

func TestTokenBucket_RejectsWhenEmpty(t *testing.T) {
    _, rdb := newRedis(t)
    cfg := config.RateLimitConfig{
        Enabled:        true,
        Capacity:       2,
        RefillTokens:   1,
        RefillInterval: time.Hour,
        TTL:            2 * time.Hour,
        KeyStrategy:    "user_route",
        Prefix:         "rl",
    }
    e := echo.New()
    e.GET("/routines", func(c echo.Context) error {
        return c.String(http.StatusOK, "ok")
    }, asUser(5), TokenBucket(cfg, rdb, zaptest.NewLogger(t)))

    for want := 1; want >= 0; want-- {
        rec := call(e, http.MethodGet, "/routines")
        require.Equal(t, http.StatusOK, rec.Code)
        assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
        assert.Equal(t, string(rune('0'+want)), rec.Header().Get("X-RateLimit-Remaining"))
    }

    rec := call(e, http.MethodGet, "/routines")
    assert.Equal(t, http.StatusTooManyRequests, rec.Code)
    assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
    assert.NotEmpty(t, rec.Header().Get("Retry-After"))
    assert.Contains(t, rec.Body.String(), `"error":"rate limit exceeded"`)
}

func TestTokenBucket_RedisDownLetsRequestsThrough(t *testing.T) {
    rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
    t.Cleanup(func() { rdb.Close() })
    cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}
    e := echo.New()
    e.GET("/routines", func(c echo.Context) error {
        return c.String(http.StatusOK, "ok")
    }, TokenBucket(cfg, rdb, zaptest.NewLogger(t)))

    for i := 0; i < 3; i++ {
        assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/routines").Code)
    }
}
