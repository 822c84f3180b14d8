package middleware

import (
    "context"
    "errors"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"
    "go.uber.org/zap/zaptest"
    "go.uber.org/zap/zaptest/observer"

    "github.com/iliyamo/routine-tracker/internal/config"
    "github.com/iliyamo/routine-tracker/internal/model"
    "github.com/iliyamo/routine-tracker/internal/utils"
)

type fakeUsers struct {
    email      string
    name, pict *string
    err        error
}

func (f *fakeUsers) Upsert(_ context.Context, email string, name, image *string) (model.User, error) {
    f.email, f.name, f.pict = email, name, image
    if f.err != nil {
        return model.User{}, f.err
    }
    return model.User{ID: 42, Email: email}, nil
}

func serveWith(mw echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, uint64) {
    e := echo.New()
    var seen uint64
    e.GET("/routines", func(c echo.Context) error {
        seen = UserID(c)
        return c.String(http.StatusOK, "ok")
    }, mw)
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec, seen
}

func TestJWTAuth(t *testing.T) {
    tok, err := utils.NewAccessToken("secret", "ada@example.com", "Ada", time.Hour)
    require.NoError(t, err)

    t.Run("valid token resolves user", func(t *testing.T) {
        users := &fakeUsers{}
        req := httptest.NewRequest(http.MethodGet, "/routines", nil)
        req.Header.Set("Authorization", "Bearer "+tok.Token)

        rec, uid := serveWith(JWTAuth("secret", users, zaptest.NewLogger(t)), req)
        assert.Equal(t, http.StatusOK, rec.Code)
        assert.EqualValues(t, 42, uid)
        assert.Equal(t, "ada@example.com", users.email)
        require.NotNil(t, users.name)
        assert.Equal(t, "Ada", *users.name)
        assert.Nil(t, users.pict)
    })

    t.Run("missing header", func(t *testing.T) {
        req := httptest.NewRequest(http.MethodGet, "/routines", nil)
        rec, _ := serveWith(JWTAuth("secret", &fakeUsers{}, zaptest.NewLogger(t)), req)
        assert.Equal(t, http.StatusUnauthorized, rec.Code)
        assert.JSONEq(t, `{"error":"missing bearer token"}`, rec.Body.String())
    })

    t.Run("bad signature", func(t *testing.T) {
        req := httptest.NewRequest(http.MethodGet, "/routines", nil)
        req.Header.Set("Authorization", "Bearer "+tok.Token)
        rec, _ := serveWith(JWTAuth("other", &fakeUsers{}, zaptest.NewLogger(t)), req)
        assert.Equal(t, http.StatusUnauthorized, rec.Code)
    })

    t.Run("store failure", func(t *testing.T) {
        req := httptest.NewRequest(http.MethodGet, "/routines", nil)
        req.Header.Set("Authorization", "Bearer "+tok.Token)
        rec, _ := serveWith(JWTAuth("secret", &fakeUsers{err: errors.New("db down")}, zaptest.NewLogger(t)), req)
        assert.Equal(t, http.StatusInternalServerError, rec.Code)
    })
}

func TestRequestLogger(t *testing.T) {
    core, logs := observer.New(zap.InfoLevel)
    e := echo.New()
    e.Use(RequestLogger(zap.New(core)))
    e.GET("/routines/:id", func(c echo.Context) error {
        c.Set("user_id", uint64(7))
        return echo.NewHTTPError(http.StatusNotFound, "nope")
    })

    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/routines/3", nil))

    assert.Equal(t, http.StatusNotFound, rec.Code)
    assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
    entries := logs.All()
    require.Len(t, entries, 1)
    fields := entries[0].ContextMap()
    assert.Equal(t, "/routines/:id", fields["route"])
    assert.EqualValues(t, 404, fields["status"])
    assert.EqualValues(t, 7, fields["user_id"])
}

func TestDisabledWithoutRedis(t *testing.T) {
    log := zaptest.NewLogger(t)
    for name, mw := range map[string]echo.MiddlewareFunc{
        "cache":     UserCache(config.CacheConfig{Enabled: true}, nil, nil, log),
        "ratelimit": TokenBucket(config.RateLimitConfig{Enabled: true}, nil, log),
    } {
        t.Run(name, func(t *testing.T) {
            rec, _ := serveWith(mw, httptest.NewRequest(http.MethodGet, "/routines", nil))
            assert.Equal(t, http.StatusOK, rec.Code)
            assert.Empty(t, rec.Header().Get("X-Cache"))
        })
    }
}

func TestPayloadCodec(t *testing.T) {
    hdr := http.Header{"Content-Type": {"application/json"}}
    bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"routines":[]}`))
    require.NoError(t, err)

    status, gotHdr, body, ok := decodePayload(bs)
    require.True(t, ok)
    assert.Equal(t, http.StatusOK, status)
    assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
    assert.Equal(t, `{"routines":[]}`, string(body))

    _, _, _, ok = decodePayload(bs[:5])
    assert.False(t, ok)
}

func TestRateKey(t *testing.T) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/routines/5/check", nil)
    req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/routines/:id/check")
    c.Set("user_id", uint64(9))

    cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}
    assert.Equal(t, "rl:user:9:route:POST /routines/:id/check", rateKey(cfg, c))
    cfg.KeyStrategy = "ip"
    assert.Equal(t, "rl:ip:10.0.0.1", rateKey(cfg, c))
}
