package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/binary"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/routine-tracker/internal/calendar"
    "github.com/iliyamo/routine-tracker/internal/config"
)

// captureWriter forwards the response while keeping a copy of up to limit
// bytes of the body.
type captureWriter struct {
    http.ResponseWriter
    status int
    buf    bytes.Buffer
    size   int64
    limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
    cw.status = code
    cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
    if cw.limit <= 0 {
        cw.buf.Write(b)
    } else if remain := cw.limit - cw.size; remain > 0 {
        cw.buf.Write(b[:min(int64(len(b)), remain)])
    }
    cw.size += int64(len(b))
    return cw.ResponseWriter.Write(b)
}

// generationKey holds a per-user counter.  Cached entries embed the counter
// value, so bumping it orphans every entry of that user at once.
func generationKey(cfg config.CacheConfig, uid uint64) string {
    return fmt.Sprintf("%s:gen:%d", cfg.Prefix, uid)
}

// cacheKey scopes an entry to the local day as well, since "today" in a
// response changes at midnight without any write.
func cacheKey(cfg config.CacheConfig, uid uint64, gen int64, day string, c echo.Context) string {
    sum := sha1.Sum([]byte(c.Path() + "?" + c.Request().URL.RawQuery))
    return fmt.Sprintf("%s:u:%d:%d:%s:%x", cfg.Prefix, uid, gen, day, sum[:])
}

// entryTTL caps ttl at the time left until the next local midnight.
func entryTTL(ttl time.Duration, cal *calendar.Calendar) time.Duration {
    left := cal.DayRange(nil).End.Sub(cal.Now())
    if left > 0 && left < ttl {
        return left
    }
    return ttl
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
    hdrJSON, err := json.Marshal(header)
    if err != nil {
        return nil, err
    }
    out := make([]byte, 8+len(hdrJSON)+len(body))
    binary.BigEndian.PutUint32(out[0:4], uint32(status))
    binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
    copy(out[8:], hdrJSON)
    copy(out[8+len(hdrJSON):], body)
    return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
    if len(bs) < 8 {
        return 0, nil, nil, false
    }
    status = int(binary.BigEndian.Uint32(bs[0:4]))
    hlen := int(binary.BigEndian.Uint32(bs[4:8]))
    if hlen < 0 || 8+hlen > len(bs) {
        return 0, nil, nil, false
    }
    header = make(http.Header)
    if hlen > 0 {
        if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
            return 0, nil, nil, false
        }
    }
    return status, header, bs[8+hlen:], true
}

// UserCache caches 200 responses of GET requests per authenticated user.
// Any successful non-GET request of that user invalidates all of its
// entries, and no entry outlives the local day it was stored on.  It must
// run after JWTAuth.  A nil client disables it.
func UserCache(cfg config.CacheConfig, rdb *redis.Client, cal *calendar.Calendar, log *zap.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 30 * time.Second
    }
    if cal == nil {
        cal = calendar.New(time.UTC)
    }
    maxBody := int64(cfg.MaxBodyBytes)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            uid := UserID(c)
            if uid == 0 {
                return next(c)
            }
            ctx := c.Request().Context()

            if c.Request().Method != http.MethodGet {
                err := next(c)
                if err == nil && c.Response().Status < 300 {
                    if ierr := rdb.Incr(context.WithoutCancel(ctx), generationKey(cfg, uid)).Err(); ierr != nil {
                        log.Warn("cache invalidation failed", zap.Uint64("user_id", uid), zap.Error(ierr))
                    }
                }
                return err
            }

            gen, err := rdb.Get(ctx, generationKey(cfg, uid)).Int64()
            if err != nil && err != redis.Nil {
                log.Warn("cache unavailable", zap.Error(err))
                return next(c)
            }
            key := cacheKey(cfg, uid, gen, cal.ToISODate(cal.Now()), c)

            if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
                if status, hdr, body, ok := decodePayload(bs); ok {
                    for k, vals := range hdr {
                        if strings.EqualFold(k, echo.HeaderContentLength) || strings.EqualFold(k, echo.HeaderXRequestID) {
                            continue
                        }
                        for _, v := range vals {
                            c.Response().Header().Add(k, v)
                        }
                    }
                    c.Response().Header().Set("X-Cache", "HIT")
                    c.Response().WriteHeader(status)
                    _, _ = c.Response().Write(body)
                    return nil
                }
            }

            cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
            c.Response().Writer = cw
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
                return nil
            }
            payload, err := encodePayload(cw.status, c.Response().Header().Clone(), cw.buf.Bytes())
            if err == nil {
                err = rdb.SetEx(context.WithoutCancel(ctx), key, payload, entryTTL(ttl, cal)).Err()
            }
            if err != nil {
                log.Warn("cache store failed", zap.String("route", c.Path()), zap.Error(err))
            }
            return nil
        }
    }
}
