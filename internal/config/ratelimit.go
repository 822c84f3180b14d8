package config

import "time"

// RateLimitConfig configures the Redis token bucket.  Each key starts with
// Capacity tokens and regains RefillTokens every RefillInterval.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string // ip, user, user_route or ip_user_route
    Prefix         string
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  Out-of-range values are
// pulled back to the smallest usable setting.
func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "user_route"),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
    }
    cfg.Capacity = max(cfg.Capacity, 1)
    cfg.RefillTokens = max(cfg.RefillTokens, 1)
    if cfg.RefillInterval <= 0 {
        cfg.RefillInterval = time.Second
    }
    // keys must outlive a full refill of an empty bucket
    cfg.TTL = max(cfg.TTL, 5*cfg.RefillInterval)
    return cfg
}
