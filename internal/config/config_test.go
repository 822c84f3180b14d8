package config

import (
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestLoad_SQLiteDefaults(t *testing.T) {
    t.Chdir(t.TempDir())
    t.Setenv("DB_DRIVER", "sqlite3")
    t.Setenv("JWT_SECRET", "s3cret")
    t.Setenv("APP_TIMEZONE", "Asia/Tokyo")

    cfg, err := Load("")
    require.NoError(t, err)
    assert.Equal(t, DriverSQLite, cfg.DBDriver)
    assert.Equal(t, 180, cfg.StreakWindowDays)
    assert.Equal(t, "avatars", cfg.Storage.Bucket)
    assert.EqualValues(t, 4<<20, cfg.Storage.AvatarMaxBytes)

    loc, err := cfg.Location()
    require.NoError(t, err)
    assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestLoad_ReportsAllMissing(t *testing.T) {
    t.Chdir(t.TempDir())
    t.Setenv("DB_DRIVER", "mysql")
    t.Setenv("JWT_SECRET", "")
    t.Setenv("DB_USER", "")
    t.Setenv("DB_NAME", "")

    _, err := Load("")
    require.Error(t, err)
    assert.Contains(t, err.Error(), "JWT_SECRET")
    assert.Contains(t, err.Error(), "DB_USER")
    assert.Contains(t, err.Error(), "DB_NAME")
}

func TestLoad_YAMLDoesNotOverrideEnv(t *testing.T) {
    dir := t.TempDir()
    t.Chdir(dir)
    path := filepath.Join(dir, "config.yaml")
    require.NoError(t, os.WriteFile(path, []byte(
        "DB_DRIVER: sqlite3\nJWT_SECRET: from-yaml\nSTREAK_WINDOW_DAYS: 30\nAPP_PORT: 9000\n"), 0o600))
    t.Setenv("APP_PORT", "7000")
    // registered so the variables set by Load are restored afterwards
    t.Setenv("DB_DRIVER", "")
    t.Setenv("JWT_SECRET", "")
    t.Setenv("STREAK_WINDOW_DAYS", "")
    os.Unsetenv("DB_DRIVER")
    os.Unsetenv("JWT_SECRET")
    os.Unsetenv("STREAK_WINDOW_DAYS")

    cfg, err := Load(path)
    require.NoError(t, err)
    assert.Equal(t, "from-yaml", cfg.JWTSecret)
    assert.Equal(t, 30, cfg.StreakWindowDays)
    assert.Equal(t, "7000", cfg.Port)
}

func TestLoad_BadTimezone(t *testing.T) {
    t.Chdir(t.TempDir())
    t.Setenv("DB_DRIVER", "sqlite3")
    t.Setenv("JWT_SECRET", "x")
    t.Setenv("APP_TIMEZONE", "Mars/Olympus")

    _, err := Load("")
    assert.ErrorContains(t, err, "APP_TIMEZONE")
}

func TestLoad_RejectsNonPositiveAvatarLimit(t *testing.T) {
    for _, raw := range []string{"0", "-1"} {
        t.Run(raw, func(t *testing.T) {
            t.Chdir(t.TempDir())
            t.Setenv("DB_DRIVER", "sqlite3")
            t.Setenv("JWT_SECRET", "x")
            t.Setenv("AVATAR_MAX_BYTES", raw)

            _, err := Load("")
            assert.ErrorContains(t, err, "AVATAR_MAX_BYTES")
        })
    }
}

func TestLoadRateLimitConfig_Floors(t *testing.T) {
    t.Setenv("RATE_LIMIT_CAPACITY", "0")
    t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
    t.Setenv("RATE_LIMIT_TTL", "1s")

    cfg := LoadRateLimitConfig()
    assert.Equal(t, 1, cfg.Capacity)
    assert.Equal(t, 10*time.Second, cfg.TTL)
}

func TestLoadCacheConfig(t *testing.T) {
    t.Setenv("CACHE_ENABLED", "false")
    t.Setenv("CACHE_TTL", "45s")

    cfg := LoadCacheConfig()
    assert.False(t, cfg.Enabled)
    assert.Equal(t, 45*time.Second, cfg.TTL)
    assert.Equal(t, "cache", cfg.Prefix)
    assert.Equal(t, 1<<20, cfg.MaxBodyBytes)
}
