// Package config loads application configuration from environment
// variables, optionally seeded from a .env file and a YAML file.
package config

import (
    "errors"
    "fmt"
    "os"
    "time"

    "github.com/joho/godotenv"
    "gopkg.in/yaml.v3"
)

// Database drivers accepted in DB_DRIVER.
const (
    DriverMySQL  = "mysql"
    DriverSQLite = "sqlite3"
)

// Config holds all runtime configuration values.
type Config struct {
    Env              string // APP_ENV: dev, test, prod
    Port             string // APP_PORT
    DBDriver         string // DB_DRIVER: mysql or sqlite3
    DBUser           string
    DBPass           string
    DBHost           string
    DBPort           string
    DBName           string
    DBPath           string // sqlite file, ":memory:" allowed
    JWTSecret        string
    Timezone         string // APP_TIMEZONE, IANA name; empty means server local
    StreakWindowDays int

    Storage   StorageConfig
    Events    EventsConfig
    Redis     RedisConfig
    Cache     CacheConfig
    RateLimit RateLimitConfig
}

// StorageConfig points at the Supabase project used for avatar uploads.
type StorageConfig struct {
    URL            string
    ServiceKey     string
    Bucket         string
    AvatarMaxBytes int64
}

// EventsConfig controls the RabbitMQ activity publisher and consumer.
type EventsConfig struct {
    Enabled bool
    URL     string
    LogPath string // consumer appends one line per event here
}

// Load reads the optional YAML file at path (keys are env names) and the
// .env file in the working directory, then builds a Config from the
// environment.  Variables already set in the process win over both files.
func Load(path string) (Config, error) {
    if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
        return Config{}, fmt.Errorf("load .env: %w", err)
    }
    if path != "" {
        if err := loadYAML(path); err != nil {
            return Config{}, err
        }
    }

    cfg := Config{
        Env:              envStr("APP_ENV", "dev"),
        Port:             envStr("APP_PORT", "8080"),
        DBDriver:         envStr("DB_DRIVER", DriverMySQL),
        DBUser:           os.Getenv("DB_USER"),
        DBPass:           os.Getenv("DB_PASS"),
        DBHost:           envStr("DB_HOST", "127.0.0.1"),
        DBPort:           envStr("DB_PORT", "3306"),
        DBName:           os.Getenv("DB_NAME"),
        DBPath:           envStr("DB_PATH", "routines.db"),
        JWTSecret:        os.Getenv("JWT_SECRET"),
        Timezone:         os.Getenv("APP_TIMEZONE"),
        StreakWindowDays: envInt("STREAK_WINDOW_DAYS", 180),
        Storage: StorageConfig{
            URL:            os.Getenv("SUPABASE_URL"),
            ServiceKey:     os.Getenv("SUPABASE_SERVICE_ROLE"),
            Bucket:         envStr("SUPABASE_BUCKET", "avatars"),
            AvatarMaxBytes: int64(envInt("AVATAR_MAX_BYTES", 4<<20)),
        },
        Events: EventsConfig{
            Enabled: envBool("EVENTS_ENABLED", false),
            URL:     envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
            LogPath: envStr("EVENTS_LOG_PATH", "activity.log"),
        },
        Redis:     LoadRedisConfig(),
        Cache:     LoadCacheConfig(),
        RateLimit: LoadRateLimitConfig(),
    }
    return cfg, cfg.validate()
}

func (c Config) validate() error {
    var errs []error
    if c.JWTSecret == "" {
        errs = append(errs, errors.New("missing required env var: JWT_SECRET"))
    }
    switch c.DBDriver {
    case DriverMySQL:
        if c.DBUser == "" {
            errs = append(errs, errors.New("missing required env var: DB_USER"))
        }
        if c.DBName == "" {
            errs = append(errs, errors.New("missing required env var: DB_NAME"))
        }
    case DriverSQLite:
    default:
        errs = append(errs, fmt.Errorf("invalid DB_DRIVER %q", c.DBDriver))
    }
    if c.StreakWindowDays < 1 {
        errs = append(errs, fmt.Errorf("invalid STREAK_WINDOW_DAYS %d", c.StreakWindowDays))
    }
    if c.Storage.AvatarMaxBytes <= 0 {
        errs = append(errs, fmt.Errorf("invalid AVATAR_MAX_BYTES %d: must be positive", c.Storage.AvatarMaxBytes))
    }
    if c.Events.Enabled && c.Events.URL == "" {
        errs = append(errs, errors.New("EVENTS_ENABLED requires RABBITMQ_URL"))
    }
    if _, err := c.Location(); err != nil {
        errs = append(errs, err)
    }
    return errors.Join(errs...)
}

// Location resolves Timezone.  An empty name is the server's local zone.
func (c Config) Location() (*time.Location, error) {
    if c.Timezone == "" {
        return time.Local, nil
    }
    loc, err := time.LoadLocation(c.Timezone)
    if err != nil {
        return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", c.Timezone, err)
    }
    return loc, nil
}

// loadYAML copies the scalar entries of a flat YAML mapping into the
// environment without overriding variables that are already set.
func loadYAML(path string) error {
    raw, err := os.ReadFile(path)
    if err != nil {
        return fmt.Errorf("read config file: %w", err)
    }
    var values map[string]any
    if err := yaml.Unmarshal(raw, &values); err != nil {
        return fmt.Errorf("parse config file %s: %w", path, err)
    }
    for k, v := range values {
        if _, set := os.LookupEnv(k); set || v == nil {
            continue
        }
        if err := os.Setenv(k, fmt.Sprint(v)); err != nil {
            return fmt.Errorf("set %s: %w", k, err)
        }
    }
    return nil
}
