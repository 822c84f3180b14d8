package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/routine-tracker/internal/calendar"
	"github.com/iliyamo/routine-tracker/internal/config"
	"github.com/iliyamo/routine-tracker/internal/database"
	"github.com/iliyamo/routine-tracker/internal/handler"
	"github.com/iliyamo/routine-tracker/internal/middleware"
	"github.com/iliyamo/routine-tracker/internal/queue"
	"github.com/iliyamo/routine-tracker/internal/repository"
	"github.com/iliyamo/routine-tracker/internal/router"
	"github.com/iliyamo/routine-tracker/internal/service"
	"github.com/iliyamo/routine-tracker/internal/storage"
	"github.com/iliyamo/routine-tracker/internal/tracker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the activity consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Cache.Enabled || cfg.RateLimit.Enabled {
		if rdb, err = config.NewRedisClient(cfg.Redis); err != nil {
			logger.Warn("redis unavailable, caching and rate limiting disabled", zap.Error(err))
		} else {
			defer rdb.Close()
		}
	}

	opts := tracker.Options{StreakWindowDays: cfg.StreakWindowDays, Logger: logger.Named("tracker")}
	if cfg.Events.Enabled {
		pub := service.NewPublisher(cfg.Events.URL, logger.Named("publisher"))
		defer pub.Close()
		opts.Events = pub
	}
	users := repository.NewUserRepo(db)
	cal := calendar.New(loc)
	svc := tracker.New(repository.NewRoutineRepo(db), repository.NewCompletionRepo(db), cal, opts)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger.Named("http")))
	e.Use(echomw.BodyLimit(bodyLimit(cfg.Storage.AvatarMaxBytes)))

	protected := router.Protected{
		JWTSecret: cfg.JWTSecret,
		Users:     users,
		Redis:     rdb,
		Cache:     cfg.Cache,
		Calendar:  cal,
		RateLimit: cfg.RateLimit,
		Log:       logger.Named("auth"),
	}
	uploader := storage.NewClient(cfg.Storage.URL, cfg.Storage.ServiceKey, cfg.Storage.Bucket)
	router.RegisterRoutes(e)
	router.RegisterRoutines(e, handler.NewRoutineHandler(svc, logger.Named("routines")), protected)
	router.RegisterUser(e, handler.NewAvatarHandler(users, uploader, cfg.Storage.AvatarMaxBytes, logger.Named("avatar")), protected)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("timezone", loc.String()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if cfg.Events.Enabled {
		consumer := &queue.Consumer{URL: cfg.Events.URL, LogPath: cfg.Events.LogPath, Log: logger.Named("consumer")}
		g.Go(func() error { return consumer.Run(gctx) })
	}
	return g.Wait()
}

// bodyLimit leaves 64 KiB for multipart framing around the largest avatar.
func bodyLimit(maxAvatar int64) string {
	return strconv.FormatInt(maxAvatar/1024+64, 10) + "K"
}
