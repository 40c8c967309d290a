package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/iliyamo/ctf-arena/internal/auth"
	"github.com/iliyamo/ctf-arena/internal/config"
	"github.com/iliyamo/ctf-arena/internal/database"
	"github.com/iliyamo/ctf-arena/internal/handler"
	"github.com/iliyamo/ctf-arena/internal/logger"
	"github.com/iliyamo/ctf-arena/internal/middleware"
	"github.com/iliyamo/ctf-arena/internal/queue"
	"github.com/iliyamo/ctf-arena/internal/repository"
	"github.com/iliyamo/ctf-arena/internal/router"
	"github.com/iliyamo/ctf-arena/internal/service"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		User:     cfg.DBUser,
		Password: cfg.DBPass,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	rdb := config.NewRedisClient(ctx, cfg.Redis)
	if rdb == nil {
		zl.Warn("redis unavailable; rate limiting and response cache disabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		defer rdb.Close()
	}

	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret:    []byte(cfg.JWTSecret),
		Algorithm: cfg.JWTAlgorithm,
		TTL:       cfg.AccessTTL,
		Issuer:    cfg.TokenIssuer,
	})
	if err != nil {
		return err
	}
	hasher := auth.NewHasher(cfg.BcryptCost)

	accounts := repository.NewAccountRepo(db)
	challenges := repository.NewChallengeRepo(db)
	solves := repository.NewSolveRepo(db)

	gate := auth.NewGate(auth.NewIdentityResolver(codec, accounts), zl.Named("gate"))
	metrics, err := middleware.NewMetrics(middleware.MetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return err
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimit, rdb, zl.Named("ratelimit"))
	cache := middleware.NewResponseCache(cfg.Cache, rdb, zl.Named("cache"))
	publisher := service.NewPublisher(cfg.AMQPURL, zl.Named("publisher"))

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = router.ErrorHandler
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.AccessLog(zl.Named("http")))
	e.Use(metrics.Handler())

	authHandler, err := handler.NewAuthHandler(accounts, hasher, codec, cfg.CookieSecure, zl)
	if err != nil {
		return err
	}

	guard := router.NewGuard(gate, metrics)
	router.RegisterRoutes(e, db, prometheus.DefaultGatherer)
	router.RegisterAuth(e, authHandler, guard, limiter, cache)
	router.RegisterPlayer(e, handler.NewChallengeHandler(challenges, solves, publisher, cache, zl), guard, limiter, cache)
	router.RegisterAdmin(e, handler.NewAdminHandler(accounts, challenges, hasher, cache, zl), guard)

	consumer := queue.NewSolveConsumer(cfg.AMQPURL, accounts, cache, zl, handler.RouteScoreboard)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zl.Error("solve consumer stopped", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
