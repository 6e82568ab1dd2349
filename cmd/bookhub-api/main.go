package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/repository"
	"github.com/noah-isme/bookhub-api/internal/router"
	"github.com/noah-isme/bookhub-api/internal/service"
	"github.com/noah-isme/bookhub-api/pkg/broker"
	"github.com/noah-isme/bookhub-api/pkg/cache"
	"github.com/noah-isme/bookhub-api/pkg/config"
	"github.com/noah-isme/bookhub-api/pkg/database"
	"github.com/noah-isme/bookhub-api/pkg/logger"
)

// @title BookHub API
// @version 1.0.0
// @description Bookstore backend with role-based access control and token lifecycle management
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer db.Close()

	var policyCache service.CacheRepository
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, policy cache disabled", zap.Error(err))
	} else if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		policyCache = cacheRepo
	}

	var publisher router.Publisher
	if cfg.Broker.Enabled {
		amqpPublisher := broker.NewPublisher(cfg.Broker.URL, cfg.Broker.Queue, logr)
		defer amqpPublisher.Close() //nolint:errcheck
		publisher = amqpPublisher
	}

	app := router.NewContainer(cfg, db, policyCache, publisher, logr)

	if cfg.Policy.SeedOnBoot {
		if err := seedPolicy(ctx, app, cfg.Policy.SeedFile); err != nil {
			logr.Fatal("failed to seed policy", zap.Error(err))
		}
	}
	if err := app.Policy.ValidateBootstrap(ctx); err != nil {
		logr.Fatal("policy bootstrap check failed", zap.Error(err))
	}

	app.Notifications.Start(ctx)
	defer app.Notifications.Stop()
	go app.Maintenance.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func seedPolicy(ctx context.Context, app *router.Container, path string) error {
	seed := service.DefaultPolicySeed()
	if path != "" {
		loaded, err := service.LoadPolicySeed(path)
		switch {
		case err == nil:
			seed = loaded
		case errors.Is(err, os.ErrNotExist):
			app.Logger.Warn("policy seed file not found, using built-in policy", zap.String("path", path))
		default:
			return err
		}
	}
	_, err := app.Seeder.Apply(ctx, seed)
	return err
}
