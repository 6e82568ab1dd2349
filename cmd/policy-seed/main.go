package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/repository"
	"github.com/noah-isme/bookhub-api/internal/service"
	"github.com/noah-isme/bookhub-api/pkg/cache"
	"github.com/noah-isme/bookhub-api/pkg/config"
	"github.com/noah-isme/bookhub-api/pkg/database"
	"github.com/noah-isme/bookhub-api/pkg/logger"
)

func main() {
	var (
		file     string
		builtin  bool
		validate bool
	)
	flag.StringVar(&file, "file", "", "policy seed YAML (defaults to POLICY_SEED_FILE)")
	flag.BoolVar(&builtin, "builtin", false, "apply the built-in bookstore policy instead of a file")
	flag.BoolVar(&validate, "validate", false, "only parse and validate the seed file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if file == "" {
		file = cfg.Policy.SeedFile
	}
	seed := service.DefaultPolicySeed()
	if !builtin {
		if seed, err = service.LoadPolicySeed(file); err != nil {
			logr.Fatal("invalid policy seed", zap.String("file", file), zap.Error(err))
		}
	}
	if validate {
		logr.Info("policy seed is valid",
			zap.Int("roles", len(seed.Roles)),
			zap.Int("elements", len(seed.Elements)),
			zap.Int("rules", len(seed.Rules)),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.Open(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	store := repository.NewPolicyRepository(db)
	var cacheRepo service.CacheRepository
	if client, err := cache.NewRedis(ctx, cfg.Redis); err != nil {
		logr.Warn("redis unavailable, cached policy entries expire on their own", zap.Error(err))
	} else if client != nil {
		defer client.Close()
		cacheRepo = repository.NewCacheRepository(client, logr)
	}
	policyCache := service.NewPolicyCache(store, cacheRepo, nil, cfg.Policy.CacheTTL, logr)

	report, err := service.NewPolicySeeder(store, policyCache, logr).Apply(ctx, seed)
	if err != nil {
		logr.Fatal("policy seed failed", zap.Error(err))
	}
	_ = json.NewEncoder(os.Stdout).Encode(report)
}
