package main

import (
	"context"
	"flag"
	"os"
	"time"

	"pageserve/pkg/backend"
	"pageserve/pkg/backend/cache"
	"pageserve/pkg/backend/forge"
	"pageserve/pkg/cachestore"
	"pageserve/pkg/config"
	"pageserve/pkg/log"
	"pageserve/pkg/resolver"
	"pageserve/pkg/server"
)

const version = "0.1.0"

func main() {
	// Initialize logger first
	_ = log.Logger

	configPath := flag.String("config", "", "Configuration file path (YAML)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		log.SetDebugMode()
		log.Debug().Msg("Debug mode enabled")
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("config", *configPath).Msg("Failed to load configuration")
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log.Info().
		Str("upstream", cfg.Upstream.URL).
		Str("base_domain", cfg.Server.BaseDomain).
		Int("domain_aliases", len(cfg.Domains)).
		Bool("cache", cfg.Cache.Enabled).
		Msg("Configured")

	source := buildBackend(cfg)
	res := resolver.New(cfg.Server.BaseDomain, cfg.AliasTable())

	ps := server.NewPagesServer(source, res, cfg.Server.Name, version)
	if err := ps.Start(cfg.Server.Addr); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}

	os.Exit(0)
}

// buildBackend assembles the content pipeline: a forge backend,
// wrapped by the cache decorator unless caching is disabled.
func buildBackend(cfg config.Config) backend.Backend {
	forgeBackend := forge.New(forge.Config{
		URL:             cfg.Upstream.URL,
		Token:           cfg.Upstream.Token,
		MaxAssetSize:    cfg.Upstream.MaxAssetSize,
		AllowedBranches: cfg.Upstream.Branches,
		RequestTimeout:  cfg.Upstream.RequestTimeout.Std(),
		RetryMax:        cfg.Upstream.RetryMax,
	})

	if !cfg.Cache.Enabled {
		log.Warn().Msg("Caching disabled, every request hits the forge")
		return forgeBackend
	}

	var store cachestore.Store
	switch cfg.Cache.Store {
	case "sqlite":
		sqliteStore, err := cachestore.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Cache.Path).Msg("Failed to open cache database")
		}
		store = sqliteStore
	case "redis":
		redisStore := cachestore.NewRedisStore(cfg.Cache.Addr)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisStore.Ping(ctx); err != nil {
			// The decorator fails open on store trouble, so an
			// unreachable Redis at startup is not fatal.
			log.Warn().Err(err).Str("addr", cfg.Cache.Addr).Msg("Redis not reachable yet")
		}
		cancel()
		store = redisStore
	default:
		store = cachestore.NewMemoryStore()
	}

	log.Info().
		Str("store", cfg.Cache.Store).
		Dur("positive_ttl", cfg.Cache.PositiveTTL.Std()).
		Dur("negative_ttl", cfg.Cache.NegativeTTL.Std()).
		Msg("Cache enabled")

	return cache.New(forgeBackend, store, cache.Options{
		PositiveTTL: cfg.Cache.PositiveTTL.Std(),
		NegativeTTL: cfg.Cache.NegativeTTL.Std(),
	})
}
