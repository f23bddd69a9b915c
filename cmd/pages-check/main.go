// pages-check resolves a host and path the way the server would and
// fetches the asset straight from the forge, printing what a request
// would serve. Useful for verifying a deployment's config (base
// domain, aliases, branch restrictions) without starting the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"pageserve/pkg/backend/forge"
	"pageserve/pkg/config"
	"pageserve/pkg/log"
	"pageserve/pkg/resolver"
)

func main() {
	_ = log.Logger

	configPath := flag.String("config", "", "Configuration file path (YAML)")
	host := flag.String("host", "", "Request host to resolve")
	requestPath := flag.String("path", "/", "Request path to resolve")
	body := flag.Bool("body", false, "Print the asset body to stdout")
	timeout := flag.Duration("timeout", 30*time.Second, "Fetch timeout")
	flag.Parse()

	if *host == "" {
		log.Fatal().Msg("A request host must be specified with -host")
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("config", *configPath).Msg("Failed to load configuration")
		}
		cfg = loaded
	}

	res := resolver.New(cfg.Server.BaseDomain, cfg.AliasTable())
	resolution, err := res.Resolve(*host, *requestPath)
	if err != nil {
		log.Fatal().Err(err).Str("host", *host).Str("path", *requestPath).Msg("Resolution failed")
	}

	log.Info().
		Str("page", resolution.Location.String()).
		Str("asset", resolution.AssetPath).
		Str("alias", resolution.AliasDomain).
		Msg("Resolved")

	forgeBackend := forge.New(forge.Config{
		URL:             cfg.Upstream.URL,
		Token:           cfg.Upstream.Token,
		MaxAssetSize:    cfg.Upstream.MaxAssetSize,
		AllowedBranches: cfg.Upstream.Branches,
		RequestTimeout:  *timeout,
	})

	assetPath := resolution.AssetPath
	if assetPath == "" {
		assetPath = "index.html"
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	asset, err := forgeBackend.FetchAsset(ctx, resolution.Location, assetPath)
	if err != nil {
		log.Fatal().Err(err).Str("page", resolution.Location.String()).Msg("Fetch failed")
	}

	log.Info().
		Str("content_type", asset.Meta.ContentType).
		Int64("size", asset.Meta.Size).
		Str("hash", asset.Meta.Hash).
		Msg("Fetched")

	if *body {
		fmt.Fprintln(os.Stdout, string(asset.Body))
	}
}
