// Package server is the HTTP front-end: it resolves request hosts and
// paths to page locations, serves the resolved assets, and exposes the
// cache invalidation webhook.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pageserve/pkg/backend"
	"pageserve/pkg/log"
	"pageserve/pkg/resolver"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const shutdownTimeout = 10 * time.Second

// PagesServer serves resolved page content over HTTP.
type PagesServer struct {
	echo     *echo.Echo
	source   backend.Backend
	resolver *resolver.Resolver
	name     string
	version  string
}

// NewPagesServer creates a server reading content from the given
// backend, which is normally the cache decorator over a forge backend.
func NewPagesServer(source backend.Backend, res *resolver.Resolver, name, version string) *PagesServer {
	return &PagesServer{
		echo:     echo.New(),
		source:   source,
		resolver: res,
		name:     name,
		version:  version,
	}
}

// Start runs the server until SIGINT or SIGTERM, then shuts down
// gracefully.
func (ps *PagesServer) Start(addr string) error {
	ps.setupRoutes()

	go func() {
		log.Info().
			Str("addr", addr).
			Str("name", ps.name).
			Str("version", ps.version).
			Msg("Starting pages server")

		if err := ps.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return ps.Shutdown()
}

// Shutdown stops the server, waiting for in-flight requests.
func (ps *PagesServer) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := ps.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}

	log.Info().Msg("Server gracefully stopped")
	return nil
}

func (ps *PagesServer) setupRoutes() {
	ps.echo.HideBanner = true
	ps.echo.HidePort = true

	ps.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${status} ${method} ${host}${uri} (${latency_human})\n",
	}))
	ps.echo.Use(middleware.Recover())

	ps.echo.GET("/_api/v1/healthz", ps.health)
	ps.echo.GET("/_api/v1/pages/:owner/:name/branches", ps.listBranches)
	ps.echo.POST("/_api/v1/invalidate", ps.invalidate)
	ps.echo.GET("/*", ps.serveAsset)
}
