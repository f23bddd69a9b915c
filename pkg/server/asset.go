package server

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"pageserve/pkg/log"
	"pageserve/pkg/pages"
	"pageserve/pkg/resolver"

	"github.com/labstack/echo/v4"
)

const indexFile = "index.html"

func (ps *PagesServer) serveAsset(ctx echo.Context) error {
	req := ctx.Request()

	res, err := ps.resolver.Resolve(req.Host, req.URL.Path)
	if err != nil {
		var hostErr resolver.MalformedHostError
		var pathErr resolver.MalformedPathError
		if errors.As(err, &hostErr) || errors.As(err, &pathErr) {
			return ctx.JSON(http.StatusBadRequest, map[string]string{
				"error": "malformed request",
			})
		}
		log.Error().Err(err).Str("host", req.Host).Msg("Resolution failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "resolution failed",
		})
	}

	assetPath := res.AssetPath
	if assetPath == "" {
		assetPath = indexFile
	}

	asset, err := ps.source.FetchAsset(req.Context(), res.Location, assetPath)

	// Directory-style requests fall back to the index file.
	var notFound pages.NotFoundError
	if errors.As(err, &notFound) && !strings.Contains(path.Base(assetPath), ".") {
		asset, err = ps.source.FetchAsset(req.Context(), res.Location, assetPath+"/"+indexFile)
	}

	if err != nil {
		return ps.assetError(ctx, res, err)
	}

	header := ctx.Response().Header()
	if asset.Meta.Hash != "" {
		etag := `"` + asset.Meta.Hash + `"`
		header.Set("ETag", etag)
		if match := req.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
			return ctx.NoContent(http.StatusNotModified)
		}
	}
	if !asset.Meta.LastModified.IsZero() {
		header.Set("Last-Modified", asset.Meta.LastModified.UTC().Format(http.TimeFormat))
	}

	contentType := asset.Meta.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return ctx.Blob(http.StatusOK, contentType, asset.Body)
}

// assetError maps contract errors to client responses. Internal detail
// (forge URLs, cache keys) never reaches the client.
func (ps *PagesServer) assetError(ctx echo.Context, res resolver.Resolution, err error) error {
	var notFound pages.NotFoundError
	if errors.As(err, &notFound) {
		if res.AliasDomain != "" {
			dangling := pages.AliasNotResolvedError{Domain: res.AliasDomain, Location: res.Location}
			log.Warn().Err(dangling).Str("domain", res.AliasDomain).Msg("Dangling domain alias")
		}
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "page not found",
		})
	}

	var tooLarge pages.TooLargeError
	if errors.As(err, &tooLarge) {
		log.Warn().
			Str("page", res.Location.String()).
			Str("path", tooLarge.Path).
			Int64("size", tooLarge.Size).
			Msg("Refusing to serve oversized asset")
		return ctx.JSON(http.StatusBadGateway, map[string]string{
			"error": "asset too large",
		})
	}

	log.Error().Err(err).Str("page", res.Location.String()).Msg("Failed to fetch asset")
	return ctx.JSON(http.StatusBadGateway, map[string]string{
		"error": "upstream failure",
	})
}
