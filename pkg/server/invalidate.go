package server

import (
	"net/http"

	"pageserve/pkg/backend"
	"pageserve/pkg/log"
	"pageserve/pkg/pages"

	"github.com/labstack/echo/v4"
)

// invalidateRequest is the push-notification payload: which branch
// tuple changed upstream, optionally narrowed to one asset path.
type invalidateRequest struct {
	Owner  string `json:"owner"`
	Page   string `json:"page"`
	Branch string `json:"branch"`
	Path   string `json:"path"`
}

func (ps *PagesServer) invalidate(ctx echo.Context) error {
	var req invalidateRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	if req.Owner == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "owner is required",
		})
	}

	invalidator, ok := ps.source.(backend.Invalidator)
	if !ok {
		return ctx.JSON(http.StatusNotImplemented, map[string]string{
			"error": "caching is not enabled",
		})
	}

	loc := pages.Location{Owner: req.Owner, Name: req.Page, Branch: req.Branch}.WithDefaults()
	log.Info().Str("page", loc.String()).Str("path", req.Path).Msg("Invalidation request")

	if err := invalidator.Invalidate(ctx.Request().Context(), loc, req.Path); err != nil {
		log.Error().Err(err).Str("page", loc.String()).Msg("Invalidation failed")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "invalidation failed",
		})
	}

	return ctx.JSON(http.StatusOK, map[string]string{
		"status": "invalidated",
	})
}
