package server

import (
	"errors"
	"net/http"

	"pageserve/pkg/log"
	"pageserve/pkg/pages"

	"github.com/labstack/echo/v4"
)

func (ps *PagesServer) listBranches(ctx echo.Context) error {
	owner := ctx.Param("owner")
	name := ctx.Param("name")

	branches, err := ps.source.ListBranches(ctx.Request().Context(), owner, name)
	if err != nil {
		var notFound pages.NotFoundError
		if errors.As(err, &notFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{
				"error": "page not found",
			})
		}
		log.Error().Err(err).Str("owner", owner).Str("name", name).Msg("Failed to list branches")
		return ctx.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream failure",
		})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"owner":    owner,
		"name":     name,
		"branches": branches,
	})
}
