package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (ps *PagesServer) health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"name":    ps.name,
		"version": ps.version,
	})
}
