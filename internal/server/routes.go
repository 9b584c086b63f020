package server

import (
	"net/http"

	"github.com/KCSSB/DontAsk/internal/handler"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, authH *handler.AuthHandler, jwtSecret []byte) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	authH.RegisterRoutes(e, jwtSecret)
}
