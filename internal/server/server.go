package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/KCSSB/DontAsk/internal/handler"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
)

type Server struct {
	echo *echo.Echo
	addr string
}

// echoの組み立て。ログはアプリ共通のloggerに寄せる
func New(addr string, logger *log.Logger, authH *handler.AuthHandler, jwtSecret []byte) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger = logger

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	RegisterRoutes(e, authH, jwtSecret)

	return &Server{echo: e, addr: normalizeAddr(addr)}
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Shutdownされるまでブロックする。Shutdown由来の終了はnil
func (s *Server) Start() error {
	s.echo.Logger.Infoj(log.JSON{"op": "server", "status": "listening", "addr": s.addr})
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// "8080" → ":8080"
func normalizeAddr(port string) string {
	if port == "" {
		return ":8080"
	}
	if _, _, err := net.SplitHostPort(port); err == nil {
		return port
	}
	return ":" + port
}
