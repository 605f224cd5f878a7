package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminConfig configures the admin server
type AdminConfig struct {
	Addr         string
	MCP          http.Handler // Mounted at /mcp when set
	OneBotEvents bool         // Accept OneBot event posts at /onebot/event
	OneBotSecret string
}

// AdminServer serves metrics, health, the MCP admin tools and OneBot event intake
type AdminServer struct {
	echo         *echo.Echo
	addr         string
	messages     MessageHandler
	onebotSecret string
	logger       *slog.Logger
}

// NewAdminServer creates the admin server. messages may be nil when OneBot
// intake is off.
func NewAdminServer(cfg AdminConfig, messages MessageHandler, logger *slog.Logger) *AdminServer {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &AdminServer{
		echo:         e,
		addr:         cfg.Addr,
		messages:     messages,
		onebotSecret: cfg.OneBotSecret,
		logger:       logger.With("component", "admin"),
	}

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
			s.logger.Debug("request rejected", "path", c.Path(), "code", he.Code, "err", he.Message)
		} else {
			s.logger.Warn("request failed", "path", c.Path(), "err", err)
		}
		e.DefaultHTTPErrorHandler(err, c)
	}

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if cfg.MCP != nil {
		e.Any("/mcp", echo.WrapHandler(cfg.MCP))
	}
	if cfg.OneBotEvents && messages != nil {
		e.POST("/onebot/event", s.handleOneBotEvent)
	}
	return s
}

// Handler exposes the router, for tests
func (s *AdminServer) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called
func (s *AdminServer) Start() error {
	s.logger.Info("admin server listening", "addr", s.addr)
	err := s.echo.Start(s.addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully
func (s *AdminServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

func (s *AdminServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
