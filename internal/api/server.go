package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ytdl/ytdl-api/internal/api/ratelimit"
	"github.com/ytdl/ytdl-api/internal/config"
	"github.com/ytdl/ytdl-api/internal/identity"
	"github.com/ytdl/ytdl-api/internal/lifecycle"
	"github.com/ytdl/ytdl-api/internal/notification"
	"github.com/ytdl/ytdl-api/internal/scheduler"
	"github.com/ytdl/ytdl-api/internal/websocket"
)

// Deps are the services the HTTP layer sits on.
type Deps struct {
	Lifecycle *lifecycle.Service
	Identity  *identity.Service
	Queue     *notification.Queue
	Hub       *websocket.Hub
	Scheduler *scheduler.Scheduler
	Logs      LogSource
}

// Server handles HTTP requests for the download API.
type Server struct {
	echo   *echo.Echo
	cfg    config.ServerConfig
	logger zerolog.Logger

	lifecycle      *lifecycle.Service
	identity       *identity.Service
	queue          *notification.Queue
	hub            *websocket.Hub
	scheduler      *scheduler.Scheduler
	logs           LogSource
	previewLimiter *ratelimit.Limiter
}

// NewServer creates a new API server instance.
func NewServer(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:           e,
		cfg:            cfg,
		logger:         logger.With().Str("component", "api").Logger(),
		lifecycle:      deps.Lifecycle,
		identity:       deps.Identity,
		queue:          deps.Queue,
		hub:            deps.Hub,
		scheduler:      deps.Scheduler,
		logs:           deps.Logs,
		previewLimiter: ratelimit.New(cfg.PreviewRatePerMinute),
	}
	e.HTTPErrorHandler = s.errorHandler

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server and closes live push connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	err := s.echo.Shutdown(ctx)
	if s.hub != nil {
		s.hub.Close()
	}
	return err
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
