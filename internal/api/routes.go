package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apimw "github.com/ytdl/ytdl-api/internal/api/middleware"
)

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Request ID
	s.echo.Use(middleware.RequestID())

	// Security headers
	s.echo.Use(apimw.SecurityHeaders())

	// Request body size limit
	s.echo.Use(middleware.BodyLimit("64K"))

	// The browser app lives on another origin and sends the uid cookie
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     s.cfg.AllowOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		ExposeHeaders:    []string{echo.HeaderContentDisposition},
		AllowCredentials: true,
	}))

	// Request logging
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogError:     true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Str("requestId", v.RequestID).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Str("requestId", v.RequestID).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	api := s.echo.Group("/api")

	issue := apimw.IssueClientID(s.identity, s.logger)
	requireID := apimw.RequireClientID(s.identity)
	previewLimit := s.previewLimiter.Middleware(apimw.ClientIDFrom)

	api.GET("/version", s.getVersion, issue)
	api.GET("/preview", s.preview, issue, previewLimit)

	api.GET("/downloads", s.listDownloads, requireID)
	api.PUT("/download", s.submitDownload, requireID)
	api.GET("/download", s.downloadFile, requireID)
	api.GET("/download/stream", s.streamEvents, requireID)
	api.GET("/download/ws", s.streamWebSocket, requireID)
	api.DELETE("/delete", s.deleteDownload, requireID)
	api.PUT("/retry", s.retryDownload, requireID)

	s.setupSystemRoutes(api.Group("/system"))
}
