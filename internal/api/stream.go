package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apimw "github.com/ytdl/ytdl-api/internal/api/middleware"
)

const sseKeepAlive = 15 * time.Second

// streamEvents pushes the caller's status events as server-sent events until
// the client disconnects. Events not delivered stay queued for the next
// connection.
// GET /api/download/stream
func (s *Server) streamEvents(c echo.Context) error {
	clientID := apimw.ClientIDFrom(c)
	ctx := c.Request().Context()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	events := s.queue.Subscribe(ctx, clientID)
	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case info, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(info)
			if err != nil {
				s.logger.Error().Err(err).Str("mediaId", info.MediaID).Msg("Failed to encode status")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return nil
			}
			w.Flush()

		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// streamWebSocket pushes the caller's status events over a websocket.
// GET /api/download/ws
func (s *Server) streamWebSocket(c echo.Context) error {
	if s.hub == nil {
		return echo.NewHTTPError(http.StatusNotFound, "websocket push is disabled")
	}
	return s.hub.Serve(c, apimw.ClientIDFrom(c))
}
