package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ytdl/ytdl-api/internal/api/handlers"
	"github.com/ytdl/ytdl-api/internal/lifecycle"
	"github.com/ytdl/ytdl-api/internal/logger"
	"github.com/ytdl/ytdl-api/internal/notification"
)

var (
	errLogFileDisabled = errors.New("log file disabled")
	errLogFileMissing  = errors.New("log file missing")
	errLogQuery        = errors.New("invalid log query")
)

// maxLogRecords caps how many buffered lines one request returns.
const maxLogRecords = 1000

// LogSource exposes what the logger keeps in memory and on disk.
type LogSource interface {
	GetRecentLogs() []logger.LogEntry
	GetLogFilePath() string
}

// SystemStatus summarizes the running service.
type SystemStatus struct {
	Version          lifecycle.VersionInfo `json:"version"`
	Queued           int                   `json:"queued"`
	Running          int                   `json:"running"`
	Notifications    notification.Stats    `json:"notifications"`
	WebSocketClients int                   `json:"websocketClients"`
}

// LogRecord is one buffered log line. The download and client ids every
// lifecycle line carries are lifted out of the free-form fields.
type LogRecord struct {
	Time      string         `json:"time"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	MediaID   string         `json:"mediaId,omitempty"`
	ClientID  string         `json:"clientId,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// logQuery filters GET /api/system/logs.
type logQuery struct {
	minLevel  zerolog.Level
	component string
	mediaID   string
	limit     int
}

func (s *Server) setupSystemRoutes(system *echo.Group) {
	system.GET("/status", s.getStatus)

	if s.scheduler != nil {
		h := handlers.NewSchedulerHandler(s.scheduler)
		tasks := system.Group("/tasks")
		tasks.GET("", h.ListTasks)
		tasks.GET("/:id", h.GetTask)
		tasks.POST("/:id/run", h.RunTask)
	}

	if s.logs != nil {
		system.GET("/logs", s.getLogs)
		system.GET("/logs/download", s.downloadLogs)
	}
}

func (s *Server) getStatus(c echo.Context) error {
	queued, running := s.lifecycle.Runner().Stats()
	status := SystemStatus{
		Version:       s.lifecycle.Version(c.Request().Context()),
		Queued:        queued,
		Running:       running,
		Notifications: s.queue.Stats(),
	}
	if s.hub != nil {
		status.WebSocketClients = s.hub.ClientCount()
	}
	return c.JSON(http.StatusOK, status)
}

// getLogs returns buffered log lines, newest last. Supported query
// parameters are level (minimum), component, mediaId and limit.
func (s *Server) getLogs(c echo.Context) error {
	q, err := parseLogQuery(c)
	if err != nil {
		return err
	}

	entries := s.logs.GetRecentLogs()
	records := make([]LogRecord, 0, len(entries))
	for _, e := range entries {
		r := toLogRecord(e)
		if !q.matches(r) {
			continue
		}
		records = append(records, r)
	}
	if len(records) > q.limit {
		records = records[len(records)-q.limit:]
	}
	return c.JSON(http.StatusOK, records)
}

// downloadLogs serves the active log file as an attachment.
func (s *Server) downloadLogs(c echo.Context) error {
	path := s.logs.GetLogFilePath()
	if path == "" {
		return errLogFileDisabled
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return errLogFileMissing
	} else if err != nil {
		return err
	}
	return c.Attachment(path, filepath.Base(path))
}

func parseLogQuery(c echo.Context) (logQuery, error) {
	q := logQuery{
		minLevel:  zerolog.TraceLevel,
		component: c.QueryParam("component"),
		mediaID:   c.QueryParam("mediaId"),
		limit:     maxLogRecords,
	}

	if raw := c.QueryParam("level"); raw != "" {
		if !logger.IsValidLevel(raw) {
			return q, errLogQuery
		}
		q.minLevel = logger.ParseLevel(raw)
	}

	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, errLogQuery
		}
		q.limit = min(n, maxLogRecords)
	}
	return q, nil
}

func (q logQuery) matches(r LogRecord) bool {
	if q.component != "" && r.Component != q.component {
		return false
	}
	if q.mediaID != "" && r.MediaID != q.mediaID {
		return false
	}
	level, err := zerolog.ParseLevel(r.Level)
	if err != nil {
		// unparseable lines are only hidden by an explicit level filter
		return q.minLevel == zerolog.TraceLevel
	}
	return level >= q.minLevel
}

func toLogRecord(e logger.LogEntry) LogRecord {
	r := LogRecord{
		Time:      e.Timestamp,
		Level:     strings.ToLower(e.Level),
		Component: e.Component,
		Message:   e.Message,
	}
	if len(e.Fields) == 0 {
		return r
	}

	fields := make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		fields[k] = v
	}
	if id, ok := fields["mediaId"].(string); ok {
		r.MediaID = id
		delete(fields, "mediaId")
	}
	if id, ok := fields["clientId"].(string); ok {
		r.ClientID = id
		delete(fields, "clientId")
	}
	if len(fields) > 0 {
		r.Fields = fields
	}
	return r
}
