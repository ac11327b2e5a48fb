package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ytdl/ytdl-api/internal/logger"
)

type fileLogs struct {
	entries []logger.LogEntry
	path    string
}

func (l fileLogs) GetRecentLogs() []logger.LogEntry { return l.entries }
func (l fileLogs) GetLogFilePath() string           { return l.path }

func newSystemServer(logs LogSource) *Server {
	s := &Server{echo: echo.New(), logger: zerolog.Nop(), logs: logs}
	s.echo.HTTPErrorHandler = s.errorHandler
	system := s.echo.Group("/api/system")
	system.GET("/logs", s.getLogs)
	system.GET("/logs/download", s.downloadLogs)
	return s
}

func serve(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

var sampleLogs = []logger.LogEntry{
	{Timestamp: "2024-03-01T10:00:00Z", Level: "debug", Component: "lifecycle", Message: "Download started",
		Fields: map[string]any{"mediaId": "m-1"}},
	{Timestamp: "2024-03-01T10:00:01Z", Level: "info", Component: "api", Message: "request",
		Fields: map[string]any{"status": float64(200)}},
	{Timestamp: "2024-03-01T10:00:02Z", Level: "error", Component: "lifecycle", Message: "Download failed",
		Fields: map[string]any{"mediaId": "m-2", "clientId": "c-1", "error": "boom"}},
	{Timestamp: "2024-03-01T10:00:03Z", Level: "warn", Component: "expiration", Message: "Skipped downloads"},
}

func TestGetLogs(t *testing.T) {
	s := newSystemServer(fileLogs{entries: sampleLogs})

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{"Download started", "request", "Download failed", "Skipped downloads"}},
		{"min level", "?level=warn", []string{"Download failed", "Skipped downloads"}},
		{"component", "?component=lifecycle", []string{"Download started", "Download failed"}},
		{"media id", "?mediaId=m-2", []string{"Download failed"}},
		{"newest only", "?limit=2", []string{"Download failed", "Skipped downloads"}},
		{"no match", "?component=runner", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, "/api/system/logs"+tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			var records []LogRecord
			if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(records) != len(tt.want) {
				t.Fatalf("got %d records, want %d: %s", len(records), len(tt.want), rec.Body.String())
			}
			for i, r := range records {
				if r.Message != tt.want[i] {
					t.Errorf("records[%d] = %q, want %q", i, r.Message, tt.want[i])
				}
			}
		})
	}
}

func TestGetLogs_LiftsIdentifiers(t *testing.T) {
	s := newSystemServer(fileLogs{entries: sampleLogs})

	rec := serve(s, "/api/system/logs?mediaId=m-2")
	var records []LogRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil || len(records) != 1 {
		t.Fatalf("records = %s, err %v", rec.Body.String(), err)
	}
	r := records[0]
	if r.MediaID != "m-2" || r.ClientID != "c-1" || r.Time != "2024-03-01T10:00:02Z" || r.Level != "error" {
		t.Errorf("record = %+v", r)
	}
	if _, ok := r.Fields["mediaId"]; ok {
		t.Error("mediaId left in fields")
	}
	if r.Fields["error"] != "boom" {
		t.Errorf("fields = %v, want error kept", r.Fields)
	}
	if _, ok := sampleLogs[2].Fields["mediaId"]; !ok {
		t.Error("buffered entry was modified")
	}
}

func TestGetLogs_InvalidQuery(t *testing.T) {
	s := newSystemServer(fileLogs{})

	for _, query := range []string{"?level=loud", "?limit=0", "?limit=many"} {
		rec := serve(s, "/api/system/logs"+query)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d, want 422", query, rec.Code)
			continue
		}
		var body ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Code != CodeValidation {
			t.Errorf("%s: body = %s", query, rec.Body.String())
		}
	}
}

func TestGetLogs_EmptyBufferIsEmptyArray(t *testing.T) {
	rec := serve(newSystemServer(fileLogs{}), "/api/system/logs")
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %s, want []", got)
	}
}

func TestDownloadLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ytdl-api.log")
	if err := os.WriteFile(path, []byte(`{"level":"info","message":"hello"}`+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	rec := serve(newSystemServer(fileLogs{path: path}), "/api/system/logs/download")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "ytdl-api.log") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), `"message":"hello"`) {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestDownloadLogs_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		detail string
	}{
		{"disabled", "", msgLogFileDisabled},
		{"not written yet", filepath.Join(t.TempDir(), "missing.log"), msgLogFileMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newSystemServer(fileLogs{path: tt.path}), "/api/system/logs/download")
			if rec.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404", rec.Code)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != CodeLogUnavailable || body.Detail != tt.detail {
				t.Errorf("body = %+v", body)
			}
		})
	}
}
