// Package testutil provides testing utilities for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ytdl/ytdl-api/internal/database"
	"github.com/ytdl/ytdl-api/internal/media"
)

// TestDB wraps a migrated test database.
type TestDB struct {
	DB     *database.DB
	Conn   *sql.DB
	Path   string
	Logger zerolog.Logger
}

// NewTestDB creates a migrated SQLite database in a temp directory.
// The database is closed when the test finishes.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	dir := t.TempDir()
	logger := NewTestLogger(t)

	db, err := database.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	tdb := &TestDB{
		DB:     db,
		Conn:   db.Conn(),
		Path:   dir,
		Logger: logger,
	}
	t.Cleanup(tdb.Close)
	return tdb
}

// Close closes the database. Safe to call more than once.
func (tdb *TestDB) Close() {
	if tdb.DB != nil {
		tdb.DB.Close()
		tdb.DB = nil
	}
}

// NewTestLogger creates a test logger that outputs to t.Log.
func NewTestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}

// NopLogger returns a no-op logger for tests that don't need output.
func NopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// StringPtr returns a pointer to a string.
func StringPtr(s string) *string {
	return &s
}

// TimePtr returns a pointer to a time.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// ExampleVideoURL is the video used across fixtures.
const ExampleVideoURL = "https://www.youtube.com/watch?v=NcBjx_eyvxc"

// ExampleAudioStreams are the audio tracks of the example video.
func ExampleAudioStreams() []media.AudioStream {
	return []media.AudioStream{
		{ID: "251", Mimetype: "audio/webm", Bitrate: "160kbps"},
		{ID: "250", Mimetype: "audio/webm", Bitrate: "70kbps"},
		{ID: "249", Mimetype: "audio/webm", Bitrate: "50kbps"},
		{ID: "140", Mimetype: "audio/mp4", Bitrate: "128kbps"},
		{ID: "139", Mimetype: "audio/mp4", Bitrate: "48kbps"},
	}
}

// ExampleVideoStreams are the video tracks of the example video.
func ExampleVideoStreams() []media.VideoStream {
	return []media.VideoStream{
		{ID: "278", Mimetype: "video/webm", Resolution: "144p"},
		{ID: "160", Mimetype: "video/mp4", Resolution: "144p"},
		{ID: "242", Mimetype: "video/webm", Resolution: "240p"},
		{ID: "133", Mimetype: "video/mp4", Resolution: "240p"},
		{ID: "243", Mimetype: "video/webm", Resolution: "360p"},
		{ID: "134", Mimetype: "video/mp4", Resolution: "360p"},
		{ID: "244", Mimetype: "video/webm", Resolution: "480p"},
		{ID: "135", Mimetype: "video/mp4", Resolution: "480p"},
		{ID: "247", Mimetype: "video/webm", Resolution: "720p"},
		{ID: "136", Mimetype: "video/mp4", Resolution: "720p"},
		{ID: "248", Mimetype: "video/webm", Resolution: "1080p"},
		{ID: "137", Mimetype: "video/mp4", Resolution: "1080p"},
		{ID: "271", Mimetype: "video/webm", Resolution: "1440p"},
		{ID: "313", Mimetype: "video/webm", Resolution: "2160p"},
	}
}

// DownloadOption customizes a fixture download.
type DownloadOption func(*media.Download)

// WithStatus sets the fixture status.
func WithStatus(s media.Status) DownloadOption {
	return func(d *media.Download) { d.Status = s }
}

// WithFormat sets the fixture media format.
func WithFormat(f media.MediaFormat) DownloadOption {
	return func(d *media.Download) { d.MediaFormat = f }
}

// WithFilePath sets the fixture storage key.
func WithFilePath(path string) DownloadOption {
	return func(d *media.Download) { d.FilePath = &path }
}

// WithSubmitted sets the fixture submission time.
func WithSubmitted(t time.Time) DownloadOption {
	return func(d *media.Download) { d.WhenSubmitted = t.UTC() }
}

// NewDownload returns a STARTED video download of the example video.
func NewDownload(clientID string, opts ...DownloadOption) *media.Download {
	d := &media.Download{
		ClientID:      clientID,
		MediaID:       uuid.NewString(),
		Title:         "Madeira | Cinematic FPV",
		URL:           ExampleVideoURL,
		Duration:      224,
		ThumbnailURL:  "https://i.ytimg.com/vi/NcBjx_eyvxc/hq720.jpg",
		VideoStreams:  ExampleVideoStreams(),
		AudioStreams:  ExampleAudioStreams(),
		VideoStreamID: StringPtr("137"),
		AudioStreamID: StringPtr("140"),
		MediaFormat:   media.FormatMP4,
		Status:        media.StatusStarted,
		Progress:      media.NotStarted(),
		WhenSubmitted: time.Now().UTC().Truncate(time.Millisecond),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}
