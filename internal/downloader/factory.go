package downloader

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ytdl/ytdl-api/internal/downloader/mock"
	"github.com/ytdl/ytdl-api/internal/downloader/ytdlp"
)

// ErrUnsupportedDownloader is returned for unknown downloader types.
var ErrUnsupportedDownloader = errors.New("unsupported downloader type")

// Config selects and configures a downloader.
type Config struct {
	Type        DownloaderType
	Binary      string
	InfoTimeout time.Duration
	TempDir     string
	// MockStepDelay paces the mock downloader.
	MockStepDelay time.Duration
}

// New creates a downloader of the configured type.
func New(cfg Config, logger zerolog.Logger) (Downloader, error) {
	switch cfg.Type {
	case DownloaderTypeYTDLP, "":
		return ytdlp.New(ytdlp.Config{
			Binary:      cfg.Binary,
			InfoTimeout: cfg.InfoTimeout,
			TempDir:     cfg.TempDir,
		}, logger)
	case DownloaderTypeMock:
		logger.Warn().Msg("Using mock downloader, no media will be fetched")
		return mock.New(mock.Options{
			StepDelay: cfg.MockStepDelay,
			TempDir:   cfg.TempDir,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDownloader, cfg.Type)
	}
}

// SupportedTypes returns every downloader type New accepts.
func SupportedTypes() []DownloaderType {
	return []DownloaderType{DownloaderTypeYTDLP, DownloaderTypeMock}
}

// IsTypeSupported reports whether t names a known downloader.
func IsTypeSupported(t string) bool {
	for _, dt := range SupportedTypes() {
		if string(dt) == t {
			return true
		}
	}
	return false
}
