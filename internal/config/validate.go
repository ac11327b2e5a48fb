package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ytdl/ytdl-api/internal/logger"
	"github.com/ytdl/ytdl-api/internal/scheduler"
)

var (
	datasourceTypes = []string{"sqlite", "postgres", "memory"}
	storageTypes    = []string{"local", "memory"}
	downloaderTypes = []string{"yt-dlp", "mock"}
	logFormats      = []string{"console", "json"}
	sameSiteModes   = []string{"lax", "strict", "none"}
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port: %d is out of range", c.Server.Port)
	}
	if !slices.Contains(sameSiteModes, strings.ToLower(c.Server.CookieSameSite)) {
		add("server.cookie_samesite: %q must be one of %v", c.Server.CookieSameSite, sameSiteModes)
	}
	if strings.EqualFold(c.Server.CookieSameSite, "none") && !c.Server.CookieSecure {
		add("server.cookie_samesite: none requires server.cookie_secure")
	}
	if c.Server.PreviewRatePerMinute < 0 {
		add("server.preview_rate_per_minute: must not be negative")
	}

	if !logger.IsValidLevel(c.Logging.Level) {
		add("logging.level: unknown level %q", c.Logging.Level)
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		add("logging.format: %q must be one of %v", c.Logging.Format, logFormats)
	}

	if !slices.Contains(datasourceTypes, c.Datasource.Type) {
		add("datasource.type: %q must be one of %v", c.Datasource.Type, datasourceTypes)
	}
	if c.Datasource.Type == "postgres" && c.Datasource.PostgresDSN == "" {
		add("datasource.postgres_dsn: required for postgres")
	}
	if c.Datasource.Type == "sqlite" && c.Datasource.SQLitePath == "" {
		add("datasource.sqlite_path: required for sqlite")
	}

	if !slices.Contains(storageTypes, c.Storage.Type) {
		add("storage.type: %q must be one of %v", c.Storage.Type, storageTypes)
	}
	if c.Storage.Type == "local" && c.Storage.Path == "" {
		add("storage.path: required for local storage")
	}

	if !slices.Contains(downloaderTypes, c.Downloader.Type) {
		add("downloader.type: %q must be one of %v", c.Downloader.Type, downloaderTypes)
	}
	if c.Downloader.MaxParallel <= 0 {
		add("downloader.max_parallel: must be positive")
	}

	if c.Expiration.Retention <= 0 {
		add("expiration.retention: must be positive")
	}
	if err := scheduler.ValidateCron(c.Expiration.Cron); err != nil {
		add("expiration.cron: %w", err)
	}

	if c.Notifications.MaxDepth < 0 {
		add("notifications.max_depth: must not be negative")
	}
	if err := scheduler.ValidateCron(c.Notifications.PruneCron); err != nil {
		add("notifications.prune_cron: %w", err)
	}

	return errors.Join(errs...)
}
