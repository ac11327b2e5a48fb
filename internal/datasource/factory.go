// Package datasource selects a download store backend from configuration.
package datasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ytdl/ytdl-api/internal/database"
	"github.com/ytdl/ytdl-api/internal/datasource/memory"
	"github.com/ytdl/ytdl-api/internal/datasource/postgres"
	"github.com/ytdl/ytdl-api/internal/datasource/sqlite"
	"github.com/ytdl/ytdl-api/internal/datasource/types"
	"github.com/ytdl/ytdl-api/internal/startup"
)

// Re-export so callers only import this package.
type (
	Datasource     = types.Datasource
	DatasourceType = types.DatasourceType
)

var (
	ErrNotFound = types.ErrNotFound

	ErrUnsupportedDatasource = errors.New("unsupported datasource type")
)

// Config selects and configures a backend.
type Config struct {
	Type        string
	SQLitePath  string
	PostgresDSN string
	Retry       startup.RetryConfig
}

// New opens the configured datasource. Network backends are retried with backoff.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Datasource, error) {
	log := logger.With().Str("component", "datasource").Str("type", cfg.Type).Logger()

	switch types.DatasourceType(cfg.Type) {
	case types.DatasourceTypeSQLite, "":
		db, err := database.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("Opened SQLite datasource")
		return sqlite.New(db.Conn(), db.Close), nil

	case types.DatasourceTypePostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("%w: postgres requires a dsn", ErrUnsupportedDatasource)
		}
		var ds *postgres.Datasource
		err := startup.WithRetry(ctx, "postgres connect", cfg.Retry, func() error {
			var openErr error
			ds, openErr = postgres.Open(ctx, cfg.PostgresDSN)
			return openErr
		}, &log)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Connected to PostgreSQL datasource")
		return ds, nil

	case types.DatasourceTypeMemory:
		log.Warn().Msg("Using in-memory datasource; downloads are lost on restart")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatasource, cfg.Type)
	}
}
