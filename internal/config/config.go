package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ytdl/ytdl-api/internal/startup"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig       `mapstructure:"server" yaml:"server"`
	Logging       LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Auth          AuthConfig         `mapstructure:"auth" yaml:"auth"`
	Datasource    DatasourceConfig   `mapstructure:"datasource" yaml:"datasource"`
	Storage       StorageConfig      `mapstructure:"storage" yaml:"storage"`
	Downloader    DownloaderConfig   `mapstructure:"downloader" yaml:"downloader"`
	Expiration    ExpirationConfig   `mapstructure:"expiration" yaml:"expiration"`
	Notifications NotificationConfig `mapstructure:"notifications" yaml:"notifications"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host                 string        `mapstructure:"host" yaml:"host"`
	Port                 int           `mapstructure:"port" yaml:"port"`
	AllowOrigins         []string      `mapstructure:"allow_origins" yaml:"allow_origins"`
	CookieSecure         bool          `mapstructure:"cookie_secure" yaml:"cookie_secure"`
	CookieSameSite       string        `mapstructure:"cookie_samesite" yaml:"cookie_samesite"`
	CookieHTTPOnly       bool          `mapstructure:"cookie_httponly" yaml:"cookie_httponly"`
	PreviewRatePerMinute int           `mapstructure:"preview_rate_per_minute" yaml:"preview_rate_per_minute"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
	BufferSize int    `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// AuthConfig holds the client id cookie signing secret.
type AuthConfig struct {
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
}

// DatasourceConfig selects where download records live.
type DatasourceConfig struct {
	Type        string              `mapstructure:"type" yaml:"type"`
	SQLitePath  string              `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string              `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	Retry       startup.RetryConfig `mapstructure:"retry" yaml:"retry"`
}

// StorageConfig selects where downloaded artifacts live.
type StorageConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	Path string `mapstructure:"path" yaml:"path"`
}

// DownloaderConfig selects the download backend and worker count.
type DownloaderConfig struct {
	Type          string        `mapstructure:"type" yaml:"type"`
	Binary        string        `mapstructure:"binary" yaml:"binary"`
	InfoTimeout   time.Duration `mapstructure:"info_timeout" yaml:"info_timeout"`
	TempDir       string        `mapstructure:"temp_dir" yaml:"temp_dir"`
	MaxParallel   int           `mapstructure:"max_parallel" yaml:"max_parallel"`
	MockStepDelay time.Duration `mapstructure:"mock_step_delay" yaml:"mock_step_delay"`
}

// ExpirationConfig controls the sweeper.
type ExpirationConfig struct {
	Retention  time.Duration `mapstructure:"retention" yaml:"retention"`
	Cron       string        `mapstructure:"cron" yaml:"cron"`
	RunOnStart bool          `mapstructure:"run_on_start" yaml:"run_on_start"`
}

// NotificationConfig controls the per-client status mailboxes.
type NotificationConfig struct {
	MaxDepth  int           `mapstructure:"max_depth" yaml:"max_depth"`
	IdleTTL   time.Duration `mapstructure:"idle_ttl" yaml:"idle_ttl"`
	PruneCron string        `mapstructure:"prune_cron" yaml:"prune_cron"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > .env file > config file > defaults
func Load(configPath string) (*Config, error) {
	// a missing .env is normal outside development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.ytdl")
	}

	// Environment variable settings
	v.SetEnvPrefix("YTDL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// env lists arrive comma separated, possibly with spaces
	cfg.Server.AllowOrigins = splitList(strings.Join(cfg.Server.AllowOrigins, ","))

	return cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allow_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.cookie_secure", false)
	v.SetDefault("server.cookie_samesite", "lax")
	v.SetDefault("server.cookie_httponly", true)
	v.SetDefault("server.preview_rate_per_minute", 30)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.buffer_size", 1000)

	// Auth defaults
	v.SetDefault("auth.client_secret", "")

	// Datasource defaults
	retry := startup.DefaultRetryConfig()
	v.SetDefault("datasource.type", "sqlite")
	v.SetDefault("datasource.sqlite_path", "./data/ytdl.db")
	v.SetDefault("datasource.postgres_dsn", "")
	v.SetDefault("datasource.retry.initial_delay", retry.InitialDelay)
	v.SetDefault("datasource.retry.max_delay", retry.MaxDelay)
	v.SetDefault("datasource.retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("datasource.retry.multiplier", retry.Multiplier)

	// Storage defaults
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/media")

	// Downloader defaults
	v.SetDefault("downloader.type", "yt-dlp")
	v.SetDefault("downloader.binary", "yt-dlp")
	v.SetDefault("downloader.info_timeout", 30*time.Second)
	v.SetDefault("downloader.temp_dir", "")
	v.SetDefault("downloader.max_parallel", 2)
	v.SetDefault("downloader.mock_step_delay", 200*time.Millisecond)

	// Expiration defaults
	v.SetDefault("expiration.retention", 24*time.Hour)
	v.SetDefault("expiration.cron", "0 * * * *")
	v.SetDefault("expiration.run_on_start", false)

	// Notification defaults
	v.SetDefault("notifications.max_depth", 0)
	v.SetDefault("notifications.idle_ttl", time.Hour)
	v.SetDefault("notifications.prune_cron", "*/10 * * * *")
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WriteYAML dumps the effective configuration.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
