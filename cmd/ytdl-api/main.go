package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ytdl/ytdl-api/internal/api"
	"github.com/ytdl/ytdl-api/internal/config"
	"github.com/ytdl/ytdl-api/internal/datasource"
	"github.com/ytdl/ytdl-api/internal/downloader"
	"github.com/ytdl/ytdl-api/internal/expiration"
	"github.com/ytdl/ytdl-api/internal/identity"
	"github.com/ytdl/ytdl-api/internal/lifecycle"
	"github.com/ytdl/ytdl-api/internal/logger"
	"github.com/ytdl/ytdl-api/internal/notification"
	"github.com/ytdl/ytdl-api/internal/scheduler"
	"github.com/ytdl/ytdl-api/internal/scheduler/tasks"
	"github.com/ytdl/ytdl-api/internal/storage"
	"github.com/ytdl/ytdl-api/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config:\n%v\n", err)
		os.Exit(1)
	}
	if *printConfig {
		if err := cfg.WriteYAML(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "failed to print config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		BufferSize: cfg.Logging.BufferSize,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Str("datasource", cfg.Datasource.Type).
		Str("storage", cfg.Storage.Type).
		Str("downloader", cfg.Downloader.Type).
		Msg("starting ytdl-api")

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("ytdl-api exited with error")
		log.Close()
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ds, err := datasource.New(ctx, datasource.Config{
		Type:        cfg.Datasource.Type,
		SQLitePath:  cfg.Datasource.SQLitePath,
		PostgresDSN: cfg.Datasource.PostgresDSN,
		Retry:       cfg.Datasource.Retry,
	}, log.Logger)
	if err != nil {
		return fmt.Errorf("open datasource: %w", err)
	}
	defer ds.Close()

	store, err := storage.New(storage.Config{
		Type: cfg.Storage.Type,
		Path: cfg.Storage.Path,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	dl, err := downloader.New(downloader.Config{
		Type:          downloader.DownloaderType(cfg.Downloader.Type),
		Binary:        cfg.Downloader.Binary,
		InfoTimeout:   cfg.Downloader.InfoTimeout,
		TempDir:       cfg.Downloader.TempDir,
		MockStepDelay: cfg.Downloader.MockStepDelay,
	}, log.Logger)
	if err != nil {
		return fmt.Errorf("create downloader: %w", err)
	}

	queue := notification.NewQueue(notification.Config{MaxDepth: cfg.Notifications.MaxDepth}, log.Logger)

	svc := lifecycle.NewService(lifecycle.Config{
		APIVersion:  config.Version,
		MaxParallel: cfg.Downloader.MaxParallel,
	}, ds, store, dl, queue, log.Logger)

	sweeper := expiration.NewService(ds, store, cfg.Expiration.Retention, log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	if err := tasks.RegisterExpirationTask(sched, sweeper, cfg.Expiration.Cron, cfg.Expiration.RunOnStart); err != nil {
		return fmt.Errorf("register expiration task: %w", err)
	}
	if err := tasks.RegisterMailboxPruneTask(sched, queue, cfg.Notifications.PruneCron, cfg.Notifications.IdleTTL, log.Logger); err != nil {
		return fmt.Errorf("register mailbox prune task: %w", err)
	}

	ids, err := identity.NewService(identityConfig(cfg))
	if err != nil {
		return fmt.Errorf("create identity service: %w", err)
	}
	if cfg.Auth.ClientSecret == "" {
		log.Warn().Msg("no client secret configured, client ids will not survive a restart")
	}

	server := api.NewServer(cfg.Server, api.Deps{
		Lifecycle: svc,
		Identity:  ids,
		Queue:     queue,
		Hub:       websocket.NewHub(queue, cfg.Server.AllowOrigins, log.Logger),
		Scheduler: sched,
		Logs:      log,
	}, log.Logger)

	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	return shutdown(cfg.Server.ShutdownTimeout, server, sched, svc, log)
}

// shutdown stops intake first, then background tasks, then running downloads.
func shutdown(timeout time.Duration, server *api.Server, sched *scheduler.Scheduler, svc *lifecycle.Service, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := sched.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
	}
	if err := svc.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("downloads still running at shutdown were abandoned")
	}
	return errors.Join(errs...)
}

// identityConfig maps the cookie settings onto the identity service.
func identityConfig(cfg *config.Config) identity.Config {
	return identity.Config{
		Secret:   cfg.Auth.ClientSecret,
		Secure:   cfg.Server.CookieSecure,
		HTTPOnly: cfg.Server.CookieHTTPOnly,
		SameSite: cfg.Server.CookieSameSite,
	}
}
