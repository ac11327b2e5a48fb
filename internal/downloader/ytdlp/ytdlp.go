// Package ytdlp drives the yt-dlp command line tool.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ytdl/ytdl-api/internal/downloader/types"
	"github.com/ytdl/ytdl-api/internal/media"
)

const binaryName = "yt-dlp"

// Config configures the yt-dlp client.
type Config struct {
	// Binary is an explicit path to yt-dlp. Empty means look it up.
	Binary string
	// InfoTimeout bounds metadata lookups.
	InfoTimeout time.Duration
	// TempDir is where artifacts are written before storage takes them.
	TempDir string
}

// Client implements types.Downloader on top of yt-dlp.
type Client struct {
	binary      string
	infoTimeout time.Duration
	tempDir     string
	logger      zerolog.Logger

	versionOnce sync.Once
	version     string
}

var _ types.Downloader = (*Client)(nil)

// New locates yt-dlp and returns a client for it.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	binary := findExecutable(binaryName, cfg.Binary)
	if binary == "" {
		return nil, fmt.Errorf("%w: %s", types.ErrNotInstalled, binaryName)
	}
	if cfg.InfoTimeout <= 0 {
		cfg.InfoTimeout = 30 * time.Second
	}
	return &Client{
		binary:      binary,
		infoTimeout: cfg.InfoTimeout,
		tempDir:     cfg.TempDir,
		logger:      logger.With().Str("component", "ytdlp").Logger(),
	}, nil
}

// findExecutable finds an executable by name or explicit path.
func findExecutable(name, explicitPath string) string {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err == nil {
			return explicitPath
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "darwin":
		commonPaths = []string{
			"/usr/local/bin/" + name,
			"/opt/homebrew/bin/" + name,
		}
	case "linux":
		commonPaths = []string{
			"/usr/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "windows":
		commonPaths = []string{
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Programs", name, name+".exe"),
		}
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

func (c *Client) Type() types.DownloaderType {
	return types.DownloaderTypeYTDLP
}

// Version returns yt-dlp's version string, cached after the first call.
func (c *Client) Version(ctx context.Context) string {
	c.versionOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		out, err := exec.CommandContext(ctx, c.binary, "--version").Output()
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to read yt-dlp version")
			return
		}
		c.version = strings.TrimSpace(string(out))
	})
	return c.version
}

// GetVideoInfo dumps metadata for url without downloading it.
func (c *Client) GetVideoInfo(ctx context.Context, url string) (*types.VideoInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.infoTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, "-J", "--no-playlist", "--no-warnings", url)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrUpstream, ctx.Err())
		}
		return nil, classifyError(stderr.String())
	}

	info, err := parseVideoInfo(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	if info.URL == "" {
		info.URL = url
	}
	return info, nil
}

func (c *Client) buildArgs(d *media.Download, dir string) ([]string, error) {
	selector, err := types.StreamSelector(d)
	if err != nil {
		return nil, err
	}

	args := []string{
		"--newline",
		"--no-playlist",
		"--no-mtime",
		"--no-warnings",
		"--progress-template", "download:" + progressPrefix + " %(progress._percent_str)s",
		"-o", filepath.Join(dir, d.MediaID+".%(ext)s"),
		"-f", selector,
	}
	if d.IsAudio() {
		args = append(args, "-x", "--audio-format", string(d.MediaFormat))
	} else {
		// merging covers video+audio, a lone video stream only gets remuxed
		args = append(args,
			"--merge-output-format", string(d.MediaFormat),
			"--remux-video", string(d.MediaFormat),
		)
	}
	return append(args, d.URL), nil
}

// Download runs yt-dlp for d in a scratch directory and reports events to
// handle. The scratch directory is removed once handle has seen the result.
func (c *Client) Download(ctx context.Context, d *media.Download, handle types.EventHandler) bool {
	logger := c.logger.With().Str("mediaId", d.MediaID).Str("clientId", d.ClientID).Logger()

	dir, err := os.MkdirTemp(c.tempDir, "ytdl-"+d.MediaID+"-")
	if err != nil {
		return c.fail(ctx, d, handle, fmt.Errorf("%w: create scratch dir: %v", types.ErrUpstream, err))
	}
	defer os.RemoveAll(dir)

	args, err := c.buildArgs(d, dir)
	if err != nil {
		return c.fail(ctx, d, handle, err)
	}

	c.emit(ctx, d, handle, types.StartedEvent{}, logger)

	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return c.fail(ctx, d, handle, fmt.Errorf("%w: %v", types.ErrUpstream, err))
	}

	if err := cmd.Start(); err != nil {
		return c.fail(ctx, d, handle, fmt.Errorf("%w: start %s: %v", types.ErrUpstream, binaryName, err))
	}

	c.consume(ctx, d, handle, stdout, logger)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return c.fail(ctx, d, handle, fmt.Errorf("%w: %v", types.ErrUpstream, ctx.Err()))
		}
		return c.fail(ctx, d, handle, classifyError(stderr.String()))
	}

	path := filepath.Join(dir, d.StorageFilename())
	if _, err := os.Stat(path); err != nil {
		return c.fail(ctx, d, handle, fmt.Errorf("%w: expected output %s missing", types.ErrUpstream, filepath.Base(path)))
	}

	if err := handle(ctx, d, types.FinishedEvent{Path: path}); err != nil {
		logger.Error().Err(err).Msg("Failed to keep downloaded artifact")
		return false
	}
	return true
}

// consume reads yt-dlp's stdout, turning progress lines into events. Progress
// events are only emitted when the integer percent changes.
func (c *Client) consume(ctx context.Context, d *media.Download, handle types.EventHandler, r io.Reader, logger zerolog.Logger) {
	last := -2
	converting := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if p, ok := parseProgress(line); ok {
			if converting || p.Wire() == last {
				continue
			}
			last = p.Wire()
			c.emit(ctx, d, handle, types.ProgressEvent{Progress: p}, logger)
			continue
		}

		if !converting && !d.IsAudio() && isPostprocessLine(line) {
			converting = true
			c.emit(ctx, d, handle, types.ConvertingEvent{}, logger)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		logger.Debug().Err(err).Msg("Stopped reading yt-dlp output")
	}
}

func (c *Client) emit(ctx context.Context, d *media.Download, handle types.EventHandler, e types.Event, logger zerolog.Logger) {
	if err := handle(ctx, d, e); err != nil {
		logger.Warn().Err(err).Str("event", e.Name()).Msg("Event handler failed")
	}
}

func (c *Client) fail(ctx context.Context, d *media.Download, handle types.EventHandler, err error) bool {
	c.logger.Error().Err(err).Str("mediaId", d.MediaID).Msg("Download failed")
	if herr := handle(ctx, d, types.FailedEvent{Err: err}); herr != nil {
		c.logger.Warn().Err(herr).Str("mediaId", d.MediaID).Msg("Event handler failed")
	}
	return false
}
