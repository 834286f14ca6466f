// Package ytdlp wraps the external yt-dlp binary for probing and fetching
// media from supported platforms.
package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/clipfetch/clipfetch/internal/config"
	"github.com/clipfetch/clipfetch/internal/domain"
)

// Client drives the yt-dlp binary. Probe is inspection-only; Fetch downloads
// into a working path template, retrying failed attempts.
type Client struct {
	binPath string
	cfg     config.FetchConfig
	logger  *slog.Logger

	// run executes the tool; replaced in tests.
	run func(ctx context.Context, args ...string) ([]byte, error)
}

// NewClient creates a client, resolving yt-dlp from PATH.
func NewClient(cfg config.FetchConfig, logger *slog.Logger) (*Client, error) {
	binPath, err := exec.LookPath("yt-dlp")
	if err != nil {
		return nil, fmt.Errorf("yt-dlp not found in PATH: %w", err)
	}

	c := &Client{
		binPath: binPath,
		cfg:     cfg,
		logger:  logger,
	}
	c.run = c.execRun
	return c, nil
}

func (c *Client) execRun(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binPath, args...)
	return cmd.Output()
}

// probeInfo mirrors the subset of yt-dlp's JSON dump the bot needs.
type probeInfo struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// Probe inspects the source link without downloading anything and returns
// its title and duration.
func (c *Client) Probe(ctx context.Context, url string) (*domain.MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SocketTimeout*4)
	defer cancel()

	out, err := c.run(ctx, probeArgs(url)...)
	if err != nil {
		c.logger.Warn("probe failed", "url", url, "error", err)
		return nil, fmt.Errorf("%w: %s", domain.ErrProbeFailed, shortExecError(err))
	}

	info, err := parseProbeOutput(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrProbeFailed, err)
	}
	return info, nil
}

// Fetch downloads the source into the working path template. Each attempt
// runs under its own timeout; failed attempts are retried up to the
// configured maximum.
func (c *Client) Fetch(ctx context.Context, url string, kind domain.Kind, template string) error {
	args := fetchArgs(url, kind, template, c.cfg.SocketTimeout)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		_, err := c.run(attemptCtx, args...)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err
		c.logger.Warn("fetch attempt failed",
			"url", url,
			"kind", kind,
			"attempt", attempt,
			"max_retries", c.cfg.MaxRetries,
			"error", err,
		)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w after %d attempts: %s",
		domain.ErrFetchFailed, c.cfg.MaxRetries, shortExecError(lastErr))
}

func probeArgs(url string) []string {
	return []string{"-J", "--no-playlist", "--no-warnings", url}
}

func fetchArgs(url string, kind domain.Kind, template string, socketTimeout time.Duration) []string {
	args := []string{
		"--no-playlist",
		"--restrict-filenames",
		"--quiet",
		"--no-warnings",
		"--socket-timeout", strconv.Itoa(int(socketTimeout.Seconds())),
		"-o", template,
	}
	if kind == domain.KindAudio {
		args = append(args,
			"-f", "bestaudio/best",
			"-x",
			"--audio-format", "mp3",
			"--audio-quality", "192K",
		)
	} else {
		args = append(args, "-f", "bestvideo+bestaudio/best")
	}
	return append(args, url)
}

func parseProbeOutput(out []byte) (*domain.MediaInfo, error) {
	var info probeInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	if info.Title == "" {
		info.Title = "download"
	}
	return &domain.MediaInfo{
		Title:    info.Title,
		Duration: time.Duration(info.Duration * float64(time.Second)),
	}, nil
}

// shortExecError folds stderr captured by exec.ExitError into the message,
// since yt-dlp reports the interesting failure there.
func shortExecError(err error) string {
	if err == nil {
		return ""
	}
	if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
		return string(exitErr.Stderr)
	}
	return err.Error()
}
