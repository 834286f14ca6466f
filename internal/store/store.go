// Package store manages per-job working files on local disk.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipfetch/clipfetch/internal/domain"
)

// extTemplate is the placeholder yt-dlp substitutes with the real container
// extension once the output format is known.
const extTemplate = "%(ext)s"

// audioExt is the fixed output extension for audio jobs; the extraction tool
// always transcodes audio to this container.
const audioExt = "mp3"

// videoExts are the candidate container extensions for video jobs, probed in
// priority order.
var videoExts = []string{"mp4", "mkv", "webm"}

// FileStore assigns and cleans up per-job working files under a base
// directory.
type FileStore struct {
	baseDir string
	logger  *slog.Logger
}

// New creates a file store rooted at baseDir, creating it if needed.
func New(baseDir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create downloads directory: %w", err)
	}
	return &FileStore{
		baseDir: baseDir,
		logger:  logger,
	}, nil
}

// Reserve returns the working path template for a job. The extension is left
// as a template placeholder and resolved after acquisition.
func (s *FileStore) Reserve(jobID domain.JobID) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("empty job id")
	}
	return filepath.Join(s.baseDir, jobID.String()+"."+extTemplate), nil
}

// Locate resolves a working path template to the file produced by a fetch.
// Audio output always uses the fixed audio extension; video output is probed
// against the candidate extensions in priority order.
func (s *FileStore) Locate(template string, kind domain.Kind) (string, error) {
	if kind == domain.KindAudio {
		path := resolve(template, audioExt)
		if _, err := os.Stat(path); err != nil {
			return "", domain.ErrArtifactNotFound
		}
		return path, nil
	}

	for _, ext := range videoExts {
		path := resolve(template, ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", domain.ErrArtifactNotFound
}

// SizeOf returns the size in bytes of the file at path.
func (s *FileStore) SizeOf(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat artifact: %w", err)
	}
	return info.Size(), nil
}

// Remove deletes the file at path. It is idempotent and never fails the
// caller: a missing file is fine, and removal errors are logged only.
func (s *FileStore) Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove artifact", "path", path, "error", err)
	}
}

func resolve(template, ext string) string {
	return strings.Replace(template, extTemplate, ext, 1)
}
