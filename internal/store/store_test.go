package store

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clipfetch/clipfetch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestNew_CreatesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "downloads")

	if _, err := New(dir, testLogger()); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("base directory should exist: %v", err)
	}
}

func TestReserve(t *testing.T) {
	s := testStore(t)

	template, err := s.Reserve(domain.JobID("42_1700000000"))
	if err != nil {
		t.Fatalf("Reserve() error: %v", err)
	}
	if !strings.HasSuffix(template, "42_1700000000.%(ext)s") {
		t.Errorf("unexpected template: %q", template)
	}

	if _, err := s.Reserve(""); err == nil {
		t.Error("Reserve() should reject an empty job id")
	}
}

func TestLocate_Audio(t *testing.T) {
	s := testStore(t)
	template, _ := s.Reserve(domain.JobID("7_1"))

	if _, err := s.Locate(template, domain.KindAudio); err != domain.ErrArtifactNotFound {
		t.Errorf("Locate() on missing file = %v, want ErrArtifactNotFound", err)
	}

	touch(t, resolve(template, "mp3"))

	path, err := s.Locate(template, domain.KindAudio)
	if err != nil {
		t.Fatalf("Locate() error: %v", err)
	}
	if !strings.HasSuffix(path, ".mp3") {
		t.Errorf("audio should resolve to .mp3, got %q", path)
	}
}

func TestLocate_VideoPriority(t *testing.T) {
	tests := []struct {
		name    string
		present []string
		want    string
	}{
		{"mp4 only", []string{"mp4"}, ".mp4"},
		{"mkv only", []string{"mkv"}, ".mkv"},
		{"webm only", []string{"webm"}, ".webm"},
		{"mp4 wins over mkv", []string{"mkv", "mp4"}, ".mp4"},
		{"mkv wins over webm", []string{"webm", "mkv"}, ".mkv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testStore(t)
			template, _ := s.Reserve(domain.JobID("7_2"))
			for _, ext := range tt.present {
				touch(t, resolve(template, ext))
			}

			path, err := s.Locate(template, domain.KindVideo)
			if err != nil {
				t.Fatalf("Locate() error: %v", err)
			}
			if !strings.HasSuffix(path, tt.want) {
				t.Errorf("Locate() = %q, want suffix %q", path, tt.want)
			}
		})
	}
}

func TestLocate_VideoNotFound(t *testing.T) {
	s := testStore(t)
	template, _ := s.Reserve(domain.JobID("7_3"))

	if _, err := s.Locate(template, domain.KindVideo); err != domain.ErrArtifactNotFound {
		t.Errorf("Locate() = %v, want ErrArtifactNotFound", err)
	}
}

func TestSizeOf(t *testing.T) {
	s := testStore(t)
	path := filepath.Join(t.TempDir(), "artifact.mp4")
	touch(t, path)

	size, err := s.SizeOf(path)
	if err != nil {
		t.Fatalf("SizeOf() error: %v", err)
	}
	if size != 4 {
		t.Errorf("SizeOf() = %d, want 4", size)
	}

	if _, err := s.SizeOf(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("SizeOf() should fail for a missing file")
	}
}

func TestRemove_Idempotent(t *testing.T) {
	s := testStore(t)
	path := filepath.Join(t.TempDir(), "artifact.mp3")
	touch(t, path)

	s.Remove(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should be removed")
	}

	// Removing again, removing a missing path, and removing the empty
	// path must all be harmless.
	s.Remove(path)
	s.Remove(filepath.Join(t.TempDir(), "never-existed"))
	s.Remove("")
}
