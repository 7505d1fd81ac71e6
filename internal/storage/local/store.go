// Package local implements a local filesystem content store.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docparse/docparse/internal/parser"
)

const maxBaseNameLen = 50

// Config captures the parameters for the local filesystem content store.
type Config struct {
	// BaseDir is the root directory where artifacts are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// Enabled toggles the store; a disabled store returns sentinels
	// and callers degrade to in-memory processing.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Store writes uploaded artifacts to the local filesystem under
// generated names. Keys are never caller-supplied: they are derived from
// the sanitized base name, a capture timestamp, and the owning job id,
// which makes repeated uploads of the same filename collision-free
// without existence checks.
type Store struct {
	baseDir string
	enabled bool
	clock   parser.Clock
}

// New creates a new local filesystem-backed content store.
func New(cfg Config, clock parser.Clock) (*Store, error) {
	if !cfg.Enabled {
		return &Store{enabled: false, clock: clock}, nil
	}
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Store{
		baseDir: cfg.BaseDir,
		enabled: true,
		clock:   clock,
	}, nil
}

// GenerateKey derives the storage key for an upload:
// {sanitized_base}_{YYYYMMDD_HHMMSS}_{short_job_id}.{ext}
func (s *Store) GenerateKey(originalName, jobID string) string {
	ts := s.clock.Now().Format("20060102_150405")

	base := originalName
	ext := "bin"
	if idx := strings.LastIndex(originalName, "."); idx > 0 && idx < len(originalName)-1 {
		base = originalName[:idx]
		ext = originalName[idx+1:]
	}

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	clean := b.String()
	if len(clean) > maxBaseNameLen {
		clean = clean[:maxBaseNameLen]
	}
	if clean == "" {
		clean = "upload"
	}

	shortJob := jobID
	if idx := strings.Index(jobID, "-"); idx > 0 {
		shortJob = jobID[:idx]
	}

	return fmt.Sprintf("%s_%s_%s.%s", clean, ts, shortJob, ext)
}

// Put writes the artifact bytes under a generated key and returns it.
func (s *Store) Put(_ context.Context, data []byte, originalName, jobID string) (string, error) {
	if !s.enabled {
		return "", parser.ErrStorageDisabled
	}

	key := s.GenerateKey(originalName, jobID)
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return key, nil
}

// Get reads back the artifact bytes for a key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	if !s.enabled {
		return nil, parser.ErrStorageDisabled
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, parser.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

// Delete removes an artifact. Deletion is an explicit external
// operation; the pipeline itself never calls it.
func (s *Store) Delete(_ context.Context, key string) error {
	if !s.enabled {
		return parser.ErrStorageDisabled
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return parser.ErrNotFound
		}
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// Stats reports file count and byte totals for the store directory.
func (s *Store) Stats(_ context.Context) (parser.StorageStats, error) {
	if !s.enabled {
		return parser.StorageStats{Enabled: false}, nil
	}
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return parser.StorageStats{}, fmt.Errorf("failed to read storage directory: %w", err)
	}
	stats := parser.StorageStats{Enabled: true}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.TotalFiles++
		stats.TotalBytes += info.Size()
	}
	return stats, nil
}

// resolve joins a key onto the base directory, rejecting traversal.
func (s *Store) resolve(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	fullPath := filepath.Join(s.baseDir, key)
	cleanBase := filepath.Clean(s.baseDir)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
