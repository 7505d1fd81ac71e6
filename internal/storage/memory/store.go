// Package memory provides an in-memory content store for development/testing.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/docparse/docparse/internal/parser"
)

// Store implements parser.ContentStore backed by a map.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	clock parser.Clock
}

// NewStore constructs a Store.
func NewStore(clock parser.Clock) *Store {
	return &Store{
		blobs: make(map[string][]byte),
		clock: clock,
	}
}

// Put stores the artifact bytes under a generated key.
func (s *Store) Put(_ context.Context, data []byte, originalName, jobID string) (string, error) {
	key := s.generateKey(originalName, jobID)
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = cp
	return key, nil
}

// Get returns the artifact bytes for a key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, parser.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Delete removes an artifact.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return parser.ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Stats reports blob count and byte totals.
func (s *Store) Stats(_ context.Context) (parser.StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := parser.StorageStats{Enabled: true}
	for _, data := range s.blobs {
		stats.TotalFiles++
		stats.TotalBytes += int64(len(data))
	}
	return stats, nil
}

func (s *Store) generateKey(originalName, jobID string) string {
	ts := s.clock.Now().Format("20060102_150405")
	shortJob := jobID
	if idx := strings.Index(jobID, "-"); idx > 0 {
		shortJob = jobID[:idx]
	}
	return fmt.Sprintf("%s_%s_%s", originalName, ts, shortJob)
}
