// File: internal/history/filestore.go
// Description: Flat-file persistence for the healing history. The on-disk
// format is a single JSON object mapping original locator strings to healed
// locator strings.

package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileStore persists the healing history to a JSON file. Writes rewrite the
// whole mapping through a temp file and rename, so a crash never leaves a
// half-written history behind.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileStore creates a file-backed store at path, creating parent
// directories as needed.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("history file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FileStore{path: path, logger: logger.Named("history_file")}, nil
}

// Load reads the persisted mapping. A missing file is an empty history.
func (s *FileStore) Load(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	entries := map[string]string{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse history file %s: %w", s.path, err)
	}
	return entries, nil
}

// Put upserts one entry. The full mapping is re-read and rewritten; healing
// history files are small and this keeps the format a plain flat object.
func (s *FileStore) Put(ctx context.Context, original, healed string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := map[string]string{}
	if data, err := os.ReadFile(s.path); err == nil && len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			// A corrupt file is replaced rather than blocking future heals.
			s.logger.Warn("History file corrupt, rewriting", zap.String("path", s.path), zap.Error(err))
			entries = map[string]string{}
		}
	}
	entries[original] = healed

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

// Clear removes the persisted history file.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove history file: %w", err)
	}
	return nil
}
