package secretstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore persists secrets as one restricted-permission JSON document per
// key under baseDir/<group>/<key>.json.
type FileStore struct {
	name    string
	baseDir string
	mu      sync.Mutex
}

type fileEntry struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFileStore creates a file-backed store rooted at baseDir.
func NewFileStore(name, baseDir string) *FileStore {
	return &FileStore{name: name, baseDir: baseDir}
}

func (s *FileStore) Name() string { return s.name }

func (s *FileStore) path(group, key string) string {
	return filepath.Join(s.baseDir, sanitize(group), sanitize(key)+".json")
}

func (s *FileStore) Get(ctx context.Context, group, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(group, key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s/%s: %w", group, key, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}

	var entry fileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", fmt.Errorf("failed to parse secret file: %w", err)
	}
	return entry.Value, nil
}

func (s *FileStore) Set(ctx context.Context, group, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.baseDir, sanitize(group))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create secret directory: %w", err)
	}

	data, err := json.MarshalIndent(fileEntry{Value: value, UpdatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal secret: %w", err)
	}

	if err := os.WriteFile(s.path(group, key), data, 0o600); err != nil {
		return fmt.Errorf("failed to write secret file: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, group, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(group, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete secret file: %w", err)
	}
	return nil
}

func sanitize(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	return replacer.Replace(name)
}
