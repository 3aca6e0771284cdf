package rotation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ScheduleState is the persisted schedule bookkeeping:
// service -> key -> last rotation timestamp. Next-rotation times are derived
// from the policy interval, so only the last timestamps are stored.
type ScheduleState map[string]map[string]time.Time

// StateStore persists schedule state between CLI invocations and process
// restarts.
type StateStore struct {
	path string
	mu   sync.Mutex
}

// NewStateStore creates a store writing to the given file path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// DefaultStatePath resolves the schedule state location, honoring
// CREDOPS_STATE_DIR for tests, then XDG_DATA_HOME, then the home directory.
func DefaultStatePath() string {
	if dir := os.Getenv("CREDOPS_STATE_DIR"); dir != "" {
		return filepath.Join(dir, "schedule.json")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "credops", "schedule.json")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "credops", "schedule.json")
	}
	return filepath.Join(os.TempDir(), "credops", "schedule.json")
}

// Load reads persisted state. A missing file yields empty state.
func (s *StateStore) Load() (ScheduleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ScheduleState{}, nil
		}
		return nil, fmt.Errorf("failed to read schedule state: %w", err)
	}

	var state ScheduleState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse schedule state: %w", err)
	}
	return state, nil
}

// Save writes the state with restricted permissions.
func (s *StateStore) Save(state ScheduleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schedule state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write schedule state: %w", err)
	}
	return nil
}
