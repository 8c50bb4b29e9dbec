package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
)

// FileSessionStore keeps the shared browser session artifact in one JSON file.
type FileSessionStore struct {
	path string
	log  *zap.Logger
	mu   sync.Mutex
}

var _ schemas.SessionStore = (*FileSessionStore)(nil)

// NewFileSessionStore expands a leading ~ in path. The file is created on first Save.
func NewFileSessionStore(path string, logger *zap.Logger) (*FileSessionStore, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand session file %q: %w", path, err)
	}
	return &FileSessionStore{path: expanded, log: logger.Named("session_store")}, nil
}

// Load returns an empty state when nothing has been saved yet.
func (s *FileSessionStore) Load(_ context.Context) (*schemas.BrowserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &schemas.BrowserState{}, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	state := &schemas.BrowserState{}
	if err := json.Unmarshal(data, state); err != nil {
		// A corrupt artifact only costs a fresh session.
		s.log.Warn("Discarding unreadable session file.", zap.String("path", s.path), zap.Error(err))
		return &schemas.BrowserState{}, nil
	}
	return state, nil
}

// Save replaces the stored state.
func (s *FileSessionStore) Save(_ context.Context, state *schemas.BrowserState) error {
	if state == nil {
		state = &schemas.BrowserState{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	s.log.Debug("Session state saved.",
		zap.Int("cookies", len(state.Cookies)),
		zap.Int("origins", len(state.Origins)),
	)
	return nil
}

// Reset removes the stored state. Resetting an absent file is not an error.
func (s *FileSessionStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	s.log.Info("Session state reset.", zap.String("path", s.path))
	return nil
}
