// Package store persists form schemas and browser session state.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
)

// FileFormRepository stores each owner's schema as <dir>/<owner>.json.
type FileFormRepository struct {
	dir string
	log *zap.Logger
	mu  sync.RWMutex
}

var _ schemas.FormRepository = (*FileFormRepository)(nil)

// NewFileFormRepository creates dir if needed. A leading ~ is expanded.
func NewFileFormRepository(dir string, logger *zap.Logger) (*FileFormRepository, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand forms dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create forms dir: %w", err)
	}
	return &FileFormRepository{dir: expanded, log: logger.Named("store")}, nil
}

// Dir returns the resolved storage directory.
func (r *FileFormRepository) Dir() string { return r.dir }

// Path returns the document path used for ownerID.
func (r *FileFormRepository) Path(ownerID string) (string, error) {
	name, err := ownerFileName(ownerID)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.dir, name), nil
}

// Load reads and validates the owner's document.
func (r *FileFormRepository) Load(_ context.Context, ownerID string) (*schemas.Form, error) {
	path, err := r.Path(ownerID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	data, err := os.ReadFile(path)
	r.mu.RUnlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("owner %q: %w", ownerID, schemas.ErrFormNotFound)
		}
		return nil, fmt.Errorf("failed to read form: %w", err)
	}

	form, err := schemas.DecodeForm(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return form, nil
}

// Save replaces the owner's document. Readers never observe a partial write.
func (r *FileFormRepository) Save(_ context.Context, ownerID string, form *schemas.Form) error {
	path, err := r.Path(ownerID)
	if err != nil {
		return err
	}
	data, err := schemas.EncodeForm(form)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write form: %w", err)
	}
	r.log.Debug("Form document written.", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// ownerFileName maps an owner id onto a single path element.
func ownerFileName(ownerID string) (string, error) {
	if ownerID == "" || ownerID == "." || ownerID == ".." {
		return "", fmt.Errorf("invalid owner id %q", ownerID)
	}
	return url.PathEscape(ownerID) + ".json", nil
}

// writeFileAtomic writes to a temp file in the target directory and renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
