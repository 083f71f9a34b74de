package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/yungbote/gallery-client/internal/domain"
)

var (
	errNoSavedSession     = errors.New("no saved session")
	errInvalidSessionData = errors.New("invalid session data")
)

// sessionFile persists the {user, sessionId, galleryId} record across
// restarts. An empty path keeps the record in memory only.
type sessionFile struct {
	path string

	mu  sync.Mutex
	mem []byte
}

func newSessionFile(path string) *sessionFile {
	return &sessionFile{path: path}
}

func (f *sessionFile) Save(rec *domain.SessionRecord) error {
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.path == "" {
		f.mem = raw
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *sessionFile) Load() (*domain.SessionRecord, error) {
	f.mu.Lock()
	raw := f.mem
	var err error
	if f.path != "" {
		raw, err = os.ReadFile(f.path)
	}
	f.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(raw) == 0) {
		return nil, errNoSavedSession
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var rec domain.SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil || !rec.Valid() {
		return nil, errInvalidSessionData
	}
	return &rec, nil
}

func (f *sessionFile) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mem = nil
	if f.path == "" {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
