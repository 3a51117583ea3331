package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/silknet/cordscope/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CookieStore persists the session cookie blob to a single local file.
// Writes are atomic (temp file + rename) so a crash mid-write never leaves
// a truncated blob; a corrupt or absent file reads as "no session".
type CookieStore struct {
	path   string
	logger *zap.Logger

	mu sync.Mutex
}

// NewCookieStore creates a store rooted at path.
func NewCookieStore(path string, logger *zap.Logger) *CookieStore {
	return &CookieStore{path: path, logger: logger.Named("cookies")}
}

// Load reads the persisted cookie set. Absence and corruption both return
// (nil, nil): the caller falls back to interactive login either way.
func (s *CookieStore) Load() ([]schemas.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}

	var cookies []schemas.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		s.logger.Warn("Cookie file is corrupt, treating as absent", zap.Error(err))
		return nil, nil
	}
	return cookies, nil
}

// Save atomically replaces the persisted cookie set.
func (s *CookieStore) Save(cookies []schemas.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cookie file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cookies: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set cookie file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp cookie file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cookie file: %w", err)
	}
	return nil
}

// Clear removes the persisted session. Missing file is not an error.
func (s *CookieStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cookie file: %w", err)
	}
	return nil
}
