package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TokenStore is the single durable credential slot. Token doubles as the
// api.TokenSource for outgoing requests, so clearing the store immediately
// detaches the credential from every caller.
type TokenStore interface {
	// Load reads the persisted token into memory. A missing token is not
	// an error; it loads as "".
	Load() (string, error)
	// Save persists a new token and makes it the current one.
	Save(token string) error
	// Clear removes the token durably and from memory.
	Clear() error
	// Token returns the current in-memory token, or "".
	Token() string
}

// FileTokenStore keeps the bearer token in one file under the user's config
// directory. Nothing else is ever persisted by this client.
type FileTokenStore struct {
	mu    sync.RWMutex
	path  string
	token string
}

// DefaultTokenPath returns the conventional token location,
// $HOME/.config/paperlens/token on most systems.
func DefaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "paperlens", "token"), nil
}

// NewFileTokenStore creates a store backed by the given file path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Load implements TokenStore.
func (s *FileTokenStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.token = ""
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	s.token = strings.TrimSpace(string(data))
	return s.token, nil
}

// Save implements TokenStore. The file is owner-readable only.
func (s *FileTokenStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	s.token = token
	return nil
}

// Clear implements TokenStore.
func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// Token implements TokenStore and api.TokenSource.
func (s *FileTokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// MemoryTokenStore is a TokenStore with no durable backing, for tests.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

// Load implements TokenStore.
func (s *MemoryTokenStore) Load() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// Save implements TokenStore.
func (s *MemoryTokenStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// Clear implements TokenStore.
func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// Token implements TokenStore and api.TokenSource.
func (s *MemoryTokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}
