package msauth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// storeVersion is written into every snapshot so future format changes can be
// detected by old readers. Unknown fields are ignored on load, which keeps the
// format forward compatible.
const storeVersion = 1

// CredentialStore persists the full identity-to-token mapping as a single
// JSON document. Every save overwrites the whole file via a
// write-to-temp-then-rename so a concurrent reader (or a crash mid-write)
// can only ever observe a complete snapshot, never a torn one.
//
// The store is the sole owner of the backing file; all other components go
// through the Registry.
type CredentialStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// storeDocument is the on-disk representation. Identities are an ordered
// array, not a map: first-authenticated-first order is load-bearing (it picks
// the default account) and must survive process restarts.
type storeDocument struct {
	Version    int      `json:"version"`
	Identities []Record `json:"identities"`
}

// NewCredentialStore creates a store backed by the given file path.
func NewCredentialStore(path string, logger *slog.Logger) *CredentialStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialStore{path: path, logger: logger}
}

// DefaultStorePath returns the per-user credential file location,
// e.g. ~/.cache/graphbridge/credentials.json on Linux.
func DefaultStorePath() string {
	return filepath.Join(userCacheDir(), "graphbridge", "credentials.json")
}

// Path returns the backing file path.
func (s *CredentialStore) Path() string {
	return s.path
}

// Load reads the current snapshot. A missing file is the normal
// nothing-authenticated-yet state and returns an empty slice; a present but
// unreadable or unparsable file returns a CorruptStoreError so the caller can
// decide whether to refuse startup or explicitly accept the degradation.
func (s *CredentialStore) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &CorruptStoreError{Path: s.path, Err: err}
	}

	var doc storeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CorruptStoreError{Path: s.path, Err: err}
	}

	return doc.Identities, nil
}

// Save atomically replaces the snapshot with the given records. Writers are
// serialized process-wide by the store's mutex; the rename is what makes the
// replacement atomic with respect to readers in other processes.
func (s *CredentialStore) Save(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	doc := storeDocument{Version: storeVersion, Identities: records}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace credential store: %w", err)
	}

	s.logger.Debug("saved credential store", "path", s.path, "identities", len(records))
	return nil
}

func userCacheDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches")
	case "windows":
		for _, ev := range []string{"LOCALAPPDATA", "TEMP", "TMP"} {
			if v := os.Getenv(ev); v != "" {
				return v
			}
		}
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return xdg
	}
	return filepath.Join(homeDir(), ".cache")
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	return os.Getenv("HOME")
}
