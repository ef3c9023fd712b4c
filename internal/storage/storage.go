// Package storage persists session memory across restarts as JSON files
// under the data directory. Writes are atomic (temp file plus rename) and
// guarded by flock so concurrent agentd processes cannot corrupt a snapshot.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when no snapshot exists for a session.
var ErrNotFound = errors.New("not found")

// Store reads and writes per-session memory snapshots.
type Store struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*FileLock
}

// New creates a store rooted at basePath. The directory is created lazily
// on first write.
func New(basePath string) *Store {
	return &Store{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

// LoadMemory returns the persisted memory for a session, or ErrNotFound.
func (s *Store) LoadMemory(sessionID string) (map[string]string, error) {
	data, err := os.ReadFile(s.memoryPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: read %s: %w", sessionID, err)
	}

	var mem map[string]string
	if err := json.Unmarshal(data, &mem); err != nil {
		return nil, fmt.Errorf("storage: unmarshal %s: %w", sessionID, err)
	}
	return mem, nil
}

// SaveMemory writes a session's memory snapshot. An empty map removes the
// snapshot so retired sessions do not accumulate empty files.
func (s *Store) SaveMemory(sessionID string, mem map[string]string) error {
	if len(mem) == 0 {
		return s.DeleteMemory(sessionID)
	}

	path := s.memoryPath(sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("storage: lock %s: %w", sessionID, err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(mem, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal %s: %w", sessionID, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("storage: write %s: %w", sessionID, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("storage: rename %s: %w", sessionID, err)
	}
	return nil
}

// DeleteMemory removes a session's snapshot. Deleting a missing snapshot
// is not an error.
func (s *Store) DeleteMemory(sessionID string) error {
	path := s.memoryPath(sessionID)

	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("storage: lock %s: %w", sessionID, err)
	}
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete %s: %w", sessionID, err)
	}
	return nil
}

// Sessions lists the session ids that have persisted memory.
func (s *Store) Sessions() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.basePath, "sessions"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list sessions: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, unescapeID(strings.TrimSuffix(name, ".json")))
	}
	return ids, nil
}

func (s *Store) memoryPath(sessionID string) string {
	return filepath.Join(s.basePath, "sessions", escapeID(sessionID)+".json")
}

func (s *Store) lockFor(path string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[path]
	if !ok {
		lock = NewFileLock(path)
		s.locks[path] = lock
	}
	return lock
}

// escapeID makes a session id safe as a file name. Ids carry colons and
// slashes (tcp:127.0.0.1:4242), which some filesystems reject.
func escapeID(id string) string {
	r := strings.NewReplacer(":", "%3A", "/", "%2F", "\\", "%5C")
	return r.Replace(id)
}

func unescapeID(name string) string {
	r := strings.NewReplacer("%3A", ":", "%2F", "/", "%5C", "\\")
	return r.Replace(name)
}
