package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"syscall"

	"github.com/hay-kot/studytrack/internal/core/ingest"
	"github.com/hay-kot/studytrack/internal/core/session"
)

// SessionFile is the root JSON structure stored on disk.
type SessionFile struct {
	Sessions []session.Data `json:"sessions"`
}

// SessionStore keeps received sessions in a single JSON file.
type SessionStore struct {
	path string
	mu   sync.RWMutex
}

// NewSessionStore creates a new JSON file session store at the given path.
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// List returns all sessions, newest start time first.
func (s *SessionStore) List(ctx context.Context) ([]session.Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var file SessionFile
	err := withFileLock(s.path, syscall.LOCK_SH, func() error {
		var err error
		file, err = s.load()
		return err
	})
	if err != nil {
		return nil, err
	}

	sessions := file.Sessions
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	return sessions, nil
}

// Get returns a session by ID. Returns ingest.ErrNotFound if not found.
func (s *SessionStore) Get(ctx context.Context, id string) (session.Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found session.Data
		ok    bool
	)
	err := withFileLock(s.path, syscall.LOCK_SH, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}
		for _, d := range file.Sessions {
			if d.SessionID == id {
				found, ok = d, true
				break
			}
		}
		return nil
	})
	if err != nil {
		return session.Data{}, err
	}
	if !ok {
		return session.Data{}, ingest.ErrNotFound
	}
	return found, nil
}

// Save creates or replaces a session.
func (s *SessionStore) Save(ctx context.Context, d session.Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return withFileLock(s.path, syscall.LOCK_EX, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		// Update existing or append new
		found := false
		for i, existing := range file.Sessions {
			if existing.SessionID == d.SessionID {
				file.Sessions[i] = d
				found = true
				break
			}
		}
		if !found {
			file.Sessions = append(file.Sessions, d)
		}

		return s.save(file)
	})
}

// load reads the session file from disk.
// Returns empty SessionFile if file doesn't exist.
func (s *SessionStore) load() (SessionFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return SessionFile{}, nil
		}
		return SessionFile{}, fmt.Errorf("read sessions file: %w", err)
	}

	if len(data) == 0 {
		return SessionFile{}, nil
	}

	var file SessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return SessionFile{}, fmt.Errorf("parse sessions file: %w", err)
	}

	return file, nil
}

func (s *SessionStore) save(file SessionFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}
	return writeAtomic(s.path, data)
}
