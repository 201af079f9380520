package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/ingest"
)

// ProgressFile is the root JSON structure for progress records.
type ProgressFile struct {
	Records []ingest.ProgressRecord `json:"records"`
}

// ProgressStore keeps per-user progress in a JSON file.
type ProgressStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewProgressStore creates a progress store at the given path.
func NewProgressStore(path string) *ProgressStore {
	return &ProgressStore{path: path, now: time.Now}
}

// Get returns the record for key. Unknown keys return a zero record with no
// attempts.
func (s *ProgressStore) Get(ctx context.Context, key ingest.ProgressKey) (ingest.ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := ingest.ProgressRecord{ProgressKey: key}
	err := withFileLock(s.path, syscall.LOCK_SH, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}
		if i := indexOf(file.Records, key); i >= 0 {
			rec = file.Records[i]
		}
		return nil
	})
	return rec, err
}

// Update applies u as a new attempt for userID.
func (s *ProgressStore) Update(ctx context.Context, userID string, u content.ProgressUpdate) (ingest.ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ingest.ProgressKey{UserID: userID, ContentID: u.ContentID, ContentType: u.ContentType}
	var rec ingest.ProgressRecord

	err := withFileLock(s.path, syscall.LOCK_EX, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		i := indexOf(file.Records, key)
		if i < 0 {
			file.Records = append(file.Records, ingest.ProgressRecord{ProgressKey: key})
			i = len(file.Records) - 1
		}
		rec = file.Records[i].Apply(u, s.now())
		file.Records[i] = rec

		return s.save(file)
	})
	return rec, err
}

func indexOf(records []ingest.ProgressRecord, key ingest.ProgressKey) int {
	for i, r := range records {
		if r.ProgressKey == key {
			return i
		}
	}
	return -1
}

func (s *ProgressStore) load() (ProgressFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ProgressFile{}, nil
		}
		return ProgressFile{}, fmt.Errorf("read progress file: %w", err)
	}

	if len(data) == 0 {
		return ProgressFile{}, nil
	}

	var file ProgressFile
	if err := json.Unmarshal(data, &file); err != nil {
		return ProgressFile{}, fmt.Errorf("parse progress file: %w", err)
	}
	return file, nil
}

func (s *ProgressStore) save(file ProgressFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return writeAtomic(s.path, data)
}
