package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hay-kot/studytrack/internal/core/storage"
)

// SnapshotKey is the storage key holding the latest session snapshot.
const SnapshotKey = "studytrack.session"

var (
	// ErrNoSnapshot is returned when no snapshot is stored.
	ErrNoSnapshot = errors.New("no session snapshot")
	// ErrCorruptSnapshot is returned when the stored snapshot cannot be decoded.
	ErrCorruptSnapshot = errors.New("corrupt session snapshot")
)

// LoadSnapshot reads the persisted snapshot. Returns ErrNoSnapshot if none.
func LoadSnapshot(ctx context.Context, s storage.Store) (Data, error) {
	e, err := s.Get(ctx, SnapshotKey)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return Data{}, ErrNoSnapshot
		}
		return Data{}, fmt.Errorf("load snapshot: %w", err)
	}

	var d Data
	if err := json.Unmarshal([]byte(e.Value), &d); err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return d, nil
}

// SaveSnapshot overwrites the persisted snapshot with d.
func SaveSnapshot(ctx context.Context, s storage.Store, d Data) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.Set(ctx, SnapshotKey, string(b)); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// ClearSnapshot removes the persisted snapshot. Missing snapshots are not an
// error.
func ClearSnapshot(ctx context.Context, s storage.Store) error {
	err := s.Delete(ctx, SnapshotKey)
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
