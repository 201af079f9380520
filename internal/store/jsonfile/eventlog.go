package jsonfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/hay-kot/studytrack/internal/core/events"
	"github.com/hay-kot/studytrack/internal/core/ingest"
)

const defaultMaxEvents = 10000

// EventLog keeps received events in a JSONL file, trimmed to the newest
// maxEvents lines on every append.
type EventLog struct {
	path      string
	maxEvents int
	mu        sync.Mutex
}

// NewEventLog creates an event log at the given path.
func NewEventLog(path string) *EventLog {
	return &EventLog{path: path, maxEvents: defaultMaxEvents}
}

// WithMaxEvents sets the maximum number of events to retain.
func (l *EventLog) WithMaxEvents(max int) *EventLog {
	if max > 0 {
		l.maxEvents = max
	}
	return l
}

// Append adds a batch of events, enforcing the retention limit.
func (l *EventLog) Append(batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return withFileLock(l.path, syscall.LOCK_EX, func() error {
		existing, err := l.readUnsafe()
		if err != nil {
			return err
		}

		all := append(existing, batch...)
		if len(all) > l.maxEvents {
			all = all[len(all)-l.maxEvents:]
		}

		return l.writeUnsafe(all)
	})
}

// List returns matching events, newest first.
func (l *EventLog) List(q ingest.EventQuery) ([]events.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result []events.Event
	err := withFileLock(l.path, syscall.LOCK_SH, func() error {
		all, err := l.readUnsafe()
		if err != nil {
			return err
		}

		// Reverse to get newest first
		for i := len(all) - 1; i >= 0; i-- {
			if !q.Match(all[i]) {
				continue
			}
			result = append(result, all[i])
			if q.Limit > 0 && len(result) >= q.Limit {
				break
			}
		}
		return nil
	})
	return result, err
}

// readUnsafe reads all events from the file.
// Caller must hold lock.
func (l *EventLog) readUnsafe() ([]events.Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var out []events.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e events.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			// Skip malformed lines
			continue
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}

	return out, nil
}

// writeUnsafe rewrites the file with evs.
// Caller must hold lock.
func (l *EventLog) writeUnsafe(evs []events.Event) error {
	tmpPath := l.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range evs {
		if err := enc.Encode(e); err != nil {
			f.Close() //nolint:errcheck
			_ = os.Remove(tmpPath)
			return fmt.Errorf("write event: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close() //nolint:errcheck
		_ = os.Remove(tmpPath)
		return fmt.Errorf("flush event log: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
