package jsonfile

import (
	"context"
	"path/filepath"

	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/events"
	"github.com/hay-kot/studytrack/internal/core/ingest"
	"github.com/hay-kot/studytrack/internal/core/session"
)

const (
	sessionsFilename = "sessions.json"
	eventsFilename   = "events.jsonl"
	progressFilename = "progress.json"
)

// Collector implements ingest.Store with one file per concern under dir.
type Collector struct {
	sessions *SessionStore
	events   *EventLog
	progress *ProgressStore
}

// NewCollector creates a file-backed collector store rooted at dir.
// retention bounds the event log.
func NewCollector(dir string, retention int) *Collector {
	return &Collector{
		sessions: NewSessionStore(filepath.Join(dir, sessionsFilename)),
		events:   NewEventLog(filepath.Join(dir, eventsFilename)).WithMaxEvents(retention),
		progress: NewProgressStore(filepath.Join(dir, progressFilename)),
	}
}

func (c *Collector) SaveSession(ctx context.Context, d session.Data) error {
	return c.sessions.Save(ctx, d)
}

func (c *Collector) GetSession(ctx context.Context, id string) (session.Data, error) {
	return c.sessions.Get(ctx, id)
}

func (c *Collector) ListSessions(ctx context.Context) ([]session.Data, error) {
	return c.sessions.List(ctx)
}

func (c *Collector) AppendEvents(_ context.Context, batch []events.Event) error {
	return c.events.Append(batch)
}

func (c *Collector) ListEvents(_ context.Context, q ingest.EventQuery) ([]events.Event, error) {
	return c.events.List(q)
}

func (c *Collector) GetProgress(ctx context.Context, key ingest.ProgressKey) (ingest.ProgressRecord, error) {
	return c.progress.Get(ctx, key)
}

func (c *Collector) UpdateProgress(ctx context.Context, userID string, u content.ProgressUpdate) (ingest.ProgressRecord, error) {
	return c.progress.Update(ctx, userID, u)
}

// Close is a no-op; files are not held open between calls.
func (c *Collector) Close() error { return nil }

var _ ingest.Store = (*Collector)(nil)
