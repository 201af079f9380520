// Package ingest defines the collector-side persistence contract: received
// sessions, the event log and per-user progress.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/engagement"
	"github.com/hay-kot/studytrack/internal/core/events"
	"github.com/hay-kot/studytrack/internal/core/session"
)

// AnonymousUser owns progress posted without a user id.
const AnonymousUser = "anonymous"

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// ProgressKey identifies one user's progress on one content item.
type ProgressKey struct {
	UserID      string                 `json:"userId"`
	ContentID   string                 `json:"contentId"`
	ContentType engagement.ContentType `json:"contentType"`
}

// ProgressRecord is the stored progress for a ProgressKey. TimeSpent
// accumulates across attempts, in seconds.
type ProgressRecord struct {
	ProgressKey
	Attempts  int       `json:"attempts"`
	Completed bool      `json:"completed"`
	Score     *float64  `json:"score"`
	TimeSpent float64   `json:"timeSpent"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Progress returns the client-facing view of the record.
func (r ProgressRecord) Progress() content.Progress {
	return content.Progress{Attempts: r.Attempts, Completed: r.Completed, Score: r.Score}
}

// Apply folds an update into the record. Each update is one attempt;
// completion is sticky and the latest non-nil score wins.
func (r ProgressRecord) Apply(u content.ProgressUpdate, now time.Time) ProgressRecord {
	r.Attempts++
	r.Completed = r.Completed || u.Completed
	if u.Score != nil {
		s := *u.Score
		r.Score = &s
	}
	if u.TimeSpent > 0 {
		r.TimeSpent += u.TimeSpent
	}
	r.UpdatedAt = now
	return r
}

// EventQuery filters ListEvents. Zero values mean no filter.
type EventQuery struct {
	SessionID string
	EventType string
	Since     time.Time
	Limit     int
}

// Match reports whether e passes the filter, ignoring Limit.
func (q EventQuery) Match(e events.Event) bool {
	if q.SessionID != "" && e.SessionID != q.SessionID {
		return false
	}
	if q.EventType != "" && e.EventType != q.EventType {
		return false
	}
	if !q.Since.IsZero() && !e.Timestamp.After(q.Since) {
		return false
	}
	return true
}

// Store persists what the collector receives.
type Store interface {
	// SaveSession upserts a session by id. A later snapshot replaces an
	// earlier one.
	SaveSession(ctx context.Context, d session.Data) error
	GetSession(ctx context.Context, id string) (session.Data, error)
	// ListSessions returns sessions ordered by start time, newest first.
	ListSessions(ctx context.Context) ([]session.Data, error)

	// AppendEvents adds events to the log, trimming it to the retention limit.
	AppendEvents(ctx context.Context, batch []events.Event) error
	// ListEvents returns matching events, newest first.
	ListEvents(ctx context.Context, q EventQuery) ([]events.Event, error)

	GetProgress(ctx context.Context, key ProgressKey) (ProgressRecord, error)
	UpdateProgress(ctx context.Context, userID string, u content.ProgressUpdate) (ProgressRecord, error)

	Close() error
}
