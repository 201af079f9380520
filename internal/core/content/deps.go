// Package content implements the per-content trackers (question, flashcard,
// media) that wrap a content item's handlers with tracking side effects.
package content

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/studytrack/internal/core/activity"
	"github.com/hay-kot/studytrack/internal/core/clock"
	"github.com/hay-kot/studytrack/internal/core/engagement"
	"github.com/hay-kot/studytrack/internal/core/session"
)

// DefaultTimeout bounds each progress call.
const DefaultTimeout = 10 * time.Second

var ErrMissingDeps = errors.New("content: activity tracker and pulse are required")

// Recorder receives interaction records from content trackers.
type Recorder interface {
	TrackInteraction(ci session.ContentInteraction)
}

// Progress is a user's progress on one content item.
type Progress struct {
	Attempts  int      `json:"attempts"`
	Completed bool     `json:"completed"`
	Score     *float64 `json:"score"`
}

// ProgressUpdate is posted when a content item is finalized. TimeSpent is in
// seconds.
type ProgressUpdate struct {
	ContentID   string                 `json:"contentId"`
	ContentType engagement.ContentType `json:"contentType"`
	Completed   bool                   `json:"completed"`
	Score       *float64               `json:"score"`
	TimeSpent   float64                `json:"timeSpent"`
}

// ProgressClient reads and updates per-user progress on the collector.
type ProgressClient interface {
	GetProgress(ctx context.Context, contentID string, contentType engagement.ContentType) (Progress, error)
	UpdateProgress(ctx context.Context, u ProgressUpdate) error
}

// Deps are the shared collaborators every content tracker needs.
type Deps struct {
	Clock    clock.Clock
	Pulse    *clock.Pulse
	Activity *activity.Tracker
	Recorder Recorder
	Progress ProgressClient
	Logger   zerolog.Logger
	// Go runs network work off the caller's goroutine. Defaults to `go fn()`.
	Go      func(fn func())
	Timeout time.Duration
}

func (d *Deps) prepare() error {
	if d.Activity == nil || d.Pulse == nil {
		return ErrMissingDeps
	}
	d.Clock = clock.Or(d.Clock)
	if d.Go == nil {
		d.Go = func(fn func()) { go fn() }
	}
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	return nil
}
