package content

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/studytrack/internal/core/engagement"
	"github.com/hay-kot/studytrack/internal/core/session"
)

// base holds the lifecycle shared by every content tracker.
type base struct {
	deps        Deps
	log         zerolog.Logger
	contentType engagement.ContentType
	contentID   string
	timer       *Timer
	autoStart   bool

	mu        sync.Mutex
	mounted   bool
	finalized bool
	attempt   int
	viewStart time.Time
	endTime   *time.Time
}

func newBase(deps Deps, ct engagement.ContentType, id string, autoStart bool) (*base, error) {
	if err := deps.prepare(); err != nil {
		return nil, err
	}
	timer, err := NewTimer(deps, ct, false)
	if err != nil {
		return nil, err
	}

	return &base{
		deps:        deps,
		log:         deps.Logger.With().Str("content_type", string(ct)).Str("content_id", id).Logger(),
		contentType: ct,
		contentID:   id,
		timer:       timer,
		autoStart:   autoStart,
		attempt:     1,
	}, nil
}

// mount starts tracking a view. Returns false if already mounted.
func (b *base) mount() bool {
	b.mu.Lock()
	if b.mounted {
		b.mu.Unlock()
		return false
	}
	b.mounted = true
	start := b.deps.Clock.Now()
	b.viewStart = start
	b.mu.Unlock()

	if b.autoStart {
		if err := b.timer.Start(); err != nil {
			b.log.Error().Err(err).Msg("failed to start timer")
		}
	}

	b.fetchAttempt(start)
	return true
}

// fetchAttempt seeds the attempt number from the collector and then records
// view_start, stamped with the mount time. Failure leaves the default of 1.
func (b *base) fetchAttempt(start time.Time) {
	client := b.deps.Progress
	if client == nil {
		b.recordViewStart(start)
		return
	}

	b.deps.Go(func() {
		defer b.recordViewStart(start)

		ctx, cancel := context.WithTimeout(context.Background(), b.deps.Timeout)
		defer cancel()

		p, err := client.GetProgress(ctx, b.contentID, b.contentType)
		if err != nil {
			b.log.Debug().Err(err).Msg("progress lookup failed, assuming first attempt")
			return
		}

		b.mu.Lock()
		b.attempt = p.Attempts + 1
		b.mu.Unlock()
	})
}

func (b *base) recordViewStart(start time.Time) {
	b.recordAt(start, "view_start", map[string]any{"attemptNumber": b.attemptNumber()}, nil)
}

func (b *base) attemptNumber() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}

// elapsed returns seconds since the view started.
func (b *base) elapsed(now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.viewStart.IsZero() {
		return 0
	}
	return now.Sub(b.viewStart).Seconds()
}

// finalize marks the tracker finalized and freezes its timer. Returns false
// if it was already finalized.
func (b *base) finalize() (engagement.Metrics, bool) {
	b.mu.Lock()
	if b.finalized {
		b.mu.Unlock()
		return engagement.Metrics{}, false
	}
	b.finalized = true
	now := b.deps.Clock.Now()
	b.endTime = &now
	b.mu.Unlock()

	return b.timer.Stop(), true
}

// unmount ends the view. Returns true when the caller must emit view_end
// because nothing finalized the tracker first.
func (b *base) unmount() (engagement.Metrics, bool) {
	b.mu.Lock()
	if !b.mounted {
		b.mu.Unlock()
		return engagement.Metrics{}, false
	}
	b.mounted = false
	b.mu.Unlock()

	return b.finalize()
}

func (b *base) isFinalized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalized
}

// record emits an interaction through the recorder.
func (b *base) record(action string, metadata map[string]any, m *engagement.Metrics) {
	b.recordAt(b.deps.Clock.Now(), action, metadata, m)
}

func (b *base) recordAt(at time.Time, action string, metadata map[string]any, m *engagement.Metrics) {
	if b.deps.Recorder == nil {
		return
	}

	ci := session.ContentInteraction{
		Timestamp:   at,
		ContentType: b.contentType,
		ContentID:   b.contentID,
		Action:      action,
		Metadata:    metadata,
	}
	if m != nil {
		total, active := m.TotalTime, m.ActiveTime
		ci.Duration = &total
		ci.ActiveTime = &active
	}
	b.deps.Recorder.TrackInteraction(ci)
}

// postProgress sends a progress update off the caller's goroutine. Failure
// is logged only.
func (b *base) postProgress(completed bool, score *float64, timeSpent float64) {
	client := b.deps.Progress
	if client == nil {
		return
	}

	u := ProgressUpdate{
		ContentID:   b.contentID,
		ContentType: b.contentType,
		Completed:   completed,
		Score:       score,
		TimeSpent:   timeSpent,
	}
	b.deps.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.deps.Timeout)
		defer cancel()
		if err := client.UpdateProgress(ctx, u); err != nil {
			b.log.Warn().Err(err).Msg("progress update failed")
		}
	})
}
