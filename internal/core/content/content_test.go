package content

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/studytrack/internal/core/activity"
	"github.com/hay-kot/studytrack/internal/core/clock"
	"github.com/hay-kot/studytrack/internal/core/engagement"
	"github.com/hay-kot/studytrack/internal/core/session"
)

var epoch = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type mockRecorder struct {
	mu      sync.Mutex
	records []session.ContentInteraction
}

func (m *mockRecorder) TrackInteraction(ci session.ContentInteraction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, ci)
}

func (m *mockRecorder) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.records))
	for i, r := range m.records {
		out[i] = r.Action
	}
	return out
}

func (m *mockRecorder) last(action string) (session.ContentInteraction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].Action == action {
			return m.records[i], true
		}
	}
	return session.ContentInteraction{}, false
}

type mockProgress struct {
	mu       sync.Mutex
	attempts int
	getErr   error
	updates  []ProgressUpdate
}

func (m *mockProgress) GetProgress(_ context.Context, _ string, _ engagement.ContentType) (Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return Progress{}, m.getErr
	}
	return Progress{Attempts: m.attempts}, nil
}

func (m *mockProgress) UpdateProgress(_ context.Context, u ProgressUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, u)
	return nil
}

type env struct {
	clock    *clock.Manual
	pulse    *clock.Pulse
	activity *activity.Tracker
	recorder *mockRecorder
	progress *mockProgress
}

func newEnv(t *testing.T) *env {
	t.Helper()
	c := clock.NewManual(epoch)
	p := clock.NewPulse()
	a := activity.New(activity.Options{Clock: c, Pulse: p})
	t.Cleanup(a.Destroy)
	return &env{clock: c, pulse: p, activity: a, recorder: &mockRecorder{}, progress: &mockProgress{}}
}

func (e *env) deps() Deps {
	return Deps{
		Clock:    e.clock,
		Pulse:    e.pulse,
		Activity: e.activity,
		Recorder: e.recorder,
		Progress: e.progress,
		Go:       func(fn func()) { fn() },
	}
}

func (e *env) step(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += time.Second {
		e.pulse.Beat(e.clock.Advance(time.Second))
	}
}

func TestNewTrackers_RequireDeps(t *testing.T) {
	_, err := NewQuestion(Deps{}, QuestionOptions{QuestionID: "q"})
	require.ErrorIs(t, err, ErrMissingDeps)
	_, err = NewFlashcard(Deps{}, FlashcardOptions{DeckID: "d"})
	require.ErrorIs(t, err, ErrMissingDeps)
	_, err = NewMedia(Deps{}, MediaOptions{MediaID: "m"})
	require.ErrorIs(t, err, ErrMissingDeps)
}

func TestTimer_StartStopFreezes(t *testing.T) {
	e := newEnv(t)
	timer, err := NewTimer(e.deps(), engagement.ContentReading, false)
	require.NoError(t, err)

	assert.False(t, timer.Running())
	assert.Zero(t, timer.Metrics().TotalTime)

	require.NoError(t, timer.Start())
	require.NoError(t, timer.Start())
	e.step(10 * time.Second)

	stopped := timer.Stop()
	assert.InDelta(t, 10.0, stopped.TotalTime, 0.001)

	e.step(10 * time.Second)
	assert.InDelta(t, 10.0, timer.Metrics().TotalTime, 0.001)
	assert.Equal(t, stopped, timer.Stop())
}

// gatedProgress blocks GetProgress until release is closed.
type gatedProgress struct {
	mockProgress
	release chan struct{}
}

func (g *gatedProgress) GetProgress(ctx context.Context, id string, ct engagement.ContentType) (Progress, error) {
	<-g.release
	return g.mockProgress.GetProgress(ctx, id, ct)
}

func TestMount_ViewStartWaitsForAttemptLookup(t *testing.T) {
	e := newEnv(t)
	progress := &gatedProgress{mockProgress: mockProgress{attempts: 2}, release: make(chan struct{})}

	deps := e.deps()
	deps.Progress = progress
	deps.Go = nil

	q, err := NewQuestion(deps, QuestionOptions{QuestionID: "q1"})
	require.NoError(t, err)
	q.Mount()

	_, ok := e.recorder.last("view_start")
	assert.False(t, ok, "view_start waits for the lookup")

	e.clock.Advance(3 * time.Second)
	close(progress.release)

	require.Eventually(t, func() bool {
		_, ok := e.recorder.last("view_start")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	rec, _ := e.recorder.last("view_start")
	assert.Equal(t, 3, rec.Metadata["attemptNumber"])
	assert.Equal(t, epoch, rec.Timestamp, "stamped with the mount time")
}

func TestMount_ViewStartAfterFailedLookup(t *testing.T) {
	e := newEnv(t)
	e.progress.getErr = context.DeadlineExceeded

	q, err := NewQuestion(e.deps(), QuestionOptions{QuestionID: "q1"})
	require.NoError(t, err)
	q.Mount()

	rec, ok := e.recorder.last("view_start")
	require.True(t, ok)
	assert.Equal(t, 1, rec.Metadata["attemptNumber"])
}
