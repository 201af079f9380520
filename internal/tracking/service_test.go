package tracking

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/studytrack/internal/collectd"
	"github.com/hay-kot/studytrack/internal/core/clock"
	"github.com/hay-kot/studytrack/internal/core/config"
	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/engagement"
	"github.com/hay-kot/studytrack/internal/core/ingest"
	"github.com/hay-kot/studytrack/internal/core/session"
	"github.com/hay-kot/studytrack/internal/core/storage"
	"github.com/hay-kot/studytrack/internal/store/jsonfile"
)

var epoch = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type harness struct {
	svc   *Service
	clock *clock.Manual
	store storage.Store
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("sess-%d", n)
	}
}

// newCollector starts a collector backed by a temp jsonfile store.
func newCollector(t *testing.T) (string, ingest.Store) {
	t.Helper()
	sink := jsonfile.NewCollector(t.TempDir(), 1000)
	srv := collectd.New(collectd.Options{Store: sink, Logger: zerolog.Nop()})
	hs := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		srv.Hub().Close()
		hs.Close()
	})
	return hs.URL, sink
}

func newHarness(t *testing.T, collectorURL string, store storage.Store, newID func() string) *harness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Collector.URL = collectorURL

	c := clock.NewManual(epoch)
	svc, err := New(context.Background(), Options{
		Config:   &cfg,
		Logger:   zerolog.Nop(),
		Clock:    c,
		Storage:  store,
		NewID:    newID,
		Go:       func(fn func()) { fn() },
		Location: func() (string, string) { return "/", "Home" },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	return &harness{svc: svc, clock: c, store: store}
}

func (h *harness) beat(d time.Duration) {
	h.svc.Pulse().Beat(h.clock.Advance(d))
}

func TestService_OfflineBuffersInteractions(t *testing.T) {
	h := newHarness(t, "", storage.NewMemory(), sequentialIDs())

	h.svc.TrackInteraction(session.ContentInteraction{
		ContentType: engagement.ContentQuestion,
		ContentID:   "q1",
		Action:      "submit",
		Metadata:    map[string]any{"score": 80.0},
	})

	data := h.svc.Session().Data()
	require.Len(t, data.ContentInteractions, 1)
	assert.Equal(t, epoch, data.ContentInteractions[0].Timestamp)

	pending := h.svc.Batcher().Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "question_submit", pending[0].EventType)
	assert.Equal(t, "sess-1", pending[0].SessionID)
	assert.Equal(t, "q1", pending[0].EventData["contentId"])

	require.NoError(t, h.svc.Flush(context.Background()))
	assert.Equal(t, 1, h.svc.Batcher().Len(), "offline flush keeps events")
}

func TestService_NavigateClassifiesRoutes(t *testing.T) {
	h := newHarness(t, "", storage.NewMemory(), sequentialIDs())

	h.svc.Navigate("/questions/q-42", "Quiz")

	nav := h.svc.Session().Data().NavigationPath
	require.Len(t, nav, 2)
	assert.Equal(t, "/", nav[0].URL)
	assert.Equal(t, engagement.ContentQuestion, nav[1].ContentType)
	assert.Equal(t, "q-42", nav[1].ContentID)
}

func TestService_QuestionFlowReachesCollector(t *testing.T) {
	url, sink := newCollector(t)
	h := newHarness(t, url, storage.NewMemory(), sequentialIDs())
	h.svc.SetUserID("learner-1")

	var done *content.QuestionMetrics
	q, err := h.svc.NewQuestion(content.QuestionOptions{
		QuestionID: "q1",
		OnComplete: func(m content.QuestionMetrics) { done = &m },
	})
	require.NoError(t, err)

	q.Mount()
	h.beat(3 * time.Second)
	q.AnswerChange("b")
	h.beat(2 * time.Second)
	q.Submit(true, 100)

	require.NotNil(t, done)
	assert.Equal(t, 1, done.AttemptNumber)

	require.NoError(t, h.svc.Flush(context.Background()))
	assert.Equal(t, 0, h.svc.Batcher().Len())

	ctx := context.Background()
	evs, err := sink.ListEvents(ctx, ingest.EventQuery{SessionID: "sess-1"})
	require.NoError(t, err)

	types := make([]string, 0, len(evs))
	for _, e := range evs {
		types = append(types, e.EventType)
		require.NotNil(t, e.UserID)
		assert.Equal(t, "learner-1", *e.UserID)
	}
	assert.Contains(t, types, "question_view_start")
	assert.Contains(t, types, "question_answer_change")
	assert.Contains(t, types, "question_submit")

	progress, err := sink.GetProgress(ctx, ingest.ProgressKey{UserID: "learner-1", ContentID: "q1", ContentType: engagement.ContentQuestion})
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Attempts)
	assert.True(t, progress.Completed)

	stored, err := sink.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, "learner-1", *stored.UserID)
}

func TestService_SecondMountSeesAttempts(t *testing.T) {
	url, _ := newCollector(t)
	h := newHarness(t, url, storage.NewMemory(), sequentialIDs())
	h.svc.SetUserID("learner-1")

	for i := 1; i <= 2; i++ {
		var got content.QuestionMetrics
		q, err := h.svc.NewQuestion(content.QuestionOptions{
			QuestionID: "q1",
			OnComplete: func(m content.QuestionMetrics) { got = m },
		})
		require.NoError(t, err)

		q.Mount()
		h.beat(time.Second)
		q.Submit(false, 0)
		assert.Equal(t, i, got.AttemptNumber)
	}
}

func TestService_PeriodicSync(t *testing.T) {
	url, sink := newCollector(t)
	h := newHarness(t, url, storage.NewMemory(), sequentialIDs())

	for range 29 {
		h.beat(time.Second)
	}
	_, err := sink.GetSession(context.Background(), "sess-1")
	require.ErrorIs(t, err, ingest.ErrNotFound)

	h.beat(time.Second)
	got, err := sink.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.InDelta(t, 30.0, got.Duration, 1e-9)
	assert.True(t, h.svc.Session().IsSynced())
}

func TestService_OrphanForwardedOnNextStart(t *testing.T) {
	store := storage.NewMemory()
	ids := sequentialIDs()

	// First process has no collector; its snapshot stays local.
	first := newHarness(t, "", store, ids)
	first.svc.Navigate("/reading/intro", "Intro")
	first.beat(10 * time.Second)
	require.NoError(t, first.svc.Shutdown(context.Background()))

	snap, err := session.LoadSnapshot(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", snap.SessionID)

	url, sink := newCollector(t)
	second := newHarness(t, url, store, ids)
	assert.Equal(t, "sess-2", second.svc.Session().ID())

	forwarded, err := sink.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Len(t, forwarded.NavigationPath, 2)

	// The snapshot now belongs to the running session.
	snap, err = session.LoadSnapshot(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, "sess-2", snap.SessionID)
}

func TestService_MediaUsesConfiguredThresholds(t *testing.T) {
	h := newHarness(t, "", storage.NewMemory(), sequentialIDs())
	h.svc.cfg.Media[content.MediaShort] = content.Thresholds{MinWatch: time.Second, Completion: 0.5}

	m, err := h.svc.NewMedia(content.MediaOptions{MediaID: "clip", Kind: content.MediaShort, Duration: 20})
	require.NoError(t, err)

	m.Mount()
	m.Play(0)
	for i := 1; i <= 6; i++ {
		h.beat(time.Second)
		m.TimeUpdate(float64(i))
	}

	// half of the clip is below the default 90% but meets the configured 50%
	metrics := m.Metrics()
	assert.True(t, metrics.Viewed)
	assert.True(t, metrics.Completed)
	assert.InDelta(t, 50.0, metrics.CompletionPercentage, 1e-9)
}

func TestService_ShutdownIsIdempotent(t *testing.T) {
	h := newHarness(t, "", storage.NewMemory(), sequentialIDs())

	require.NoError(t, h.svc.Shutdown(context.Background()))
	require.NoError(t, h.svc.Shutdown(context.Background()))

	data := h.svc.Session().Data()
	require.NotNil(t, data.EndTime)
}

func TestService_OfflineShutdownWithPendingEvents(t *testing.T) {
	h := newHarness(t, "", storage.NewMemory(), sequentialIDs())

	h.svc.TrackInteraction(session.ContentInteraction{
		ContentType: engagement.ContentMedia,
		ContentID:   "clip",
		Action:      "play",
	})
	require.Equal(t, 1, h.svc.Batcher().Len())

	assert.NotPanics(t, h.svc.Hide)
	require.NotPanics(t, func() {
		require.NoError(t, h.svc.Shutdown(context.Background()))
	})
	assert.Equal(t, 1, h.svc.Batcher().Len(), "nothing to send to, events stay pending")
}
