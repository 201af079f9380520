package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/studytrack/internal/core/activity"
	"github.com/hay-kot/studytrack/internal/core/clock"
	"github.com/hay-kot/studytrack/internal/core/engagement"
	"github.com/hay-kot/studytrack/internal/core/storage"
)

var epoch = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// mockSyncer records delivered snapshots.
type mockSyncer struct {
	mu       sync.Mutex
	synced   []Data
	beacons  []Data
	failNext int
}

func (m *mockSyncer) SyncSession(_ context.Context, d Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return errors.New("collector unavailable")
	}
	m.synced = append(m.synced, d)
	return nil
}

func (m *mockSyncer) BeaconSession(d Data) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beacons = append(m.beacons, d)
}

func (m *mockSyncer) syncCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.synced)
}

type fixture struct {
	clock    *clock.Manual
	pulse    *clock.Pulse
	activity *activity.Tracker
	store    *storage.Memory
	syncer   *mockSyncer
	ids      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := clock.NewManual(epoch)
	p := clock.NewPulse()
	a := activity.New(activity.Options{Clock: c, Pulse: p})
	t.Cleanup(a.Destroy)
	return &fixture{clock: c, pulse: p, activity: a, store: storage.NewMemory(), syncer: &mockSyncer{}}
}

func (f *fixture) options() Options {
	router, _ := NewRouter(DefaultRoutes)
	return Options{
		Clock:    f.clock,
		Pulse:    f.pulse,
		Activity: f.activity,
		Storage:  f.store,
		Syncer:   f.syncer,
		Router:   router,
		Location: func() (string, string) { return "https://learn.example.com/questions/q-42", "Question 42" },
		NewID: func() string {
			f.ids++
			return fmt.Sprintf("session-%d", f.ids)
		},
		Go: func(fn func()) { fn() },
	}
}

func (f *fixture) tracker(t *testing.T, opts Options) *Tracker {
	t.Helper()
	tr, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Destroy(context.Background()) })
	return tr
}

func (f *fixture) step(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += time.Second {
		f.pulse.Beat(f.clock.Advance(time.Second))
	}
}

func TestNew_RequiresActivityTracker(t *testing.T) {
	f := newFixture(t)
	opts := f.options()
	opts.Activity = nil

	_, err := New(context.Background(), opts)
	require.ErrorIs(t, err, engagement.ErrNoTracker)
}

func TestNew_RecordsInitialNavigationAndPersists(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(t, f.options())

	d := tr.Data()
	assert.Equal(t, "session-1", d.SessionID)
	assert.Nil(t, d.UserID)
	require.Len(t, d.NavigationPath, 1)
	assert.Equal(t, "Question 42", d.NavigationPath[0].PageTitle)
	assert.Equal(t, engagement.ContentQuestion, d.NavigationPath[0].ContentType)
	assert.Equal(t, "q-42", d.NavigationPath[0].ContentID)

	snap, err := LoadSnapshot(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, "session-1", snap.SessionID)
}

func TestNew_ForwardsOrphanExactlyOnce(t *testing.T) {
	f := newFixture(t)
	orphan := Data{SessionID: "old-session", StartTime: epoch.Add(-10 * time.Minute)}
	require.NoError(t, SaveSnapshot(context.Background(), f.store, orphan))

	tr := f.tracker(t, f.options())

	require.Equal(t, 1, f.syncer.syncCount())
	assert.Equal(t, "old-session", f.syncer.synced[0].SessionID)

	snap, err := LoadSnapshot(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, tr.ID(), snap.SessionID)

	// a second tracker over the new snapshot forwards the first session, not the orphan again
	second, err := New(context.Background(), f.options())
	require.NoError(t, err)
	t.Cleanup(func() { second.Destroy(context.Background()) })

	require.Equal(t, 2, f.syncer.syncCount())
	assert.Equal(t, "session-1", f.syncer.synced[1].SessionID)
}

func TestNew_DiscardsStaleOrphan(t *testing.T) {
	f := newFixture(t)
	orphan := Data{SessionID: "old-session", StartTime: epoch.Add(-2 * time.Hour)}
	require.NoError(t, SaveSnapshot(context.Background(), f.store, orphan))

	tr := f.tracker(t, f.options())

	assert.Equal(t, 0, f.syncer.syncCount())
	snap, err := LoadSnapshot(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, tr.ID(), snap.SessionID)
}

func TestTracker_PeriodicSync(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(t, f.options())

	f.step(29 * time.Second)
	assert.Equal(t, 0, f.syncer.syncCount())

	f.step(time.Second)
	require.Equal(t, 1, f.syncer.syncCount())
	assert.True(t, tr.IsSynced())

	// nothing changed: no sync on the next interval
	f.step(30 * time.Second)
	assert.Equal(t, 1, f.syncer.syncCount())

	tr.TrackContentInteraction(ContentInteraction{ContentType: engagement.ContentMedia, ContentID: "v1", Action: "play"})
	assert.False(t, tr.IsSynced())
	f.step(30 * time.Second)
	assert.Equal(t, 2, f.syncer.syncCount())
}

func TestTracker_SyncFailureRetriesNextInterval(t *testing.T) {
	f := newFixture(t)
	f.syncer.failNext = 1
	tr := f.tracker(t, f.options())

	f.step(30 * time.Second)
	assert.Equal(t, 0, f.syncer.syncCount())
	assert.False(t, tr.IsSynced())

	f.step(30 * time.Second)
	assert.Equal(t, 1, f.syncer.syncCount())
	assert.True(t, tr.IsSynced())
}

func TestTracker_DataDuringSyncStaysUnsynced(t *testing.T) {
	f := newFixture(t)
	var pending []func()
	opts := f.options()
	opts.Go = func(fn func()) { pending = append(pending, fn) }
	tr := f.tracker(t, opts)

	f.step(30 * time.Second)
	require.Len(t, pending, 1)

	tr.TrackContentInteraction(ContentInteraction{ContentType: engagement.ContentQuestion, ContentID: "q1", Action: "answer_change"})
	pending[0]()

	assert.Equal(t, 1, f.syncer.syncCount())
	assert.False(t, tr.IsSynced())
}

func TestTracker_EntriesAreCapped(t *testing.T) {
	f := newFixture(t)
	opts := f.options()
	opts.MaxEntries = 5
	tr := f.tracker(t, opts)

	for i := 0; i < 8; i++ {
		tr.TrackContentInteraction(ContentInteraction{ContentID: fmt.Sprintf("c%d", i), Action: "view_start"})
		tr.TrackNavigation(fmt.Sprintf("/reading/r%d", i), "Reading", "", "")
	}

	d := tr.Data()
	require.Len(t, d.ContentInteractions, 5)
	assert.Equal(t, "c3", d.ContentInteractions[0].ContentID)
	require.Len(t, d.NavigationPath, 5)
	assert.Equal(t, "/reading/r7", d.NavigationPath[4].URL)
	assert.Equal(t, engagement.ContentReading, d.NavigationPath[4].ContentType)
	assert.Equal(t, "r7", d.NavigationPath[4].ContentID)
}

func TestTracker_SetUserIDPersists(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(t, f.options())

	tr.SetUserID("user-7")
	assert.Equal(t, "user-7", tr.UserID())

	snap, err := LoadSnapshot(context.Background(), f.store)
	require.NoError(t, err)
	require.NotNil(t, snap.UserID)
	assert.Equal(t, "user-7", *snap.UserID)
}

func TestTracker_PageHideAndVisibility(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(t, f.options())

	require.NoError(t, ClearSnapshot(context.Background(), f.store))
	tr.HandleVisibilityChange(false)
	_, err := LoadSnapshot(context.Background(), f.store)
	require.NoError(t, err)

	tr.HandleVisibilityChange(true)
	assert.Equal(t, 1, f.syncer.syncCount())

	// debounced: a second sync within 5s is skipped even with new data
	tr.TrackContentInteraction(ContentInteraction{ContentID: "x", Action: "flip"})
	f.clock.Advance(2 * time.Second)
	tr.HandleVisibilityChange(true)
	assert.Equal(t, 1, f.syncer.syncCount())

	f.clock.Advance(3 * time.Second)
	tr.HandleVisibilityChange(true)
	assert.Equal(t, 2, f.syncer.syncCount())

	tr.HandlePageHide()
	require.Len(t, f.syncer.beacons, 1)
	assert.Equal(t, tr.ID(), f.syncer.beacons[0].SessionID)
}

func TestTracker_Reset(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(t, f.options())
	tr.SetUserID("user-1")
	tr.TrackContentInteraction(ContentInteraction{ContentID: "x", Action: "play"})
	f.step(10 * time.Second)

	tr.Reset(context.Background())

	d := tr.Data()
	assert.Equal(t, "session-2", d.SessionID)
	assert.Empty(t, d.NavigationPath)
	assert.Empty(t, d.ContentInteractions)
	assert.Equal(t, "user-1", tr.UserID())
	assert.Zero(t, d.Duration)

	_, err := LoadSnapshot(context.Background(), f.store)
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestTracker_DurationsAndDestroy(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(t, f.options())

	f.step(20 * time.Second)
	assert.Equal(t, 20*time.Second, tr.SessionDuration())
	assert.Equal(t, 20*time.Second, tr.ActiveDuration())

	tr.Destroy(context.Background())
	tr.Destroy(context.Background())
	assert.Equal(t, 1, f.syncer.syncCount())

	final := f.syncer.synced[0]
	require.NotNil(t, final.EndTime)
	assert.Equal(t, epoch.Add(20*time.Second), *final.EndTime)
	assert.InDelta(t, 20.0, final.Duration, 0.001)

	// frozen after destroy
	f.step(10 * time.Second)
	assert.Equal(t, 20*time.Second, tr.SessionDuration())
	tr.TrackContentInteraction(ContentInteraction{ContentID: "late"})
	assert.Empty(t, tr.Data().ContentInteractions)
}

func TestTracker_DestroyClearsDeliveredSnapshot(t *testing.T) {
	f := newFixture(t)
	tr := f.tracker(t, f.options())
	f.step(5 * time.Second)

	tr.Destroy(context.Background())
	require.Equal(t, 1, f.syncer.syncCount())

	_, err := LoadSnapshot(context.Background(), f.store)
	require.ErrorIs(t, err, ErrNoSnapshot)

	// the next start has nothing to forward
	next := f.tracker(t, f.options())
	assert.Equal(t, 1, f.syncer.syncCount())
	assert.NotEqual(t, tr.ID(), next.ID())
}

func TestTracker_DestroyKeepsUndeliveredSnapshot(t *testing.T) {
	f := newFixture(t)
	f.syncer.failNext = 1
	tr := f.tracker(t, f.options())

	tr.Destroy(context.Background())
	assert.Equal(t, 0, f.syncer.syncCount())

	snap, err := LoadSnapshot(context.Background(), f.store)
	require.NoError(t, err)
	assert.Equal(t, tr.ID(), snap.SessionID)
	require.NotNil(t, snap.EndTime)
}

func TestRouter(t *testing.T) {
	router, err := NewRouter(DefaultRoutes)
	require.NoError(t, err)

	tests := []struct {
		url    string
		wantCT engagement.ContentType
		wantID string
	}{
		{url: "https://x.test/questions/abc?tab=1", wantCT: engagement.ContentQuestion, wantID: "abc"},
		{url: "/quiz/unit-1/part-2/questions/q9", wantCT: engagement.ContentQuestion, wantID: "q9"},
		{url: "/decks/d1/cards/c7/", wantCT: engagement.ContentFlashcard, wantID: "c7"},
		{url: "/shorts/s1", wantCT: engagement.ContentMedia, wantID: "s1"},
		{url: "/dashboard", wantCT: "", wantID: ""},
		{url: "", wantCT: "", wantID: ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			ct, id := router.Classify(tt.url)
			assert.Equal(t, tt.wantCT, ct)
			assert.Equal(t, tt.wantID, id)
		})
	}

	_, err = NewRouter([]Route{{Pattern: "/a/[", ContentType: engagement.ContentMedia}})
	require.Error(t, err)
	_, err = NewRouter([]Route{{Pattern: "/a/*", ContentType: "podcast"}})
	require.Error(t, err)
}
