package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/studytrack/internal/core/clock"
)

var epoch = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestTracker(t *testing.T, threshold time.Duration) (*Tracker, *clock.Manual, *clock.Pulse) {
	t.Helper()
	c := clock.NewManual(epoch)
	p := clock.NewPulse()
	tr := New(Options{Clock: c, Pulse: p, IdleThreshold: threshold})
	t.Cleanup(tr.Destroy)
	return tr, c, p
}

func TestTracker_StartsActiveAndVisible(t *testing.T) {
	tr, _, _ := newTestTracker(t, 0)

	st := tr.State()
	assert.True(t, st.IsActive)
	assert.True(t, st.IsVisible)
	assert.Equal(t, epoch, st.LastActivityTime)
	assert.Equal(t, DefaultIdleThreshold, tr.IdleThreshold())
}

func TestTracker_GoesIdleOnTick(t *testing.T) {
	tr, c, p := newTestTracker(t, 5*time.Second)

	var transitions []bool
	tr.AddListener(func(s State) { transitions = append(transitions, s.IsActive) })

	for i := 0; i < 4; i++ {
		p.Beat(c.Advance(time.Second))
	}
	assert.True(t, tr.State().IsActive)

	p.Beat(c.Advance(time.Second)) // 5s since last activity
	st := tr.State()
	assert.False(t, st.IsActive)
	assert.Equal(t, 5*time.Second, st.IdleTime)

	// replay-on-subscribe + one transition
	assert.Equal(t, []bool{true, false}, transitions)
}

func TestTracker_ActivityFlipsBackToActive(t *testing.T) {
	tr, c, p := newTestTracker(t, 2*time.Second)

	p.Beat(c.Advance(3 * time.Second))
	require.False(t, tr.State().IsActive)

	var got []State
	tr.AddListener(func(s State) { got = append(got, s) })

	c.Advance(time.Second)
	tr.Record(EventClick, nil)

	require.Len(t, got, 2)
	assert.True(t, got[1].IsActive)
	assert.Equal(t, c.Now(), got[1].LastActivityTime)
}

func TestTracker_VisibilityLossForcesIdle(t *testing.T) {
	tr, c, _ := newTestTracker(t, time.Minute)

	c.Advance(time.Second)
	tr.SetVisible(false)

	st := tr.State()
	assert.False(t, st.IsActive)
	assert.False(t, st.IsVisible)

	// activity while hidden does not make the user active
	tr.Record(EventKeypress, nil)
	assert.False(t, tr.State().IsActive)

	// regaining visibility re-runs the idle check
	c.Advance(10 * time.Second)
	tr.SetVisible(true)
	assert.True(t, tr.State().IsActive)
}

func TestTracker_VisibilityRegainAfterThresholdStaysIdle(t *testing.T) {
	tr, c, _ := newTestTracker(t, 5*time.Second)

	tr.SetVisible(false)
	c.Advance(10 * time.Second)
	tr.SetVisible(true)

	st := tr.State()
	assert.True(t, st.IsVisible)
	assert.False(t, st.IsActive)
}

func TestTracker_Throttling(t *testing.T) {
	tr, c, _ := newTestTracker(t, 0)

	tr.Record(EventMouseMove, nil)
	c.Advance(500 * time.Millisecond)
	tr.Record(EventMouseMove, nil) // dropped
	c.Advance(500 * time.Millisecond)
	tr.Record(EventMouseMove, nil)

	tr.Record(EventScroll, nil)
	c.Advance(200 * time.Millisecond)
	tr.Record(EventScroll, nil) // dropped
	c.Advance(300 * time.Millisecond)
	tr.Record(EventScroll, nil)

	counts := map[EventType]int{}
	for _, e := range tr.Events() {
		counts[e.Type]++
	}
	assert.Equal(t, 2, counts[EventMouseMove])
	assert.Equal(t, 2, counts[EventScroll])
}

func TestTracker_BlurIsNotActivity(t *testing.T) {
	tr, c, _ := newTestTracker(t, 0)

	c.Advance(3 * time.Second)
	tr.Record(EventBlur, nil)

	assert.Equal(t, epoch, tr.State().LastActivityTime)
	assert.Len(t, tr.Events(), 1)
}

func TestTracker_HistoryIsBounded(t *testing.T) {
	c := clock.NewManual(epoch)
	tr := New(Options{Clock: c, HistorySize: 10})

	for i := 0; i < 25; i++ {
		c.Advance(time.Second)
		tr.Record(EventClick, map[string]any{"n": i})
	}

	events := tr.Events()
	require.Len(t, events, 10)
	assert.Equal(t, 15, events[0].Metadata["n"])
	assert.Equal(t, 24, events[9].Metadata["n"])

	recent := tr.RecentEvents(3)
	require.Len(t, recent, 3)
	assert.Equal(t, 22, recent[0].Metadata["n"])
	assert.Len(t, tr.RecentEvents(50), 10)
	assert.Empty(t, tr.RecentEvents(0))
}

func TestTracker_SetIdleThresholdReevaluates(t *testing.T) {
	tr, c, _ := newTestTracker(t, time.Minute)

	c.Advance(10 * time.Second)
	require.True(t, tr.State().IsActive)

	tr.SetIdleThreshold(5 * time.Second)
	assert.False(t, tr.State().IsActive)
}

func TestTracker_SignalListenerSeesEveryActivity(t *testing.T) {
	tr, c, _ := newTestTracker(t, 0)

	transitions, signals := 0, 0
	tr.AddListener(func(State) { transitions++ })
	tr.AddSignalListener(func(State) { signals++ })

	for i := 0; i < 3; i++ {
		c.Advance(time.Second)
		tr.Record(EventClick, nil)
	}

	assert.Equal(t, 1, transitions) // replay only
	assert.Equal(t, 4, signals)     // replay + 3 clicks
}

func TestTracker_ResetAndDestroy(t *testing.T) {
	tr, c, p := newTestTracker(t, 5*time.Second)

	tr.Record(EventClick, nil)
	p.Beat(c.Advance(10 * time.Second))
	require.False(t, tr.State().IsActive)

	tr.Reset()
	assert.True(t, tr.State().IsActive)
	assert.Empty(t, tr.Events())

	calls := 0
	id := tr.AddListener(func(State) { calls++ })
	tr.RemoveListener(id)
	tr.RemoveListener(id)
	tr.RemoveListener(999)

	tr.Destroy()
	tr.Destroy()
	assert.Equal(t, 0, p.Len())

	tr.Record(EventClick, nil)
	assert.Empty(t, tr.Events())
	assert.Equal(t, 1, calls)
}
