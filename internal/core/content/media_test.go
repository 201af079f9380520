package content

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedia_CompletionCountsUniqueChunks(t *testing.T) {
	e := newEnv(t)
	m, err := NewMedia(e.deps(), MediaOptions{MediaID: "v-1", Kind: MediaVideo, Duration: 100})
	require.NoError(t, err)
	m.Mount()

	m.Play(0)
	m.TimeUpdate(5)
	m.TimeUpdate(10)
	m.Seek(90)
	m.TimeUpdate(95)
	m.TimeUpdate(100)

	assert.InDelta(t, 0.2, m.Completion(), 0.0001)

	got := m.Metrics()
	assert.InDelta(t, 20.0, got.CompletionPercentage, 0.0001)
	assert.Equal(t, map[int]int{0: 1, 1: 1, 18: 1, 19: 1}, got.WatchedChunks)
	assert.InDelta(t, 20.0, got.WatchTime, 0.0001)
	assert.True(t, got.Viewed)
	assert.False(t, got.Completed)

	require.Len(t, got.SeekEvents, 1)
	assert.Equal(t, "forward", got.SeekEvents[0].Direction)
	assert.InDelta(t, 80.0, got.SeekEvents[0].Magnitude, 0.0001)
}

func TestMedia_RewatchIncrementsVisits(t *testing.T) {
	e := newEnv(t)
	m, err := NewMedia(e.deps(), MediaOptions{MediaID: "v-2", Duration: 20})
	require.NoError(t, err)
	m.Mount()

	m.Play(0)
	m.TimeUpdate(2)
	m.TimeUpdate(4)
	m.TimeUpdate(7)
	m.Seek(0)
	m.TimeUpdate(3)

	got := m.Metrics()
	assert.Equal(t, map[int]int{0: 2, 1: 1}, got.WatchedChunks)
	assert.InDelta(t, 0.5, m.Completion(), 0.0001)
	assert.Equal(t, "backward", got.SeekEvents[0].Direction)
}

func TestMedia_ReplayAndCounters(t *testing.T) {
	e := newEnv(t)
	m, err := NewMedia(e.deps(), MediaOptions{MediaID: "s-1", Kind: MediaShort, Duration: 10})
	require.NoError(t, err)
	h := m.Wrap(MediaHandlers{})
	h.OnPlay(0) // unmounted plays still count; the timer starts on play

	assert.True(t, m.timer.Running())

	h.OnTimeUpdate(10)
	h.OnEnded()
	h.OnPlay(0)
	h.OnPause(4)
	h.OnPlay(6)
	h.OnError(errors.New("decode failed"))

	got := m.Metrics()
	assert.Equal(t, 3, got.PlayCount)
	assert.Equal(t, 1, got.ReplayCount)
	assert.Equal(t, 1, got.PauseCount)
	assert.True(t, got.Completed)

	types := make([]PlaybackEventType, len(got.PlaybackEvents))
	for i, ev := range got.PlaybackEvents {
		types[i] = ev.Type
	}
	assert.Equal(t, []PlaybackEventType{PlaybackPlay, PlaybackEnded, PlaybackPlay, PlaybackPause, PlaybackPlay, PlaybackError}, types)
	assert.Equal(t, "decode failed", got.PlaybackEvents[5].Error)
}

func TestMedia_ThresholdsAndUnmount(t *testing.T) {
	e := newEnv(t)

	var final []MediaMetrics
	m, err := NewMedia(e.deps(), MediaOptions{
		MediaID:    "v-3",
		Kind:       MediaVideo,
		OnComplete: func(mm MediaMetrics) { final = append(final, mm) },
	})
	require.NoError(t, err)
	m.Mount()
	m.SetDuration(40)

	assert.False(t, m.timer.Running())

	m.Play(0)
	m.TimeUpdate(9)
	_, viewed := e.recorder.last("viewed")
	assert.False(t, viewed)

	m.TimeUpdate(12)
	_, viewed = e.recorder.last("viewed")
	assert.True(t, viewed)

	m.TimeUpdate(33)
	_, done := e.recorder.last("completed")
	assert.True(t, done)

	e.step(5 * time.Second)
	m.Unmount()
	m.Unmount()

	require.Len(t, final, 1)
	assert.True(t, final[0].Completed)
	assert.NotNil(t, final[0].EndTime)

	end, ok := e.recorder.last("view_end")
	require.True(t, ok)
	require.NotNil(t, end.ActiveTime)

	// events after unmount are ignored
	m.Play(0)
	assert.Equal(t, 1, m.Metrics().PlayCount)
}

func TestMedia_PlayheadClampedToDuration(t *testing.T) {
	e := newEnv(t)
	m, err := NewMedia(e.deps(), MediaOptions{MediaID: "v-over", Duration: 100})
	require.NoError(t, err)
	m.Mount()

	m.Play(0)
	m.TimeUpdate(5e7)

	got := m.Metrics()
	assert.Len(t, got.WatchedChunks, 20)
	for i := range got.WatchedChunks {
		assert.GreaterOrEqual(t, i, 0)
		assert.Less(t, i, 20)
	}
	assert.InDelta(t, 100.0, got.WatchTime, 0.0001)
	assert.InDelta(t, 1.0, m.Completion(), 0.0001)
}

func TestMedia_NegativePositionsIgnored(t *testing.T) {
	e := newEnv(t)
	m, err := NewMedia(e.deps(), MediaOptions{MediaID: "v-neg", Duration: 20})
	require.NoError(t, err)
	m.Mount()

	m.Play(-10)
	m.TimeUpdate(3)
	m.Seek(-5)
	m.TimeUpdate(-1)
	m.TimeUpdate(2)

	got := m.Metrics()
	assert.Equal(t, map[int]int{0: 2}, got.WatchedChunks)
	assert.InDelta(t, 5.0, got.WatchTime, 0.0001)
	assert.InDelta(t, 0.25, m.Completion(), 0.0001)
}
