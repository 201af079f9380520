package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/studytrack/internal/collectd"
	"github.com/hay-kot/studytrack/internal/core/events"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func eventsFrame(evs ...events.Event) frameMsg {
	return frameMsg{frame: collectd.StreamMessage{Type: collectd.MessageEvents, Events: evs}}
}

func newModel(t *testing.T) Model {
	t.Helper()
	m, _ := update(t, New(Options{URL: "ws://example.invalid/stream"}), tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

func TestModel_FramesFillViews(t *testing.T) {
	m := newModel(t)

	m, _ = update(t, m, eventsFrame(
		event("s1", "question_view_start", "q1", 0),
		event("s1", "question_submit", "q1", 1),
	))
	assert.Equal(t, 2, m.Received())
	assert.Equal(t, 2, m.eventsView.Len())

	m, _ = update(t, m, frameMsg{frame: collectd.StreamMessage{
		Type:    collectd.MessageSession,
		Session: &collectd.SessionDigest{SessionID: "s1", PageViews: 2},
	}})
	m, _ = update(t, m, frameMsg{frame: collectd.StreamMessage{
		Type:    collectd.MessageSession,
		Session: &collectd.SessionDigest{SessionID: "s1", PageViews: 3},
	}})
	require.Equal(t, 1, m.sessions.Len())
	assert.Equal(t, 3, m.sessions.Selected().PageViews)

	view := m.View()
	assert.Contains(t, view, "Events (2)")
	assert.Contains(t, view, "Sessions (1)")
}

func TestModel_PauseKeepsCounting(t *testing.T) {
	m := newModel(t)

	m, _ = update(t, m, runes("p"))
	assert.True(t, m.paused)
	assert.Contains(t, m.View(), "(paused)")

	m, _ = update(t, m, eventsFrame(event("s1", "media_play", "clip", 0)))
	assert.Equal(t, 1, m.Received())
	assert.Equal(t, 0, m.eventsView.Len())

	m, _ = update(t, m, runes("p"))
	m, _ = update(t, m, eventsFrame(event("s1", "media_pause", "clip", 1)))
	assert.Equal(t, 1, m.eventsView.Len())
}

func TestModel_FilterMode(t *testing.T) {
	m := newModel(t)
	m, _ = update(t, m, eventsFrame(
		event("s1", "question_submit", "q1", 0),
		event("s1", "media_play", "clip", 1),
	))

	m, _ = update(t, m, runes("/"))
	require.Equal(t, stateFiltering, m.state)

	// q would quit in normal mode; here it is filter text
	m, cmd := update(t, m, runes("q"))
	assert.Nil(t, cmd)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, stateNormal, m.state)
	assert.Equal(t, 1, m.eventsView.Visible())

	m, _ = update(t, m, runes("/"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, 2, m.eventsView.Visible())
}

func TestModel_PreviewAndClose(t *testing.T) {
	m := newModel(t)
	m, _ = update(t, m, eventsFrame(event("s1", "question_submit", "q1", 0)))

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, statePreviewing, m.state)
	assert.Contains(t, m.preview.Markdown(), "**question_submit**")
	assert.Contains(t, m.preview.Markdown(), `"contentId": "q1"`)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, stateNormal, m.state)
}

func TestModel_SwitchAndClear(t *testing.T) {
	m := newModel(t)
	m, _ = update(t, m, eventsFrame(event("s1", "a", "c1", 0)))

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, ViewSessions, m.activeView)

	// preview only applies to events
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, stateNormal, m.state)

	m, _ = update(t, m, runes("c"))
	assert.Equal(t, 0, m.eventsView.Len())
	assert.Equal(t, 1, m.Received(), "clearing keeps the running total")
}

func TestModel_ConnectionLifecycle(t *testing.T) {
	m := newModel(t)
	assert.Contains(t, m.View(), "connecting")

	m, cmd := update(t, m, streamFailedMsg{err: errors.New("connection refused")})
	assert.NotNil(t, cmd, "a failed dial schedules a reconnect")
	assert.Contains(t, m.View(), "disconnected")
	assert.Contains(t, m.View(), "connection refused")

	m, cmd = update(t, m, reconnectMsg{})
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "connecting")

	m, cmd = update(t, m, streamClosedMsg{})
	assert.NotNil(t, cmd)
	assert.Nil(t, m.stream)
}

func TestModel_Quit(t *testing.T) {
	m := newModel(t)
	m, cmd := update(t, m, runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, m.View())
}
