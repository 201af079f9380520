package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/studytrack/internal/collectd"
	"github.com/hay-kot/studytrack/internal/styles"
)

// UIState represents the current state of the TUI.
type UIState int

const (
	stateNormal UIState = iota
	stateFiltering
	statePreviewing
)

type connState int

const (
	connConnecting connState = iota
	connConnected
	connDown
)

// Options configures the dashboard.
type Options struct {
	// URL is the websocket stream URL (see StreamURL).
	URL string
	// MaxEvents bounds the events kept in memory.
	MaxEvents int
}

// Model is the Bubble Tea model for the watch dashboard.
type Model struct {
	url    string
	stream *Stream
	conn   connState
	err    error

	keys KeyMap
	help help.Model

	state      UIState
	activeView ViewType
	eventsView *EventsView
	sessions   *SessionsView
	preview    PreviewModal

	paused   bool
	received int
	width    int
	height   int
	quitting bool
}

// New creates the dashboard model.
func New(opts Options) Model {
	return Model{
		url:        opts.URL,
		keys:       DefaultKeyMap(),
		help:       help.New(),
		eventsView: NewEventsView(opts.MaxEvents),
		sessions:   NewSessionsView(),
	}
}

// Received returns how many events arrived while the dashboard ran.
func (m Model) Received() int {
	return m.received
}

// Close releases the stream connection.
func (m Model) Close() {
	if m.stream != nil {
		_ = m.stream.Close()
	}
}

// Init dials the stream.
func (m Model) Init() tea.Cmd {
	return connect(m.url)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

		contentHeight := m.contentHeight()
		m.eventsView.SetSize(msg.Width, contentHeight)
		m.sessions.SetSize(msg.Width, contentHeight)
		return m, nil

	case streamConnectedMsg:
		m.stream = msg.stream
		m.conn = connConnected
		m.err = nil
		return m, waitForFrame(m.stream)

	case streamFailedMsg:
		m.conn = connDown
		m.err = msg.err
		return m, scheduleReconnect()

	case streamClosedMsg:
		m.stream = nil
		m.conn = connDown
		m.err = msg.err
		return m, scheduleReconnect()

	case reconnectMsg:
		m.conn = connConnecting
		return m, connect(m.url)

	case frameMsg:
		m.applyFrame(msg.frame)
		if m.stream == nil {
			return m, nil
		}
		return m, waitForFrame(m.stream)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.state == statePreviewing {
		m.preview.UpdateViewport(msg)
	}
	return m, nil
}

// applyFrame folds one stream frame into the views. Paused dashboards keep
// counting but do not change what is shown.
func (m *Model) applyFrame(f collectd.StreamMessage) {
	switch f.Type {
	case collectd.MessageEvents:
		m.received += len(f.Events)
		if !m.paused {
			m.eventsView.Prepend(f.Events)
		}
	case collectd.MessageSession:
		if f.Session != nil && !m.paused {
			m.sessions.Upsert(*f.Session)
		}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	switch m.state {
	case statePreviewing:
		return m.handlePreviewKey(msg)
	case stateFiltering:
		return m.handleFilteringKey(msg)
	default:
		return m.handleNormalKey(msg)
	}
}

func (m Model) handlePreviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Close):
		m.state = stateNormal
	case key.Matches(msg, m.keys.Up):
		m.preview.ScrollUp()
	case key.Matches(msg, m.keys.Down):
		m.preview.ScrollDown()
	default:
		m.preview.UpdateViewport(msg)
	}
	return m, nil
}

func (m Model) handleFilteringKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.eventsView.CancelFilter()
		m.state = stateNormal
	case tea.KeyEnter:
		m.eventsView.ConfirmFilter()
		m.state = stateNormal
	case tea.KeyBackspace:
		m.eventsView.DeleteFilterRune()
	case tea.KeyRunes, tea.KeySpace:
		m.eventsView.AddFilterRunes(msg.Runes)
	}
	return m, nil
}

func (m Model) handleNormalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Switch):
		m.activeView = m.activeView.next()
	case key.Matches(msg, m.keys.Pause):
		m.paused = !m.paused
	case key.Matches(msg, m.keys.Clear):
		m.eventsView.Clear()
		m.sessions.Clear()
	case key.Matches(msg, m.keys.Up):
		if m.activeView == ViewEvents {
			m.eventsView.MoveUp()
		} else {
			m.sessions.MoveUp()
		}
	case key.Matches(msg, m.keys.Down):
		if m.activeView == ViewEvents {
			m.eventsView.MoveDown()
		} else {
			m.sessions.MoveDown()
		}
	case key.Matches(msg, m.keys.Filter):
		if m.activeView == ViewEvents {
			m.eventsView.StartFilter()
			m.state = stateFiltering
		}
	case key.Matches(msg, m.keys.Preview):
		if m.activeView != ViewEvents {
			break
		}
		if e := m.eventsView.Selected(); e != nil {
			w, h := m.dims()
			m.preview = NewPreviewModal(*e, w, h)
			m.state = statePreviewing
		}
	}
	return m, nil
}

func (m Model) dims() (int, int) {
	w, h := m.width, m.height
	if w == 0 {
		w = 80
	}
	if h == 0 {
		h = 24
	}
	return w, h
}

// contentHeight is the screen minus banner (5), tab bar (1) and help (1).
func (m Model) contentHeight() int {
	return max(m.height-7, 1)
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	w, h := m.dims()
	if m.state == statePreviewing {
		return m.preview.Overlay(w, h)
	}

	var content string
	if m.activeView == ViewEvents {
		content = m.eventsView.View()
	} else {
		content = m.sessions.View()
	}
	content = lipgloss.NewStyle().Height(m.contentHeight()).Render(content)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		bannerStyle.Render(styles.Banner),
		m.renderTabBar(),
		content,
		lipgloss.NewStyle().PaddingLeft(1).Render(m.help.View(m.keys)),
	)
}

// renderTabBar renders the view tabs and the connection status.
func (m Model) renderTabBar() string {
	eventsLabel := fmt.Sprintf("Events (%d)", m.eventsView.Len())
	sessionsLabel := fmt.Sprintf("Sessions (%d)", m.sessions.Len())

	var eventsTab, sessionsTab string
	if m.activeView == ViewEvents {
		eventsTab = viewSelectedStyle.Render(eventsLabel)
		sessionsTab = viewNormalStyle.Render(sessionsLabel)
	} else {
		eventsTab = viewNormalStyle.Render(eventsLabel)
		sessionsTab = viewSelectedStyle.Render(sessionsLabel)
	}

	bar := lipgloss.JoinHorizontal(lipgloss.Left,
		eventsTab, " | ", sessionsTab, "   ", m.renderStatus())
	return lipgloss.NewStyle().PaddingLeft(1).Render(bar)
}

func (m Model) renderStatus() string {
	var status string
	switch m.conn {
	case connConnected:
		status = statusConnectedStyle.Render("● connected")
	case connConnecting:
		status = statusConnectingStyle.Render("● connecting")
	default:
		status = statusDownStyle.Render("● disconnected")
		if m.err != nil {
			status += " " + mutedStyle.Render(truncate(m.err.Error(), 60))
		}
	}
	if m.paused {
		status += " " + statusConnectingStyle.Render("(paused)")
	}
	return status
}
