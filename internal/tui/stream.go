package tui

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/hay-kot/studytrack/internal/collectd"
	"github.com/hay-kot/studytrack/internal/collector"
)

const (
	dialTimeout    = 5 * time.Second
	reconnectDelay = 2 * time.Second
	frameBuffer    = 64
)

// StreamURL turns a collector base URL into its websocket stream URL.
func StreamURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse collector url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported collector url scheme %q", u.Scheme)
	}

	u.Path += collector.PathStream
	return u.String(), nil
}

// Stream reads frames from a collector's live stream.
type Stream struct {
	conn   *websocket.Conn
	frames chan collectd.StreamMessage
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// Dial connects to the stream at url.
func Dial(ctx context.Context, url string) (*Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	s := &Stream{
		conn:   conn,
		frames: make(chan collectd.StreamMessage, frameBuffer),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Frames returns the channel of received frames. It is closed when the
// connection ends; Err then reports why.
func (s *Stream) Frames() <-chan collectd.StreamMessage {
	return s.frames
}

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) readLoop() {
	defer close(s.frames)

	for {
		var msg collectd.StreamMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			closed := false
			select {
			case <-s.done:
				closed = true
			default:
			}
			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
		select {
		case s.frames <- msg:
		case <-s.done:
			return
		}
	}
}

// streamConnectedMsg is sent when the stream is dialed.
type streamConnectedMsg struct {
	stream *Stream
}

// streamFailedMsg is sent when dialing fails.
type streamFailedMsg struct {
	err error
}

// frameMsg carries one stream frame.
type frameMsg struct {
	frame collectd.StreamMessage
}

// streamClosedMsg is sent when the stream ends.
type streamClosedMsg struct {
	err error
}

// reconnectMsg triggers another dial attempt.
type reconnectMsg struct{}

// connect returns a command that dials the stream.
func connect(url string) tea.Cmd {
	return func() tea.Msg {
		s, err := Dial(context.Background(), url)
		if err != nil {
			return streamFailedMsg{err: err}
		}
		return streamConnectedMsg{stream: s}
	}
}

// waitForFrame returns a command that blocks until the next frame.
func waitForFrame(s *Stream) tea.Cmd {
	return func() tea.Msg {
		frame, ok := <-s.Frames()
		if !ok {
			return streamClosedMsg{err: s.Err()}
		}
		return frameMsg{frame: frame}
	}
}

// scheduleReconnect returns a command that schedules the next dial.
func scheduleReconnect() tea.Cmd {
	return tea.Tick(reconnectDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}
