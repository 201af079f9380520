package activity

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/studytrack/internal/core/clock"
)

const (
	// DefaultIdleThreshold is how long without activity before the user is idle.
	DefaultIdleThreshold = 30 * time.Second
	// DefaultHistorySize is the capacity of the raw event log.
	DefaultHistorySize = 100

	// mouseMoveInterval and scrollInterval throttle high-frequency input.
	mouseMoveInterval = time.Second
	scrollInterval    = 500 * time.Millisecond
)

// State is a read-only snapshot of the tracker.
type State struct {
	IsActive         bool          `json:"isActive"`
	LastActivityTime time.Time     `json:"lastActivityTime"`
	IdleTime         time.Duration `json:"idleTime"`
	IsVisible        bool          `json:"isVisible"`
}

// Listener receives state snapshots.
type Listener func(State)

type listener struct {
	fn Listener
	// signal listeners fire on every activity/visibility change, not only on
	// active/idle transitions.
	signal bool
}

// Options configures a Tracker.
type Options struct {
	Clock         clock.Clock
	Pulse         *clock.Pulse
	IdleThreshold time.Duration
	HistorySize   int
	Logger        zerolog.Logger
}

// Tracker watches raw input and visibility and derives whether the user is
// currently active. One Tracker is shared by every engagement monitor in the
// process.
type Tracker struct {
	mu        sync.Mutex
	clock     clock.Clock
	log       zerolog.Logger
	threshold time.Duration

	isActive     bool
	isVisible    bool
	lastActivity time.Time

	history   *history
	listeners map[int]listener
	nextID    int

	lastMouseMove time.Time
	lastScroll    time.Time

	cancelPulse func()
	destroyed   bool
}

// New creates a Tracker that considers the user active and visible as of now.
// When opts.Pulse is set the tracker re-evaluates idleness on every beat.
func New(opts Options) *Tracker {
	c := clock.Or(opts.Clock)
	threshold := opts.IdleThreshold
	if threshold <= 0 {
		threshold = DefaultIdleThreshold
	}

	t := &Tracker{
		clock:        c,
		log:          opts.Logger,
		threshold:    threshold,
		isActive:     true,
		isVisible:    true,
		lastActivity: c.Now(),
		history:      newHistory(opts.HistorySize),
		listeners:    make(map[int]listener),
	}

	if opts.Pulse != nil {
		t.cancelPulse = opts.Pulse.Subscribe(t.Tick)
	}

	return t
}

// State returns the current snapshot.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot(t.clock.Now())
}

// Events returns the bounded event history, oldest first.
func (t *Tracker) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.all()
}

// RecentEvents returns up to n of the newest events, oldest first.
func (t *Tracker) RecentEvents(n int) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.recent(n)
}

// IdleThreshold returns the tracker's own inactivity window.
func (t *Tracker) IdleThreshold() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.threshold
}

// SetIdleThreshold changes the inactivity window and re-evaluates at once.
// Monitors apply their own thresholds, so this only affects State().IsActive.
func (t *Tracker) SetIdleThreshold(d time.Duration) {
	if d <= 0 {
		return
	}

	t.mu.Lock()
	t.threshold = d
	n := t.evaluate(t.clock.Now())
	t.mu.Unlock()

	t.dispatch(n)
}

// Record ingests a raw input event. Mouse movement is throttled to one per
// second and scrolling to two per second; throttled events are dropped.
func (t *Tracker) Record(typ EventType, metadata map[string]any) {
	if typ == EventVisibility {
		visible, _ := metadata["visible"].(bool)
		t.SetVisible(visible)
		return
	}

	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}

	now := t.clock.Now()
	if t.throttled(typ, now) {
		t.mu.Unlock()
		return
	}

	t.history.add(Event{Type: typ, Timestamp: now, Metadata: metadata})

	n := notification{}
	if typ.IsActivity() {
		t.lastActivity = now
		n.signal = true
		if !t.isActive && t.isVisible {
			t.isActive = true
			n.transition = true
		}
	}
	n.state = t.snapshot(now)
	t.mu.Unlock()

	t.dispatch(n)
}

// SetVisible records a visibility change. Losing visibility forces the user
// idle immediately; regaining it re-runs the idle check rather than assuming
// activity.
func (t *Tracker) SetVisible(visible bool) {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}

	now := t.clock.Now()
	t.history.add(Event{
		Type:      EventVisibility,
		Timestamp: now,
		Metadata:  map[string]any{"visible": visible},
	})

	wasVisible := t.isVisible
	t.isVisible = visible
	n := t.evaluate(now)
	n.signal = true
	if wasVisible != visible {
		n.transition = true
	}
	t.mu.Unlock()

	t.log.Debug().Bool("visible", visible).Bool("active", n.state.IsActive).Msg("visibility changed")
	t.dispatch(n)
}

// Tick runs the periodic idle check.
func (t *Tracker) Tick(now time.Time) {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	n := t.evaluate(now)
	t.mu.Unlock()

	t.dispatch(n)
}

// AddListener subscribes fn to active/idle and visibility transitions. fn is
// called immediately with the current state.
func (t *Tracker) AddListener(fn Listener) int {
	return t.addListener(fn, false)
}

// AddSignalListener subscribes fn to every recorded activity and visibility
// change in addition to transitions, so consumers can apply their own idle
// threshold against LastActivityTime. fn is called immediately.
func (t *Tracker) AddSignalListener(fn Listener) int {
	return t.addListener(fn, true)
}

func (t *Tracker) addListener(fn Listener, signal bool) int {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = listener{fn: fn, signal: signal}
	state := t.snapshot(t.clock.Now())
	t.mu.Unlock()

	fn(state)
	return id
}

// RemoveListener removes a listener. Unknown ids are ignored.
func (t *Tracker) RemoveListener(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.listeners, id)
}

// Reset clears the event history and marks the user active as of now.
func (t *Tracker) Reset() {
	t.mu.Lock()
	now := t.clock.Now()
	t.history.clear()
	t.lastActivity = now
	t.lastMouseMove = time.Time{}
	t.lastScroll = time.Time{}

	n := notification{signal: true}
	if t.isActive != t.isVisible {
		t.isActive = t.isVisible
		n.transition = true
	}
	n.state = t.snapshot(now)
	t.mu.Unlock()

	t.dispatch(n)
}

// Destroy stops the periodic check and drops all listeners. Safe to call
// more than once.
func (t *Tracker) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelPulse != nil {
		t.cancelPulse()
		t.cancelPulse = nil
	}
	clear(t.listeners)
	t.destroyed = true
}

// notification describes what listeners should hear after a mutation.
type notification struct {
	state      State
	transition bool
	signal     bool
}

// evaluate recomputes isActive at now. Caller must hold the lock.
func (t *Tracker) evaluate(now time.Time) notification {
	active := t.isVisible && now.Sub(t.lastActivity) < t.threshold

	n := notification{}
	if active != t.isActive {
		t.isActive = active
		n.transition = true
	}
	n.state = t.snapshot(now)
	return n
}

// throttled reports whether a high-frequency event arrived too soon after
// the previous one. Caller must hold the lock.
func (t *Tracker) throttled(typ EventType, now time.Time) bool {
	switch typ {
	case EventMouseMove:
		if !t.lastMouseMove.IsZero() && now.Sub(t.lastMouseMove) < mouseMoveInterval {
			return true
		}
		t.lastMouseMove = now
	case EventScroll:
		if !t.lastScroll.IsZero() && now.Sub(t.lastScroll) < scrollInterval {
			return true
		}
		t.lastScroll = now
	}
	return false
}

// snapshot builds a State. Caller must hold the lock.
func (t *Tracker) snapshot(now time.Time) State {
	idle := now.Sub(t.lastActivity)
	if idle < 0 {
		idle = 0
	}
	return State{
		IsActive:         t.isActive,
		LastActivityTime: t.lastActivity,
		IdleTime:         idle,
		IsVisible:        t.isVisible,
	}
}

// dispatch delivers n to the relevant listeners outside the lock.
func (t *Tracker) dispatch(n notification) {
	if !n.transition && !n.signal {
		return
	}

	t.mu.Lock()
	fns := make([]Listener, 0, len(t.listeners))
	for _, id := range slices.Sorted(maps.Keys(t.listeners)) {
		l := t.listeners[id]
		if n.transition || l.signal {
			fns = append(fns, l.fn)
		}
	}
	t.mu.Unlock()

	if n.transition {
		t.log.Debug().Bool("active", n.state.IsActive).Bool("visible", n.state.IsVisible).Msg("activity transition")
	}

	for _, fn := range fns {
		fn(n.state)
	}
}
