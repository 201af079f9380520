// Package engagement turns the shared activity signal into per-content
// active time, idle periods and an engagement score.
package engagement

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/studytrack/internal/core/activity"
	"github.com/hay-kot/studytrack/internal/core/clock"
)

// ContentType identifies the kind of content being tracked.
type ContentType string

const (
	ContentQuestion  ContentType = "question"
	ContentFlashcard ContentType = "flashcard"
	ContentMedia     ContentType = "media"
	ContentReading   ContentType = "reading"
	ContentGeneral   ContentType = "general"
)

// Valid reports whether c is a known content type.
func (c ContentType) Valid() bool {
	_, ok := defaultThresholds[c]
	return ok
}

// defaultThresholds is the natural "thinking time" per content type before
// the user is considered idle.
var defaultThresholds = map[ContentType]time.Duration{
	ContentQuestion:  60 * time.Second,
	ContentFlashcard: 30 * time.Second,
	ContentMedia:     5 * time.Second,
	ContentReading:   90 * time.Second,
	ContentGeneral:   30 * time.Second,
}

// ThresholdFor returns the default idle threshold for a content type.
// Unknown types fall back to the general threshold.
func ThresholdFor(c ContentType) time.Duration {
	if d, ok := defaultThresholds[c]; ok {
		return d
	}
	return defaultThresholds[ContentGeneral]
}

var (
	ErrNoTracker = errors.New("engagement: activity tracker is required")
	ErrNoPulse   = errors.New("engagement: pulse is required")
)

// Config configures a Monitor. When IdleThreshold is zero it is derived
// from ContentType.
type Config struct {
	IdleThreshold time.Duration
	ContentType   ContentType
	Logger        zerolog.Logger
}

// IdlePeriod is a closed (or provisional) stretch of inactivity.
type IdlePeriod struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration float64   `json:"duration"`
}

// Metrics is a point-in-time view of a monitor. Times are in seconds.
type Metrics struct {
	TotalTime           float64      `json:"totalTime"`
	ActiveTime          float64      `json:"activeTime"`
	IdleTime            float64      `json:"idleTime"`
	IdlePeriods         []IdlePeriod `json:"idlePeriods"`
	EngagementScore     int          `json:"engagementScore"`
	AverageIdleDuration float64      `json:"averageIdleDuration"`
	LongestIdlePeriod   float64      `json:"longestIdlePeriod"`
}

// Monitor accumulates active and total time for one tracked unit. It applies
// its own idle threshold to the shared tracker's last-activity timestamp, so
// monitors with different thresholds can run side by side.
type Monitor struct {
	mu          sync.Mutex
	tracker     *activity.Tracker
	clock       clock.Clock
	log         zerolog.Logger
	threshold   time.Duration
	contentType ContentType

	total       time.Duration
	active      time.Duration
	lastAccrual time.Time

	isActive  bool
	paused    bool
	idleStart time.Time
	periods   []IdlePeriod

	listeners map[int]func(bool)
	nextID    int

	trackerListener int
	cancelPulse     func()
	destroyed       bool
}

// New creates a monitor subscribed to tracker and pulse.
func New(tracker *activity.Tracker, pulse *clock.Pulse, c clock.Clock, cfg Config) (*Monitor, error) {
	if tracker == nil {
		return nil, ErrNoTracker
	}
	if pulse == nil {
		return nil, ErrNoPulse
	}
	if cfg.IdleThreshold < 0 {
		return nil, fmt.Errorf("engagement: idle threshold must not be negative, got %s", cfg.IdleThreshold)
	}

	contentType := cfg.ContentType
	if contentType == "" {
		contentType = ContentGeneral
	}
	threshold := cfg.IdleThreshold
	if threshold == 0 {
		threshold = ThresholdFor(contentType)
	}

	c = clock.Or(c)
	now := c.Now()

	m := &Monitor{
		tracker:     tracker,
		clock:       c,
		log:         cfg.Logger,
		threshold:   threshold,
		contentType: contentType,
		lastAccrual: now,
		isActive:    true,
		listeners:   make(map[int]func(bool)),
	}

	m.trackerListener = tracker.AddSignalListener(m.onSignal)
	m.cancelPulse = pulse.Subscribe(m.Tick)

	return m, nil
}

// ContentType returns the monitor's content type.
func (m *Monitor) ContentType() ContentType { return m.contentType }

// Threshold returns the idle threshold in effect for this monitor.
func (m *Monitor) Threshold() time.Duration { return m.threshold }

// Tick accrues time up to now and re-evaluates idleness.
func (m *Monitor) Tick(now time.Time) {
	st := m.tracker.State()

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	changed := m.evaluate(now, st)
	active := m.isActive
	m.mu.Unlock()

	if changed {
		m.dispatch(active)
	}
}

func (m *Monitor) onSignal(st activity.State) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	changed := m.evaluate(m.clock.Now(), st)
	active := m.isActive
	m.mu.Unlock()

	if changed {
		m.dispatch(active)
	}
}

// Metrics computes the current metrics. An open idle period is reported as
// ending now.
func (m *Monitor) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	total, active := m.total, m.active
	if d := now.Sub(m.lastAccrual); d > 0 && !m.destroyed {
		total += d
		if m.isActive {
			active += d
		}
	}

	periods := slices.Clone(m.periods)
	if !m.isActive && !m.idleStart.IsZero() {
		end := now
		if end.Before(m.idleStart) {
			end = m.idleStart
		}
		periods = append(periods, newPeriod(m.idleStart, end))
	}
	if periods == nil {
		periods = []IdlePeriod{}
	}

	totalSec := total.Seconds()
	activeSec := active.Seconds()

	out := Metrics{
		TotalTime:       totalSec,
		ActiveTime:      activeSec,
		IdleTime:        totalSec - activeSec,
		IdlePeriods:     periods,
		EngagementScore: Score(activeSec, totalSec, periods),
	}

	if len(periods) > 0 {
		sum := 0.0
		for _, p := range periods {
			sum += p.Duration
			if p.Duration > out.LongestIdlePeriod {
				out.LongestIdlePeriod = p.Duration
			}
		}
		out.AverageIdleDuration = sum / float64(len(periods))
	}

	return out
}

// IsUserActive reports whether the monitor currently considers the user active.
func (m *Monitor) IsUserActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isActive
}

// IdleTime returns how long the current idle period has lasted, or zero
// while active.
func (m *Monitor) IdleTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isActive || m.idleStart.IsZero() {
		return 0
	}
	d := m.clock.Now().Sub(m.idleStart)
	if d < 0 {
		return 0
	}
	return d
}

// AddListener subscribes fn to active/idle transitions. fn is called
// immediately with the current value.
func (m *Monitor) AddListener(fn func(active bool)) int {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	active := m.isActive
	m.mu.Unlock()

	fn(active)
	return id
}

// RemoveListener removes a listener. Unknown ids are ignored.
func (m *Monitor) RemoveListener(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

// Pause forces an idle period regardless of real activity, for content that
// is temporarily obscured. Total time keeps accruing as idle time.
func (m *Monitor) Pause() {
	m.mu.Lock()
	if m.paused || m.destroyed {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	m.advance(now)
	m.paused = true
	changed := m.setActive(false, now)
	m.mu.Unlock()

	if changed {
		m.dispatch(false)
	}
}

// Resume lifts a Pause. The forced idle period closes as soon as the user is
// active by the monitor's own threshold.
func (m *Monitor) Resume() {
	st := m.tracker.State()

	m.mu.Lock()
	if !m.paused || m.destroyed {
		m.mu.Unlock()
		return
	}
	m.paused = false
	changed := m.evaluate(m.clock.Now(), st)
	active := m.isActive
	m.mu.Unlock()

	if changed {
		m.dispatch(active)
	}
}

// IsPaused reports whether the monitor is paused.
func (m *Monitor) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Reset zeroes all accumulators, starts a fresh idle-period log and marks
// the user active (unless paused).
func (m *Monitor) Reset() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	m.total = 0
	m.active = 0
	m.lastAccrual = now
	m.periods = nil
	m.idleStart = time.Time{}

	was := m.isActive
	m.isActive = !m.paused
	if m.paused {
		m.idleStart = now
	}
	changed := was != m.isActive
	active := m.isActive
	m.mu.Unlock()

	if changed {
		m.dispatch(active)
	}
}

// Destroy unsubscribes from the tracker and pulse and drops listeners.
// Accumulated metrics remain readable. Safe to call more than once.
func (m *Monitor) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.advance(m.clock.Now())
	m.destroyed = true
	cancel := m.cancelPulse
	m.cancelPulse = nil
	clear(m.listeners)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.tracker.RemoveListener(m.trackerListener)
}

// evaluate accrues time to now and applies the monitor's own threshold to
// the tracker state. Caller must hold the lock.
func (m *Monitor) evaluate(now time.Time, st activity.State) bool {
	m.advance(now)
	active := !m.paused && st.IsVisible && now.Sub(st.LastActivityTime) < m.threshold
	return m.setActive(active, now)
}

// advance credits elapsed time since the last accrual. Caller must hold the lock.
func (m *Monitor) advance(now time.Time) {
	d := now.Sub(m.lastAccrual)
	if d <= 0 {
		return
	}
	m.total += d
	if m.isActive {
		m.active += d
	}
	m.lastAccrual = now
}

// setActive records a transition and its idle-period bookkeeping.
// Caller must hold the lock.
func (m *Monitor) setActive(active bool, now time.Time) bool {
	if active == m.isActive {
		return false
	}

	if active {
		if !m.idleStart.IsZero() {
			m.periods = append(m.periods, newPeriod(m.idleStart, now))
		}
		m.idleStart = time.Time{}
	} else {
		m.idleStart = now
	}
	m.isActive = active

	m.log.Debug().
		Str("content_type", string(m.contentType)).
		Bool("active", active).
		Msg("engagement transition")
	return true
}

func (m *Monitor) dispatch(active bool) {
	m.mu.Lock()
	fns := make([]func(bool), 0, len(m.listeners))
	for _, id := range slices.Sorted(maps.Keys(m.listeners)) {
		fns = append(fns, m.listeners[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(active)
	}
}

func newPeriod(start, end time.Time) IdlePeriod {
	return IdlePeriod{Start: start, End: end, Duration: end.Sub(start).Seconds()}
}
