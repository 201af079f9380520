package content

import (
	"sync"
	"time"

	"github.com/hay-kot/studytrack/internal/core/engagement"
)

// Timer measures time spent on one content item through an engagement
// monitor tuned to the content type. Metrics are frozen by Stop.
type Timer struct {
	deps        Deps
	contentType engagement.ContentType

	mu        sync.Mutex
	monitor   *engagement.Monitor
	frozen    *engagement.Metrics
	startTime time.Time
}

// NewTimer creates a timer and starts it when autoStart is set.
func NewTimer(deps Deps, contentType engagement.ContentType, autoStart bool) (*Timer, error) {
	if err := deps.prepare(); err != nil {
		return nil, err
	}

	t := &Timer{deps: deps, contentType: contentType}
	if autoStart {
		if err := t.Start(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Start begins measuring. Starting a running timer is a no-op; starting a
// stopped timer begins a fresh measurement.
func (t *Timer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.monitor != nil {
		return nil
	}

	m, err := engagement.New(t.deps.Activity, t.deps.Pulse, t.deps.Clock, engagement.Config{
		ContentType: t.contentType,
		Logger:      t.deps.Logger,
	})
	if err != nil {
		return err
	}

	t.monitor = m
	t.frozen = nil
	t.startTime = t.deps.Clock.Now()
	return nil
}

// Stop freezes and returns the metrics.
func (t *Timer) Stop() engagement.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.monitor == nil {
		if t.frozen != nil {
			return *t.frozen
		}
		return emptyMetrics()
	}

	m := t.monitor.Metrics()
	t.monitor.Destroy()
	t.monitor = nil
	t.frozen = &m
	return m
}

// Metrics returns live metrics while running, frozen metrics after Stop.
func (t *Timer) Metrics() engagement.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.monitor != nil:
		return t.monitor.Metrics()
	case t.frozen != nil:
		return *t.frozen
	default:
		return emptyMetrics()
	}
}

// Running reports whether the timer is measuring.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.monitor != nil
}

// StartTime returns when the current measurement began.
func (t *Timer) StartTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startTime
}

// Pause forces idle time while the content is obscured.
func (t *Timer) Pause() {
	if m := t.current(); m != nil {
		m.Pause()
	}
}

// Resume lifts a Pause.
func (t *Timer) Resume() {
	if m := t.current(); m != nil {
		m.Resume()
	}
}

// Reset zeroes a running measurement.
func (t *Timer) Reset() {
	if m := t.current(); m != nil {
		m.Reset()
	}
}

func (t *Timer) current() *engagement.Monitor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.monitor
}

func emptyMetrics() engagement.Metrics {
	return engagement.Metrics{IdlePeriods: []engagement.IdlePeriod{}}
}
