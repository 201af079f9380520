package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultInterval is the cadence of the tracking heartbeat.
const DefaultInterval = time.Second

// Pulse fans a periodic heartbeat out to subscribers. Every timed component
// of the tracking core (idle checks, accrual, sync and flush timers) hangs
// off a single Pulse instead of owning its own ticker.
type Pulse struct {
	mu     sync.Mutex
	subs   map[int]func(time.Time)
	nextID int
}

// NewPulse creates a pulse with no subscribers.
func NewPulse() *Pulse {
	return &Pulse{subs: make(map[int]func(time.Time))}
}

// Subscribe registers fn to be called on every beat and returns a function
// that removes the subscription. The returned cancel is safe to call twice.
func (p *Pulse) Subscribe(fn func(now time.Time)) (cancel func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Len returns the number of active subscribers.
func (p *Pulse) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Beat invokes every subscriber with now, in subscription order. Subscribers
// are called outside the lock so they may subscribe or cancel re-entrantly.
func (p *Pulse) Beat(now time.Time) {
	p.mu.Lock()
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(time.Time), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.subs[id])
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(now)
	}
}

// Run beats at interval using c for timestamps until ctx is cancelled.
func (p *Pulse) Run(ctx context.Context, c Clock, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c = Or(c)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Beat(c.Now())
		}
	}
}
