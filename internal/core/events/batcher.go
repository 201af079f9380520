// Package events buffers generic tracking events and delivers them to the
// collector in batches.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/studytrack/internal/core/clock"
)

const (
	DefaultBatchSize = 20
	DefaultDebounce  = 5 * time.Second
	DefaultMaxBuffer = 1000
	DefaultTimeout   = 10 * time.Second
)

// ErrRejected marks a send error the collector will never accept, such as a
// validation failure. Rejected batches are discarded instead of retried.
var ErrRejected = errors.New("batch rejected")

// ErrFlushInProgress is returned by Flush while another batch is being sent.
// The buffered events are still pending.
var ErrFlushInProgress = errors.New("flush already in progress")

// Event is one generic tracking event.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"sessionId"`
	UserID    *string        `json:"userId"`
	EventType string         `json:"eventType"`
	EventData map[string]any `json:"eventData,omitempty"`
}

// Sender delivers batches to the collector.
type Sender interface {
	// SendEvents posts a batch and reports whether it was accepted.
	SendEvents(ctx context.Context, batch []Event) error
	// BeaconEvents sends a batch without waiting for a response.
	BeaconEvents(batch []Event)
}

// Options configures a Batcher.
type Options struct {
	Clock     clock.Clock
	Pulse     *clock.Pulse
	Sender    Sender
	Logger    zerolog.Logger
	Go        func(fn func())
	BatchSize int
	Debounce  time.Duration
	MaxBuffer int
	Timeout   time.Duration
}

// Batcher accumulates events and flushes when BatchSize events are buffered
// or Debounce has passed since the last Add. A failed batch goes back to the
// front of the buffer. The buffer holds at most MaxBuffer events; overflow
// evicts the oldest and is counted by Dropped.
type Batcher struct {
	opts Options
	log  zerolog.Logger

	mu       sync.Mutex
	buf      []Event
	deadline time.Time
	flushing bool
	dropped  int
	rejected int

	cancelPulse func()
}

// NewBatcher creates a Batcher. When opts.Pulse is set the debounce deadline
// is checked on every beat.
func NewBatcher(opts Options) *Batcher {
	opts.Clock = clock.Or(opts.Clock)
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MaxBuffer <= 0 {
		opts.MaxBuffer = DefaultMaxBuffer
	}
	if opts.MaxBuffer < opts.BatchSize {
		opts.MaxBuffer = opts.BatchSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Go == nil {
		opts.Go = func(fn func()) { go fn() }
	}

	b := &Batcher{opts: opts, log: opts.Logger}
	if opts.Pulse != nil {
		b.cancelPulse = opts.Pulse.Subscribe(b.Tick)
	}
	return b
}

// Add buffers e. A zero timestamp is set to now.
func (b *Batcher) Add(e Event) {
	b.mu.Lock()
	now := b.opts.Clock.Now()
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	b.buf = append(b.buf, e)
	b.evictLocked()
	b.deadline = now.Add(b.opts.Debounce)
	full := len(b.buf) >= b.opts.BatchSize
	b.mu.Unlock()

	if full {
		b.flushAsync()
	}
}

// Tick flushes when the debounce deadline has passed.
func (b *Batcher) Tick(now time.Time) {
	b.mu.Lock()
	due := len(b.buf) > 0 && !b.deadline.IsZero() && !now.Before(b.deadline)
	b.mu.Unlock()

	if due {
		b.flushAsync()
	}
}

// Len returns the number of buffered events.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Pending returns a copy of the buffered events, oldest first.
func (b *Batcher) Pending() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.buf))
	copy(out, b.buf)
	return out
}

// Dropped returns how many events were evicted because the buffer was full.
func (b *Batcher) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Rejected returns how many events were discarded because the collector
// rejected their batch.
func (b *Batcher) Rejected() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}

// Flush sends everything buffered and waits for the result. A failed batch
// is re-buffered unless the collector rejected it. The error is returned
// either way. Without a sender there is nothing to do and events stay
// buffered.
func (b *Batcher) Flush(ctx context.Context) error {
	batch, inFlight := b.take()
	if inFlight {
		return ErrFlushInProgress
	}
	if len(batch) == 0 {
		return nil
	}

	err := b.opts.Sender.SendEvents(ctx, batch)
	b.finish(batch, err)
	return err
}

// Beacon hands everything buffered to the sender's fire-and-forget path.
// Beaconed events are not retried. Without a sender the buffer is kept.
func (b *Batcher) Beacon() {
	b.mu.Lock()
	if b.opts.Sender == nil {
		b.mu.Unlock()
		return
	}
	batch := b.buf
	b.buf = nil
	b.deadline = time.Time{}
	b.mu.Unlock()

	if len(batch) > 0 {
		b.opts.Sender.BeaconEvents(batch)
	}
}

// Destroy stops the debounce check. Buffered events are kept.
func (b *Batcher) Destroy() {
	b.mu.Lock()
	cancel := b.cancelPulse
	b.cancelPulse = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (b *Batcher) flushAsync() {
	batch, _ := b.take()
	if len(batch) == 0 {
		return
	}

	b.opts.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.opts.Timeout)
		defer cancel()
		err := b.opts.Sender.SendEvents(ctx, batch)
		b.finish(batch, err)
	})
}

// take removes the whole buffer for sending. It returns no batch when the
// buffer is empty or there is no sender, and reports inFlight while another
// flush holds pending events.
func (b *Batcher) take() (batch []Event, inFlight bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) == 0 || b.opts.Sender == nil {
		return nil, false
	}
	if b.flushing {
		return nil, true
	}
	batch = b.buf
	b.buf = nil
	b.deadline = time.Time{}
	b.flushing = true
	return batch, false
}

func (b *Batcher) finish(batch []Event, err error) {
	b.mu.Lock()
	b.flushing = false

	if err != nil && errors.Is(err, ErrRejected) {
		b.rejected += len(batch)
		b.mu.Unlock()

		b.log.Error().Err(err).Int("batch", len(batch)).Msg("event batch rejected, discarding")
		return
	}

	if err != nil {
		b.buf = append(batch, b.buf...)
		b.evictLocked()
		b.deadline = b.opts.Clock.Now().Add(b.opts.Debounce)
		n := len(b.buf)
		b.mu.Unlock()

		b.log.Warn().Err(err).Int("batch", len(batch)).Int("buffered", n).Msg("event flush failed")
		return
	}

	full := len(b.buf) >= b.opts.BatchSize
	b.mu.Unlock()

	b.log.Debug().Int("batch", len(batch)).Msg("events flushed")
	if full {
		b.flushAsync()
	}
}

// evictLocked drops the oldest events beyond MaxBuffer. Caller must hold the lock.
func (b *Batcher) evictLocked() {
	over := len(b.buf) - b.opts.MaxBuffer
	if over <= 0 {
		return
	}
	b.buf = append(b.buf[:0:0], b.buf[over:]...)
	b.dropped += over
	b.log.Warn().Int("dropped", over).Int("total_dropped", b.dropped).Msg("event buffer full, evicted oldest")
}
