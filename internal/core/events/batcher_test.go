package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/studytrack/internal/core/clock"
)

var epoch = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type mockSender struct {
	mu       sync.Mutex
	batches  [][]Event
	beacons  [][]Event
	failNext int
	failErr  error
}

func (m *mockSender) SendEvents(_ context.Context, batch []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		if m.failErr != nil {
			return m.failErr
		}
		return errors.New("503 service unavailable")
	}
	m.batches = append(m.batches, batch)
	return nil
}

func (m *mockSender) BeaconEvents(batch []Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beacons = append(m.beacons, batch)
}

func newTestBatcher(t *testing.T, sender *mockSender, opts Options) (*Batcher, *clock.Manual, *clock.Pulse) {
	t.Helper()
	c := clock.NewManual(epoch)
	p := clock.NewPulse()
	opts.Clock = c
	opts.Pulse = p
	opts.Sender = sender
	opts.Go = func(fn func()) { fn() }
	b := NewBatcher(opts)
	t.Cleanup(b.Destroy)
	return b, c, p
}

func event(n int) Event {
	return Event{SessionID: "s1", EventType: "question_view_start", EventData: map[string]any{"n": n}}
}

func TestBatcher_FlushesAtBatchSize(t *testing.T) {
	sender := &mockSender{}
	b, _, _ := newTestBatcher(t, sender, Options{})

	for i := 0; i < 19; i++ {
		b.Add(event(i))
	}
	assert.Empty(t, sender.batches)

	b.Add(event(19))
	require.Len(t, sender.batches, 1)
	assert.Len(t, sender.batches[0], 20)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, epoch, sender.batches[0][0].Timestamp)
}

func TestBatcher_DebounceFlushesOnce(t *testing.T) {
	sender := &mockSender{}
	b, c, p := newTestBatcher(t, sender, Options{})

	b.Add(event(1))
	for i := 0; i < 4; i++ {
		p.Beat(c.Advance(time.Second))
	}
	assert.Empty(t, sender.batches)

	p.Beat(c.Advance(time.Second))
	require.Len(t, sender.batches, 1)

	for i := 0; i < 10; i++ {
		p.Beat(c.Advance(time.Second))
	}
	assert.Len(t, sender.batches, 1)
}

func TestBatcher_AddResetsDebounce(t *testing.T) {
	sender := &mockSender{}
	b, c, p := newTestBatcher(t, sender, Options{})

	b.Add(event(1))
	p.Beat(c.Advance(3 * time.Second))
	b.Add(event(2))

	p.Beat(c.Advance(2 * time.Second)) // 5s after the first add
	assert.Empty(t, sender.batches)

	p.Beat(c.Advance(3 * time.Second))
	require.Len(t, sender.batches, 1)
	assert.Len(t, sender.batches[0], 2)
}

func TestBatcher_FailedBatchIsRebufferedInOrder(t *testing.T) {
	sender := &mockSender{failNext: 1}
	b, c, p := newTestBatcher(t, sender, Options{BatchSize: 3})

	b.Add(event(0))
	b.Add(event(1))
	b.Add(event(2)) // triggers a flush that fails
	require.Empty(t, sender.batches)
	require.Equal(t, 3, b.Len())

	b.Add(event(3))
	// the failed batch plus the new event reach the sender together, once each
	require.Len(t, sender.batches, 1)
	got := sender.batches[0]
	require.Len(t, got, 4)
	for i, e := range got {
		assert.Equal(t, i, e.EventData["n"])
	}

	p.Beat(c.Advance(10 * time.Second))
	assert.Len(t, sender.batches, 1)
	assert.Zero(t, b.Dropped())
}

func TestBatcher_FailedDebounceFlushRetriesOnNextDeadline(t *testing.T) {
	sender := &mockSender{failNext: 1}
	b, c, p := newTestBatcher(t, sender, Options{})

	b.Add(event(0))
	p.Beat(c.Advance(5 * time.Second))
	require.Equal(t, 1, b.Len())

	p.Beat(c.Advance(5 * time.Second))
	require.Len(t, sender.batches, 1)
	assert.Equal(t, 0, b.Len())
}

func TestBatcher_BoundedBufferEvictsOldest(t *testing.T) {
	sender := &mockSender{failNext: 100}
	b, _, _ := newTestBatcher(t, sender, Options{BatchSize: 5, MaxBuffer: 8})

	for i := 0; i < 12; i++ {
		b.Add(event(i))
	}

	assert.Equal(t, 8, b.Len())
	assert.Equal(t, 4, b.Dropped())
	pending := b.Pending()
	assert.Equal(t, 4, pending[0].EventData["n"])
	assert.Equal(t, 11, pending[7].EventData["n"])
}

func TestBatcher_FlushAndBeacon(t *testing.T) {
	sender := &mockSender{failNext: 1}
	b, _, _ := newTestBatcher(t, sender, Options{})

	require.NoError(t, b.Flush(context.Background()))

	b.Add(event(1))
	require.Error(t, b.Flush(context.Background()))
	assert.Equal(t, 1, b.Len())

	require.NoError(t, b.Flush(context.Background()))
	assert.Equal(t, 0, b.Len())

	for i := 0; i < 3; i++ {
		b.Add(event(i))
	}
	b.Beacon()
	require.Len(t, sender.beacons, 1)
	assert.Len(t, sender.beacons[0], 3)
	assert.Equal(t, 0, b.Len())
}

func TestBatcher_NoSenderKeepsBuffering(t *testing.T) {
	b := NewBatcher(Options{Clock: clock.NewManual(epoch), BatchSize: 2})
	for i := 0; i < 5; i++ {
		b.Add(event(i))
	}
	assert.Equal(t, 5, b.Len())
	require.NoError(t, b.Flush(context.Background()))
	assert.Equal(t, 5, b.Len())

	assert.NotPanics(t, b.Beacon)
	assert.Equal(t, 5, b.Len(), "beacon without a sender keeps the buffer")
}

func TestBatcher_FlushWhileInFlight(t *testing.T) {
	var queued []func()
	sender := &mockSender{}
	b := NewBatcher(Options{
		Clock:     clock.NewManual(epoch),
		Sender:    sender,
		BatchSize: 2,
		Go:        func(fn func()) { queued = append(queued, fn) },
	})

	b.Add(event(0))
	b.Add(event(1))
	require.Len(t, queued, 1, "batch size triggers an async flush")

	b.Add(event(2))
	err := b.Flush(context.Background())
	require.ErrorIs(t, err, ErrFlushInProgress)
	assert.Equal(t, 1, b.Len())

	queued[0]()
	require.NoError(t, b.Flush(context.Background()))
	assert.Equal(t, 0, b.Len())
	require.Len(t, sender.batches, 2)
}

func TestBatcher_RejectedBatchIsDiscarded(t *testing.T) {
	sender := &mockSender{failNext: 1, failErr: fmt.Errorf("status 422: %w", ErrRejected)}
	b, _, _ := newTestBatcher(t, sender, Options{BatchSize: 3})

	for i := 0; i < 3; i++ {
		b.Add(event(i))
	}

	assert.Empty(t, sender.batches)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 3, b.Rejected())

	b.Add(event(3))
	require.NoError(t, b.Flush(context.Background()))
	require.Len(t, sender.batches, 1)
	assert.Len(t, sender.batches[0], 1)
}
