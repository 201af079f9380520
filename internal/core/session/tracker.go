package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hay-kot/studytrack/internal/core/activity"
	"github.com/hay-kot/studytrack/internal/core/clock"
	"github.com/hay-kot/studytrack/internal/core/engagement"
	"github.com/hay-kot/studytrack/internal/core/storage"
)

const (
	DefaultSyncInterval = 30 * time.Second
	DefaultMinSyncGap   = 5 * time.Second
	DefaultOrphanMaxAge = time.Hour
	DefaultSyncTimeout  = 10 * time.Second
)

// Syncer delivers session snapshots to the collector.
type Syncer interface {
	// SyncSession posts d and reports whether the collector accepted it.
	SyncSession(ctx context.Context, d Data) error
	// BeaconSession sends d without waiting for a response.
	BeaconSession(d Data)
}

// Location reports the host's current URL and page title.
type Location func() (url, title string)

// Options configures a Tracker.
type Options struct {
	Clock    clock.Clock
	Pulse    *clock.Pulse
	Activity *activity.Tracker
	Storage  storage.Store
	Syncer   Syncer
	Location Location
	Router   *Router
	Device   DeviceInfo
	Logger   zerolog.Logger

	// NewID generates session ids. Defaults to uuid.NewString.
	NewID func() string
	// Go runs network work off the caller's goroutine. Defaults to `go fn()`.
	Go func(fn func())

	SyncInterval time.Duration
	MinSyncGap   time.Duration
	SyncTimeout  time.Duration
	OrphanMaxAge time.Duration
	MaxEntries   int
}

func (o *Options) applyDefaults() {
	o.Clock = clock.Or(o.Clock)
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Go == nil {
		o.Go = func(fn func()) { go fn() }
	}
	if o.Location == nil {
		o.Location = func() (string, string) { return "", "" }
	}
	if o.SyncInterval <= 0 {
		o.SyncInterval = DefaultSyncInterval
	}
	if o.MinSyncGap <= 0 {
		o.MinSyncGap = DefaultMinSyncGap
	}
	if o.SyncTimeout <= 0 {
		o.SyncTimeout = DefaultSyncTimeout
	}
	if o.OrphanMaxAge <= 0 {
		o.OrphanMaxAge = DefaultOrphanMaxAge
	}
	if o.MaxEntries <= 0 {
		o.MaxEntries = DefaultMaxEntries
	}
}

// Tracker is the process-wide session aggregate. Construct one per process
// and share it by reference.
type Tracker struct {
	opts    Options
	log     zerolog.Logger
	monitor *engagement.Monitor

	mu           sync.Mutex
	sessionID    string
	userID       *string
	start        time.Time
	end          *time.Time
	navigation   []NavigationEntry
	interactions []ContentInteraction

	version      uint64
	synced       bool
	syncing      bool
	lastSync     time.Time
	lastSyncTick time.Time

	cancelPulse func()
	destroyed   bool
}

// New constructs a session, forwards any orphaned snapshot left by a previous
// process, records the initial navigation and persists.
func New(ctx context.Context, opts Options) (*Tracker, error) {
	opts.applyDefaults()

	monitor, err := engagement.New(opts.Activity, opts.Pulse, opts.Clock, engagement.Config{
		ContentType: engagement.ContentGeneral,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("session monitor: %w", err)
	}

	now := opts.Clock.Now()
	t := &Tracker{
		opts:         opts,
		log:          opts.Logger,
		monitor:      monitor,
		sessionID:    opts.NewID(),
		start:        now,
		lastSyncTick: now,
	}

	t.recoverOrphan(ctx)

	t.TrackNavigation("", "", "", "")
	t.cancelPulse = opts.Pulse.Subscribe(t.Tick)

	t.log.Debug().Str("session_id", t.sessionID).Msg("session started")
	return t, nil
}

// recoverOrphan forwards a snapshot left by a previous process exactly once
// and removes it. Snapshots older than OrphanMaxAge are discarded.
func (t *Tracker) recoverOrphan(ctx context.Context) {
	if t.opts.Storage == nil {
		return
	}

	prev, err := LoadSnapshot(ctx, t.opts.Storage)
	if err != nil {
		if !errors.Is(err, ErrNoSnapshot) {
			t.log.Warn().Err(err).Msg("failed to read session snapshot")
		}
		return
	}

	if prev.SessionID == t.sessionID {
		return
	}

	age := t.start.Sub(prev.StartTime)
	switch {
	case age > t.opts.OrphanMaxAge:
		t.log.Debug().Str("session_id", prev.SessionID).Dur("age", age).Msg("discarding stale session snapshot")
	case t.opts.Syncer != nil:
		t.log.Info().Str("session_id", prev.SessionID).Msg("forwarding orphaned session")
		syncer := t.opts.Syncer
		t.opts.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), t.opts.SyncTimeout)
			defer cancel()
			if err := syncer.SyncSession(ctx, prev); err != nil {
				t.log.Warn().Err(err).Str("session_id", prev.SessionID).Msg("failed to forward orphaned session")
			}
		})
	}

	if err := ClearSnapshot(ctx, t.opts.Storage); err != nil {
		t.log.Warn().Err(err).Msg("failed to clear session snapshot")
	}
}

// ID returns the current session id.
func (t *Tracker) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// UserID returns the attached user id, or "" before SetUserID.
func (t *Tracker) UserID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.userID == nil {
		return ""
	}
	return *t.userID
}

// Monitor returns the session-wide engagement monitor.
func (t *Tracker) Monitor() *engagement.Monitor { return t.monitor }

// SetUserID attaches an identity once auth resolves and persists at once.
func (t *Tracker) SetUserID(id string) {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.userID = &id
	t.touch()
	t.mu.Unlock()

	t.persist()
}

// TrackNavigation appends a navigation entry. Empty url and title default to
// the host location; an empty content type is classified from the url.
func (t *Tracker) TrackNavigation(url, title string, contentType engagement.ContentType, contentID string) {
	if url == "" || title == "" {
		locURL, locTitle := t.opts.Location()
		if url == "" {
			url = locURL
		}
		if title == "" {
			title = locTitle
		}
	}
	if contentType == "" {
		ct, id := t.opts.Router.Classify(url)
		contentType = ct
		if contentID == "" {
			contentID = id
		}
	}

	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.navigation = append(t.navigation, NavigationEntry{
		Timestamp:   t.opts.Clock.Now(),
		URL:         url,
		PageTitle:   title,
		ContentType: contentType,
		ContentID:   contentID,
	})
	t.navigation = trimOldest(t.navigation, t.opts.MaxEntries)
	t.touch()
	t.mu.Unlock()

	t.persist()
}

// OnPopState records history navigation at the host's current location.
func (t *Tracker) OnPopState() {
	t.TrackNavigation("", "", "", "")
}

// TrackContentInteraction appends ci to the interaction log. A zero
// timestamp is set to now.
func (t *Tracker) TrackContentInteraction(ci ContentInteraction) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return
	}
	if ci.Timestamp.IsZero() {
		ci.Timestamp = t.opts.Clock.Now()
	}
	t.interactions = append(t.interactions, ci)
	t.interactions = trimOldest(t.interactions, t.opts.MaxEntries)
	t.touch()
}

// Data returns the full current snapshot.
func (t *Tracker) Data() Data {
	metrics := t.monitor.Metrics()

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dataLocked(metrics)
}

func (t *Tracker) dataLocked(metrics engagement.Metrics) Data {
	end := t.opts.Clock.Now()
	if t.end != nil {
		end = *t.end
	}

	d := Data{
		SessionID:           t.sessionID,
		StartTime:           t.start,
		Duration:            end.Sub(t.start).Seconds(),
		ActiveDuration:      metrics.ActiveTime,
		NavigationPath:      slices.Clone(t.navigation),
		ContentInteractions: slices.Clone(t.interactions),
		EngagementMetrics:   metrics,
		DeviceInfo:          t.opts.Device,
	}
	if t.userID != nil {
		id := *t.userID
		d.UserID = &id
	}
	if t.end != nil {
		e := *t.end
		d.EndTime = &e
	}
	if d.NavigationPath == nil {
		d.NavigationPath = []NavigationEntry{}
	}
	if d.ContentInteractions == nil {
		d.ContentInteractions = []ContentInteraction{}
	}
	return d
}

// SessionDuration returns wall time since the session started.
func (t *Tracker) SessionDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	end := t.opts.Clock.Now()
	if t.end != nil {
		end = *t.end
	}
	return end.Sub(t.start)
}

// ActiveDuration returns the session's accumulated active time.
func (t *Tracker) ActiveDuration() time.Duration {
	return time.Duration(t.monitor.Metrics().ActiveTime * float64(time.Second))
}

// IsSynced reports whether the collector has acknowledged the latest data.
func (t *Tracker) IsSynced() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.synced
}

// Tick drives the periodic sync.
func (t *Tracker) Tick(now time.Time) {
	t.mu.Lock()
	if t.destroyed || now.Sub(t.lastSyncTick) < t.opts.SyncInterval {
		t.mu.Unlock()
		return
	}
	t.lastSyncTick = now
	t.mu.Unlock()

	t.Sync()
}

// Sync starts an asynchronous sync when there is unsynced data, no sync in
// flight, and at least MinSyncGap has passed since the last attempt.
func (t *Tracker) Sync() {
	if t.opts.Syncer == nil {
		return
	}

	metrics := t.monitor.Metrics()

	t.mu.Lock()
	now := t.opts.Clock.Now()
	if t.synced || t.syncing || (!t.lastSync.IsZero() && now.Sub(t.lastSync) < t.opts.MinSyncGap) {
		t.mu.Unlock()
		return
	}
	t.syncing = true
	t.lastSync = now
	version := t.version
	data := t.dataLocked(metrics)
	t.mu.Unlock()

	t.opts.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.opts.SyncTimeout)
		defer cancel()
		err := t.opts.Syncer.SyncSession(ctx, data)
		t.finishSync(version, err)
	})
}

func (t *Tracker) finishSync(version uint64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.syncing = false
	if err != nil {
		t.log.Warn().Err(err).Str("session_id", t.sessionID).Msg("session sync failed")
		return
	}
	// data recorded while the request was in flight stays unsynced
	if t.version == version {
		t.synced = true
	}
	t.log.Debug().Str("session_id", t.sessionID).Msg("session synced")
}

// HandlePageHide persists the snapshot and sends a best-effort beacon.
func (t *Tracker) HandlePageHide() {
	if t.isDestroyed() {
		return
	}
	data := t.persist()
	if t.opts.Syncer != nil {
		t.opts.Syncer.BeaconSession(data)
	}
}

// HandleVisibilityChange persists when hidden and syncs unsynced data when
// visible again.
func (t *Tracker) HandleVisibilityChange(visible bool) {
	if t.isDestroyed() {
		return
	}
	if !visible {
		t.persist()
		return
	}
	t.Sync()
}

// Reset starts a new session identity with empty logs and clears the
// persisted snapshot. The user id is kept.
func (t *Tracker) Reset(ctx context.Context) {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	now := t.opts.Clock.Now()
	t.sessionID = t.opts.NewID()
	t.start = now
	t.end = nil
	t.navigation = nil
	t.interactions = nil
	t.synced = false
	t.lastSync = time.Time{}
	t.lastSyncTick = now
	t.version++
	id := t.sessionID
	t.mu.Unlock()

	t.monitor.Reset()

	if t.opts.Storage != nil {
		if err := ClearSnapshot(ctx, t.opts.Storage); err != nil {
			t.log.Warn().Err(err).Msg("failed to clear session snapshot")
		}
	}
	t.log.Debug().Str("session_id", id).Msg("session reset")
}

// Destroy stops the sync timer, persists and attempts one final synchronous
// sync. Safe to call more than once.
func (t *Tracker) Destroy(ctx context.Context) {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	now := t.opts.Clock.Now()
	t.end = &now
	cancel := t.cancelPulse
	t.cancelPulse = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.monitor.Destroy()

	data := t.persist()

	t.mu.Lock()
	t.destroyed = true
	unsynced := !t.synced
	version := t.version
	t.mu.Unlock()

	if unsynced && t.opts.Syncer != nil {
		err := t.opts.Syncer.SyncSession(ctx, data)
		t.finishSync(version, err)
	}

	// a delivered session must not come back as an orphan on the next start
	if t.opts.Storage != nil && t.IsSynced() {
		if err := ClearSnapshot(ctx, t.opts.Storage); err != nil {
			t.log.Warn().Err(err).Msg("failed to clear session snapshot")
		}
	}
}

func (t *Tracker) isDestroyed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyed
}

// touch marks the data changed. Caller must hold the lock.
func (t *Tracker) touch() {
	t.version++
	t.synced = false
}

// persist writes the snapshot to local storage. Failures are logged.
func (t *Tracker) persist() Data {
	data := t.Data()
	if t.opts.Storage == nil {
		return data
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.opts.SyncTimeout)
	defer cancel()
	if err := SaveSnapshot(ctx, t.opts.Storage, data); err != nil {
		t.log.Warn().Err(err).Msg("failed to persist session snapshot")
	}
	return data
}
