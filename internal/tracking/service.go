// Package tracking wires the activity, engagement, session and event
// components into one per-process Service.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/studytrack/internal/collector"
	"github.com/hay-kot/studytrack/internal/core/activity"
	"github.com/hay-kot/studytrack/internal/core/clock"
	"github.com/hay-kot/studytrack/internal/core/config"
	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/events"
	"github.com/hay-kot/studytrack/internal/core/session"
	"github.com/hay-kot/studytrack/internal/core/storage"
	"github.com/hay-kot/studytrack/internal/store/jsonfile"
)

// Options configures a Service. Only Config is required.
type Options struct {
	Config *config.Config
	Logger zerolog.Logger

	// Clock defaults to the wall clock.
	Clock clock.Clock
	// Storage holds the session snapshot. Defaults to a KVStore at
	// Config.LocalStoreFile().
	Storage storage.Store
	// Client defaults to one built from Config.Collector.
	Client   *collector.Client
	Location session.Location
	Device   session.DeviceInfo
	NewID    func() string
	// Go runs network work. Defaults to `go fn()`.
	Go func(fn func())
}

// Service owns the tracking components for one process.
type Service struct {
	cfg   *config.Config
	log   zerolog.Logger
	clock clock.Clock
	pulse *clock.Pulse
	goFn  func(fn func())

	activity *activity.Tracker
	session  *session.Tracker
	batcher  *events.Batcher
	client   *collector.Client
	store    storage.Store
}

// New builds the service and starts a session. A snapshot left by a previous
// process is forwarded to the collector.
func New(ctx context.Context, opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, errors.New("tracking: config is required")
	}
	cfg := opts.Config

	c := clock.Or(opts.Clock)
	pulse := clock.NewPulse()
	goFn := opts.Go
	if goFn == nil {
		goFn = func(fn func()) { go fn() }
	}

	store := opts.Storage
	if store == nil {
		store = jsonfile.NewKVStore(cfg.LocalStoreFile())
	}

	client := opts.Client
	if client == nil {
		client = collector.New(collector.Options{
			BaseURL:   cfg.Collector.URL,
			Timeout:   cfg.Collector.Timeout,
			UserAgent: cfg.Collector.UserAgent,
			Headers:   cfg.Collector.Headers,
			Logger:    opts.Logger,
		})
	}

	s := &Service{
		cfg:    cfg,
		log:    opts.Logger.With().Str("component", "tracking").Logger(),
		clock:  c,
		pulse:  pulse,
		goFn:   goFn,
		client: client,
		store:  store,
	}

	s.activity = activity.New(activity.Options{
		Clock:         c,
		Pulse:         pulse,
		IdleThreshold: cfg.Tracking.IdleThreshold,
		HistorySize:   cfg.Tracking.HistorySize,
		Logger:        opts.Logger.With().Str("component", "activity").Logger(),
	})

	batchOpts := events.Options{
		Clock:     c,
		Pulse:     pulse,
		Logger:    opts.Logger.With().Str("component", "events").Logger(),
		Go:        goFn,
		BatchSize: cfg.Events.BatchSize,
		Debounce:  cfg.Events.Debounce,
		MaxBuffer: cfg.Events.MaxBuffer,
		Timeout:   cfg.Collector.Timeout,
	}
	sessOpts := session.Options{
		Clock:        c,
		Pulse:        pulse,
		Activity:     s.activity,
		Storage:      store,
		Location:     opts.Location,
		Router:       cfg.Router(),
		Device:       opts.Device,
		Logger:       opts.Logger.With().Str("component", "session").Logger(),
		NewID:        opts.NewID,
		Go:           goFn,
		SyncInterval: cfg.Session.SyncInterval,
		MinSyncGap:   cfg.Session.MinSyncGap,
		SyncTimeout:  cfg.Collector.Timeout,
		OrphanMaxAge: cfg.Session.OrphanMaxAge,
		MaxEntries:   cfg.Session.MaxEntries,
	}
	// offline: events stay buffered and the snapshot stays local
	if client.Enabled() {
		batchOpts.Sender = client
		sessOpts.Syncer = client
	}

	s.batcher = events.NewBatcher(batchOpts)

	sess, err := session.New(ctx, sessOpts)
	if err != nil {
		s.batcher.Destroy()
		s.activity.Destroy()
		return nil, fmt.Errorf("start session: %w", err)
	}
	s.session = sess

	s.log.Debug().
		Str("session_id", sess.ID()).
		Bool("collector", client.Enabled()).
		Msg("tracking started")

	return s, nil
}

// Clock returns the service clock.
func (s *Service) Clock() clock.Clock { return s.clock }

// Pulse returns the heartbeat every component subscribes to.
func (s *Service) Pulse() *clock.Pulse { return s.pulse }

// Activity returns the shared activity tracker.
func (s *Service) Activity() *activity.Tracker { return s.activity }

// Session returns the session tracker.
func (s *Service) Session() *session.Tracker { return s.session }

// Batcher returns the event batcher.
func (s *Service) Batcher() *events.Batcher { return s.batcher }

// Client returns the collector client.
func (s *Service) Client() *collector.Client { return s.client }

// Storage returns the snapshot store.
func (s *Service) Storage() storage.Store { return s.store }

// Run beats the pulse at the configured tick interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	interval := s.cfg.Tracking.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	s.pulse.Run(ctx, s.clock, interval)
}

// Record feeds raw input to the activity tracker.
func (s *Service) Record(typ activity.EventType, metadata map[string]any) {
	s.activity.Record(typ, metadata)
}

// Navigate records a page view. The content type is classified from url.
func (s *Service) Navigate(url, title string) {
	s.session.TrackNavigation(url, title, "", "")
}

// TrackInteraction records ci in the session log and queues it as a
// "<contentType>_<action>" event.
func (s *Service) TrackInteraction(ci session.ContentInteraction) {
	if ci.Timestamp.IsZero() {
		ci.Timestamp = s.clock.Now()
	}
	s.session.TrackContentInteraction(ci)
	s.batcher.Add(InteractionEvent(s.session.ID(), s.session.UserID(), ci))
}

// TrackEvent queues a generic event for the current session.
func (s *Service) TrackEvent(eventType string, data map[string]any) {
	s.batcher.Add(events.Event{
		Timestamp: s.clock.Now(),
		SessionID: s.session.ID(),
		UserID:    optional(s.session.UserID()),
		EventType: eventType,
		EventData: data,
	})
}

// SetVisible reports a visibility change to the activity and session
// trackers.
func (s *Service) SetVisible(visible bool) {
	s.activity.SetVisible(visible)
	s.session.HandleVisibilityChange(visible)
}

// SetUserID attaches the user to the session and to progress requests.
func (s *Service) SetUserID(id string) {
	s.session.SetUserID(id)
	s.client.SetUserID(id)
}

// Deps returns the collaborators for content trackers.
func (s *Service) Deps() content.Deps {
	d := content.Deps{
		Clock:    s.clock,
		Pulse:    s.pulse,
		Activity: s.activity,
		Recorder: s,
		Logger:   s.log.With().Str("component", "content").Logger(),
		Go:       s.goFn,
		Timeout:  s.cfg.Collector.Timeout,
	}
	if s.client.Enabled() {
		d.Progress = s.client
	}
	return d
}

// NewQuestion creates a question tracker.
func (s *Service) NewQuestion(opts content.QuestionOptions) (*content.Question, error) {
	return content.NewQuestion(s.Deps(), opts)
}

// NewFlashcard creates a flashcard tracker.
func (s *Service) NewFlashcard(opts content.FlashcardOptions) (*content.Flashcard, error) {
	return content.NewFlashcard(s.Deps(), opts)
}

// NewMedia creates a media tracker. Configured thresholds for the kind apply
// unless opts sets its own.
func (s *Service) NewMedia(opts content.MediaOptions) (*content.Media, error) {
	if opts.Thresholds == nil {
		if th, ok := s.cfg.Media[opts.Kind]; ok {
			opts.Thresholds = &th
		}
	}
	return content.NewMedia(s.Deps(), opts)
}

// Flush sends buffered events and syncs the session, waiting for both.
func (s *Service) Flush(ctx context.Context) error {
	var errs []error
	if s.client.Enabled() {
		if err := s.batcher.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush events: %w", err))
		}
		if err := s.client.SyncSession(ctx, s.session.Data()); err != nil {
			errs = append(errs, fmt.Errorf("sync session: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Hide persists the session and beacons everything pending, as on page
// hide.
func (s *Service) Hide() {
	s.batcher.Beacon()
	s.session.HandlePageHide()
}

// Shutdown ends the session: pending events are beaconed, the session is
// persisted and synced once more, and in-flight beacons are drained until
// ctx is done. Safe to call more than once.
func (s *Service) Shutdown(ctx context.Context) error {
	s.batcher.Beacon()
	s.session.Destroy(ctx)
	s.batcher.Destroy()
	s.activity.Destroy()

	if err := s.client.Wait(ctx); err != nil {
		return fmt.Errorf("wait for beacons: %w", err)
	}
	s.log.Debug().Msg("tracking stopped")
	return nil
}

// InteractionEvent converts ci into the event sent to the collector.
func InteractionEvent(sessionID, userID string, ci session.ContentInteraction) events.Event {
	data := map[string]any{
		"contentType": string(ci.ContentType),
		"contentId":   ci.ContentID,
		"action":      ci.Action,
	}
	if len(ci.Metadata) > 0 {
		data["metadata"] = ci.Metadata
	}
	if ci.Duration != nil {
		data["duration"] = *ci.Duration
	}
	if ci.ActiveTime != nil {
		data["activeTime"] = *ci.ActiveTime
	}

	return events.Event{
		Timestamp: ci.Timestamp,
		SessionID: sessionID,
		UserID:    optional(userID),
		EventType: string(ci.ContentType) + "_" + ci.Action,
		EventData: data,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ content.Recorder = (*Service)(nil)
