// Package config handles configuration loading and validation for studytrack.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/studytrack/internal/core/activity"
	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/events"
	"github.com/hay-kot/studytrack/internal/core/session"
)

// Collector store backends.
const (
	StoreJSONFile = "jsonfile"
	StoreSQLite   = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	Collector CollectorConfig                           `yaml:"collector"`
	Tracking  TrackingConfig                            `yaml:"tracking"`
	Session   SessionConfig                             `yaml:"session"`
	Events    EventsConfig                              `yaml:"events"`
	Media     map[content.MediaKind]content.Thresholds `yaml:"media"`
	Routes    []session.Route                           `yaml:"routes"`
	Serve     ServeConfig                               `yaml:"serve"`
	DataDir   string                                    `yaml:"-"` // set by caller, not from config file
}

// CollectorConfig points the client at a collector.
type CollectorConfig struct {
	// URL is the collector base URL. Empty disables network delivery.
	URL       string            `yaml:"url"`
	Timeout   time.Duration     `yaml:"timeout"`
	UserAgent string            `yaml:"user_agent"`
	Headers   map[string]string `yaml:"headers"`
}

// TrackingConfig tunes the activity tracker and heartbeat.
type TrackingConfig struct {
	IdleThreshold time.Duration `yaml:"idle_threshold"`
	HistorySize   int           `yaml:"history_size"`
	TickInterval  time.Duration `yaml:"tick_interval"`
}

// SessionConfig tunes session sync and recovery.
type SessionConfig struct {
	SyncInterval time.Duration `yaml:"sync_interval"`
	MinSyncGap   time.Duration `yaml:"min_sync_gap"`
	OrphanMaxAge time.Duration `yaml:"orphan_max_age"`
	MaxEntries   int           `yaml:"max_entries"`
}

// EventsConfig tunes event batching.
type EventsConfig struct {
	BatchSize int           `yaml:"batch_size"`
	Debounce  time.Duration `yaml:"debounce"`
	MaxBuffer int           `yaml:"max_buffer"`
}

// ServeConfig configures the reference collector.
type ServeConfig struct {
	Addr           string   `yaml:"addr"`
	Store          string   `yaml:"store"`
	EventRetention int      `yaml:"event_retention"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Collector: CollectorConfig{
			Timeout:   10 * time.Second,
			UserAgent: "studytrack",
			Headers:   map[string]string{},
		},
		Tracking: TrackingConfig{
			IdleThreshold: activity.DefaultIdleThreshold,
			HistorySize:   activity.DefaultHistorySize,
			TickInterval:  time.Second,
		},
		Session: SessionConfig{
			SyncInterval: session.DefaultSyncInterval,
			MinSyncGap:   session.DefaultMinSyncGap,
			OrphanMaxAge: session.DefaultOrphanMaxAge,
			MaxEntries:   session.DefaultMaxEntries,
		},
		Events: EventsConfig{
			BatchSize: events.DefaultBatchSize,
			Debounce:  events.DefaultDebounce,
			MaxBuffer: events.DefaultMaxBuffer,
		},
		Media: map[content.MediaKind]content.Thresholds{
			content.MediaShort: content.DefaultThresholds[content.MediaShort],
			content.MediaVideo: content.DefaultThresholds[content.MediaVideo],
		},
		Routes: append([]session.Route{}, session.DefaultRoutes...),
		Serve: ServeConfig{
			Addr:           "127.0.0.1:8089",
			Store:          StoreJSONFile,
			EventRetention: 10000,
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Collector.Timeout == 0 {
		c.Collector.Timeout = defaults.Collector.Timeout
	}
	if c.Collector.UserAgent == "" {
		c.Collector.UserAgent = defaults.Collector.UserAgent
	}
	if c.Tracking.IdleThreshold == 0 {
		c.Tracking.IdleThreshold = defaults.Tracking.IdleThreshold
	}
	if c.Tracking.HistorySize == 0 {
		c.Tracking.HistorySize = defaults.Tracking.HistorySize
	}
	if c.Tracking.TickInterval == 0 {
		c.Tracking.TickInterval = defaults.Tracking.TickInterval
	}
	if c.Session.SyncInterval == 0 {
		c.Session.SyncInterval = defaults.Session.SyncInterval
	}
	if c.Session.MinSyncGap == 0 {
		c.Session.MinSyncGap = defaults.Session.MinSyncGap
	}
	if c.Session.OrphanMaxAge == 0 {
		c.Session.OrphanMaxAge = defaults.Session.OrphanMaxAge
	}
	if c.Session.MaxEntries == 0 {
		c.Session.MaxEntries = defaults.Session.MaxEntries
	}
	if c.Events.BatchSize == 0 {
		c.Events.BatchSize = defaults.Events.BatchSize
	}
	if c.Events.Debounce == 0 {
		c.Events.Debounce = defaults.Events.Debounce
	}
	if c.Events.MaxBuffer == 0 {
		c.Events.MaxBuffer = defaults.Events.MaxBuffer
	}
	for kind, th := range defaults.Media {
		if _, ok := c.Media[kind]; !ok {
			if c.Media == nil {
				c.Media = map[content.MediaKind]content.Thresholds{}
			}
			c.Media[kind] = th
		}
	}
	if len(c.Routes) == 0 {
		c.Routes = defaults.Routes
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = defaults.Serve.Addr
	}
	if c.Serve.Store == "" {
		c.Serve.Store = defaults.Serve.Store
	}
	if c.Serve.EventRetention == 0 {
		c.Serve.EventRetention = defaults.Serve.EventRetention
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if c.DataDir == "" {
		errs = errs.Append("data_dir", fmt.Errorf("data directory cannot be empty"))
	}

	if c.Collector.URL != "" {
		if err := validateURL(c.Collector.URL); err != nil {
			errs = errs.Append("collector.url", err)
		}
	}
	if c.Collector.Timeout < 0 {
		errs = errs.Append("collector.timeout", fmt.Errorf("must not be negative"))
	}

	if c.Tracking.IdleThreshold < time.Second {
		errs = errs.Append("tracking.idle_threshold", fmt.Errorf("must be at least 1s"))
	}
	if c.Tracking.HistorySize < 1 {
		errs = errs.Append("tracking.history_size", fmt.Errorf("must be at least 1"))
	}
	if c.Tracking.TickInterval < 100*time.Millisecond {
		errs = errs.Append("tracking.tick_interval", fmt.Errorf("must be at least 100ms"))
	}

	if c.Session.MinSyncGap > c.Session.SyncInterval {
		errs = errs.Append("session.min_sync_gap", fmt.Errorf("must not exceed sync_interval (%s)", c.Session.SyncInterval))
	}
	if c.Session.MaxEntries < 1 {
		errs = errs.Append("session.max_entries", fmt.Errorf("must be at least 1"))
	}

	if c.Events.BatchSize < 1 {
		errs = errs.Append("events.batch_size", fmt.Errorf("must be at least 1"))
	}
	if c.Events.MaxBuffer < c.Events.BatchSize {
		errs = errs.Append("events.max_buffer", fmt.Errorf("must be at least batch_size (%d)", c.Events.BatchSize))
	}

	for kind, th := range c.Media {
		field := fmt.Sprintf("media.%s", kind)
		if kind != content.MediaShort && kind != content.MediaVideo {
			errs = errs.Append(field, fmt.Errorf("unknown media kind %q", kind))
			continue
		}
		if th.Completion <= 0 || th.Completion > 1 {
			errs = errs.Append(field+".completion", fmt.Errorf("must be in (0, 1], got %v", th.Completion))
		}
		if th.MinWatch < 0 {
			errs = errs.Append(field+".min_watch", fmt.Errorf("must not be negative"))
		}
	}

	if _, err := session.NewRouter(c.Routes); err != nil {
		errs = errs.Append("routes", err)
	}

	switch c.Serve.Store {
	case StoreJSONFile, StoreSQLite:
	default:
		errs = errs.Append("serve.store", fmt.Errorf("must be %q or %q, got %q", StoreJSONFile, StoreSQLite, c.Serve.Store))
	}
	if c.Serve.EventRetention < 1 {
		errs = errs.Append("serve.event_retention", fmt.Errorf("must be at least 1"))
	}

	return errs.ToError()
}

// Router builds the navigation classifier from the configured routes.
func (c *Config) Router() *session.Router {
	r, err := session.NewRouter(c.Routes)
	if err != nil {
		return nil
	}
	return r
}

// LocalStoreFile returns the path to the local key/value store holding the
// session snapshot.
func (c *Config) LocalStoreFile() string {
	return filepath.Join(c.DataDir, "local.json")
}

// CollectorDir returns the directory holding the reference collector's data.
func (c *Config) CollectorDir() string {
	return filepath.Join(c.DataDir, "collector")
}

// LogDir returns the directory for log files.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url must include a host")
	}
	return nil
}
