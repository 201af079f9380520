package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"

	"github.com/hay-kot/studytrack/internal/core/content"
	"github.com/hay-kot/studytrack/internal/core/engagement"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration.
// Unlike Validate(), this checks each route pattern individually, media
// thresholds per kind, and file access. Errors are returned as
// criterio.FieldErrors.
func (c *Config) ValidateDeep(configPath string) error {
	var errs criterio.FieldErrorsBuilder

	errs = c.validateFileAccess(errs, configPath)
	errs = c.validateCollector(errs)
	errs = c.validateRoutes(errs)
	errs = c.validateMedia(errs)

	return errs.ToError()
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Collector.URL == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Collector",
			Item:     "url",
			Message:  "no collector url configured; sessions and events stay local",
		})
	}

	if c.Session.MinSyncGap >= c.Session.SyncInterval && c.Session.SyncInterval > 0 {
		warnings = append(warnings, ValidationWarning{
			Category: "Session",
			Item:     "min_sync_gap",
			Message:  "min_sync_gap is not shorter than sync_interval; visibility changes will never trigger an early sync",
		})
	}

	if c.Tracking.IdleThreshold > c.Session.SyncInterval {
		warnings = append(warnings, ValidationWarning{
			Category: "Tracking",
			Item:     "idle_threshold",
			Message:  fmt.Sprintf("idle_threshold (%s) exceeds sync_interval (%s); synced active time will lag", c.Tracking.IdleThreshold, c.Session.SyncInterval),
		})
	}

	seen := make(map[string]int, len(c.Routes))
	for i, r := range c.Routes {
		if prev, ok := seen[r.Pattern]; ok {
			warnings = append(warnings, ValidationWarning{
				Category: "Routes",
				Item:     fmt.Sprintf("route %d", i),
				Message:  fmt.Sprintf("pattern %q duplicates route %d and will never match", r.Pattern, prev),
			})
			continue
		}
		seen[r.Pattern] = i
	}

	if c.Serve.Store == StoreJSONFile && c.Serve.EventRetention > 100000 {
		warnings = append(warnings, ValidationWarning{
			Category: "Serve",
			Item:     "event_retention",
			Message:  "large retention with the jsonfile store rewrites big files on every trim; consider sqlite",
		})
	}

	return warnings
}

// validateFileAccess checks config file and data directory.
func (c *Config) validateFileAccess(errs criterio.FieldErrorsBuilder, configPath string) criterio.FieldErrorsBuilder {
	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil {
			if info.IsDir() {
				errs = errs.Append("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
			}
		} else if !os.IsNotExist(err) {
			errs = errs.Append("config_file", fmt.Errorf("cannot access %s: %w", configPath, err))
		}
	}

	if c.DataDir != "" {
		if info, err := os.Stat(c.DataDir); err == nil {
			if !info.IsDir() {
				errs = errs.Append("data_dir", fmt.Errorf("%s exists but is not a directory", c.DataDir))
			}
		} else if !os.IsNotExist(err) {
			errs = errs.Append("data_dir", fmt.Errorf("cannot access %s: %w", c.DataDir, err))
		}
	}

	return errs
}

// validateCollector checks the collector url and headers.
func (c *Config) validateCollector(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	if c.Collector.URL != "" {
		if err := validateURL(c.Collector.URL); err != nil {
			errs = errs.Append("collector.url", err)
		} else if strings.HasSuffix(c.Collector.URL, "/") {
			errs = errs.Append("collector.url", fmt.Errorf("must not end with a slash"))
		}
	}

	keys := make([]string, 0, len(c.Collector.Headers))
	for k := range c.Collector.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if strings.TrimSpace(k) == "" || strings.ContainsAny(k, " :\r\n") {
			errs = errs.Append(fmt.Sprintf("collector.headers[%q]", k), fmt.Errorf("invalid header name"))
		}
	}

	return errs
}

// validateRoutes checks each route pattern and content type.
func (c *Config) validateRoutes(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	for i, r := range c.Routes {
		field := fmt.Sprintf("routes[%d]", i)
		if r.Pattern == "" {
			errs = errs.Append(field+".pattern", fmt.Errorf("pattern cannot be empty"))
		} else if !doublestar.ValidatePattern(r.Pattern) {
			errs = errs.Append(field+".pattern", fmt.Errorf("invalid glob %q", r.Pattern))
		} else if !strings.HasPrefix(r.Pattern, "/") {
			errs = errs.Append(field+".pattern", fmt.Errorf("pattern %q must start with /", r.Pattern))
		}
		if !r.ContentType.Valid() {
			errs = errs.Append(field+".content_type", fmt.Errorf("unknown content type %q", r.ContentType))
		} else if r.ContentType == engagement.ContentGeneral {
			errs = errs.Append(field+".content_type", fmt.Errorf("general is the fallback and cannot be routed"))
		}
	}
	return errs
}

// validateMedia checks media thresholds.
func (c *Config) validateMedia(errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	kinds := make([]string, 0, len(c.Media))
	for k := range c.Media {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	for _, k := range kinds {
		th := c.Media[content.MediaKind(k)]
		field := "media." + k
		if th.Completion <= 0 || th.Completion > 1 {
			errs = errs.Append(field+".completion", fmt.Errorf("must be in (0, 1], got %v", th.Completion))
		}
		if th.MinWatch < 0 {
			errs = errs.Append(field+".min_watch", fmt.Errorf("must not be negative"))
		}
	}
	return errs
}
