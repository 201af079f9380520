// Package session aggregates one browsing session: navigation path, content
// interactions and session-level engagement, persisted locally and synced to
// the collector.
package session

import (
	"os"
	"runtime"
	"time"

	"github.com/hay-kot/studytrack/internal/core/engagement"
)

// DefaultMaxEntries caps the navigation path and interaction log.
const DefaultMaxEntries = 500

// NavigationEntry records one page view.
type NavigationEntry struct {
	Timestamp   time.Time              `json:"timestamp"`
	URL         string                 `json:"url"`
	PageTitle   string                 `json:"pageTitle,omitempty"`
	ContentType engagement.ContentType `json:"contentType,omitempty"`
	ContentID   string                 `json:"contentId,omitempty"`
}

// ContentInteraction records one action taken on a piece of content.
type ContentInteraction struct {
	Timestamp   time.Time              `json:"timestamp"`
	ContentType engagement.ContentType `json:"contentType"`
	ContentID   string                 `json:"contentId"`
	Action      string                 `json:"action"`
	Metadata    map[string]any         `json:"metadata,omitempty"`
	Duration    *float64               `json:"duration,omitempty"`
	ActiveTime  *float64               `json:"activeTime,omitempty"`
}

// DeviceInfo describes the host the session runs on. Collected once.
type DeviceInfo struct {
	UserAgent string `json:"userAgent"`
	Platform  string `json:"platform"`
	Arch      string `json:"arch"`
	Language  string `json:"language,omitempty"`
	Timezone  string `json:"timezone"`
	Hostname  string `json:"hostname,omitempty"`
}

// DetectDeviceInfo builds a DeviceInfo from the running process.
func DetectDeviceInfo(userAgent string) DeviceInfo {
	host, _ := os.Hostname()
	zone, _ := time.Now().Zone()

	lang := os.Getenv("LC_ALL")
	if lang == "" {
		lang = os.Getenv("LANG")
	}

	return DeviceInfo{
		UserAgent: userAgent,
		Platform:  runtime.GOOS,
		Arch:      runtime.GOARCH,
		Language:  lang,
		Timezone:  zone,
		Hostname:  host,
	}
}

// Data is the full session snapshot sent to the collector and persisted
// locally. Durations are in seconds.
type Data struct {
	SessionID           string               `json:"sessionId"`
	UserID              *string              `json:"userId"`
	StartTime           time.Time            `json:"startTime"`
	EndTime             *time.Time           `json:"endTime,omitempty"`
	Duration            float64              `json:"duration"`
	ActiveDuration      float64              `json:"activeDuration"`
	NavigationPath      []NavigationEntry    `json:"navigationPath"`
	ContentInteractions []ContentInteraction `json:"contentInteractions"`
	EngagementMetrics   engagement.Metrics   `json:"engagementMetrics"`
	DeviceInfo          DeviceInfo           `json:"deviceInfo"`
}

// trimOldest keeps at most max trailing elements of s.
func trimOldest[T any](s []T, max int) []T {
	if max <= 0 || len(s) <= max {
		return s
	}
	return append(s[:0:0], s[len(s)-max:]...)
}
