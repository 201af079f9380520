// Package activity derives a process-wide "is the user active" signal from raw
// input and visibility events.
package activity

import "time"

// EventType identifies the kind of raw input that produced an Event.
type EventType string

const (
	EventClick      EventType = "click"
	EventMouseMove  EventType = "mousemove"
	EventScroll     EventType = "scroll"
	EventKeypress   EventType = "keypress"
	EventFocus      EventType = "focus"
	EventBlur       EventType = "blur"
	EventVisibility EventType = "visibility"
)

// IsActivity reports whether the event type counts as user activity.
// Blur and visibility changes are recorded but never count as activity.
func (t EventType) IsActivity() bool {
	switch t {
	case EventClick, EventMouseMove, EventScroll, EventKeypress, EventFocus:
		return true
	default:
		return false
	}
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return t.IsActivity() || t == EventBlur || t == EventVisibility
}

// Event is an immutable record of a single raw input event.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// history is a bounded event log that silently drops its oldest entries.
type history struct {
	max    int
	events []Event
}

func newHistory(max int) *history {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &history{max: max, events: make([]Event, 0, max)}
}

func (h *history) add(e Event) {
	h.events = append(h.events, e)
	if len(h.events) > h.max {
		h.events = h.events[len(h.events)-h.max:]
	}
}

// all returns a copy of the log, oldest first.
func (h *history) all() []Event {
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

// recent returns a copy of the newest n entries, oldest first.
func (h *history) recent(n int) []Event {
	if n <= 0 {
		return []Event{}
	}
	if n > len(h.events) {
		n = len(h.events)
	}
	out := make([]Event, n)
	copy(out, h.events[len(h.events)-n:])
	return out
}

func (h *history) clear() {
	h.events = h.events[:0]
}
