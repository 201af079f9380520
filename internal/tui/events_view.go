package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/studytrack/internal/core/events"
)

// DefaultMaxEvents bounds the events kept in the view.
const DefaultMaxEvents = 1000

// EventsView is a compact single-line renderer for streamed events:
// time [session] event_type content user age
type EventsView struct {
	events     []events.Event // newest first
	max        int
	cursor     int
	width      int
	height     int
	offset     int // scroll offset for viewport
	filtering  bool
	filter     string
	filteredAt []int // indices of events matching filter
	now        func() time.Time
}

// NewEventsView creates an events view holding at most limit events.
func NewEventsView(limit int) *EventsView {
	if limit <= 0 {
		limit = DefaultMaxEvents
	}
	return &EventsView{
		max:        limit,
		filteredAt: make([]int, 0),
		now:        time.Now,
	}
}

// Prepend adds a batch of events in arrival order, newest ending up on top.
// The oldest events fall off once the view is full.
func (v *EventsView) Prepend(batch []events.Event) {
	if len(batch) == 0 {
		return
	}

	selected := v.Selected()

	merged := make([]events.Event, 0, len(batch)+len(v.events))
	for i := len(batch) - 1; i >= 0; i-- {
		merged = append(merged, batch[i])
	}
	merged = append(merged, v.events...)
	if len(merged) > v.max {
		merged = merged[:v.max]
	}
	v.events = merged
	v.applyFilter()

	// keep the selection on the same event while new ones arrive
	if selected != nil && v.cursor > 0 {
		v.cursor = min(v.cursor+v.countMatching(batch), max(len(v.filteredAt)-1, 0))
		v.clampOffset()
	}
}

// Clear drops all events.
func (v *EventsView) Clear() {
	v.events = nil
	v.cursor = 0
	v.offset = 0
	v.applyFilter()
}

// Len returns the number of held events.
func (v *EventsView) Len() int {
	return len(v.events)
}

// Visible returns the number of events passing the filter.
func (v *EventsView) Visible() int {
	return len(v.filteredAt)
}

// SetSize sets the viewport dimensions.
func (v *EventsView) SetSize(width, height int) {
	v.width = width
	v.height = height
	v.clampOffset()
}

// visibleLines returns the number of visible event lines.
func (v *EventsView) visibleLines() int {
	// column header
	reserved := 1
	if v.filtering || v.filter != "" {
		reserved++
	}
	return max(v.height-reserved, 1)
}

// clampOffset ensures the offset keeps the cursor visible.
func (v *EventsView) clampOffset() {
	visible := v.visibleLines()
	total := len(v.filteredAt)

	if v.cursor < v.offset {
		v.offset = v.cursor
	} else if v.cursor >= v.offset+visible {
		v.offset = v.cursor - visible + 1
	}

	v.offset = max(min(v.offset, total-visible), 0)
}

// MoveUp moves cursor up.
func (v *EventsView) MoveUp() {
	if v.cursor > 0 {
		v.cursor--
		v.clampOffset()
	}
}

// MoveDown moves cursor down.
func (v *EventsView) MoveDown() {
	if v.cursor < len(v.filteredAt)-1 {
		v.cursor++
		v.clampOffset()
	}
}

// Selected returns the selected event, or nil if none.
func (v *EventsView) Selected() *events.Event {
	if len(v.filteredAt) == 0 || v.cursor >= len(v.filteredAt) {
		return nil
	}
	return &v.events[v.filteredAt[v.cursor]]
}

// StartFilter begins filter input mode.
func (v *EventsView) StartFilter() {
	v.filtering = true
	v.filter = ""
	v.applyFilter()
}

// CancelFilter ends filter input and clears the filter.
func (v *EventsView) CancelFilter() {
	v.filtering = false
	v.filter = ""
	v.applyFilter()
}

// ConfirmFilter keeps the filter and exits filter input mode.
func (v *EventsView) ConfirmFilter() {
	v.filtering = false
}

// IsFiltering returns true if filter input is active.
func (v *EventsView) IsFiltering() bool {
	return v.filtering
}

// AddFilterRunes appends to the filter.
func (v *EventsView) AddFilterRunes(rs []rune) {
	v.filter += string(rs)
	v.applyFilter()
}

// DeleteFilterRune removes the last rune from the filter.
func (v *EventsView) DeleteFilterRune() {
	rs := []rune(v.filter)
	if len(rs) == 0 {
		return
	}
	v.filter = string(rs[:len(rs)-1])
	v.applyFilter()
}

// applyFilter updates filteredAt based on current filter.
func (v *EventsView) applyFilter() {
	v.filteredAt = v.filteredAt[:0]
	filter := strings.ToLower(v.filter)

	for i := range v.events {
		if filter == "" || matchesFilter(&v.events[i], filter) {
			v.filteredAt = append(v.filteredAt, i)
		}
	}

	if v.cursor >= len(v.filteredAt) {
		v.cursor = 0
	}
	v.clampOffset()
}

func (v *EventsView) countMatching(batch []events.Event) int {
	if v.filter == "" {
		return len(batch)
	}
	filter := strings.ToLower(v.filter)
	n := 0
	for i := range batch {
		if matchesFilter(&batch[i], filter) {
			n++
		}
	}
	return n
}

// matchesFilter checks if an event matches the lowercased filter.
func matchesFilter(e *events.Event, filter string) bool {
	return strings.Contains(strings.ToLower(e.EventType), filter) ||
		strings.Contains(strings.ToLower(e.SessionID), filter) ||
		strings.Contains(strings.ToLower(contentOf(e)), filter) ||
		(e.UserID != nil && strings.Contains(strings.ToLower(*e.UserID), filter))
}

// contentOf returns the content id an interaction event refers to.
func contentOf(e *events.Event) string {
	if id, ok := e.EventData["contentId"].(string); ok {
		return id
	}
	return ""
}

// View renders the events view.
func (v *EventsView) View() string {
	var b strings.Builder

	const (
		timeWidth    = 8  // "14:32:01"
		sessionWidth = 14 // "[sess-xxxxxxx]"
		typeWidth    = 26 // "flashcard_card_confidence"
		userWidth    = 12
		ageWidth     = 4 // "2m", "1h", "3d"
		padding      = 5
	)
	contentWidth := max(v.width-timeWidth-sessionWidth-typeWidth-userWidth-ageWidth-padding-4, 10)

	if v.filtering {
		b.WriteString(" ")
		b.WriteString(viewSelectedStyle.Render("Filter: "))
		b.WriteString(v.filter)
		b.WriteString("▎\n")
	} else if v.filter != "" {
		b.WriteString(" ")
		b.WriteString(mutedStyle.Render(fmt.Sprintf("Filter: %s", v.filter)))
		b.WriteString("\n")
	}

	b.WriteString("  ")
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-*s %-*s %-*s %-*s %-*s %*s",
		timeWidth, "Time",
		sessionWidth, "Session",
		typeWidth, "Event",
		contentWidth, "Content",
		userWidth, "User",
		ageWidth, "Age",
	)))
	b.WriteString("\n")

	if len(v.filteredAt) == 0 {
		if len(v.events) == 0 {
			b.WriteString(mutedStyle.Render("  Waiting for events…"))
		} else {
			b.WriteString(mutedStyle.Render("  No matching events"))
		}
		b.WriteString("\n")
		return b.String()
	}

	end := min(v.offset+v.visibleLines(), len(v.filteredAt))
	for i := v.offset; i < end; i++ {
		e := &v.events[v.filteredAt[i]]
		b.WriteString(v.renderLine(e, i == v.cursor, sessionWidth, typeWidth, contentWidth, userWidth, ageWidth))
		b.WriteString("\n")
	}

	return b.String()
}

// renderLine renders a single event line.
func (v *EventsView) renderLine(e *events.Event, selected bool, sessionW, typeW, contentW, userW, ageW int) string {
	var b strings.Builder

	if selected {
		b.WriteString(selectedBorderStyle.Render("┃"))
		b.WriteString(" ")
	} else {
		b.WriteString("  ")
	}

	b.WriteString(mutedStyle.Render(e.Timestamp.Local().Format("15:04:05")))
	b.WriteString(" ")

	sessionStyle := lipgloss.NewStyle().Foreground(ColorForString(e.SessionID))
	b.WriteString(sessionStyle.Render(fmt.Sprintf("[%-*s]", sessionW-2, truncate(e.SessionID, sessionW-2))))
	b.WriteString(" ")

	prefix, _, _ := strings.Cut(e.EventType, "_")
	typeStyle := lipgloss.NewStyle().Foreground(ColorForString(prefix))
	if selected {
		typeStyle = typeStyle.Bold(true)
	}
	b.WriteString(typeStyle.Render(fmt.Sprintf("%-*s", typeW, truncate(e.EventType, typeW))))
	b.WriteString(" ")

	contentStyle := lipgloss.NewStyle().Foreground(colorWhite)
	b.WriteString(contentStyle.Render(fmt.Sprintf("%-*s", contentW, truncate(contentOf(e), contentW))))
	b.WriteString(" ")

	user := "-"
	if e.UserID != nil {
		user = *e.UserID
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%-*s", userW, truncate(user, userW))))
	b.WriteString(" ")

	b.WriteString(mutedStyle.Render(fmt.Sprintf("%*s", ageW, formatAge(v.now().Sub(e.Timestamp)))))

	return b.String()
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	if n <= 1 {
		return string(rs[:n])
	}
	return string(rs[:n-1]) + "…"
}

// formatAge returns a compact relative time string.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", max(int(d.Seconds()), 0))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
