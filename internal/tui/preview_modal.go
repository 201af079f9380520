package tui

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/studytrack/internal/core/events"
)

// Event preview modal layout constants.
const (
	previewModalMaxWidth  = 100 // maximum modal width in columns
	previewModalMaxHeight = 30  // maximum modal height in rows
	previewModalMargin    = 4   // margin from screen edges
	previewModalChrome    = 8   // rows for title, metadata, help, and spacing
	previewModalPadding   = 4   // padding inside content area
	glamourGutter         = 2   // glamour adds gutter space
)

// PreviewModal displays one event's payload rendered as markdown.
type PreviewModal struct {
	event    events.Event
	viewport viewport.Model
}

// NewPreviewModal creates a preview modal for e.
func NewPreviewModal(e events.Event, width, height int) PreviewModal {
	modalWidth := min(width-previewModalMargin, previewModalMaxWidth)
	modalHeight := min(height-previewModalMargin, previewModalMaxHeight)
	contentHeight := max(modalHeight-previewModalChrome, 1)

	vp := viewport.New(modalWidth-previewModalPadding, contentHeight)

	m := PreviewModal{event: e, viewport: vp}
	m.renderContent(modalWidth - previewModalPadding - glamourGutter)
	return m
}

// Markdown returns the event payload as a markdown document.
func (m PreviewModal) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "**%s**\n\n", m.event.EventType)
	if ct, ok := m.event.EventData["contentType"].(string); ok {
		fmt.Fprintf(&b, "- content: %s `%s`\n", ct, contentOf(&m.event))
	}
	if d, ok := m.event.EventData["duration"].(float64); ok {
		fmt.Fprintf(&b, "- duration: %.1fs\n", d)
	}
	if a, ok := m.event.EventData["activeTime"].(float64); ok {
		fmt.Fprintf(&b, "- active: %.1fs\n", a)
	}

	data, err := json.MarshalIndent(m.event.EventData, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf("%v", m.event.EventData))
	}
	b.WriteString("\n```json\n")
	b.Write(data)
	b.WriteString("\n```\n")

	return b.String()
}

// renderContent renders the payload with glamour, falling back to plain
// markdown.
func (m *PreviewModal) renderContent(width int) {
	md := m.Markdown()

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("tokyo-night"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.viewport.SetContent(md)
		return
	}

	rendered, err := renderer.Render(md)
	if err != nil {
		m.viewport.SetContent(md)
		return
	}

	content := strings.TrimSpace(rendered)
	content = stripLeadingDecorative(content)
	content = stripTrailingDecorative(content)
	m.viewport.SetContent(content)
}

// UpdateViewport forwards a message to the viewport (mouse wheel, paging).
func (m *PreviewModal) UpdateViewport(msg any) {
	m.viewport, _ = m.viewport.Update(msg)
}

// ScrollUp scrolls the viewport up.
func (m *PreviewModal) ScrollUp() {
	m.viewport.ScrollUp(1)
}

// ScrollDown scrolls the viewport down.
func (m *PreviewModal) ScrollDown() {
	m.viewport.ScrollDown(1)
}

// Overlay renders the preview modal centered over the screen.
func (m PreviewModal) Overlay(width, height int) string {
	modalWidth := min(width-previewModalMargin, previewModalMaxWidth)
	modalHeight := min(height-previewModalMargin, previewModalMaxHeight)

	user := "anonymous"
	if m.event.UserID != nil {
		user = *m.event.UserID
	}
	sessionStr := lipgloss.NewStyle().Foreground(ColorForString(m.event.SessionID)).Bold(true).Render(m.event.SessionID)
	metadata := fmt.Sprintf("%s %s %s %s %s",
		sessionStr,
		iconDot,
		previewUserStyle.Render(user),
		iconDot,
		mutedStyle.Render(m.event.Timestamp.Local().Format("2006-01-02 15:04:05")),
	)

	scrollInfo := ""
	if m.viewport.TotalLineCount() > m.viewport.VisibleLineCount() {
		scrollInfo = mutedStyle.Render(fmt.Sprintf(" (%.0f%%)", m.viewport.ScrollPercent()*100))
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		modalTitleStyle.Render("Event"+scrollInfo),
		"",
		metadata,
		previewDividerStyle.Render(strings.Repeat("─", max(modalWidth-previewModalPadding, 1))),
		m.viewport.View(),
		modalHelpStyle.Render("[↑/↓/j/k] scroll  [enter/esc] close"),
	)

	modal := modalStyle.
		Width(modalWidth).
		Height(modalHeight).
		Render(content)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modal)
}

var (
	previewUserStyle = lipgloss.NewStyle().
				Foreground(colorGreen)

	previewDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#3b4261"))
)

// ansiPattern matches ANSI escape sequences.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// isDecorativeLine reports whether a line holds only rule characters or
// whitespace once ANSI codes are stripped.
func isDecorativeLine(line string) bool {
	stripped := strings.TrimSpace(ansiPattern.ReplaceAllString(line, ""))
	for _, r := range stripped {
		if r != '─' && r != '━' && r != '-' && r != '=' {
			return false
		}
	}
	return true
}

func stripLeadingDecorative(content string) string {
	lines := strings.Split(content, "\n")
	start := 0
	for start < len(lines) && isDecorativeLine(lines[start]) {
		start++
	}
	return strings.Join(lines[start:], "\n")
}

func stripTrailingDecorative(content string) string {
	lines := strings.Split(content, "\n")
	end := len(lines)
	for end > 0 && isDecorativeLine(lines[end-1]) {
		end--
	}
	return strings.Join(lines[:end], "\n")
}
