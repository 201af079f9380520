package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/studytrack/internal/collectd"
	"github.com/hay-kot/studytrack/internal/report"
)

// SessionsView lists the latest digest of every session seen on the stream,
// most recently synced first.
type SessionsView struct {
	sessions []collectd.SessionDigest
	cursor   int
	width    int
	height   int
	offset   int
}

// NewSessionsView creates an empty sessions view.
func NewSessionsView() *SessionsView {
	return &SessionsView{}
}

// Upsert records a session digest, moving it to the top.
func (v *SessionsView) Upsert(d collectd.SessionDigest) {
	for i := range v.sessions {
		if v.sessions[i].SessionID == d.SessionID {
			v.sessions = append(v.sessions[:i], v.sessions[i+1:]...)
			break
		}
	}
	v.sessions = append([]collectd.SessionDigest{d}, v.sessions...)
	v.clampOffset()
}

// Len returns the number of tracked sessions.
func (v *SessionsView) Len() int {
	return len(v.sessions)
}

// Selected returns the selected session, or nil if none.
func (v *SessionsView) Selected() *collectd.SessionDigest {
	if v.cursor >= len(v.sessions) {
		return nil
	}
	return &v.sessions[v.cursor]
}

// SetSize sets the viewport dimensions.
func (v *SessionsView) SetSize(width, height int) {
	v.width = width
	v.height = height
	v.clampOffset()
}

// MoveUp moves cursor up.
func (v *SessionsView) MoveUp() {
	if v.cursor > 0 {
		v.cursor--
		v.clampOffset()
	}
}

// MoveDown moves cursor down.
func (v *SessionsView) MoveDown() {
	if v.cursor < len(v.sessions)-1 {
		v.cursor++
		v.clampOffset()
	}
}

// Clear drops all sessions.
func (v *SessionsView) Clear() {
	v.sessions = nil
	v.cursor = 0
	v.offset = 0
}

func (v *SessionsView) visibleLines() int {
	return max(v.height-1, 1)
}

func (v *SessionsView) clampOffset() {
	visible := v.visibleLines()
	if v.cursor < v.offset {
		v.offset = v.cursor
	} else if v.cursor >= v.offset+visible {
		v.offset = v.cursor - visible + 1
	}
	v.offset = max(min(v.offset, len(v.sessions)-visible), 0)
}

// View renders the sessions view.
func (v *SessionsView) View() string {
	var b strings.Builder

	b.WriteString("  ")
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-16s %-12s %9s %9s %5s %6s %5s  %s",
		"Session", "User", "Duration", "Active", "Pages", "Inter.", "Score", "State")))
	b.WriteString("\n")

	if len(v.sessions) == 0 {
		b.WriteString(mutedStyle.Render("  No sessions synced yet"))
		b.WriteString("\n")
		return b.String()
	}

	end := min(v.offset+v.visibleLines(), len(v.sessions))
	for i := v.offset; i < end; i++ {
		b.WriteString(v.renderLine(&v.sessions[i], i == v.cursor))
		b.WriteString("\n")
	}

	return b.String()
}

func (v *SessionsView) renderLine(d *collectd.SessionDigest, selected bool) string {
	var b strings.Builder

	if selected {
		b.WriteString(selectedBorderStyle.Render("┃"))
		b.WriteString(" ")
	} else {
		b.WriteString("  ")
	}

	idStyle := lipgloss.NewStyle().Foreground(ColorForString(d.SessionID))
	if selected {
		idStyle = idStyle.Bold(true)
	}
	b.WriteString(idStyle.Render(fmt.Sprintf("%-16s", truncate(d.SessionID, 16))))
	b.WriteString(" ")

	user := "-"
	if d.UserID != nil {
		user = *d.UserID
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%-12s", truncate(user, 12))))
	b.WriteString(" ")

	fmt.Fprintf(&b, "%9s %9s %5d %6d ",
		report.Seconds(d.Duration),
		report.Seconds(d.ActiveDuration),
		d.PageViews,
		d.Interactions,
	)
	b.WriteString(scoreStyle(d.EngagementScore).Render(fmt.Sprintf("%5d", d.EngagementScore)))
	b.WriteString("  ")

	if d.EndTime != nil {
		b.WriteString(mutedStyle.Render("ended"))
	} else {
		b.WriteString(statusConnectedStyle.Render("live"))
	}

	return b.String()
}

func scoreStyle(score int) lipgloss.Style {
	switch {
	case score >= 70:
		return statusConnectedStyle
	case score >= 40:
		return statusConnectingStyle
	default:
		return statusDownStyle
	}
}
