// Package tui implements the Bubble Tea dashboard for studytrack watch.
package tui

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/studytrack/internal/styles"
)

var (
	colorGreen  = styles.ColorGreen
	colorYellow = styles.ColorYellow
	colorBlue   = styles.ColorBlue
	colorRed    = styles.ColorRed
	colorGray   = styles.ColorGray
	colorWhite  = styles.ColorWhite
)

var (
	bannerStyle = styles.BannerStyle.
			PaddingLeft(1).
			PaddingBottom(1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	selectedBorderStyle = lipgloss.NewStyle().
				Foreground(colorBlue)

	viewSelectedStyle = lipgloss.NewStyle().
				Foreground(colorBlue).
				Bold(true)

	viewNormalStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	statusConnectedStyle = lipgloss.NewStyle().
				Foreground(colorGreen)

	statusConnectingStyle = lipgloss.NewStyle().
				Foreground(colorYellow)

	statusDownStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBlue).
			Padding(1, 2)

	modalTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	modalHelpStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			MarginTop(1)
)

const iconDot = "•"

// palette holds the colors handed out by ColorForString.
var palette = []lipgloss.Color{
	styles.ColorBlue,
	styles.ColorGreen,
	styles.ColorYellow,
	styles.ColorPurple,
	styles.ColorCyan,
	lipgloss.Color("#ff9e64"),
	lipgloss.Color("#73daca"),
	lipgloss.Color("#2ac3de"),
}

// ColorForString returns a stable color for s, so the same session or
// content type is always drawn the same way.
func ColorForString(s string) lipgloss.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return palette[h.Sum32()%uint32(len(palette))]
}
