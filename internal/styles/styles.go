// Package styles provides shared lipgloss styles for CLI and TUI components.
package styles

import (
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// Tokyo Night color palette.
var (
	ColorGreen  = lipgloss.Color("#9ece6a")
	ColorYellow = lipgloss.Color("#e0af68")
	ColorBlue   = lipgloss.Color("#7aa2f7")
	ColorRed    = lipgloss.Color("#f7768e")
	ColorPurple = lipgloss.Color("#bb9af7")
	ColorCyan   = lipgloss.Color("#7dcfff")
	ColorGray   = lipgloss.Color("#565f89")
	ColorWhite  = lipgloss.Color("#c0caf5")
	ColorBg     = lipgloss.Color("#1a1b26")
)

// Banner ASCII art for the header.
const Banner = `
 ╔═╗╔╦╗╦ ╦╔╦╗╦ ╦╔╦╗╦═╗╔═╗╔═╗╦╔═
 ╚═╗ ║ ║ ║ ║║╚╦╝ ║ ╠╦╝╠═╣║  ╠╩╗
 ╚═╝ ╩ ╚═╝═╩╝ ╩  ╩ ╩╚═╩ ╩╚═╝╩ ╩`

// BannerStyle styles the ASCII art banner.
var BannerStyle = lipgloss.NewStyle().
	Foreground(ColorBlue).
	Bold(true)

// DividerStyle styles horizontal dividers.
var DividerStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// FormTheme returns the huh theme used by interactive prompts.
func FormTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = t.Focused.Title.Foreground(ColorBlue).Bold(true)
	t.Focused.Description = t.Focused.Description.Foreground(ColorGray)
	t.Focused.FocusedButton = t.Focused.FocusedButton.Foreground(ColorBg).Background(ColorBlue).Bold(true)
	t.Focused.BlurredButton = t.Focused.BlurredButton.Foreground(ColorWhite).Background(lipgloss.Color("#24283b"))
	t.Focused.ErrorMessage = t.Focused.ErrorMessage.Foreground(ColorRed)

	return t
}
