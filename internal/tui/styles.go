package tui

import (
	"strings"

	"charm.land/lipgloss/v2"
)

const accentColor = "#7C6FF0"

var bannerLines = []string{
	"PromptWise",
	"Turn rough prompts into precise ones.",
}

// Styles contains all lipgloss styles for the interface.
type Styles struct {
	Banner    lipgloss.Style
	Tagline   lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Error     lipgloss.Style
	Prompt    lipgloss.Style
	Separator lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Banner:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentColor)),
		Tagline:   lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		System:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Prompt:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Separator: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// RenderBanner returns the styled banner shown atop the transcript.
func (s Styles) RenderBanner() string {
	var b strings.Builder
	_, _ = b.WriteString(s.Banner.Render(bannerLines[0]))
	_, _ = b.WriteString("\n")
	_, _ = b.WriteString(s.Tagline.Render(bannerLines[1]))
	_, _ = b.WriteString("\n")
	return b.String()
}
