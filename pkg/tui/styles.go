package tui

import (
	"tokensite/pkg/models"

	"github.com/charmbracelet/lipgloss"
)

const (
	brandColor  = lipgloss.Color("#8247E5") // polygon purple
	accentColor = lipgloss.Color("#FAFAFA")
	mutedColor  = lipgloss.Color("241")
	okColor     = lipgloss.Color("#04B575")
	warnColor   = lipgloss.Color("#F5A623")
	failColor   = lipgloss.Color("#FF4D4F")
)

var (
	subtleStyle = lipgloss.NewStyle().Foreground(mutedColor)
	titleStyle  = lipgloss.NewStyle().
			Foreground(accentColor).
			Background(brandColor).
			Padding(0, 1).
			Bold(true)
	infoStyle  = lipgloss.NewStyle().Foreground(okColor)
	warnStyle  = lipgloss.NewStyle().Foreground(warnColor)
	errStyle   = lipgloss.NewStyle().Foreground(failColor)
	valueStyle = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(brandColor).
			Padding(0, 1)
	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(accentColor).
				Bold(true).
				Padding(0, 1)
)

// statusStyle colors the market status line.
func statusStyle(status models.SnapshotStatus) lipgloss.Style {
	switch status {
	case models.StatusReady:
		return subtleStyle
	case models.StatusLoading:
		return warnStyle
	default:
		return errStyle
	}
}
