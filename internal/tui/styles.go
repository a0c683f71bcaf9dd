package tui

import (
	"github.com/Sternrassler/catalog-client/internal/views"
	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	colorPrimary = lipgloss.Color("#101F38")
	colorAccent  = lipgloss.Color("#8BC34A")
	colorMuted   = lipgloss.Color("#6B7280")
	colorError   = lipgloss.Color("#E53935")
	colorWarning = lipgloss.Color("#FFC107")
	colorInfo    = lipgloss.Color("#2196F3")
)

// Styles holds the lipgloss styles of the browser.
type Styles struct {
	Header   lipgloss.Style
	Title    lipgloss.Style
	Price    lipgloss.Style
	Muted    lipgloss.Style
	Error    lipgloss.Style
	Selected lipgloss.Style
	Chip     lipgloss.Style
	Active   lipgloss.Style
	Button   lipgloss.Style
	Badge    lipgloss.Style
	Help     lipgloss.Style

	BannerFetching lipgloss.Style
	BannerStale    lipgloss.Style
	BannerUpToDate lipgloss.Style
}

// DefaultStyles returns the default styles.
func DefaultStyles() Styles {
	banner := lipgloss.NewStyle().Padding(0, 1).Bold(true)
	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		Title:    lipgloss.NewStyle().Bold(true),
		Price:    lipgloss.NewStyle().Foreground(colorAccent),
		Muted:    lipgloss.NewStyle().Foreground(colorMuted),
		Error:    lipgloss.NewStyle().Bold(true).Foreground(colorError),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		Chip:     lipgloss.NewStyle().Padding(0, 1).Foreground(colorMuted),
		Active:   lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(colorPrimary).Background(colorAccent),
		Button:   lipgloss.NewStyle().Padding(0, 2).Bold(true).Foreground(colorPrimary).Background(colorAccent),
		Badge:    lipgloss.NewStyle().Foreground(colorAccent),
		Help:     lipgloss.NewStyle().Foreground(colorMuted).Italic(true),

		BannerFetching: banner.Foreground(colorInfo),
		BannerStale:    banner.Foreground(colorWarning),
		BannerUpToDate: banner.Foreground(colorAccent),
	}
}

// Banner returns the style of b.
func (s Styles) Banner(b views.Banner) lipgloss.Style {
	switch b {
	case views.BannerFetching:
		return s.BannerFetching
	case views.BannerStale:
		return s.BannerStale
	default:
		return s.BannerUpToDate
	}
}
