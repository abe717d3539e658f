// Package ui holds the frame shared by every view: title bar, content
// area and status bar.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/codeinsight/internal/model"
	"github.com/nhle/codeinsight/internal/theme"
)

// Layout manages the terminal frame dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with one-line header and status bar.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentHeight returns the height left for the active view.
func (l Layout) ContentHeight() int {
	return max(l.Height-l.HeaderHeight-l.StatusBarHeight, 0)
}

// RenderHeader renders the title bar: app title, mode badge and a right
// aligned status such as the detected language.
func (l Layout) RenderHeader(title string, mode model.UIMode, status string) string {
	left := theme.HeaderStyle.Render(title)
	badge := theme.ModeStyle(mode).
		Background(theme.HeaderStyle.GetBackground()).
		Render(mode.Label())
	right := theme.HeaderStyle.Render(status)

	return fill(l.Width, theme.HeaderStyle, left, badge, right)
}

// RenderStatusBar renders the bottom bar with keyboard hints or a notice.
func (l Layout) RenderStatusBar(hints string) string {
	return fill(l.Width, theme.StatusBarStyle, theme.StatusBarStyle.Render(hints), "", "")
}

// Frame stacks header, content and status bar.
func (l Layout) Frame(header, content, statusBar string) string {
	content = lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

// fill joins left, mid and right, padding between mid and right with the
// style's background.
func fill(width int, style lipgloss.Style, left, mid, right string) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(mid) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, left, mid, filler, right)
}
