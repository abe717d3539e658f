// Package render turns code, insights and transcripts into terminal text
// using glamour Markdown rendering.
package render

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/codeinsight/internal/langdetect"
	"github.com/nhle/codeinsight/internal/model"
	"github.com/nhle/codeinsight/internal/theme"
)

// Renderer renders Markdown at a fixed wrap width.
type Renderer struct {
	style string
	width int
	term  *glamour.TermRenderer
}

// New creates a Renderer for the given glamour style name and wrap width.
func New(style string, width int) *Renderer {
	r := &Renderer{style: theme.GlamourStyle(style)}
	r.SetWidth(width)
	return r
}

// SetWidth rebuilds the underlying renderer when the width changes.
func (r *Renderer) SetWidth(width int) {
	if width < 20 {
		width = 20
	}
	if r.term != nil && width == r.width {
		return
	}

	r.width = width
	term, err := glamour.NewTermRenderer(
		glamour.WithStylePath(r.style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		r.term = nil
		return
	}
	r.term = term
}

// Width returns the current wrap width.
func (r *Renderer) Width() int {
	return r.width
}

// Markdown renders md, returning it unchanged if glamour fails.
func (r *Renderer) Markdown(md string) string {
	if r.term == nil || strings.TrimSpace(md) == "" {
		return md
	}
	out, err := r.term.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}

// Code renders source code as a highlighted block tagged with its detected
// language.
func (r *Renderer) Code(code string) string {
	if code == "" {
		return ""
	}
	return r.Markdown(langdetect.Fence(code))
}

// Transcript renders messages with a role label above each one. System
// messages are shown as dim single lines.
func (r *Renderer) Transcript(messages []model.Message) string {
	var sections []string

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			sections = append(sections, theme.HelpStyle.Render(msg.Content))
		case model.RoleUser:
			sections = append(sections,
				theme.RoleStyle(msg.Role).Render("You"),
				r.userContent(msg.Content),
			)
		default:
			sections = append(sections,
				theme.RoleStyle(msg.Role).Render("Insight"),
				r.Markdown(msg.Content),
			)
		}
		sections = append(sections, "")
	}

	return strings.Join(sections, "\n")
}

// userContent renders code-looking user messages as a code block and plain
// questions as text.
func (r *Renderer) userContent(content string) string {
	if strings.Contains(content, "\n") {
		return r.Code(content)
	}
	return lipgloss.NewStyle().Foreground(theme.ColorWhite).Render(content)
}
