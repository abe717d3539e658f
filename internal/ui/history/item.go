package history

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/codeinsight/internal/model"
	"github.com/nhle/codeinsight/internal/theme"
)

// ConversationItem wraps a model.Conversation so it can be used in a
// bubbles/list.
type ConversationItem struct {
	Conversation model.Conversation
}

// FilterValue returns the string used for fuzzy filtering.
func (i ConversationItem) FilterValue() string { return i.Conversation.Title }

// Title returns the conversation title for the list.
func (i ConversationItem) Title() string { return i.Conversation.Title }

// Description returns a short summary line for the list.
func (i ConversationItem) Description() string {
	return fmt.Sprintf("%s | %s | %s",
		i.Conversation.Mode.Label(),
		i.Conversation.Language,
		relativeTime(i.Conversation.UpdatedAt, time.Now()),
	)
}

// ItemDelegate implements list.ItemDelegate for conversation rows.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages.
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ci, ok := item.(ConversationItem)
	if !ok {
		return
	}
	c := ci.Conversation

	modeBadge := theme.ModeStyle(c.Mode).Render(c.Mode.Short())

	lang := lipgloss.NewStyle().
		Foreground(theme.ColorYellow).
		Render(c.Language)

	timeStr := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(c.UpdatedAt, time.Now()))

	line := fmt.Sprintf("%s %s %s  %s", modeBadge, c.Title, lang, timeStr)

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}
