// Package history lists stored conversations and lets the user reopen one.
package history

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/codeinsight/internal/keys"
	"github.com/nhle/codeinsight/internal/model"
	"github.com/nhle/codeinsight/internal/store"
	"github.com/nhle/codeinsight/internal/theme"
)

// PageSize is the number of conversations loaded at once.
const PageSize = 50

// LoadedMsg is sent when conversations have been loaded from the store.
type LoadedMsg struct {
	Conversations []model.Conversation
	Err           error
}

// SelectedMsg is sent when the user picks a conversation.
type SelectedMsg struct {
	Conversation model.Conversation
}

// CloseMsg asks the parent to leave the history view.
type CloseMsg struct{}

// Model is the history browser view.
type Model struct {
	list        list.Model
	store       store.Store
	keys        *keys.KeyMap
	query       string
	searchMode  bool
	searchInput textinput.Model
	err         error
	width       int
	height      int
}

// New creates a history browser over s.
func New(s store.Store, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "History"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search conversations..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        l,
		store:       s,
		keys:        k,
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// Init returns a command that loads the recent conversations.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Update handles messages for the history view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.err = msg.Err
		items := make([]list.Item, len(msg.Conversations))
		for i, c := range msg.Conversations {
			items[i] = ConversationItem{Conversation: c}
		}
		return m, m.list.SetItems(items)

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		m.query = strings.TrimSpace(m.searchInput.Value())
		return m, m.Load()

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		m.query = ""
		return m, m.Load()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Send):
		item, ok := m.list.SelectedItem().(ConversationItem)
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return SelectedMsg{Conversation: item.Conversation}
		}

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.Reset()
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.Back):
		return m, func() tea.Msg { return CloseMsg{} }
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the history view.
func (m Model) View() string {
	if m.searchMode {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, searchBar, m.list.View())
	}

	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}

	return m.list.View()
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.err != nil:
		return style.Render("Could not load history:\n" + m.err.Error())
	case m.query != "":
		return style.Render("No conversations match \"" + m.query + "\".")
	default:
		return style.Render("No conversations yet.\n\nExplain some code to start one.")
	}
}

// Load returns a tea.Cmd that lists recent conversations, or searches them
// when a query is set.
func (m Model) Load() tea.Cmd {
	s := m.store
	query := m.query
	return func() tea.Msg {
		ctx := context.Background()
		var (
			convs []model.Conversation
			err   error
		)
		if query != "" {
			convs, err = s.Search(ctx, query, PageSize)
		} else {
			convs, err = s.List(ctx, store.ConversationFilter{Limit: PageSize})
		}
		return LoadedMsg{Conversations: convs, Err: err}
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
