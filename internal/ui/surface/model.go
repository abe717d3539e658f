// Package surface is the conversation view: the code pane, the insight or
// transcript pane, and the chat input.
package surface

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/codeinsight/internal/keys"
	"github.com/nhle/codeinsight/internal/modestate"
	"github.com/nhle/codeinsight/internal/theme"
	"github.com/nhle/codeinsight/internal/ui/render"
)

// SendMsg asks the host to send Text as a chat message.
type SendMsg struct {
	Text string
}

const inputHeight = 3

// Model is the Bubble Tea model for one conversation surface.
type Model struct {
	snap     modestate.Snapshot
	renderer *render.Renderer
	code     viewport.Model
	convo    viewport.Model
	input    textarea.Model
	keys     *keys.KeyMap
	typing   bool
	noAPIKey bool
	width    int
	height   int

	// renderedCode caches the highlighted source, which only changes on
	// load.
	renderedCode string
	codeSource   string
}

// New creates a surface of the given size.
func New(r *render.Renderer, k *keys.KeyMap, width, height int) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask about this code..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.SetHeight(inputHeight)
	ta.CharLimit = 4000

	m := Model{
		renderer: r,
		code:     viewport.New(0, 0),
		convo:    viewport.New(0, 0),
		input:    ta,
		keys:     k,
	}
	m.SetSize(width, height)
	return m
}

// Init returns the initial command for the surface.
func (m Model) Init() tea.Cmd {
	return nil
}

// Typing reports whether the chat input has focus.
func (m Model) Typing() bool {
	return m.typing
}

// SetNoAPIKey toggles the missing-credential hint.
func (m *Model) SetNoAPIKey(missing bool) {
	m.noAPIKey = missing
	m.refresh()
}

// SetSnapshot shows s and scrolls the conversation to the bottom.
func (m *Model) SetSnapshot(s modestate.Snapshot) {
	modeChanged := s.Mode != m.snap.Mode
	m.snap = s
	if modeChanged {
		m.SetSize(m.width, m.height)
		if !s.Mode.ChatLike() {
			m.Blur()
		}
		return
	}
	m.refresh()
}

// Update handles messages for the surface.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.convo, cmd = m.convo.Update(msg)
		return m, cmd
	}

	if m.typing {
		return m.handleInputKey(keyMsg)
	}

	switch {
	case key.Matches(keyMsg, m.keys.Focus):
		if !m.snap.Mode.ChatLike() {
			return m, nil
		}
		m.typing = true
		return m, m.input.Focus()

	case key.Matches(keyMsg, m.keys.Down):
		m.convo.ScrollDown(1)
		return m, nil

	case key.Matches(keyMsg, m.keys.Up):
		m.convo.ScrollUp(1)
		return m, nil
	}

	var cmd tea.Cmd
	m.convo, cmd = m.convo.Update(msg)
	return m, cmd
}

func (m Model) handleInputKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.Blur()
		return m, nil

	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.snap.Streaming || m.snap.Awaiting {
			return m, nil
		}
		m.input.Reset()
		return m, func() tea.Msg { return SendMsg{Text: text} }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// Blur takes focus away from the chat input.
func (m *Model) Blur() {
	m.typing = false
	m.input.Blur()
}

// SetSize updates the pane dimensions for the current mode.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height

	codeW, convoW := m.paneWidths()
	paneH := height - 2
	if m.snap.Mode.ChatLike() {
		paneH -= inputHeight + 2
	}
	if paneH < 3 {
		paneH = 3
	}

	m.code.Width = max(codeW-4, 0)
	m.code.Height = paneH
	m.convo.Width = max(convoW-4, 0)
	m.convo.Height = paneH
	m.input.SetWidth(max(convoW-4, 10))

	if m.renderer != nil {
		m.renderer.SetWidth(m.convo.Width)
	}
	m.codeSource = ""
	m.refresh()
}

// paneWidths splits the width between the code and conversation panes.
// Smart chat has no code pane.
func (m Model) paneWidths() (code, convo int) {
	if m.snap.Code == "" && m.snap.Mode.ChatLike() {
		return 0, m.width
	}
	code = m.width * 2 / 5
	return code, m.width - code
}

func (m *Model) refresh() {
	if m.renderer == nil {
		return
	}

	if m.snap.Code != m.codeSource {
		m.codeSource = m.snap.Code
		m.renderedCode = m.renderer.Code(m.snap.Code)
	}
	m.code.SetContent(m.renderedCode)

	m.convo.SetContent(m.renderConversation())
	m.convo.GotoBottom()
}

func (m Model) renderConversation() string {
	if m.noAPIKey {
		return theme.HelpStyle.Render("No API key configured.\n\n" +
			"Run :setup, `insight auth set`, or set INSIGHT_API_KEY.")
	}

	var body string
	if m.snap.Mode.ChatLike() {
		body = m.renderer.Transcript(m.snap.Transcript)
	} else {
		body = m.renderer.Markdown(m.snap.Insight)
	}

	if body == "" && m.snap.Code == "" {
		body = theme.HelpStyle.Render("Load some code with :load <path>, or pipe it in.")
	}

	switch {
	case m.snap.Streaming:
		body += "\n" + theme.HelpStyle.Render("explaining...")
	case m.snap.Awaiting:
		body += "\n" + theme.HelpStyle.Render("thinking...")
	}
	return body
}

// View renders the surface.
func (m Model) View() string {
	codeW, convoW := m.paneWidths()

	convoPane := m.convo.View()
	if m.snap.Mode.ChatLike() {
		sep := lipgloss.NewStyle().Foreground(theme.ColorSubtle).
			Render(strings.Repeat("─", max(convoW-4, 0)))
		convoPane = lipgloss.JoinVertical(lipgloss.Left, convoPane, sep, m.input.View())
	}

	convoStyle := theme.PanelStyle
	if m.typing {
		convoStyle = theme.FocusedPanelStyle
	}
	right := convoStyle.Width(max(convoW-2, 0)).Render(convoPane)

	if codeW == 0 {
		return right
	}
	left := theme.PanelStyle.Width(max(codeW-2, 0)).Render(m.code.View())
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}
