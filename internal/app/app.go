// Package app is the root Bubble Tea model. It routes messages between the
// views and drives the mode state machine from explanation streams, chat
// replies and user commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/codeinsight/internal/explain"
	"github.com/nhle/codeinsight/internal/keys"
	"github.com/nhle/codeinsight/internal/langdetect"
	"github.com/nhle/codeinsight/internal/model"
	"github.com/nhle/codeinsight/internal/modestate"
	"github.com/nhle/codeinsight/internal/relay"
	"github.com/nhle/codeinsight/internal/store"
	"github.com/nhle/codeinsight/internal/ui"
	"github.com/nhle/codeinsight/internal/ui/command"
	helpview "github.com/nhle/codeinsight/internal/ui/help"
	"github.com/nhle/codeinsight/internal/ui/history"
	"github.com/nhle/codeinsight/internal/ui/render"
	"github.com/nhle/codeinsight/internal/ui/setup"
	"github.com/nhle/codeinsight/internal/ui/surface"
)

// mainSurface is the single conversation surface of the TUI.
const mainSurface relay.SurfaceID = "main"

var errStopped = errors.New("stopped")

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewSurface ViewState = iota
	ViewHistory
	ViewHelp
	ViewCommand
	ViewSetup
)

// Credentials resolves and stores the API key.
type Credentials interface {
	Lookup() (string, error)
	Store(key string) error
}

// Options configure a Model.
type Options struct {
	Config     model.AppConfig
	ConfigPath string

	// Store may be nil to run without history.
	Store       store.Store
	Credentials Credentials
	Deps        Deps

	// InitialCode is loaded and explained on start.
	InitialCode string

	Logger *zap.Logger
}

// CodeMsg loads new code into the surface and explains it. Mode is
// optional. Hosts send it from outside the program, e.g. editor intake.
type CodeMsg struct {
	Code string
	Mode model.UIMode
}

type credsCheckedMsg struct {
	hasKey bool
	err    error
}

type restoreMsg struct {
	code string
	conv *model.Conversation
}

type chatReplyMsg struct {
	seq  uint64
	text string
	err  error
}

type fileLoadedMsg struct {
	path string
	code string
	err  error
}

// host collects what the machine hooks report during one Update so the
// model can apply it afterwards.
type host struct {
	snap  modestate.Snapshot
	dirty bool
	turns []modestate.Turn
	chats [][]model.Message
}

// chatState tracks the in-flight chat request.
type chatState struct {
	seq    uint64
	cancel context.CancelFunc
}

// Model is the root Bubble Tea model.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	ready        bool
	notice       string

	cfg         model.AppConfig
	cfgPath     string
	keys        *keys.KeyMap
	store       store.Store
	creds       Credentials
	deps        Deps
	service     *explain.Service
	machine     *modestate.Machine
	host        *host
	relay       *relay.Relay
	recorder    *Recorder
	chat        *chatState
	renderer    *render.Renderer
	initialCode string
	logger      *zap.Logger
	ctx         context.Context
	stop        context.CancelFunc

	surface     surface.Model
	historyView history.Model
	helpView    helpview.Model
	commandView command.Model
	setupView   setup.Model
}

// New creates the root model.
func New(opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := opts.Deps
	if deps.Creds == nil && opts.Credentials != nil {
		deps.Creds = opts.Credentials
	}
	if deps.Cache == nil {
		deps.Cache = NewCache(opts.Config)
	}
	if deps.Logger == nil {
		deps.Logger = logger.Named("explain")
	}

	h := &host{}
	machine := modestate.New(machineConfig(opts.Config), modestate.Hooks{
		Render: func(s modestate.Snapshot) {
			h.snap = s
			h.dirty = true
		},
		TurnEnded: func(t modestate.Turn) {
			h.turns = append(h.turns, t)
		},
		ChatRequested: func(_ string, history []model.Message) {
			h.chats = append(h.chats, history)
		},
	})

	k := keys.DefaultKeyMap()
	r := render.New(opts.Config.UI.Theme, 80)
	ctx, stop := context.WithCancel(context.Background())

	m := Model{
		currentView: ViewSurface,
		cfg:         opts.Config,
		cfgPath:     opts.ConfigPath,
		keys:        k,
		store:       opts.Store,
		creds:       opts.Credentials,
		deps:        deps,
		service:     NewExplainService(opts.Config, deps),
		machine:     machine,
		host:        h,
		relay:       relay.New(),
		recorder:    NewRecorder(opts.Store, logger.Named("recorder")),
		chat:        &chatState{},
		renderer:    r,
		initialCode: opts.InitialCode,
		logger:      logger,
		ctx:         ctx,
		stop:        stop,
		surface:     surface.New(r, k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
	}
	if opts.Store != nil {
		m.historyView = history.New(opts.Store, k, 80, 24)
	}
	m.surface.SetSnapshot(machine.Snapshot())
	return m
}

// Machine exposes the state machine driving the surface.
func (m Model) Machine() *modestate.Machine {
	return m.machine
}

// Init checks for credentials and loads the initial code.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.checkCredentials()}
	if code := m.initialCode; code != "" {
		cmds = append(cmds, func() tea.Msg { return CodeMsg{Code: code} })
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := msg.Width, m.layout.ContentHeight()
		m.surface.SetSize(w, h)
		if m.store != nil {
			m.historyView.SetSize(w, h)
		}
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		if m.currentView == ViewSetup {
			m.setupView.SetSize(w, h)
		}
		return m, nil

	case credsCheckedMsg:
		if msg.err != nil {
			m.logger.Warn("credential lookup failed", zap.Error(msg.err))
		}
		m.surface.SetNoAPIKey(!msg.hasKey)
		if !msg.hasKey && m.creds != nil {
			cmd := m.openSetup(false)
			return m, cmd
		}
		return m, nil

	case CodeMsg:
		return m.loadCode(msg.Code, msg.Mode)

	case fileLoadedMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("load %s: %v", msg.path, msg.err)
			return m, nil
		}
		return m.loadCode(msg.code, "")

	case restoreMsg:
		return m.handleRestore(msg)

	case relay.EventMsg:
		if !m.relay.Current(msg.Surface, msg.Seq) {
			return m, nil
		}
		m.machine.Apply(msg.Event)
		return m.flush(m.relay.Next(msg))

	case relay.DoneMsg:
		m.relay.Finish(msg)
		return m, nil

	case chatReplyMsg:
		if msg.seq != m.chat.seq {
			return m, nil
		}
		m.chat.cancel = nil
		if msg.err != nil {
			m.machine.ChatFailed(msg.err)
		} else {
			m.machine.ChatResponse(msg.text)
		}
		return m.flush()

	case recordedMsg:
		return m, nil

	case surface.SendMsg:
		if !m.machine.SendUserMessage(msg.Text) {
			m.notice = "wait for the current reply to finish"
			return m, nil
		}
		m.notice = ""
		return m.flush()

	case history.SelectedMsg:
		m.currentView = ViewSurface
		return m.openConversation(msg.Conversation)

	case history.CloseMsg:
		m.currentView = ViewSurface
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.executeCommand(string(msg))

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case setup.DoneMsg:
		return m.handleSetupDone(msg)

	case tea.KeyMsg:
		if next, cmd, ok := m.handleGlobalKey(msg); ok {
			return next, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKey handles keys that work regardless of the active view.
// It reports false when the key belongs to the active view.
func (m Model) handleGlobalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m, m.quit(), true
	}
	if m.currentView != ViewSurface || m.surface.Typing() {
		if m.currentView == ViewHelp && msg.String() == "?" {
			m.currentView = m.previousView
			return m, nil, true
		}
		return m, nil, false
	}

	switch msg.String() {
	case "q":
		return m, m.quit(), true
	case "?":
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true
	case ":":
		m.previousView = m.currentView
		m.currentView = ViewCommand
		cmd := m.commandView.Focus()
		return m, cmd, true
	case "e":
		m.notice = ""
		cmd := m.explain()
		return m, cmd, true
	case "x":
		next, cmd := m.stopStream()
		return next, cmd, true
	case "tab":
		next, cmd := m.setMode(nextMode(m.machine.Mode()))
		return next, cmd, true
	case "h":
		if m.store == nil {
			m.notice = "history is disabled"
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHistory
		return m, m.historyView.Init(), true
	}
	return m, nil, false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewSurface:
		m.surface, cmd = m.surface.Update(msg)
	case ViewHistory:
		m.historyView, cmd = m.historyView.Update(msg)
	case ViewHelp:
		if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
			m.currentView = m.previousView
			return m, nil
		}
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewSetup:
		m.setupView, cmd = m.setupView.Update(msg)
	}

	return m, cmd
}

// flush applies what the machine hooks reported and batches the follow-up
// commands.
func (m Model) flush(extra ...tea.Cmd) (Model, tea.Cmd) {
	if m.host.dirty {
		m.surface.SetSnapshot(m.host.snap)
		m.host.dirty = false
	}

	cmds := extra
	for _, turn := range m.host.turns {
		cmds = append(cmds, m.recorder.Record(turn))
	}
	for _, hist := range m.host.chats {
		cmds = append(cmds, m.requestChat(hist))
	}
	m.host.turns = m.host.turns[:0]
	m.host.chats = m.host.chats[:0]

	return m, tea.Batch(cmds...)
}

// explain starts an explanation of the current code on the main surface.
func (m *Model) explain() tea.Cmd {
	code := m.machine.Code()
	if strings.TrimSpace(code) == "" {
		m.notice = "nothing to explain: load some code first"
		return nil
	}

	// A new turn supersedes the question still waiting for its reply.
	m.cancelChat()

	ctx, cancel := context.WithCancel(m.ctx)
	m.logger.Debug("explain requested",
		zap.String("language", langdetect.Detect(code)),
		zap.Int("bytes", len(code)),
	)
	return m.relay.Attach(mainSurface, m.service.Explain(ctx, code), cancel)
}

// stopStream abandons the running explanation and marks it failed inline.
func (m Model) stopStream() (Model, tea.Cmd) {
	if !m.relay.Active(mainSurface) {
		return m, nil
	}
	m.relay.Close(mainSurface)
	m.machine.Apply(explain.Failed(errStopped))
	return m.flush()
}

// requestChat sends history to the model, superseding any earlier request.
func (m Model) requestChat(history []model.Message) tea.Cmd {
	m.cancelChat()
	ctx, cancel := context.WithCancel(m.ctx)
	m.chat.cancel = cancel

	seq := m.chat.seq
	svc := m.service
	return func() tea.Msg {
		defer cancel()
		text, err := svc.Chat(ctx, history)
		return chatReplyMsg{seq: seq, text: text, err: err}
	}
}

// cancelChat drops the in-flight chat request, if any.
func (m Model) cancelChat() {
	if m.chat.cancel != nil {
		m.chat.cancel()
		m.chat.cancel = nil
	}
	m.chat.seq++
}

// interrupt stops every outstanding request on the main surface.
func (m Model) interrupt() {
	m.relay.Close(mainSurface)
	m.cancelChat()
}

// loadCode replaces the code under discussion, then restores a stored
// insight for it or starts a fresh explanation.
func (m Model) loadCode(code string, mode model.UIMode) (tea.Model, tea.Cmd) {
	if strings.TrimSpace(code) == "" {
		m.notice = "no code received"
		return m, nil
	}

	m.interrupt()
	m.recorder.Forget()
	m.notice = ""
	m.currentView = ViewSurface

	if mode.Valid() && mode != m.machine.Mode() {
		_ = m.machine.SetMode(mode, modestate.Payload{})
	}
	m.machine.LoadCode(code)

	if m.store == nil {
		cmd := m.explain()
		return m.flush(cmd)
	}
	return m.flush(m.lookupInsight(code))
}

func (m Model) lookupInsight(code string) tea.Cmd {
	s := m.store
	logger := m.logger
	return func() tea.Msg {
		conv, err := s.FindLatest(context.Background(), store.ConversationFilter{
			SourceCode:  &code,
			WithInsight: true,
		})
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logger.Warn("insight lookup failed", zap.Error(err))
			}
			return restoreMsg{code: code}
		}
		return restoreMsg{code: code, conv: conv}
	}
}

func (m Model) handleRestore(msg restoreMsg) (tea.Model, tea.Cmd) {
	if msg.code != m.machine.Code() || m.machine.Busy() {
		return m, nil
	}
	if msg.conv == nil {
		cmd := m.explain()
		return m.flush(cmd)
	}

	m.recorder.Adopt(*msg.conv)
	_ = m.machine.SetMode(model.ModeInsightChat, modestate.Payload{
		Code:           msg.conv.SourceCode,
		Insight:        msg.conv.Insight,
		RestoreInsight: true,
	})
	m.notice = "restored insight from " + msg.conv.UpdatedAt.Local().Format("Jan 02 15:04")
	return m.flush()
}

// openConversation shows a stored conversation on the main surface.
func (m Model) openConversation(c model.Conversation) (tea.Model, tea.Cmd) {
	m.interrupt()
	m.recorder.Adopt(c)

	if c.SourceCode != "" {
		m.machine.LoadCode(c.SourceCode)
	} else {
		m.machine.Reset()
	}

	switch {
	case c.Insight != "":
		_ = m.machine.SetMode(model.ModeInsightChat, modestate.Payload{
			Code:           c.SourceCode,
			Insight:        c.Insight,
			RestoreInsight: true,
		})
	case c.Mode.Valid():
		_ = m.machine.SetMode(c.Mode, modestate.Payload{})
	}
	m.notice = "opened " + c.Title
	return m.flush()
}

// setMode switches the surface mode. Switching drops an outstanding chat
// reply.
func (m Model) setMode(mode model.UIMode) (Model, tea.Cmd) {
	if m.machine.Snapshot().Awaiting {
		m.cancelChat()
	}
	if err := m.machine.SetMode(mode, modestate.Payload{}); err != nil {
		m.notice = err.Error()
		return m, nil
	}
	m.notice = ""
	return m.flush()
}

func nextMode(current model.UIMode) model.UIMode {
	for i, mode := range model.AllModes {
		if mode == current {
			return model.AllModes[(i+1)%len(model.AllModes)]
		}
	}
	return model.DefaultMode
}

func (m Model) checkCredentials() tea.Cmd {
	creds := m.creds
	return func() tea.Msg {
		if creds == nil {
			return credsCheckedMsg{}
		}
		key, err := creds.Lookup()
		return credsCheckedMsg{hasKey: key != "", err: err}
	}
}

func (m *Model) openSetup(hasKey bool) tea.Cmd {
	path := m.cfgPath
	save := func(cfg model.AppConfig) error {
		if path == "" {
			return nil
		}
		return model.SaveConfig(path, &cfg)
	}
	m.setupView = setup.New(m.cfg, m.creds, save, hasKey, m.layout.Width, m.layout.ContentHeight())
	m.previousView = ViewSurface
	m.currentView = ViewSetup
	return m.setupView.Init()
}

func (m Model) handleSetupDone(msg setup.DoneMsg) (tea.Model, tea.Cmd) {
	m.currentView = ViewSurface
	switch {
	case msg.Err != nil:
		m.notice = msg.Err.Error()
		m.logger.Warn("setup failed", zap.Error(msg.Err))
		return m, nil
	case !msg.Saved:
		return m, nil
	}

	m.cfg = msg.Config
	m.service = NewExplainService(m.cfg, m.deps)
	m.notice = "settings saved"
	return m, m.checkCredentials()
}

func (m Model) quit() tea.Cmd {
	m.relay.CloseAll()
	m.cancelChat()
	m.stop()
	return tea.Quit
}

// executeCommand runs a command palette line.
func (m Model) executeCommand(line string) (tea.Model, tea.Cmd) {
	cmd, err := command.Parse(line)
	if err != nil {
		m.notice = err.Error()
		return m, nil
	}

	switch cmd.Name {
	case command.Mode:
		return m.setMode(cmd.Mode)
	case command.Explain:
		m.notice = ""
		explainCmd := m.explain()
		return m, explainCmd
	case command.Load:
		return m, readFile(cmd.Arg)
	case command.Reset:
		m.interrupt()
		m.recorder.Forget()
		m.machine.Reset()
		m.notice = ""
		return m.flush()
	case command.History:
		if m.store == nil {
			m.notice = "history is disabled"
			return m, nil
		}
		m.previousView = ViewSurface
		m.currentView = ViewHistory
		return m, m.historyView.Init()
	case command.Setup:
		hasKey := false
		if m.creds != nil {
			key, _ := m.creds.Lookup()
			hasKey = key != ""
		}
		setupCmd := m.openSetup(hasKey)
		return m, setupCmd
	case command.Quit:
		return m, m.quit()
	}
	return m, nil
}

func readFile(path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		return fileLoadedMsg{path: path, code: string(data), err: err}
	}
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	snap := m.machine.Snapshot()
	header := m.layout.RenderHeader("Code Insight", snap.Mode, m.headerStatus(snap))
	statusBar := m.layout.RenderStatusBar(m.statusText())

	return m.layout.Frame(header, m.renderContent(), statusBar)
}

func (m Model) renderContent() string {
	switch m.currentView {
	case ViewHistory:
		return m.historyView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewSetup:
		return m.setupView.View()
	default:
		return m.surface.View()
	}
}

func (m Model) headerStatus(snap modestate.Snapshot) string {
	parts := []string{m.service.Model()}
	if snap.Code != "" {
		parts = append([]string{langdetect.Detect(snap.Code)}, parts...)
	}
	return strings.Join(parts, " · ")
}

// statusText returns the notice, or keyboard hints for the active view.
func (m Model) statusText() string {
	if m.notice != "" {
		return m.notice
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewHistory:
		return "enter open | / search | esc back"
	case ViewSetup:
		return "enter next | esc cancel"
	}
	if m.surface.Typing() {
		return "enter send | esc stop typing"
	}
	return "e explain | i chat | tab mode | h history | : command | ? help | q quit"
}
