// Package modestate owns a conversation surface's UI mode and transcript.
// It folds explanation events and user actions into the transcript and
// reports every visible change to a render hook.
//
// A Machine is not safe for concurrent use; the host drives it from a
// single goroutine.
package modestate

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/nhle/codeinsight/internal/explain"
	"github.com/nhle/codeinsight/internal/model"
)

const (
	// DefaultLargeChunkThreshold is the chunk length, in runes, above which
	// a chunk replaces the assistant message instead of extending it.
	DefaultLargeChunkThreshold = 1000

	DefaultContextMarker = "The user selected the code below and received the explanation that follows. " +
		"Answer follow-up questions about it."

	DefaultWelcome = "Hi! Paste or load some code and ask me about it, or just ask a programming question."
)

// Config configures a Machine.
type Config struct {
	InitialMode model.UIMode

	// LargeChunkThreshold of zero or less disables chunk replacement.
	LargeChunkThreshold int

	// ContextMarker is the system message heading an insight chat.
	ContextMarker string

	// Welcome is the assistant message a smart chat opens with.
	Welcome string
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		InitialMode:         model.DefaultMode,
		LargeChunkThreshold: DefaultLargeChunkThreshold,
		ContextMarker:       DefaultContextMarker,
		Welcome:             DefaultWelcome,
	}
}

// Snapshot is an immutable view of a Machine.
type Snapshot struct {
	Mode       model.UIMode
	Code       string
	Insight    string
	Transcript []model.Message
	Streaming  bool
	Awaiting   bool
	Failed     bool
}

// TurnKind distinguishes explanation turns from chat turns.
type TurnKind int

const (
	TurnExplain TurnKind = iota
	TurnChat
)

// Turn describes a successfully finished turn.
type Turn struct {
	Kind TurnKind
	Mode model.UIMode
	Code string

	// Prompt is the user's question for chat turns.
	Prompt string

	// Reply is the full insight for explain turns, or the assistant's answer
	// for chat turns.
	Reply string
}

// Hooks connect a Machine to its host. Any hook may be nil.
type Hooks struct {
	Render        func(Snapshot)
	TurnEnded     func(Turn)
	ChatRequested func(text string, history []model.Message)
}

// Payload carries the data for a SetMode request.
type Payload struct {
	Code    string
	Insight string

	// RestoreInsight marks Insight as an already finished turn.
	RestoreInsight bool
}

// Machine is the mode state machine for one conversation surface.
type Machine struct {
	cfg   Config
	hooks Hooks

	mode       model.UIMode
	code       string
	insight    string
	transcript []model.Message

	// assistant indexes the in-flight assistant message, or -1.
	assistant int

	turnActive bool
	turnCode   string
	// detached keeps the running turn out of the transcript after a switch
	// to a mode that shows no insight.
	detached   bool
	streaming  bool
	awaiting   bool
	failed     bool
	pending    string
}

// New creates a Machine in cfg.InitialMode. An invalid initial mode falls
// back to model.DefaultMode.
func New(cfg Config, hooks Hooks) *Machine {
	if !cfg.InitialMode.Valid() {
		cfg.InitialMode = model.DefaultMode
	}
	if cfg.ContextMarker == "" {
		cfg.ContextMarker = DefaultContextMarker
	}
	if cfg.Welcome == "" {
		cfg.Welcome = DefaultWelcome
	}

	m := &Machine{
		cfg:       cfg,
		hooks:     hooks,
		mode:      cfg.InitialMode,
		assistant: -1,
	}
	rebuildTable[m.mode](m, Payload{})
	return m
}

// Mode returns the active mode.
func (m *Machine) Mode() model.UIMode { return m.mode }

// Code returns the source under discussion.
func (m *Machine) Code() string { return m.code }

// Busy reports whether an explanation or chat reply is outstanding.
func (m *Machine) Busy() bool { return m.streaming || m.awaiting }

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		Mode:       m.mode,
		Code:       m.code,
		Insight:    m.insight,
		Transcript: slices.Clone(m.transcript),
		Streaming:  m.streaming,
		Awaiting:   m.awaiting,
		Failed:     m.failed,
	}
}

// Apply folds one explanation event into the state.
func (m *Machine) Apply(ev explain.Event) {
	if ev.Kind == explain.EventChunk && m.isLargeChunk(ev.Text) {
		ev.Kind = explain.EventReplace
	}

	fold, ok := foldTable[m.mode][ev.Kind]
	if !ok {
		return
	}
	fold(m, ev)
	m.render()
}

// SetMode switches to target and rebuilds the transcript for it.
func (m *Machine) SetMode(target model.UIMode, p Payload) error {
	rebuild, ok := rebuildTable[target]
	if !ok {
		return fmt.Errorf("unknown mode %q", target)
	}

	before := m.Snapshot()

	if p.Code != "" && p.Code != m.code {
		m.code = p.Code
		if p.Insight == "" {
			m.insight = ""
		}
	}
	if p.Insight != "" {
		m.insight = p.Insight
	}
	m.mode = target
	rebuild(m, p)

	if m.changedSince(before) {
		m.render()
	}
	return nil
}

// LoadCode replaces the source under discussion and clears the insight.
// The host follows up with an explanation request when the mode wants one.
func (m *Machine) LoadCode(code string) {
	m.code = code
	m.insight = ""
	m.failed = false
	m.endTurn()
	rebuildTable[m.mode](m, Payload{})
	m.render()
}

// Reset clears source, insight and transcript, keeping the mode.
func (m *Machine) Reset() {
	m.code = ""
	m.insight = ""
	m.transcript = nil
	m.failed = false
	m.endTurn()
	rebuildTable[m.mode](m, Payload{})
	m.render()
}

// SendUserMessage appends a user message and asks the host for a reply.
// It reports false when the message was not accepted: empty text, a reply
// or explanation still outstanding, or a mode without a transcript.
func (m *Machine) SendUserMessage(text string) bool {
	if strings.TrimSpace(text) == "" || m.awaiting || m.streaming || !m.mode.ChatLike() {
		return false
	}

	m.transcript = append(m.transcript, model.User(text))
	m.awaiting = true
	m.failed = false
	m.pending = text
	m.render()

	if m.hooks.ChatRequested != nil {
		m.hooks.ChatRequested(text, slices.Clone(m.transcript))
	}
	return true
}

// ChatResponse appends the reply to the outstanding chat message. Replies
// that arrive when nothing is outstanding are dropped.
func (m *Machine) ChatResponse(text string) {
	if !m.awaiting {
		return
	}
	m.transcript = append(m.transcript, model.Assistant(text))
	m.awaiting = false
	prompt := m.pending
	m.pending = ""
	m.render()

	if m.hooks.TurnEnded != nil {
		m.hooks.TurnEnded(Turn{
			Kind:   TurnChat,
			Mode:   m.mode,
			Code:   m.code,
			Prompt: prompt,
			Reply:  text,
		})
	}
}

// ChatFailed ends the outstanding chat message with an inline error.
func (m *Machine) ChatFailed(err error) {
	if !m.awaiting {
		return
	}
	m.transcript = append(m.transcript, model.Assistant(errorText(err.Error())))
	m.awaiting = false
	m.failed = true
	m.pending = ""
	m.render()
}

func (m *Machine) isLargeChunk(text string) bool {
	return m.cfg.LargeChunkThreshold > 0 && utf8.RuneCountInString(text) > m.cfg.LargeChunkThreshold
}

func (m *Machine) endTurn() {
	m.turnActive = false
	m.turnCode = ""
	m.detached = false
	m.streaming = false
	m.awaiting = false
	m.pending = ""
	m.assistant = -1
}

func (m *Machine) changedSince(s Snapshot) bool {
	return s.Mode != m.mode ||
		s.Code != m.code ||
		s.Insight != m.insight ||
		s.Streaming != m.streaming ||
		s.Awaiting != m.awaiting ||
		!slices.Equal(s.Transcript, m.transcript)
}

func (m *Machine) render() {
	if m.hooks.Render != nil {
		m.hooks.Render(m.Snapshot())
	}
}

func errorText(reason string) string {
	return "Error: " + reason
}

func withTrailer(content, trailer string) string {
	if content == "" {
		return trailer
	}
	return content + "\n\n" + trailer
}
