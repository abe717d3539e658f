package modestate

import (
	"github.com/nhle/codeinsight/internal/explain"
	"github.com/nhle/codeinsight/internal/model"
)

type foldFunc func(m *Machine, ev explain.Event)

type rebuildFunc func(m *Machine, p Payload)

var (
	splitFolds = map[explain.EventKind]foldFunc{
		explain.EventStart:    foldStart,
		explain.EventChunk:    foldInsightChunk,
		explain.EventReplace:  foldInsightReplace,
		explain.EventComplete: foldComplete,
		explain.EventError:    foldInsightError,
	}

	insightChatFolds = map[explain.EventKind]foldFunc{
		explain.EventStart:    foldStartWithCode,
		explain.EventChunk:    foldChatChunk,
		explain.EventReplace:  foldChatReplace,
		explain.EventComplete: foldComplete,
		explain.EventError:    foldChatError,
	}

	smartChatFolds = map[explain.EventKind]foldFunc{
		explain.EventStart:    foldStart,
		explain.EventChunk:    foldChatChunk,
		explain.EventReplace:  foldChatReplace,
		explain.EventComplete: foldComplete,
		explain.EventError:    foldChatError,
	}
)

// foldTable maps (mode, event kind) to the fold applied.
var foldTable = map[model.UIMode]map[explain.EventKind]foldFunc{
	model.ModeInsightSplit:      splitFolds,
	model.ModeInsightChat:       insightChatFolds,
	model.ModeInsightSourceChat: insightChatFolds,
	model.ModeSmartChat:         smartChatFolds,
}

// rebuildTable maps a SetMode target to its transcript rebuild.
var rebuildTable = map[model.UIMode]rebuildFunc{
	model.ModeInsightSplit:      rebuildSplit,
	model.ModeInsightChat:       rebuildInsightChat,
	model.ModeInsightSourceChat: rebuildSourceChat,
	model.ModeSmartChat:         rebuildSmartChat,
}

// foldStart opens a turn. The insight buffer is cleared in every mode and
// an outstanding chat reply is abandoned.
func foldStart(m *Machine, _ explain.Event) {
	m.dropPendingChat()
	m.insight = ""
	m.assistant = -1
	m.detached = false
	m.turnActive = true
	m.turnCode = m.code
	m.streaming = true
	m.failed = false
}

// foldStartWithCode opens a turn and anchors the transcript on the source:
// an existing user(code) message is kept and everything after it dropped,
// otherwise the transcript restarts from user(code).
func foldStartWithCode(m *Machine, ev explain.Event) {
	foldStart(m, ev)
	if m.code == "" {
		return
	}
	for i, msg := range m.transcript {
		if msg.Role == model.RoleUser && msg.Content == m.code {
			m.transcript = m.transcript[:i+1]
			return
		}
	}
	m.transcript = []model.Message{model.User(m.code)}
}

func foldInsightChunk(m *Machine, ev explain.Event) {
	m.insight += ev.Text
}

func foldInsightReplace(m *Machine, ev explain.Event) {
	m.insight = ev.Text
}

func foldChatChunk(m *Machine, ev explain.Event) {
	m.insight += ev.Text
	if !m.detached {
		m.writeAssistant(ev.Text, false)
	}
}

func foldChatReplace(m *Machine, ev explain.Event) {
	m.insight = ev.Text
	if !m.detached {
		m.writeAssistant(ev.Text, true)
	}
}

func foldComplete(m *Machine, _ explain.Event) {
	active := m.turnActive
	code := m.turnCode
	m.turnActive = false
	m.turnCode = ""
	m.detached = false
	m.streaming = false
	m.assistant = -1

	if active && m.hooks.TurnEnded != nil {
		m.hooks.TurnEnded(Turn{
			Kind:  TurnExplain,
			Mode:  m.mode,
			Code:  code,
			Reply: m.insight,
		})
	}
}

func foldInsightError(m *Machine, ev explain.Event) {
	m.insight = withTrailer(m.insight, errorText(reason(ev)))
	m.failTurn()
}

func foldChatError(m *Machine, ev explain.Event) {
	trailer := errorText(reason(ev))
	switch {
	case m.detached:
		m.insight = withTrailer(m.insight, trailer)
	case m.hasAssistant():
		msg := &m.transcript[m.assistant]
		msg.Content = withTrailer(msg.Content, trailer)
	case m.turnActive:
		m.insertAssistant(trailer)
	default:
		// No turn is open, so the error follows everything already shown.
		m.transcript = append(m.transcript, model.Assistant(trailer))
	}
	m.failTurn()
}

func (m *Machine) failTurn() {
	m.turnActive = false
	m.turnCode = ""
	m.detached = false
	m.streaming = false
	m.failed = true
	m.assistant = -1
}

func reason(ev explain.Event) string {
	if ev.Text != "" {
		return ev.Text
	}
	if ev.Err != nil {
		return ev.Err.Error()
	}
	return "unknown error"
}

func (m *Machine) hasAssistant() bool {
	return m.assistant >= 0 &&
		m.assistant < len(m.transcript) &&
		m.transcript[m.assistant].Role == model.RoleAssistant
}

// writeAssistant extends or replaces the turn's assistant message, creating
// it right after the last user message on first use.
func (m *Machine) writeAssistant(text string, replace bool) {
	if !m.hasAssistant() {
		m.insertAssistant(text)
		return
	}
	msg := &m.transcript[m.assistant]
	if replace {
		msg.Content = text
	} else {
		msg.Content += text
	}
}

func (m *Machine) insertAssistant(text string) {
	at := len(m.transcript)
	for i := len(m.transcript) - 1; i >= 0; i-- {
		if m.transcript[i].Role == model.RoleUser {
			at = i + 1
			break
		}
	}
	m.transcript = append(m.transcript, model.Message{})
	copy(m.transcript[at+1:], m.transcript[at:])
	m.transcript[at] = model.Assistant(text)
	m.assistant = at
}

// rebuildSplit keeps the insight buffer as it is; the transcript is not
// shown in split mode.
func rebuildSplit(m *Machine, _ Payload) {
	m.dropPendingChat()
}

// rebuildInsightChat shows the insight as the opening exchange. Without an
// insight it waits on user(code) for a fresh Start.
func rebuildInsightChat(m *Machine, p Payload) {
	m.dropPendingChat()
	m.detached = false
	if p.RestoreInsight {
		m.turnActive = false
		m.turnCode = ""
		m.streaming = false
		m.failed = false
	}

	switch {
	case m.insight != "":
		m.transcript = []model.Message{model.System(m.cfg.ContextMarker)}
		if m.code != "" {
			m.transcript = append(m.transcript, model.User(m.code))
		}
		m.transcript = append(m.transcript, model.Assistant(m.insight))
		m.assistant = -1
		if m.streaming {
			m.assistant = len(m.transcript) - 1
		}
	case m.code != "":
		m.transcript = []model.Message{model.User(m.code)}
		m.assistant = -1
	default:
		m.transcript = nil
		m.assistant = -1
	}
}

// rebuildSourceChat seeds the chat with the source only; the user asks
// first. A running explanation continues in the insight buffer only.
func rebuildSourceChat(m *Machine, _ Payload) {
	m.dropPendingChat()
	m.assistant = -1
	m.detached = m.streaming
	if m.code == "" {
		m.transcript = nil
		return
	}
	m.transcript = []model.Message{model.User(m.code)}
}

// rebuildSmartChat resets to the welcome message unless already there.
func rebuildSmartChat(m *Machine, _ Payload) {
	if m.atWelcome() {
		return
	}
	m.dropPendingChat()
	m.assistant = -1
	m.detached = m.streaming
	m.transcript = []model.Message{model.Assistant(m.cfg.Welcome)}
}

func (m *Machine) atWelcome() bool {
	return len(m.transcript) == 1 &&
		m.transcript[0] == model.Assistant(m.cfg.Welcome) &&
		!m.awaiting
}

// dropPendingChat forgets an outstanding chat request; its reply no longer
// has a transcript to land in.
func (m *Machine) dropPendingChat() {
	m.awaiting = false
	m.pending = ""
}
