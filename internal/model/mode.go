package model

import (
	"fmt"
	"strings"
)

// UIMode identifies how a conversation surface presents an insight.
type UIMode string

const (
	// ModeInsightSplit shows the source and the insight side by side.
	ModeInsightSplit UIMode = "INSIGHT_SPLIT"
	// ModeInsightChat shows the insight as the first assistant turn of a chat.
	ModeInsightChat UIMode = "INSIGHT_CHAT"
	// ModeInsightSourceChat opens a chat seeded with the source only.
	ModeInsightSourceChat UIMode = "INSIGHT_SOURCE_CHAT"
	// ModeSmartChat is a free-form chat with no source attached.
	ModeSmartChat UIMode = "SMART_CHAT"
)

// DefaultMode is the mode a new surface starts in.
const DefaultMode = ModeInsightChat

// AllModes lists every mode in display order.
var AllModes = []UIMode{
	ModeInsightSplit,
	ModeInsightChat,
	ModeInsightSourceChat,
	ModeSmartChat,
}

var modeAliases = map[string]UIMode{
	"split":  ModeInsightSplit,
	"chat":   ModeInsightChat,
	"source": ModeInsightSourceChat,
	"smart":  ModeSmartChat,
}

// ParseMode resolves a canonical mode name or short alias, ignoring case.
func ParseMode(s string) (UIMode, error) {
	key := strings.TrimSpace(s)
	if m, ok := modeAliases[strings.ToLower(key)]; ok {
		return m, nil
	}
	upper := UIMode(strings.ToUpper(key))
	for _, m := range AllModes {
		if m == upper {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Valid reports whether m is one of the known modes.
func (m UIMode) Valid() bool {
	for _, mode := range AllModes {
		if mode == m {
			return true
		}
	}
	return false
}

// ChatLike reports whether the mode renders a transcript.
func (m UIMode) ChatLike() bool {
	return m == ModeInsightChat || m == ModeInsightSourceChat || m == ModeSmartChat
}

// Short returns the alias used on the command line.
func (m UIMode) Short() string {
	for alias, mode := range modeAliases {
		if mode == m {
			return alias
		}
	}
	return strings.ToLower(string(m))
}

// Label returns a human-readable name for the mode.
func (m UIMode) Label() string {
	switch m {
	case ModeInsightSplit:
		return "Split"
	case ModeInsightChat:
		return "Insight Chat"
	case ModeInsightSourceChat:
		return "Source Chat"
	case ModeSmartChat:
		return "Smart Chat"
	default:
		return string(m)
	}
}
