package app

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/codeinsight/internal/langdetect"
	"github.com/nhle/codeinsight/internal/model"
	"github.com/nhle/codeinsight/internal/modestate"
	"github.com/nhle/codeinsight/internal/store"
)

const maxTitleLen = 60

// recordedMsg is sent after a turn has been persisted.
type recordedMsg struct {
	conversationID string
	err            error
}

// Recorder persists finished turns. Failures are logged and never reach
// the conversation surface.
type Recorder struct {
	store  store.Store
	logger *zap.Logger

	mu sync.Mutex
	// current is the conversation turns are appended to, keyed by the code
	// it was created for.
	current     string
	currentCode string
}

// NewRecorder creates a Recorder writing to s. A nil store disables it.
func NewRecorder(s store.Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: s, logger: logger}
}

// Adopt makes c the conversation later turns are appended to.
func (r *Recorder) Adopt(c model.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = c.ID
	r.currentCode = c.SourceCode
}

// Forget starts a fresh conversation on the next turn.
func (r *Recorder) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = ""
	r.currentCode = ""
}

// Current returns the ID of the conversation being appended to.
func (r *Recorder) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Record returns a command persisting turn.
func (r *Recorder) Record(turn modestate.Turn) tea.Cmd {
	if r == nil || r.store == nil {
		return nil
	}
	return func() tea.Msg {
		id, err := r.record(context.Background(), turn)
		if err != nil {
			r.logger.Warn("recording turn failed", zap.Error(err))
		}
		return recordedMsg{conversationID: id, err: err}
	}
}

func (r *Recorder) record(ctx context.Context, turn modestate.Turn) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, created, err := r.ensureLocked(ctx, turn)
	if err != nil {
		return "", err
	}

	var msgs []model.Message
	switch turn.Kind {
	case modestate.TurnExplain:
		if created && turn.Code != "" {
			msgs = append(msgs, model.User(turn.Code))
		}
		msgs = append(msgs, model.Assistant(turn.Reply))
	case modestate.TurnChat:
		msgs = append(msgs, model.User(turn.Prompt), model.Assistant(turn.Reply))
	}

	for _, msg := range msgs {
		if _, err := r.store.AddMessage(ctx, id, msg); err != nil {
			return id, err
		}
	}

	if created {
		return id, nil
	}

	var patch store.ConversationPatch
	if turn.Mode.Valid() {
		mode := turn.Mode
		patch.Mode = &mode
	}
	if turn.Kind == modestate.TurnExplain {
		patch.Insight = &turn.Reply
	}
	if patch.Empty() {
		return id, nil
	}
	return id, r.store.Update(ctx, id, patch)
}

// ensureLocked returns the conversation for turn, creating it when the
// code changed since the last turn.
func (r *Recorder) ensureLocked(ctx context.Context, turn modestate.Turn) (string, bool, error) {
	if r.current != "" && r.currentCode == turn.Code {
		return r.current, false, nil
	}

	c := model.Conversation{
		Title:      titleFor(turn),
		Mode:       turn.Mode,
		SourceCode: turn.Code,
	}
	if turn.Code != "" {
		c.Language = langdetect.Detect(turn.Code)
	}
	if turn.Kind == modestate.TurnExplain {
		c.Insight = turn.Reply
	}

	created, err := r.store.Create(ctx, c)
	if err != nil {
		return "", false, err
	}
	r.current = created.ID
	r.currentCode = turn.Code
	r.logger.Debug("conversation created", zap.String("id", created.ID), zap.String("title", created.Title))
	return created.ID, true, nil
}

// titleFor picks the first non-blank line of the code, or of the prompt for
// chats without code.
func titleFor(turn modestate.Turn) string {
	src := turn.Code
	if strings.TrimSpace(src) == "" {
		src = turn.Prompt
	}
	for _, line := range strings.Split(src, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return truncate(line, maxTitleLen)
		}
	}
	return "Untitled"
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
