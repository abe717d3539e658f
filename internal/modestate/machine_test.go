package modestate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/codeinsight/internal/explain"
	"github.com/nhle/codeinsight/internal/model"
)

const code = "func add(a, b int) int { return a + b }"

type recorder struct {
	snapshots []Snapshot
	turns     []Turn
	requests  []string
	histories [][]model.Message
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		Render:    func(s Snapshot) { r.snapshots = append(r.snapshots, s) },
		TurnEnded: func(t Turn) { r.turns = append(r.turns, t) },
		ChatRequested: func(text string, history []model.Message) {
			r.requests = append(r.requests, text)
			r.histories = append(r.histories, history)
		},
	}
}

func (r *recorder) last(t *testing.T) Snapshot {
	t.Helper()
	require.NotEmpty(t, r.snapshots)
	return r.snapshots[len(r.snapshots)-1]
}

func newMachine(mode model.UIMode) (*Machine, *recorder) {
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.InitialMode = mode
	return New(cfg, rec.hooks()), rec
}

func stream(m *Machine, chunks ...string) {
	m.Apply(explain.Start())
	for _, c := range chunks {
		m.Apply(explain.Chunk(c))
	}
	m.Apply(explain.Complete())
}

func TestNewDefaultsToInsightChat(t *testing.T) {
	m := New(Config{}, Hooks{})
	assert.Equal(t, model.ModeInsightChat, m.Mode())
	assert.Empty(t, m.Snapshot().Transcript)
}

func TestChunksCoalesceIntoOneAssistantMessage(t *testing.T) {
	m, rec := newMachine(model.ModeInsightChat)
	m.LoadCode(code)

	stream(m, "Hel", "lo")

	s := m.Snapshot()
	require.Equal(t, []model.Message{model.User(code), model.Assistant("Hello")}, s.Transcript)
	assert.Equal(t, "Hello", s.Insight)
	assert.False(t, s.Streaming)

	require.Len(t, rec.turns, 1)
	assert.Equal(t, Turn{Kind: TurnExplain, Mode: model.ModeInsightChat, Code: code, Reply: "Hello"}, rec.turns[0])
}

func TestStartDoesNotDuplicateUserCode(t *testing.T) {
	m, _ := newMachine(model.ModeInsightChat)
	m.LoadCode(code)

	stream(m, "first")
	require.True(t, m.SendUserMessage("why?"))
	m.ChatResponse("because")

	stream(m, "second")

	assert.Equal(t, []model.Message{model.User(code), model.Assistant("second")}, m.Snapshot().Transcript)
}

func TestStartAnchorsOnLatestCode(t *testing.T) {
	m, _ := newMachine(model.ModeSmartChat)
	require.NoError(t, m.SetMode(model.ModeInsightSourceChat, Payload{Code: "old"}))
	require.NoError(t, m.SetMode(model.ModeInsightSourceChat, Payload{Code: code}))

	m.Apply(explain.Start())
	assert.Equal(t, []model.Message{model.User(code)}, m.Snapshot().Transcript)
	assert.True(t, m.Snapshot().Streaming)
}

func TestSplitModeUsesInsightBuffer(t *testing.T) {
	m, rec := newMachine(model.ModeInsightSplit)
	m.LoadCode(code)

	stream(m, "Adds ", "two ints.")

	s := m.Snapshot()
	assert.Equal(t, "Adds two ints.", s.Insight)
	assert.Empty(t, s.Transcript)

	// A new turn clears the buffer.
	m.Apply(explain.Start())
	assert.Equal(t, "", rec.last(t).Insight)
}

func TestLargeChunkReplacesContent(t *testing.T) {
	m, _ := newMachine(model.ModeInsightChat)
	m.LoadCode(code)
	m.Apply(explain.Start())
	m.Apply(explain.Chunk("old text"))

	big := strings.Repeat("n", DefaultLargeChunkThreshold+1)
	m.Apply(explain.Chunk(big))

	s := m.Snapshot()
	require.Len(t, s.Transcript, 2)
	assert.Equal(t, big, s.Transcript[1].Content)
	assert.Equal(t, big, s.Insight)
}

func TestChunkAtThresholdAppends(t *testing.T) {
	m, _ := newMachine(model.ModeInsightChat)
	m.LoadCode(code)
	m.Apply(explain.Start())
	m.Apply(explain.Chunk("old "))

	exact := strings.Repeat("n", DefaultLargeChunkThreshold)
	m.Apply(explain.Chunk(exact))
	assert.Equal(t, "old "+exact, m.Snapshot().Transcript[1].Content)
}

func TestLargeChunkRuleCanBeDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LargeChunkThreshold = 0
	m := New(cfg, Hooks{})
	m.LoadCode(code)
	m.Apply(explain.Start())
	m.Apply(explain.Chunk("old "))
	big := strings.Repeat("n", 5000)
	m.Apply(explain.Chunk(big))
	assert.Equal(t, "old "+big, m.Snapshot().Transcript[1].Content)
}

func TestReplaceEventAlwaysReplaces(t *testing.T) {
	m, _ := newMachine(model.ModeInsightChat)
	m.LoadCode(code)
	m.Apply(explain.Start())
	m.Apply(explain.Chunk("draft"))
	m.Apply(explain.Replace("final"))

	assert.Equal(t, "final", m.Snapshot().Transcript[1].Content)
}

func TestErrorAppendsTrailer(t *testing.T) {
	m, rec := newMachine(model.ModeInsightChat)
	m.LoadCode(code)
	m.Apply(explain.Start())
	m.Apply(explain.Chunk("partial"))
	m.Apply(explain.Failed(errors.New("connection reset")))

	s := m.Snapshot()
	assert.Equal(t, "partial\n\nError: connection reset", s.Transcript[1].Content)
	assert.True(t, s.Failed)
	assert.False(t, s.Streaming)
	assert.Empty(t, rec.turns)
}

func TestErrorWithoutOutputCreatesMessage(t *testing.T) {
	m, _ := newMachine(model.ModeInsightChat)
	m.LoadCode(code)
	m.Apply(explain.Failed(errors.New("not configured: no API key configured")))

	s := m.Snapshot()
	require.Len(t, s.Transcript, 2)
	assert.Equal(t, model.Assistant("Error: not configured: no API key configured"), s.Transcript[1])
}

func TestErrorInSplitGoesToInsight(t *testing.T) {
	m, _ := newMachine(model.ModeInsightSplit)
	m.LoadCode(code)
	m.Apply(explain.Start())
	m.Apply(explain.Chunk("partial"))
	m.Apply(explain.Failed(errors.New("boom")))

	assert.Equal(t, "partial\n\nError: boom", m.Snapshot().Insight)
}

func TestSplitToChatBuildsThreeMessages(t *testing.T) {
	m, _ := newMachine(model.ModeInsightSplit)
	m.LoadCode(code)
	stream(m, "Adds two ints.")

	require.NoError(t, m.SetMode(model.ModeInsightChat, Payload{}))

	s := m.Snapshot()
	require.Len(t, s.Transcript, 3)
	assert.Equal(t, model.System(DefaultContextMarker), s.Transcript[0])
	assert.Equal(t, model.User(code), s.Transcript[1])
	assert.Equal(t, model.Assistant("Adds two ints."), s.Transcript[2])
}

func TestSwitchToChatMidStreamKeepsAppending(t *testing.T) {
	m, _ := newMachine(model.ModeInsightSplit)
	m.LoadCode(code)
	m.Apply(explain.Start())
	m.Apply(explain.Chunk("Hel"))

	require.NoError(t, m.SetMode(model.ModeInsightChat, Payload{}))
	m.Apply(explain.Chunk("lo"))
	m.Apply(explain.Complete())

	s := m.Snapshot()
	require.Len(t, s.Transcript, 3)
	assert.Equal(t, "Hello", s.Transcript[2].Content)
}

func TestChatWithoutInsightWaitsOnCode(t *testing.T) {
	m, _ := newMachine(model.ModeSmartChat)
	require.NoError(t, m.SetMode(model.ModeInsightChat, Payload{Code: code}))
	assert.Equal(t, []model.Message{model.User(code)}, m.Snapshot().Transcript)
}

func TestRestoreInsightMarksTurnFinished(t *testing.T) {
	m, rec := newMachine(model.ModeInsightSplit)
	require.NoError(t, m.SetMode(model.ModeInsightChat, Payload{
		Code:           code,
		Insight:        "Stored explanation.",
		RestoreInsight: true,
	}))

	s := rec.last(t)
	assert.False(t, s.Streaming)
	require.Len(t, s.Transcript, 3)
	assert.Equal(t, "Stored explanation.", s.Transcript[2].Content)
	assert.False(t, m.Busy())
}

func TestPayloadWithNewCodeDropsStaleInsight(t *testing.T) {
	m, _ := newMachine(model.ModeInsightSplit)
	m.LoadCode("old code")
	stream(m, "old insight")

	require.NoError(t, m.SetMode(model.ModeInsightChat, Payload{Code: code}))
	s := m.Snapshot()
	assert.Equal(t, "", s.Insight)
	assert.Equal(t, []model.Message{model.User(code)}, s.Transcript)
}

func TestSourceChatSeedsWithCodeOnly(t *testing.T) {
	m, _ := newMachine(model.ModeInsightSplit)
	m.LoadCode(code)
	stream(m, "insight")

	require.NoError(t, m.SetMode(model.ModeInsightSourceChat, Payload{}))
	assert.Equal(t, []model.Message{model.User(code)}, m.Snapshot().Transcript)
}

func TestSmartChatIsIdempotent(t *testing.T) {
	m, rec := newMachine(model.ModeInsightChat)

	require.NoError(t, m.SetMode(model.ModeSmartChat, Payload{}))
	first := m.Snapshot().Transcript
	renders := len(rec.snapshots)

	require.NoError(t, m.SetMode(model.ModeSmartChat, Payload{}))
	second := m.Snapshot().Transcript

	assert.Equal(t, []model.Message{model.Assistant(DefaultWelcome)}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, renders, len(rec.snapshots))
}

func TestSmartChatResetsAfterConversation(t *testing.T) {
	m, _ := newMachine(model.ModeSmartChat)
	require.True(t, m.SendUserMessage("hello"))
	m.ChatResponse("hi")
	require.Len(t, m.Snapshot().Transcript, 3)

	require.NoError(t, m.SetMode(model.ModeSmartChat, Payload{}))
	assert.Equal(t, []model.Message{model.Assistant(DefaultWelcome)}, m.Snapshot().Transcript)
}

func TestSendUserMessage(t *testing.T) {
	m, rec := newMachine(model.ModeInsightChat)
	m.LoadCode(code)
	stream(m, "Adds.")

	require.True(t, m.SendUserMessage("What types?"))
	assert.True(t, m.Snapshot().Awaiting)
	assert.True(t, m.Busy())
	require.Equal(t, []string{"What types?"}, rec.requests)
	assert.Equal(t, []model.Message{
		model.User(code),
		model.Assistant("Adds."),
		model.User("What types?"),
	}, rec.histories[0])

	// One question at a time.
	assert.False(t, m.SendUserMessage("And?"))

	m.ChatResponse("ints")
	s := m.Snapshot()
	assert.False(t, s.Awaiting)
	assert.Equal(t, model.Assistant("ints"), s.Transcript[len(s.Transcript)-1])

	require.Len(t, rec.turns, 2)
	assert.Equal(t, Turn{Kind: TurnChat, Mode: model.ModeInsightChat, Code: code, Prompt: "What types?", Reply: "ints"}, rec.turns[1])
}

func TestSendUserMessageRejected(t *testing.T) {
	m, _ := newMachine(model.ModeInsightSplit)
	assert.False(t, m.SendUserMessage("hi"), "split has no transcript")

	m, _ = newMachine(model.ModeSmartChat)
	assert.False(t, m.SendUserMessage("   "))

	m, _ = newMachine(model.ModeInsightChat)
	m.LoadCode(code)
	m.Apply(explain.Start())
	assert.False(t, m.SendUserMessage("hi"), "explanation still streaming")
}

func TestChatResponseWithoutRequestIsDropped(t *testing.T) {
	m, rec := newMachine(model.ModeSmartChat)
	renders := len(rec.snapshots)
	m.ChatResponse("late")
	assert.Equal(t, []model.Message{model.Assistant(DefaultWelcome)}, m.Snapshot().Transcript)
	assert.Equal(t, renders, len(rec.snapshots))
}

func TestModeSwitchDropsPendingChat(t *testing.T) {
	m, _ := newMachine(model.ModeSmartChat)
	require.True(t, m.SendUserMessage("hello"))
	require.NoError(t, m.SetMode(model.ModeInsightSplit, Payload{}))
	m.ChatResponse("late")
	require.NoError(t, m.SetMode(model.ModeSmartChat, Payload{}))
	assert.Equal(t, []model.Message{model.Assistant(DefaultWelcome)}, m.Snapshot().Transcript)
}

func TestChatFailed(t *testing.T) {
	m, rec := newMachine(model.ModeSmartChat)
	require.True(t, m.SendUserMessage("hello"))
	m.ChatFailed(errors.New("rate limited"))

	s := m.Snapshot()
	assert.False(t, s.Awaiting)
	assert.True(t, s.Failed)
	assert.Equal(t, model.Assistant("Error: rate limited"), s.Transcript[len(s.Transcript)-1])
	assert.Empty(t, rec.turns)
}

func TestErrorOutsideTurnFollowsLatestReply(t *testing.T) {
	m, _ := newMachine(model.ModeInsightChat)
	m.LoadCode(code)
	stream(m, "insight")
	require.True(t, m.SendUserMessage("why?"))
	m.ChatResponse("because")

	m.Apply(explain.Failed(errors.New("not configured: no API key configured")))

	assert.Equal(t, []model.Message{
		model.User(code),
		model.Assistant("insight"),
		model.User("why?"),
		model.Assistant("because"),
		model.Assistant("Error: not configured: no API key configured"),
	}, m.Snapshot().Transcript)
}

func TestSwitchAwayMidStreamKeepsTranscript(t *testing.T) {
	tests := []struct {
		target model.UIMode
		want   []model.Message
	}{
		{model.ModeInsightSourceChat, []model.Message{model.User(code)}},
		{model.ModeSmartChat, []model.Message{model.Assistant(DefaultWelcome)}},
	}
	for _, tt := range tests {
		t.Run(string(tt.target), func(t *testing.T) {
			m, rec := newMachine(model.ModeInsightChat)
			m.LoadCode(code)
			m.Apply(explain.Start())
			m.Apply(explain.Chunk("This function "))

			require.NoError(t, m.SetMode(tt.target, Payload{}))
			m.Apply(explain.Chunk("adds two ints."))
			m.Apply(explain.Complete())

			s := m.Snapshot()
			assert.Equal(t, tt.want, s.Transcript)
			assert.Equal(t, "This function adds two ints.", s.Insight)
			require.Len(t, rec.turns, 1)
			assert.Equal(t, "This function adds two ints.", rec.turns[0].Reply)

			// Back in chat the full insight is the opening exchange.
			require.NoError(t, m.SetMode(model.ModeInsightChat, Payload{}))
			assert.Equal(t, model.Assistant("This function adds two ints."), m.Snapshot().Transcript[2])
		})
	}
}

func TestSwitchAwayMidStreamErrorStaysInInsight(t *testing.T) {
	m, _ := newMachine(model.ModeInsightChat)
	m.LoadCode(code)
	m.Apply(explain.Start())
	m.Apply(explain.Chunk("part"))
	require.NoError(t, m.SetMode(model.ModeInsightSourceChat, Payload{}))
	m.Apply(explain.Failed(errors.New("boom")))

	s := m.Snapshot()
	assert.Equal(t, []model.Message{model.User(code)}, s.Transcript)
	assert.Equal(t, "part\n\nError: boom", s.Insight)
	assert.True(t, s.Failed)
}

func TestNewTurnDropsPendingChat(t *testing.T) {
	m, rec := newMachine(model.ModeInsightChat)
	m.LoadCode(code)
	stream(m, "first")
	require.True(t, m.SendUserMessage("why?"))

	m.Apply(explain.Start())
	m.Apply(explain.Chunk("sec"))
	m.ChatResponse("because")
	m.Apply(explain.Chunk("ond"))
	m.Apply(explain.Complete())

	s := m.Snapshot()
	assert.False(t, s.Awaiting)
	assert.Equal(t, []model.Message{model.User(code), model.Assistant("second")}, s.Transcript)
	for _, turn := range rec.turns {
		assert.Equal(t, TurnExplain, turn.Kind)
	}
}

func TestChunkWithoutUserMessageAppendsAtEnd(t *testing.T) {
	m, _ := newMachine(model.ModeSmartChat)
	m.Apply(explain.Start())
	m.Apply(explain.Chunk("a"))
	m.Apply(explain.Chunk("b"))

	assert.Equal(t, []model.Message{model.Assistant(DefaultWelcome), model.Assistant("ab")}, m.Snapshot().Transcript)
}

func TestSetModeRejectsUnknown(t *testing.T) {
	m, _ := newMachine(model.ModeInsightChat)
	assert.Error(t, m.SetMode(model.UIMode("DIFF"), Payload{}))
	assert.Equal(t, model.ModeInsightChat, m.Mode())
}

func TestSnapshotIsACopy(t *testing.T) {
	m, _ := newMachine(model.ModeInsightChat)
	m.LoadCode(code)
	s := m.Snapshot()
	s.Transcript[0].Content = "mutated"
	assert.Equal(t, code, m.Snapshot().Transcript[0].Content)
}

func TestResetKeepsMode(t *testing.T) {
	m, _ := newMachine(model.ModeInsightSourceChat)
	m.LoadCode(code)
	m.Reset()
	s := m.Snapshot()
	assert.Equal(t, model.ModeInsightSourceChat, s.Mode)
	assert.Empty(t, s.Code)
	assert.Empty(t, s.Transcript)
}
