package explain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/codeinsight/internal/model"
)

func TestExplainLiveStream(t *testing.T) {
	tr := &fakeTransport{deltas: []string{"This ", "adds ", "numbers."}}
	svc := newTestService(t, tr)

	events := collect(t, svc.Explain(context.Background(), "def add(a, b):\n    return a + b\n"))

	assert.Equal(t, []EventKind{EventStart, EventChunk, EventChunk, EventChunk, EventComplete}, kinds(events))
	assert.Equal(t, "This adds numbers.", text(events))

	cached, ok := svc.Cache().Get("def add(a, b):\n    return a + b\n")
	require.True(t, ok)
	assert.Equal(t, "This adds numbers.", cached)

	require.Len(t, tr.requests, 1)
	req := tr.requests[0]
	assert.Equal(t, "sk-test", req.APIKey)
	assert.Contains(t, req.Prompt, "```python\n")
	assert.Contains(t, req.Prompt, "Explain the following python code.")
	assert.NotEmpty(t, req.System)
}

func TestExplainTwiceServesFromCache(t *testing.T) {
	tr := &fakeTransport{deltas: []string{"Hello, ", "world!"}}
	svc := newTestService(t, tr)
	code := "package main"

	first := collect(t, svc.Explain(context.Background(), code))
	second := collect(t, svc.Explain(context.Background(), code))

	assert.Equal(t, text(first), text(second))
	assert.Equal(t, 1, tr.streamCount())

	// Replay keeps the live shape, in rune-sized chunks.
	assert.Equal(t, []EventKind{EventStart, EventChunk, EventChunk, EventChunk, EventChunk, EventComplete}, kinds(second))
	assert.Equal(t, "Hell", second[1].Text)
	assert.Equal(t, "!", second[4].Text)
}

func TestExplainReplaySplitsOnRunes(t *testing.T) {
	svc := newTestService(t, &fakeTransport{})
	svc.Cache().Put("x", "héllo wörld")

	events := collect(t, svc.Explain(context.Background(), "x"))
	assert.Equal(t, "héllo wörld", text(events))
	assert.Equal(t, "héll", events[1].Text)
}

func TestExplainConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		creds CredentialSource
	}{
		{"empty code", "", StaticKey("sk")},
		{"blank code", "  \n\t", StaticKey("sk")},
		{"no key", "x := 1", StaticKey("")},
		{"lookup fails", "x := 1", failingCreds{}},
		{"no source", "x := 1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{}
			svc := NewService(tr, tt.creds, nil, Config{}, nil)

			events := collect(t, svc.Explain(context.Background(), tt.code))

			require.Len(t, events, 1)
			assert.Equal(t, EventError, events[0].Kind)
			assert.ErrorIs(t, events[0].Err, ErrConfig)
			assert.Equal(t, 0, tr.streamCount())
		})
	}
}

func TestExplainTransportFailureIsNotCached(t *testing.T) {
	boom := errors.New("connection reset")
	tr := &fakeTransport{deltas: []string{"partial "}, fail: boom}
	svc := newTestService(t, tr)

	events := collect(t, svc.Explain(context.Background(), "SELECT 1"))

	assert.Equal(t, []EventKind{EventStart, EventChunk, EventError}, kinds(events))
	var te *TransportError
	require.ErrorAs(t, events[2].Err, &te)
	assert.ErrorIs(t, events[2].Err, boom)

	_, ok := svc.Cache().Get("SELECT 1")
	assert.False(t, ok)
	assert.Equal(t, 0, svc.Cache().Len())
}

func TestExplainCancelStopsEvents(t *testing.T) {
	tr := &fakeTransport{deltas: []string{"one ", "two "}, block: true}
	svc := newTestService(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	ch := svc.Explain(ctx, "int x;")

	assert.Equal(t, EventStart, (<-ch).Kind)
	assert.Equal(t, "one ", (<-ch).Text)
	assert.Equal(t, "two ", (<-ch).Text)
	cancel()

	rest := collect(t, ch)
	assert.Empty(t, rest)
	assert.Equal(t, 0, svc.Cache().Len())
}

func TestExplainCancelDuringReplay(t *testing.T) {
	svc := newTestService(t, &fakeTransport{})
	svc.Cache().Put("k", strings.Repeat("abcd", 50))

	ctx, cancel := context.WithCancel(context.Background())
	ch := svc.Explain(ctx, "k")
	assert.Equal(t, EventStart, (<-ch).Kind)
	cancel()

	for ev := range ch {
		assert.NotEqual(t, EventComplete, ev.Kind)
	}
}

func TestExplainConcurrentRequestsAreIndependent(t *testing.T) {
	tr := &fakeTransport{deltas: []string{"a", "b", "c"}}
	svc := NewService(tr, StaticKey("sk"), NewCache(50, 0), Config{}, nil)

	var wg sync.WaitGroup
	results := make([][]Event, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := strings.Repeat("x", i+1)
			for ev := range svc.Explain(context.Background(), code) {
				results[i] = append(results[i], ev)
			}
		}(i)
	}
	wg.Wait()

	for _, events := range results {
		assert.Equal(t, []EventKind{EventStart, EventChunk, EventChunk, EventChunk, EventComplete}, kinds(events))
		assert.Equal(t, "abc", text(events))
	}
	assert.Equal(t, 8, svc.Cache().Len())
}

func TestExplainEmptyResultIsNotCached(t *testing.T) {
	tr := &fakeTransport{}
	svc := newTestService(t, tr)

	events := collect(t, svc.Explain(context.Background(), "x"))
	assert.Equal(t, []EventKind{EventStart, EventComplete}, kinds(events))
	assert.Equal(t, 0, svc.Cache().Len())
}

func TestChat(t *testing.T) {
	tr := &fakeTransport{reply: "It returns the sum."}
	svc := newTestService(t, tr)

	history := []model.Message{
		model.System("context"),
		model.User("def add(a, b): return a + b"),
		model.Assistant("Adds two numbers."),
		model.User("What does it return?"),
	}
	reply, err := svc.Chat(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "It returns the sum.", reply)

	require.Len(t, tr.chats, 1)
	sent := tr.chats[0].Messages
	require.Len(t, sent, 4)
	assert.Equal(t, model.RoleSystem, sent[0].Role)
	assert.Equal(t, chatSystemPrompt, sent[0].Content)
	assert.Equal(t, history[1:], sent[1:])
}

func TestChatErrors(t *testing.T) {
	svc := NewService(&fakeTransport{}, StaticKey(""), nil, Config{}, nil)
	_, err := svc.Chat(context.Background(), []model.Message{model.User("hi")})
	assert.ErrorIs(t, err, ErrConfig)

	tr := &fakeTransport{chatErr: errors.New("429")}
	svc = newTestService(t, tr)
	_, err = svc.Chat(context.Background(), []model.Message{model.User("hi")})
	var te *TransportError
	assert.ErrorAs(t, err, &te)

	_, err = svc.Chat(context.Background(), nil)
	assert.Error(t, err)
}

func TestWindowHistory(t *testing.T) {
	var history []model.Message
	history = append(history, model.System("marker"), model.User("code"))
	for i := 0; i < 10; i++ {
		history = append(history, model.Assistant("a"), model.User("q"))
	}

	got := windowHistory(history, 5)
	require.Len(t, got, 5)
	assert.Equal(t, model.User("code"), got[0])
	assert.Equal(t, model.User("q"), got[4])

	assert.Len(t, windowHistory(history, 0), 21)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "explanation-start", EventStart.String())
	assert.Equal(t, "explanation-chunk", EventChunk.String())
	assert.Equal(t, "explanation-complete", EventComplete.String())
	assert.Equal(t, "explanation-error", EventError.String())
	assert.True(t, Complete().Terminal())
	assert.False(t, Chunk("x").Terminal())
}
