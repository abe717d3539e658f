package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/codeinsight/internal/model"
	"github.com/nhle/codeinsight/internal/store"
	"github.com/nhle/codeinsight/internal/store/storetest"
)

// tickingClock returns a clock advancing one second per call.
func tickingClock() func() time.Time {
	t := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s := storetest.New(t)
	s.SetClock(tickingClock())
	return s
}

func strPtr(s string) *string { return &s }

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	created, err := s.Create(ctx, model.Conversation{
		Title:      "func main",
		Mode:       model.ModeInsightSplit,
		Language:   "go",
		SourceCode: "func main() {}",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.Find(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, model.ModeInsightSplit, got.Mode)
	assert.Equal(t, "func main() {}", got.SourceCode)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
}

func TestCreateDefaultsMode(t *testing.T) {
	s := newStore(t)
	c, err := s.Create(context.Background(), model.Conversation{Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultMode, c.Mode)
}

func TestFindMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.Find(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	c, err := s.Create(ctx, model.Conversation{Title: "t", SourceCode: "x"})
	require.NoError(t, err)

	mode := model.ModeSmartChat
	require.NoError(t, s.Update(ctx, c.ID, store.ConversationPatch{
		Insight: strPtr("explained"),
		Mode:    &mode,
	}))

	got, err := s.Find(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "explained", got.Insight)
	assert.Equal(t, model.ModeSmartChat, got.Mode)
	assert.Equal(t, "t", got.Title)
	assert.True(t, got.UpdatedAt.After(c.UpdatedAt))

	err = s.Update(ctx, "missing", store.ConversationPatch{Title: strPtr("x")})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	c, err := s.Create(ctx, model.Conversation{SourceCode: "x"})
	require.NoError(t, err)

	_, err = s.AddMessage(ctx, c.ID, model.User("x"))
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, c.ID, model.Assistant("it is x"))
	require.NoError(t, err)

	msgs, err := s.Messages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.User("x"), msgs[0].Message())
	assert.Equal(t, model.Assistant("it is x"), msgs[1].Message())

	_, err = s.AddMessage(ctx, "missing", model.User("x"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindLatest(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.FindLatest(ctx, store.ConversationFilter{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	a, err := s.Create(ctx, model.Conversation{SourceCode: "a", Insight: "about a"})
	require.NoError(t, err)
	b, err := s.Create(ctx, model.Conversation{SourceCode: "b"})
	require.NoError(t, err)

	latest, err := s.FindLatest(ctx, store.ConversationFilter{})
	require.NoError(t, err)
	assert.Equal(t, b.ID, latest.ID)

	// Activity moves a conversation to the front.
	_, err = s.AddMessage(ctx, a.ID, model.User("q"))
	require.NoError(t, err)
	latest, err = s.FindLatest(ctx, store.ConversationFilter{})
	require.NoError(t, err)
	assert.Equal(t, a.ID, latest.ID)

	latest, err = s.FindLatest(ctx, store.ConversationFilter{SourceCode: strPtr("b")})
	require.NoError(t, err)
	assert.Equal(t, b.ID, latest.ID)

	_, err = s.FindLatest(ctx, store.ConversationFilter{SourceCode: strPtr("b"), WithInsight: true})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	split := model.ModeInsightSplit
	for i := 0; i < 5; i++ {
		mode := model.ModeInsightChat
		if i%2 == 0 {
			mode = split
		}
		_, err := s.Create(ctx, model.Conversation{Mode: mode, SourceCode: "x"})
		require.NoError(t, err)
	}

	all, err := s.List(ctx, store.ConversationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.True(t, all[0].UpdatedAt.After(all[4].UpdatedAt))

	splits, err := s.List(ctx, store.ConversationFilter{Mode: &split})
	require.NoError(t, err)
	assert.Len(t, splits, 3)

	page, err := s.List(ctx, store.ConversationFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[2].ID, page[0].ID)

	tail, err := s.List(ctx, store.ConversationFilter{Offset: 4})
	require.NoError(t, err)
	assert.Len(t, tail, 1)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	a, err := s.Create(ctx, model.Conversation{Title: "parser", SourceCode: "func parse()"})
	require.NoError(t, err)
	b, err := s.Create(ctx, model.Conversation{Title: "cache", Insight: "an LRU cache"})
	require.NoError(t, err)
	c, err := s.Create(ctx, model.Conversation{Title: "other"})
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, c.ID, model.User("how does the tokenizer work?"))
	require.NoError(t, err)

	hits, err := s.Search(ctx, "parse", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, a.ID, hits[0].ID)

	hits, err = s.Search(ctx, "LRU", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, b.ID, hits[0].ID)

	hits, err = s.Search(ctx, "tokenizer", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, c.ID, hits[0].ID)

	hits, err = s.Search(ctx, "  ", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearchTreatsWildcardsLiterally(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	snake, err := s.Create(ctx, model.Conversation{Title: "my_var := 1"})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.Conversation{Title: "myXvar := 1"})
	require.NoError(t, err)
	pct, err := s.Create(ctx, model.Conversation{Title: "printf(\"100%\")"})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.Conversation{Title: "1000 items"})
	require.NoError(t, err)
	slash, err := s.Create(ctx, model.Conversation{SourceCode: `path := "a\b"`})
	require.NoError(t, err)

	tests := []struct {
		term string
		want string
	}{
		{"my_var", snake.ID},
		{"100%", pct.ID},
		{`a\b`, slash.ID},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			hits, err := s.Search(ctx, tt.term, 10)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, tt.want, hits[0].ID)
		})
	}
}

func TestDeleteCascadesMessages(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	c, err := s.Create(ctx, model.Conversation{})
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, c.ID, model.User("x"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, c.ID))
	msgs, err := s.Messages(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.ErrorIs(t, s.Delete(ctx, c.ID), store.ErrNotFound)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "insight.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	c, err := s.Create(ctx, model.Conversation{Title: "persisted"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Find(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Title)
}
