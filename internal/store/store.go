package store

import (
	"context"
	"errors"

	"github.com/nhle/codeinsight/internal/model"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// ConversationFilter narrows conversation queries.
type ConversationFilter struct {
	Mode       *model.UIMode
	SourceCode *string

	// WithInsight keeps only conversations that have a stored insight.
	WithInsight bool

	Limit  int
	Offset int
}

// ConversationPatch lists the fields Update changes. Nil fields are left
// alone.
type ConversationPatch struct {
	Title    *string
	Mode     *model.UIMode
	Language *string
	Insight  *string
}

// Empty reports whether the patch changes nothing.
func (p ConversationPatch) Empty() bool {
	return p.Title == nil && p.Mode == nil && p.Language == nil && p.Insight == nil
}

// Store persists conversations and their messages.
type Store interface {
	// Create inserts c, assigning an ID and timestamps when unset.
	Create(ctx context.Context, c model.Conversation) (model.Conversation, error)
	Update(ctx context.Context, id string, patch ConversationPatch) error
	Delete(ctx context.Context, id string) error

	Find(ctx context.Context, id string) (*model.Conversation, error)
	// FindLatest returns the most recently updated match, or ErrNotFound.
	FindLatest(ctx context.Context, filter ConversationFilter) (*model.Conversation, error)
	List(ctx context.Context, filter ConversationFilter) ([]model.Conversation, error)
	// Search matches term against titles, source, insight and messages.
	Search(ctx context.Context, term string, limit int) ([]model.Conversation, error)

	AddMessage(ctx context.Context, conversationID string, msg model.Message) (model.StoredMessage, error)
	Messages(ctx context.Context, conversationID string) ([]model.StoredMessage, error)

	Close() error
}
