package model

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single entry in a transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// User returns a user message with the given content.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant message with the given content.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// System returns a system message with the given content.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// Conversation is a persisted explanation session.
type Conversation struct {
	// ID is the internal unique identifier.
	ID string `json:"id" db:"id"`

	// Title is derived from the first meaningful line of the source.
	Title string `json:"title" db:"title"`

	// Mode is the UI mode the conversation was last shown in.
	Mode UIMode `json:"mode" db:"mode"`

	// Language is the detected language tag of the source.
	Language string `json:"language" db:"language"`

	// SourceCode is the verbatim code the insight explains.
	SourceCode string `json:"source_code" db:"source_code"`

	// Insight is the accumulated explanation text.
	Insight string `json:"insight" db:"insight"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// StoredMessage is a message row belonging to a conversation.
type StoredMessage struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Role           Role      `json:"role" db:"role"`
	Content        string    `json:"content" db:"content"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Message converts the row into a transcript message.
func (m StoredMessage) Message() Message {
	return Message{Role: m.Role, Content: m.Content}
}
