package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/codeinsight/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Create inserts a conversation. Missing ID and timestamps are filled in.
func (s *SQLiteStore) Create(
	ctx context.Context,
	c model.Conversation,
) (model.Conversation, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Mode == "" {
		c.Mode = model.DefaultMode
	}
	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, title, mode, language, source_code, insight, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, string(c.Mode), c.Language, c.SourceCode, c.Insight,
		c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("creating conversation: %w", err)
	}

	return c, nil
}

// Update applies patch to the conversation and bumps updated_at.
func (s *SQLiteStore) Update(
	ctx context.Context,
	id string,
	patch ConversationPatch,
) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{s.now().UTC()}

	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Mode != nil {
		sets = append(sets, "mode = ?")
		args = append(args, string(*patch.Mode))
	}
	if patch.Language != nil {
		sets = append(sets, "language = ?")
		args = append(args, *patch.Language)
	}
	if patch.Insight != nil {
		sets = append(sets, "insight = ?")
		args = append(args, *patch.Insight)
	}
	args = append(args, id)

	query := "UPDATE conversations SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating conversation %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("updating conversation %s: %w", id, ErrNotFound)
	}

	return nil
}

// Delete removes a conversation and its messages.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("deleting conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

// Find retrieves a single conversation by its ID.
func (s *SQLiteStore) Find(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id)

	c, err := scanConversationRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation %s: %w", id, err)
	}

	return &c, nil
}

// FindLatest returns the most recently updated conversation matching filter.
func (s *SQLiteStore) FindLatest(
	ctx context.Context,
	filter ConversationFilter,
) (*model.Conversation, error) {
	filter.Limit = 1
	filter.Offset = 0
	convs, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, ErrNotFound
	}
	return &convs[0], nil
}

// List returns conversations matching filter, newest first.
func (s *SQLiteStore) List(
	ctx context.Context,
	filter ConversationFilter,
) ([]model.Conversation, error) {
	var conditions []string
	var args []interface{}

	if filter.Mode != nil {
		conditions = append(conditions, "mode = ?")
		args = append(args, string(*filter.Mode))
	}
	if filter.SourceCode != nil {
		conditions = append(conditions, "source_code = ?")
		args = append(args, *filter.SourceCode)
	}
	if filter.WithInsight {
		conditions = append(conditions, "insight <> ''")
	}

	query := "SELECT " + conversationColumns + " FROM conversations"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at DESC, rowid DESC"
	query += limitClause(filter.Limit, filter.Offset)

	return s.queryConversations(ctx, query, args...)
}

// likeEscaper makes a search term match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search matches term against title, source, insight and message content.
func (s *SQLiteStore) Search(
	ctx context.Context,
	term string,
	limit int,
) ([]model.Conversation, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return s.List(ctx, ConversationFilter{Limit: limit})
	}

	q := "%" + likeEscaper.Replace(term) + "%"
	query := "SELECT " + conversationColumns + ` FROM conversations c
		WHERE c.title LIKE ? ESCAPE '\' OR c.source_code LIKE ? ESCAPE '\'
		   OR c.insight LIKE ? ESCAPE '\'
		   OR EXISTS (
			SELECT 1 FROM messages m
			WHERE m.conversation_id = c.id AND m.content LIKE ? ESCAPE '\'
		   )
		ORDER BY c.updated_at DESC, c.rowid DESC` + limitClause(limit, 0)

	return s.queryConversations(ctx, query, q, q, q, q)
}

// AddMessage appends msg to a conversation and bumps its updated_at.
func (s *SQLiteStore) AddMessage(
	ctx context.Context,
	conversationID string,
	msg model.Message,
) (model.StoredMessage, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.StoredMessage{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	res, err := tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?", now, conversationID)
	if err != nil {
		return model.StoredMessage{}, fmt.Errorf("touching conversation %s: %w", conversationID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.StoredMessage{}, fmt.Errorf("adding message to %s: %w", conversationID, ErrNotFound)
	}

	stored := model.StoredMessage{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		CreatedAt:      now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		stored.ID, stored.ConversationID, string(stored.Role), stored.Content, stored.CreatedAt,
	)
	if err != nil {
		return model.StoredMessage{}, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.StoredMessage{}, fmt.Errorf("committing message: %w", err)
	}
	return stored, nil
}

// Messages returns a conversation's messages in insertion order.
func (s *SQLiteStore) Messages(
	ctx context.Context,
	conversationID string,
) ([]model.StoredMessage, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at, rowid`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.StoredMessage
	for rows.Next() {
		var (
			m         model.StoredMessage
			role      string
			createdAt time.Time
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		m.Role = model.Role(role)
		m.CreatedAt = createdAt
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

const conversationColumns = "id, title, mode, language, source_code, insight, created_at, updated_at"

func (s *SQLiteStore) queryConversations(
	ctx context.Context,
	query string,
	args ...interface{},
) ([]model.Conversation, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}

	return convs, rows.Err()
}

func limitClause(limit, offset int) string {
	var clause string
	if limit > 0 {
		clause += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		if limit <= 0 {
			clause += " LIMIT -1"
		}
		clause += fmt.Sprintf(" OFFSET %d", offset)
	}
	return clause
}

// scanConversation scans a conversation row from a sqlx.Rows result set.
func scanConversation(rows *sqlx.Rows) (model.Conversation, error) {
	var (
		c         model.Conversation
		mode      string
		createdAt time.Time
		updatedAt time.Time
	)

	err := rows.Scan(
		&c.ID, &c.Title, &mode, &c.Language, &c.SourceCode, &c.Insight,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("scanning conversation row: %w", err)
	}

	c.Mode = model.UIMode(mode)
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	return c, nil
}

// scanConversationRow scans a single conversation from a sqlx.Row.
func scanConversationRow(row *sqlx.Row) (model.Conversation, error) {
	var (
		c         model.Conversation
		mode      string
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(
		&c.ID, &c.Title, &mode, &c.Language, &c.SourceCode, &c.Insight,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return model.Conversation{}, err
	}

	c.Mode = model.UIMode(mode)
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	return c, nil
}
