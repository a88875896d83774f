package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wiredesk/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the embedded schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// ==== ChatStore implementation ====

// CreateChat inserts a new chat.
func (s *SQLiteStore) CreateChat(ctx context.Context, chat *store.Chat) error {
	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	if chat.UpdatedAt.IsZero() {
		chat.UpdatedAt = chat.CreatedAt
	}

	query := `
		INSERT INTO chats (id, assigned, is_urgent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		chat.ID, chat.Assigned, chat.IsUrgent, toNanos(chat.CreatedAt), toNanos(chat.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert chat %s: %w", chat.ID, store.ErrDuplicate)
		}
		return fmt.Errorf("insert chat: %w", err)
	}

	return nil
}

// GetChat retrieves a chat by ID.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*store.Chat, error) {
	query := `
		SELECT id, assigned, is_urgent, created_at, updated_at
		FROM chats
		WHERE id = ?
	`
	chat, err := scanChat(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chat: %w", err)
	}

	return chat, nil
}

// ClaimChat flips assigned from false to true in a single conditional update.
func (s *SQLiteStore) ClaimChat(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE chats
		SET assigned = 1, updated_at = ?
		WHERE id = ? AND assigned = 0
	`
	result, err := s.db.ExecContext(ctx, query, toNanos(time.Now()), id)
	if err != nil {
		return false, fmt.Errorf("claim chat: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rows == 1, nil
}

// MarkChatUrgent sets the urgency flag on a chat.
func (s *SQLiteStore) MarkChatUrgent(ctx context.Context, id string) (*store.Chat, error) {
	query := `UPDATE chats SET is_urgent = 1, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, toNanos(time.Now()), id)
	if err != nil {
		return nil, fmt.Errorf("mark chat urgent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("chat %s: %w", id, store.ErrNotFound)
	}

	return s.GetChat(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*store.Chat, error) {
	var chat store.Chat
	var createdAt, updatedAt int64
	if err := row.Scan(&chat.ID, &chat.Assigned, &chat.IsUrgent, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	chat.CreatedAt = fromNanos(createdAt)
	chat.UpdatedAt = fromNanos(updatedAt)
	return &chat, nil
}

// ==== MessageStore implementation ====

const messageColumns = `id, sender_type, sender_id, chat_id, body, is_urgent, created_at`

// SaveMessage persists a message to storage.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (sender_type, sender_id, chat_id, body, is_urgent, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		string(msg.SenderType), msg.SenderID, msg.ChatID, msg.Body, msg.IsUrgent, toNanos(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// ListMessages retrieves messages of a chat with pagination. beforeID is a cursor on the
// (created_at, id) ordering; an unknown cursor yields an empty page.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID string, limit int, beforeID *int64) ([]*store.Message, error) {
	var query string
	var args []any

	if beforeID != nil {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE chat_id = ?
				AND (created_at, id) < (SELECT created_at, id FROM messages WHERE id = ?)
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`
		args = []any{chatID, *beforeID, limit}
	} else {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE chat_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`
		args = []any{chatID, limit}
	}

	messages, err := s.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, nil
}

// SearchMessages returns messages whose body contains query.
func (s *SQLiteStore) SearchMessages(ctx context.Context, query string, limit int) ([]*store.Message, error) {
	pattern := "%" + escapeLike(query) + "%"
	q := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE body LIKE ? ESCAPE '\'
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`
	return s.queryMessages(ctx, q, pattern, limit)
}

// ListUrgentMessages returns messages flagged as urgent, newest first.
func (s *SQLiteStore) ListUrgentMessages(ctx context.Context, limit int) ([]*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE is_urgent = 1
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	return s.queryMessages(ctx, query, limit)
}

// MarkMessageUrgent sets the urgency flag on a message.
func (s *SQLiteStore) MarkMessageUrgent(ctx context.Context, id int64) (*store.Message, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET is_urgent = 1 WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("mark message urgent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}

	return s.GetMessage(ctx, id)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	var senderType string
	var createdAt int64
	err := row.Scan(&msg.ID, &senderType, &msg.SenderID, &msg.ChatID, &msg.Body, &msg.IsUrgent, &createdAt)
	if err != nil {
		return nil, err
	}
	msg.SenderType = store.SenderType(senderType)
	msg.CreatedAt = fromNanos(createdAt)
	return &msg, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ==== AgentStore implementation ====

// CreateAgent inserts a new agent.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *store.Agent) error {
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO agents (id, email, created_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, agent.ID, agent.Email, toNanos(agent.CreatedAt)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert agent %s: %w", agent.ID, store.ErrDuplicate)
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent and its assigned chats.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*store.Agent, error) {
	query := `SELECT id, email, created_at FROM agents WHERE id = ?`
	var agent store.Agent
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(&agent.ID, &agent.Email, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("agent %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query agent: %w", err)
	}
	agent.CreatedAt = fromNanos(createdAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id FROM agent_chats
		WHERE agent_id = ?
		ORDER BY assigned_at ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query assigned chats: %w", err)
	}
	defer rows.Close()

	agent.AssignedChats = []string{}
	for rows.Next() {
		var chatID string
		if err := rows.Scan(&chatID); err != nil {
			return nil, fmt.Errorf("scan assigned chat: %w", err)
		}
		agent.AssignedChats = append(agent.AssignedChats, chatID)
	}

	return &agent, rows.Err()
}

// AddAssignedChat records chatID in the agent's assigned set.
// The insert selects from agents so a missing agent affects zero rows.
func (s *SQLiteStore) AddAssignedChat(ctx context.Context, agentID, chatID string) error {
	query := `
		INSERT OR IGNORE INTO agent_chats (agent_id, chat_id, assigned_at)
		SELECT id, ?, ? FROM agents WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, chatID, toNanos(time.Now()), agentID)
	if err != nil {
		return fmt.Errorf("insert assigned chat: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	// Zero rows: either the agent is missing or the chat is already in its set.
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM agents WHERE id = ?`, agentID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("agent %s: %w", agentID, store.ErrNotFound)
		}
		return fmt.Errorf("query agent: %w", err)
	}
	return nil
}

// ListAgentChats returns the chats assigned to an agent.
func (s *SQLiteStore) ListAgentChats(ctx context.Context, agentID string) ([]*store.Chat, error) {
	query := `
		SELECT c.id, c.assigned, c.is_urgent, c.created_at, c.updated_at
		FROM chats c
		JOIN agent_chats ac ON ac.chat_id = c.id
		WHERE ac.agent_id = ?
		ORDER BY ac.assigned_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("query agent chats: %w", err)
	}
	defer rows.Close()

	var chats []*store.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}

	return chats, rows.Err()
}

// ==== CannedStore implementation ====

// CreateCannedMessage inserts a new template.
func (s *SQLiteStore) CreateCannedMessage(ctx context.Context, title, content string) (*store.CannedMessage, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO canned_messages (title, content) VALUES (?, ?)`, title, content)
	if err != nil {
		return nil, fmt.Errorf("insert canned message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}
	return s.GetCannedMessage(ctx, id)
}

// GetCannedMessage retrieves a template by ID.
func (s *SQLiteStore) GetCannedMessage(ctx context.Context, id int64) (*store.CannedMessage, error) {
	var canned store.CannedMessage
	err := s.db.QueryRowContext(ctx, `SELECT id, title, content FROM canned_messages WHERE id = ?`, id).
		Scan(&canned.ID, &canned.Title, &canned.Content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("canned message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query canned message: %w", err)
	}
	return &canned, nil
}
