package thread

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/do"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry of a thread's append-only log.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Service is the per-thread message log.
type Service struct {
	db *sql.DB
}

func New(di *do.Injector) (*Service, error) {
	return NewWithDB(do.MustInvoke[*sql.DB](di)), nil
}

func NewWithDB(db *sql.DB) *Service {
	return &Service{db: db}
}

// Append adds one message to the log and returns it.
func (s *Service) Append(ctx context.Context, threadID, role, content string) (*Message, error) {
	msg := &Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}

	query := `INSERT INTO messages (id, thread_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.ThreadID, msg.Role, msg.Content, msg.CreatedAt.Unix(),
	); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return msg, nil
}

// List returns the full log in insertion order.
func (s *Service) List(ctx context.Context, threadID string) ([]Message, error) {
	query := `
		SELECT id, thread_id, role, content, created_at
		FROM messages WHERE thread_id = ?
		ORDER BY created_at, rowid`

	return s.queryMessages(ctx, query, threadID)
}

// Recent returns the newest n messages in chronological order.
func (s *Service) Recent(ctx context.Context, threadID string, n int) ([]Message, error) {
	query := `
		SELECT id, thread_id, role, content, created_at FROM (
			SELECT id, thread_id, role, content, created_at, rowid AS rid
			FROM messages WHERE thread_id = ?
			ORDER BY created_at DESC, rid DESC
			LIMIT ?
		) ORDER BY created_at, rid`

	return s.queryMessages(ctx, query, threadID, n)
}

// LastAssistant returns the content of the most recent assistant message,
// or an empty string if there is none.
func (s *Service) LastAssistant(ctx context.Context, threadID string) (string, error) {
	query := `
		SELECT content FROM messages
		WHERE thread_id = ? AND role = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`

	var content string
	err := s.db.QueryRowContext(ctx, query, threadID, RoleAssistant).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan last assistant message: %w", err)
	}

	return content, nil
}

// Clear deletes the whole log of a thread.
func (s *Service) Clear(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	return nil
}

func (s *Service) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var createdAt int64

		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}

		msg.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
