package answers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteDurable persists proposal state in the shared sqlite database.
type SQLiteDurable struct {
	db *sql.DB
}

func NewSQLiteDurable(db *sql.DB) *SQLiteDurable {
	return &SQLiteDurable{db: db}
}

func (s *SQLiteDurable) Load(ctx context.Context, threadID string) (int, map[string]string, error) {
	query := `SELECT asked_count, answers_json FROM proposal_state WHERE thread_id = ?`

	var count int
	var answersJSON string

	err := s.db.QueryRowContext(ctx, query, threadID).Scan(&count, &answersJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, map[string]string{}, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("scan proposal state: %w", err)
	}

	answers := map[string]string{}
	if err := json.Unmarshal([]byte(answersJSON), &answers); err != nil {
		return 0, nil, fmt.Errorf("decode answers: %w", err)
	}

	return count, answers, nil
}

func (s *SQLiteDurable) Store(ctx context.Context, threadID string, count int, answers map[string]string) error {
	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	query := `
	INSERT INTO proposal_state (thread_id, asked_count, answers_json, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(thread_id) DO UPDATE SET
		asked_count = excluded.asked_count,
		answers_json = excluded.answers_json,
		updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, threadID, count, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("upsert proposal state: %w", err)
	}

	return nil
}

func (s *SQLiteDurable) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM proposal_state WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete proposal state: %w", err)
	}

	return nil
}
