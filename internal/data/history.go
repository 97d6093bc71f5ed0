package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/normanking/t031a5/pkg/types"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("history store closed")

// RecordTurn appends one conversation turn.
func (s *Store) RecordTurn(ctx context.Context, t types.ConversationTurn) error {
	if s.db == nil {
		return ErrClosed
	}
	gestures := t.Gestures
	if gestures == nil {
		gestures = []string{}
	}
	encoded, err := json.Marshal(gestures)
	if err != nil {
		return fmt.Errorf("encode gestures: %w", err)
	}
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (session_id, kind, content, affect, gestures, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.Kind, t.Content, t.Affect, string(encoded), ts.UTC())
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// Recent returns the last n turns, oldest first.
func (s *Store) Recent(ctx context.Context, n int) ([]types.ConversationTurn, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, kind, content, affect, gestures, created_at
		FROM conversation_turns
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []types.ConversationTurn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Count returns the number of stored turns.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversation_turns").Scan(&n); err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return n, nil
}

// Prune deletes turns older than the cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversation_turns WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune turns: %w", err)
	}
	return res.RowsAffected()
}

func scanTurn(rows *sql.Rows) (types.ConversationTurn, error) {
	var (
		t        types.ConversationTurn
		gestures string
	)
	if err := rows.Scan(&t.SessionID, &t.Kind, &t.Content, &t.Affect, &gestures, &t.Timestamp); err != nil {
		return t, fmt.Errorf("scan turn: %w", err)
	}
	if gestures != "" && gestures != "[]" {
		if err := json.Unmarshal([]byte(gestures), &t.Gestures); err != nil {
			return t, fmt.Errorf("decode gestures: %w", err)
		}
	}
	return t, nil
}
