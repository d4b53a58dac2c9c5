// Copyright 2026 Weft Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store is the durable SQLite-backed state of weft: connection and
// provider profiles, sessions with their chat history and compression
// summaries, migration tasks, external tool-server configs, preferences and
// the audit trail. Writes are serialized through a single mutex; every
// multi-statement mutation runs inside one transaction.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "github.com/weftdb/weft/internal/sqlitedriver" // registers "sqlite3" driver
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the database at path and applies pending
// schema migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	migrator, err := NewMigrator(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := migrator.MigrateUp(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for migrations and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

func newID() string { return uuid.NewString() }

// nowNanos returns the current time as unix nanoseconds. Nanosecond
// granularity keeps message ordering strict even within one turn.
func nowNanos() int64 { return time.Now().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n) }

// withTx runs fn inside a write transaction under the store mutex.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Sessions ---

// CreateSession creates a new session. connectionID and providerID may be
// empty.
func (s *Store) CreateSession(ctx context.Context, name, connectionID, providerID string) (*Session, error) {
	sess := &Session{
		ID:           newID(),
		Name:         name,
		ConnectionID: connectionID,
		ProviderID:   providerID,
	}
	now := nowNanos()
	sess.CreatedAt = fromNanos(now)
	sess.UpdatedAt = fromNanos(now)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, name, connection_id, provider_id, is_current, created_at, updated_at)
			VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), 0, ?, ?)`,
			sess.ID, sess.Name, connectionID, providerID, now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// GetSession returns the session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(connection_id, ''), COALESCE(provider_id, ''), is_current, created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// CurrentSession returns the session marked current, or ErrNotFound.
func (s *Store) CurrentSession(ctx context.Context) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(connection_id, ''), COALESCE(provider_id, ''), is_current, created_at, updated_at
		FROM sessions WHERE is_current = 1`)
	return scanSession(row)
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(connection_id, ''), COALESCE(provider_id, ''), is_current, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// RenameSession updates the session name.
func (s *Store) RenameSession(ctx context.Context, id, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE sessions SET name = ?, updated_at = ? WHERE id = ?",
			name, nowNanos(), id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// DeleteSession removes the session; messages and summaries cascade.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// SetCurrentSession marks the session current, clearing any prior current
// flag in the same transaction.
func (s *Store) SetCurrentSession(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE sessions SET is_current = 0 WHERE is_current = 1"); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "UPDATE sessions SET is_current = 1 WHERE id = ?", id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var current int
	var created, updated int64
	err := row.Scan(&sess.ID, &sess.Name, &sess.ConnectionID, &sess.ProviderID, &current, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	sess.IsCurrent = current != 0
	sess.CreatedAt = fromNanos(created)
	sess.UpdatedAt = fromNanos(updated)
	return &sess, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Chat messages ---

// AddMessage appends a message to a session and bumps the session's
// updated_at in the same transaction.
func (s *Store) AddMessage(ctx context.Context, msg *ChatMessage) error {
	if msg.SessionID == "" {
		return fmt.Errorf("message requires a session id")
	}
	if msg.ID == "" {
		msg.ID = newID()
	}
	now := nowNanos()
	msg.CreatedAt = fromNanos(now)

	var toolCalls interface{}
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to marshal tool calls: %w", err)
		}
		toolCalls = string(data)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_messages (id, session_id, role, content, tool_calls, tool_call_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.SessionID, msg.Role, msg.Content, toolCalls, msg.ToolCallID, now); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE sessions SET updated_at = ? WHERE id = ?", now, msg.SessionID); err != nil {
			return fmt.Errorf("failed to bump session timestamp: %w", err)
		}
		return nil
	})
}

// GetSessionMessages returns all messages of a session in creation order.
func (s *Store) GetSessionMessages(ctx context.Context, sessionID string) ([]*ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, tool_calls, tool_call_id, created_at
		FROM chat_messages WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []*ChatMessage
	for rows.Next() {
		var msg ChatMessage
		var toolCalls sql.NullString
		var created int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &toolCalls, &msg.ToolCallID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool calls: %w", err)
			}
		}
		msg.CreatedAt = fromNanos(created)
		out = append(out, &msg)
	}
	return out, rows.Err()
}

// DeleteOldestMessages removes the n oldest messages of a session. Used by
// context compression after a summary has been persisted.
func (s *Store) DeleteOldestMessages(ctx context.Context, sessionID string, n int) error {
	if n <= 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM chat_messages WHERE id IN (
				SELECT id FROM chat_messages WHERE session_id = ?
				ORDER BY created_at ASC, rowid ASC LIMIT ?
			)`, sessionID, n)
		return err
	})
}

// ClearSessionMessages removes all messages and summaries of a session.
func (s *Store) ClearSessionMessages(ctx context.Context, sessionID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chat_messages WHERE session_id = ?", sessionID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM context_summaries WHERE session_id = ?", sessionID)
		return err
	})
}

// --- Context summaries ---

// SaveContextSummary persists one compression summary.
func (s *Store) SaveContextSummary(ctx context.Context, summary *ContextSummary) error {
	if summary.ID == "" {
		summary.ID = newID()
	}
	now := nowNanos()
	summary.CreatedAt = fromNanos(now)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO context_summaries (id, session_id, summary, messages_replaced, tokens_before, tokens_after, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			summary.ID, summary.SessionID, summary.Summary,
			summary.MessagesReplaced, summary.TokensBefore, summary.TokensAfter, now)
		return err
	})
}

// LatestContextSummary returns the newest summary for a session, or
// ErrNotFound.
func (s *Store) LatestContextSummary(ctx context.Context, sessionID string) (*ContextSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, summary, messages_replaced, tokens_before, tokens_after, created_at
		FROM context_summaries WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, sessionID)

	var sum ContextSummary
	var created int64
	err := row.Scan(&sum.ID, &sum.SessionID, &sum.Summary, &sum.MessagesReplaced, &sum.TokensBefore, &sum.TokensAfter, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan summary: %w", err)
	}
	sum.CreatedAt = fromNanos(created)
	return &sum, nil
}

// --- Preferences ---

// SetPreference upserts a preference key.
func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, nowNanos())
		return err
	})
}

// GetPreference returns the stored value, or fallback when the key is unset.
func (s *Store) GetPreference(ctx context.Context, key, fallback string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read preference: %w", err)
	}
	return value, nil
}
