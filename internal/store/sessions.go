package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/byteball/attestation-kit/internal/domain"
	"github.com/byteball/attestation-kit/internal/shared"
)

// CreateSession returns the session for clientID, creating it when missing
// or when replace is set. An existing session counts as active again.
func (s *SQLiteStore) CreateSession(ctx context.Context, clientID string, replace bool) (*domain.ClientSession, error) {
	var session *domain.ClientSession
	err := s.inTx(ctx, "create session", func(tx *sql.Tx) error {
		if !replace {
			existing, err := getSession(ctx, tx, clientID)
			if err != nil {
				return err
			}
			if existing != nil {
				session = existing
				return putSession(ctx, tx, session)
			}
		}

		session = domain.NewClientSession(clientID)
		return putSession(ctx, tx, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession retrieves the session for clientID.
func (s *SQLiteStore) GetSession(ctx context.Context, clientID string) (*domain.ClientSession, error) {
	return getSession(ctx, s.db, clientID)
}

// SetSessionAddress stores the address the user typed in this conversation.
func (s *SQLiteStore) SetSessionAddress(ctx context.Context, clientID, address string) error {
	return s.updateSession(ctx, "set session address", clientID, func(session *domain.ClientSession) {
		session.Address = address
	})
}

// ClearSessionAddress forgets the conversation address.
func (s *SQLiteStore) ClearSessionAddress(ctx context.Context, clientID string) error {
	return s.updateSession(ctx, "clear session address", clientID, func(session *domain.ClientSession) {
		session.Address = ""
	})
}

// SetSessionAttribute sets a session-local flag. An empty value deletes it.
func (s *SQLiteStore) SetSessionAttribute(ctx context.Context, clientID, key, value string) error {
	return s.updateSession(ctx, "set session attribute", clientID, func(session *domain.ClientSession) {
		if value == "" {
			delete(session.Attributes, key)
			return
		}
		if session.Attributes == nil {
			session.Attributes = make(map[string]string)
		}
		session.Attributes[key] = value
	})
}

func (s *SQLiteStore) updateSession(ctx context.Context, name, clientID string, mutate func(*domain.ClientSession)) error {
	err := s.inTx(ctx, name, func(tx *sql.Tx) error {
		session, err := getSession(ctx, tx, clientID)
		if err != nil {
			return err
		}
		if session == nil {
			return domain.ErrSessionNotFound
		}
		mutate(session)
		return putSession(ctx, tx, session)
	})
	if errors.Is(err, domain.ErrSessionNotFound) {
		slog.Warn("Session not found", "op", name, "client_id", clientID)
		return nil
	}
	return err
}

// DeleteSession removes the session for clientID.
func (s *SQLiteStore) DeleteSession(ctx context.Context, clientID string) error {
	return shared.RetryOnConflict(ctx, s.retry, "delete session", func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM client_sessions WHERE client_id = ?`, clientID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

// IdleSessions returns the ids of sessions not written for longer than ttl.
func (s *SQLiteStore) IdleSessions(ctx context.Context, ttl time.Duration) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id FROM client_sessions WHERE updated_at < ? ORDER BY updated_at`, idleThreshold(ttl))
	if err != nil {
		return nil, fmt.Errorf("query idle sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan idle session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteIdleSession removes the session for clientID only if it is still
// idle for longer than ttl. It reports whether a row was deleted.
func (s *SQLiteStore) DeleteIdleSession(ctx context.Context, clientID string, ttl time.Duration) (bool, error) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, s.retry, "delete idle session", func() error {
		result, err := s.db.ExecContext(ctx,
			`DELETE FROM client_sessions WHERE client_id = ? AND updated_at < ?`, clientID, idleThreshold(ttl))
		if err != nil {
			return fmt.Errorf("delete idle session: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted > 0, err
}

func idleThreshold(ttl time.Duration) int64 {
	return time.Now().Add(-ttl).Unix()
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSession(ctx context.Context, q rowQuerier, clientID string) (*domain.ClientSession, error) {
	var sessionJSON string
	err := q.QueryRowContext(ctx,
		`SELECT session_json FROM client_sessions WHERE client_id = ?`, clientID).Scan(&sessionJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	var session domain.ClientSession
	if err := json.Unmarshal([]byte(sessionJSON), &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", clientID, err)
	}
	if session.Attributes == nil {
		session.Attributes = make(map[string]string)
	}
	return &session, nil
}

func putSession(ctx context.Context, tx *sql.Tx, session *domain.ClientSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO client_sessions (client_id, session_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			session_json = excluded.session_json,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		session.ClientID, string(data), session.CreatedAt.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}
