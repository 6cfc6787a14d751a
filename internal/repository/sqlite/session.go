package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/model"
	"github.com/sakif/photoshare/internal/repository"
)

var _ repository.SessionRepository = (*DB)(nil)

// CreateSession stores a session. The caller chooses the ID.
func (db *DB) CreateSession(ctx context.Context, session *model.Session) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.CreatedAt.UnixNano(),
		session.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating session for user %s: %w", session.UserID, err)
	}
	return nil
}

// GetSession returns the session, expired or not. Expiry is the caller's call.
func (db *DB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var (
		s                    model.Session
		createdAt, expiresAt int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("sqlite: getting session: %w", err)
	}
	s.CreatedAt = time.Unix(0, createdAt)
	s.ExpiresAt = time.Unix(0, expiresAt)
	return &s, nil
}

// DeleteSession removes the session. Deleting a missing session is not an error.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session whose expiry is at or before now.
func (db *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
