package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/BGMLAI/exoskull/internal/apperr"
)

// SaveSession replaces the singleton auth row.
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	_, err := s.exec(ctx, "save session", `
		INSERT OR REPLACE INTO auth (id, token, refresh_token, tenant_id, user_email, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
	`, sess.Token, nullString(sess.RefreshToken), nullString(sess.TenantID), nullString(sess.UserEmail), s.stamp())
	return err
}

// LoadSession returns the auth row, or nil when logged out.
func (s *Store) LoadSession(ctx context.Context) (*Session, error) {
	var sess Session
	var refresh, tenant, email sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT token, refresh_token, tenant_id, user_email, updated_at FROM auth WHERE id = 1`,
	).Scan(&sess.Token, &refresh, &tenant, &email, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("failed to load session", err)
	}
	sess.RefreshToken = refresh.String
	sess.TenantID = tenant.String
	sess.UserEmail = email.String
	return &sess, nil
}

// DeleteSession removes the auth row. Deleting when logged out is not an error.
func (s *Store) DeleteSession(ctx context.Context) error {
	_, err := s.exec(ctx, "delete session", `DELETE FROM auth WHERE id = 1`)
	return err
}
