package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bookhub-api/internal/models"
)

const sessionColumns = `id, user_id, key_hash, ip_address, user_agent, expires_at, last_active_at, created_at`

// SessionRepository persists device sessions keyed by the digest of their key.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a session.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastActiveAt.IsZero() {
		session.LastActiveAt = session.CreatedAt
	}
	const query = `INSERT INTO sessions (id, user_id, key_hash, ip_address, user_agent, expires_at, last_active_at, created_at) VALUES (:id, :user_id, :key_hash, :ip_address, :user_agent, :expires_at, :last_active_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByKeyHash returns the session whose key digests to hash.
func (r *SessionRepository) FindByKeyHash(ctx context.Context, hash string) (*models.Session, error) {
	query := r.db.Rebind(`SELECT ` + sessionColumns + ` FROM sessions WHERE key_hash = ? LIMIT 1`)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, hash); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByID returns a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := r.db.Rebind(`SELECT ` + sessionColumns + ` FROM sessions WHERE id = ? LIMIT 1`)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListActiveByUser returns the user's unexpired sessions, most recent first.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	query := r.db.Rebind(`SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = ? AND expires_at > ? ORDER BY last_active_at DESC`)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, userID, now); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Touch extends the session and records activity.
func (r *SessionRepository) Touch(ctx context.Context, id string, lastActive, expiresAt time.Time) error {
	query := r.db.Rebind(`UPDATE sessions SET last_active_at = ?, expires_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, lastActive, expiresAt, id); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Delete removes one session. It returns sql.ErrNoRows when it does not exist.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sessions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return expectOne(res, "delete session")
}

// DeleteByUser removes every session of a user except keepID, when set.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID, keepID string) (int64, error) {
	query := `DELETE FROM sessions WHERE user_id = ?`
	args := []interface{}{userID}
	if keepID != "" {
		query += ` AND id <> ?`
		args = append(args, keepID)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpired removes sessions that expired before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`), now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
