package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bookhub-api/internal/models"
)

const maxLoginAttemptExport = 10000

// LoginAttemptRepository records login attempts. Rows are never updated.
type LoginAttemptRepository struct {
	db *sqlx.DB
}

// NewLoginAttemptRepository constructs the repository.
func NewLoginAttemptRepository(db *sqlx.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Create appends an attempt.
func (r *LoginAttemptRepository) Create(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO login_attempts (id, email, ip_address, user_agent, success, failure_reason, created_at) VALUES (:id, :email, :ip_address, :user_agent, :success, :failure_reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attempt); err != nil {
		return fmt.Errorf("create login attempt: %w", err)
	}
	return nil
}

// CountFailuresSince counts failed attempts from ip at or after since.
func (r *LoginAttemptRepository) CountFailuresSince(ctx context.Context, ip string, since time.Time) (int, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM login_attempts WHERE ip_address = ? AND success = FALSE AND created_at >= ?`)
	var count int
	if err := r.db.GetContext(ctx, &count, query, ip, since); err != nil {
		return 0, fmt.Errorf("count login failures: %w", err)
	}
	return count, nil
}

// OldestFailureSince returns the earliest failure time in the window, used to
// compute when a block lifts. ok is false when there is none.
func (r *LoginAttemptRepository) OldestFailureSince(ctx context.Context, ip string, since time.Time) (ts time.Time, ok bool, err error) {
	query := r.db.Rebind(`SELECT created_at FROM login_attempts WHERE ip_address = ? AND success = FALSE AND created_at >= ? ORDER BY created_at ASC LIMIT 1`)
	var rows []time.Time
	if err := r.db.SelectContext(ctx, &rows, query, ip, since); err != nil {
		return time.Time{}, false, fmt.Errorf("oldest login failure: %w", err)
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[0], true, nil
}

// List returns attempts newest first.
func (r *LoginAttemptRepository) List(ctx context.Context, filter models.LoginAttemptFilter) ([]models.LoginAttempt, error) {
	var conditions []string
	var args []interface{}

	if filter.IPAddress != "" {
		conditions = append(conditions, "ip_address = ?")
		args = append(args, filter.IPAddress)
	}
	if filter.Email != "" {
		conditions = append(conditions, "LOWER(email) = LOWER(?)")
		args = append(args, filter.Email)
	}
	if filter.Success != nil {
		conditions = append(conditions, "success = ?")
		args = append(args, *filter.Success)
	}
	if filter.From != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, filter.To.UTC())
	}

	query := `SELECT id, email, ip_address, user_agent, success, failure_reason, created_at FROM login_attempts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > maxLoginAttemptExport {
		limit = maxLoginAttemptExport
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	var attempts []models.LoginAttempt
	if err := r.db.SelectContext(ctx, &attempts, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list login attempts: %w", err)
	}
	return attempts, nil
}

// DeleteBefore prunes attempts older than cutoff.
func (r *LoginAttemptRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM login_attempts WHERE created_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete login attempts: %w", err)
	}
	return res.RowsAffected()
}
