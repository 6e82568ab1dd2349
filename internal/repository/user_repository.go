package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bookhub-api/internal/models"
)

const userColumns = `id, email, username, password_hash, first_name, last_name, is_active, is_staff, is_superuser, is_verified, last_login, last_active_at, deleted_at, created_at, updated_at`

// UserRepository provides database access for user management.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address, compared case-insensitively.
// Soft-deleted users are returned so callers can keep the address reserved.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER(?) LIMIT 1`)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, strings.TrimSpace(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByUsername returns a user by username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE username = ? LIMIT 1`)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ? LIMIT 1`)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	query := r.db.Rebind(`UPDATE users SET last_login = ?, last_active_at = ?, updated_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, ts, ts, ts, id); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// TouchLastActive records activity without bumping updated_at.
func (r *UserRepository) TouchLastActive(ctx context.Context, id string, ts time.Time) error {
	query := r.db.Rebind(`UPDATE users SET last_active_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, ts, id); err != nil {
		return fmt.Errorf("touch last active: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	query := r.db.Rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, passwordHash, updatedAt, id); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// MarkVerified flags the email address as confirmed.
func (r *UserRepository) MarkVerified(ctx context.Context, id string, ts time.Time) error {
	query := r.db.Rebind(`UPDATE users SET is_verified = TRUE, updated_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, ts, id); err != nil {
		return fmt.Errorf("mark user verified: %w", err)
	}
	return nil
}

// List returns users based on filters with total count. Soft-deleted users are
// never listed.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	conditions := []string{"deleted_at IS NULL"}
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, "is_active = ?")
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, "(LOWER(email) LIKE ? OR LOWER(username) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?)")
		term := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, term, term, term, term)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"email":      true,
		"username":   true,
		"created_at": true,
		"updated_at": true,
		"last_login": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := models.NewPagination(filter.Page, filter.PageSize, 0)
	offset := (page.Page - 1) * page.PageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", userColumns, baseQuery, sortBy, sortOrder, page.PageSize, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, r.db.Rebind(listQuery), args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(countQuery), args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// CreateWithRole inserts a new user and, when the named role exists, assigns it
// in the same transaction. It reports whether the role was assigned.
func (r *UserRepository) CreateWithRole(ctx context.Context, user *models.User, roleName string) (assigned bool, err error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin create user: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertUser = `INSERT INTO users (id, email, username, password_hash, first_name, last_name, is_active, is_staff, is_superuser, is_verified, created_at, updated_at) VALUES (:id, :email, :username, :password_hash, :first_name, :last_name, :is_active, :is_staff, :is_superuser, :is_verified, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertUser, user); err != nil {
		return false, fmt.Errorf("create user: %w", err)
	}

	if roleName != "" {
		var roleID string
		err = tx.GetContext(ctx, &roleID, tx.Rebind(`SELECT id FROM roles WHERE name = ?`), roleName)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			err = nil
		case err != nil:
			return false, fmt.Errorf("find default role: %w", err)
		default:
			if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO user_roles (id, user_id, role_id, assigned_at) VALUES (?, ?, ?, ?)`), uuid.NewString(), user.ID, roleID, now); err != nil {
				return false, fmt.Errorf("assign default role: %w", err)
			}
			assigned = true
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit create user: %w", err)
	}
	return assigned, nil
}

// Update updates mutable profile fields of a user.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET first_name = :first_name, last_name = :last_name, is_active = :is_active, is_staff = :is_staff, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// SoftDelete stamps deleted_at and deactivates the account. It returns
// sql.ErrNoRows when the user does not exist or is already deleted.
func (r *UserRepository) SoftDelete(ctx context.Context, id string, ts time.Time) error {
	query := r.db.Rebind(`UPDATE users SET deleted_at = ?, is_active = FALSE, updated_at = ? WHERE id = ? AND deleted_at IS NULL`)
	res, err := r.db.ExecContext(ctx, query, ts, ts, id)
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	return expectOne(res, "soft delete user")
}

// Restore clears deleted_at and reactivates the account. It returns
// sql.ErrNoRows when there is no deleted user with that id.
func (r *UserRepository) Restore(ctx context.Context, id string, ts time.Time) error {
	query := r.db.Rebind(`UPDATE users SET deleted_at = NULL, is_active = TRUE, updated_at = ? WHERE id = ? AND deleted_at IS NOT NULL`)
	res, err := r.db.ExecContext(ctx, query, ts, id)
	if err != nil {
		return fmt.Errorf("restore user: %w", err)
	}
	return expectOne(res, "restore user")
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
