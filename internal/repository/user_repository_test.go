package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookhub-api/internal/models"
)

var userRowColumns = []string{"id", "email", "username", "password_hash", "first_name", "last_name", "is_active", "is_staff", "is_superuser", "is_verified", "last_login", "last_active_at", "deleted_at", "created_at", "updated_at"}

func TestFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("1", "User@Example.com", "reader", "hash", "Ann", "Reader", true, false, false, true, now, now, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE LOWER(email) = LOWER(?) LIMIT 1")).
		WithArgs("user@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), " user@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "User@Example.com", user.Email)
	assert.Equal(t, "Ann Reader", user.FullName())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("FROM users WHERE id = \\?").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	active := true
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("1", "a@example.com", "alpha", "hash", "", "", true, false, false, true, nil, nil, nil, now, now)
	mock.ExpectQuery("SELECT id, email, username.* FROM users WHERE 1=1 AND deleted_at IS NULL AND is_active = \\? ORDER BY email ASC LIMIT 10 OFFSET 0").
		WithArgs(true).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE 1=1 AND deleted_at IS NULL").
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{Active: &active, Page: 1, PageSize: 10, SortBy: "email", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsersRejectsUnknownSortColumn(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("ORDER BY created_at DESC").WillReturnRows(sqlmock.NewRows(userRowColumns))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := repo.List(context.Background(), models.UserFilter{SortBy: "password_hash; DROP TABLE users"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteMissingUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("UPDATE users SET deleted_at").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SoftDelete(context.Background(), "ghost", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserLifecycleSQLite(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO roles (id, name, description, created_at) VALUES ('r-customer', 'customer', '', ?)`, now)
	require.NoError(t, err)

	repo := NewUserRepository(db)
	user := &models.User{Email: "Reader@Example.com", Username: "reader", PasswordHash: "hash", IsActive: true}
	assigned, err := repo.CreateWithRole(ctx, user, models.RoleCustomer)
	require.NoError(t, err)
	assert.True(t, assigned)
	require.NotEmpty(t, user.ID)

	var roleCount int
	require.NoError(t, db.Get(&roleCount, `SELECT COUNT(*) FROM user_roles WHERE user_id = ?`, user.ID))
	assert.Equal(t, 1, roleCount)

	found, err := repo.FindByEmail(ctx, "reader@example.COM")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	dup := &models.User{Email: "READER@example.com", Username: "other", PasswordHash: "hash", IsActive: true}
	_, err = repo.CreateWithRole(ctx, dup, models.RoleCustomer)
	require.Error(t, err)

	require.NoError(t, repo.SoftDelete(ctx, user.ID, now))
	users, total, err := repo.List(ctx, models.UserFilter{})
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Equal(t, 0, total)

	deleted, err := repo.FindByEmail(ctx, "reader@example.com")
	require.NoError(t, err)
	assert.NotNil(t, deleted.DeletedAt)
	assert.False(t, deleted.Alive())

	assert.ErrorIs(t, repo.SoftDelete(ctx, user.ID, now), sql.ErrNoRows)
	require.NoError(t, repo.Restore(ctx, user.ID, now))
	restored, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, restored.Alive())
}

func TestCreateWithRoleWithoutSeededRole(t *testing.T) {
	db := newSQLite(t)
	repo := NewUserRepository(db)

	assigned, err := repo.CreateWithRole(context.Background(), &models.User{Email: "x@example.com", Username: "x", PasswordHash: "h", IsActive: true}, models.RoleCustomer)
	require.NoError(t, err)
	assert.False(t, assigned)
}
