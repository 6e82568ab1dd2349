package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bookhub-api/internal/models"
)

// ErrTokenAlreadyRevoked is returned by RotateRefresh when another caller
// blacklisted the token first.
var ErrTokenAlreadyRevoked = errors.New("token already revoked")

const authTokenColumns = `id, user_id, token_type, token_prefix, token_hash, expires_at, is_blacklisted, blacklisted_at, ip_address, user_agent, created_at`

// TokenRepository persists issued access and refresh tokens.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository constructs a token repository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create stores a token record.
func (r *TokenRepository) Create(ctx context.Context, token *models.AuthToken) error {
	return insertAuthToken(ctx, r.db, token)
}

// ListRefreshCandidates returns non-blacklisted, unexpired refresh tokens that
// share the given prefix. The caller verifies the hash of each candidate.
func (r *TokenRepository) ListRefreshCandidates(ctx context.Context, prefix string, now time.Time) ([]models.AuthToken, error) {
	query := r.db.Rebind(`SELECT ` + authTokenColumns + ` FROM auth_tokens WHERE token_type = ? AND token_prefix = ? AND is_blacklisted = FALSE AND expires_at > ? ORDER BY created_at DESC`)
	var tokens []models.AuthToken
	if err := r.db.SelectContext(ctx, &tokens, query, models.AuthTokenRefresh, prefix, now); err != nil {
		return nil, fmt.Errorf("list refresh candidates: %w", err)
	}
	return tokens, nil
}

// ListRevokedRefreshCandidates returns blacklisted, unexpired refresh tokens
// sharing the prefix. It is consulted only to classify a failed redemption.
func (r *TokenRepository) ListRevokedRefreshCandidates(ctx context.Context, prefix string, now time.Time) ([]models.AuthToken, error) {
	query := r.db.Rebind(`SELECT ` + authTokenColumns + ` FROM auth_tokens WHERE token_type = ? AND token_prefix = ? AND is_blacklisted = TRUE AND expires_at > ? ORDER BY created_at DESC`)
	var tokens []models.AuthToken
	if err := r.db.SelectContext(ctx, &tokens, query, models.AuthTokenRefresh, prefix, now); err != nil {
		return nil, fmt.Errorf("list revoked refresh candidates: %w", err)
	}
	return tokens, nil
}

// RotateRefresh blacklists oldID and stores replacement in one transaction.
// Only the caller whose update flips is_blacklisted wins; every other caller
// gets ErrTokenAlreadyRevoked and nothing is written.
func (r *TokenRepository) RotateRefresh(ctx context.Context, oldID string, replacement *models.AuthToken, now time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotate refresh: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE auth_tokens SET is_blacklisted = TRUE, blacklisted_at = ? WHERE id = ? AND is_blacklisted = FALSE`), now, oldID)
	if err != nil {
		return fmt.Errorf("blacklist refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("blacklist refresh token rows: %w", err)
	}
	if affected == 0 {
		err = ErrTokenAlreadyRevoked
		return err
	}

	if err = insertAuthToken(ctx, tx, replacement); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit rotate refresh: %w", err)
	}
	return nil
}

// BlacklistAllForUser revokes every live token of a user and returns how many
// rows changed.
func (r *TokenRepository) BlacklistAllForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	query := r.db.Rebind(`UPDATE auth_tokens SET is_blacklisted = TRUE, blacklisted_at = ? WHERE user_id = ? AND is_blacklisted = FALSE`)
	res, err := r.db.ExecContext(ctx, query, now, userID)
	if err != nil {
		return 0, fmt.Errorf("blacklist user tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("blacklist user tokens rows: %w", err)
	}
	return n, nil
}

// DeleteExpired removes tokens that expired before cutoff.
func (r *TokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM auth_tokens WHERE expires_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return res.RowsAffected()
}

func insertAuthToken(ctx context.Context, exec sqlx.ExtContext, token *models.AuthToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO auth_tokens (id, user_id, token_type, token_prefix, token_hash, expires_at, is_blacklisted, ip_address, user_agent, created_at) VALUES (:id, :user_id, :token_type, :token_prefix, :token_hash, :expires_at, :is_blacklisted, :ip_address, :user_agent, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, token); err != nil {
		return fmt.Errorf("create %s token: %w", token.Type, err)
	}
	return nil
}
