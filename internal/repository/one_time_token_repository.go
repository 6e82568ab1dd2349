package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bookhub-api/internal/models"
)

// OneTimeTokenRepository stores email verification and password reset tokens.
// Both families share a shape and live in separate tables.
type OneTimeTokenRepository struct {
	db *sqlx.DB
}

// NewOneTimeTokenRepository constructs the repository.
func NewOneTimeTokenRepository(db *sqlx.DB) *OneTimeTokenRepository {
	return &OneTimeTokenRepository{db: db}
}

func oneTimeTable(kind models.OneTimeTokenKind) (string, error) {
	switch kind {
	case models.OneTimeEmailVerification:
		return "email_verification_tokens", nil
	case models.OneTimePasswordReset:
		return "password_reset_tokens", nil
	default:
		return "", fmt.Errorf("unknown one-time token kind %q", kind)
	}
}

// Create inserts a token of token.Kind.
func (r *OneTimeTokenRepository) Create(ctx context.Context, token *models.OneTimeToken) error {
	table, err := oneTimeTable(token.Kind)
	if err != nil {
		return err
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, user_id, token_hash, expires_at, is_used, created_at) VALUES (:id, :user_id, :token_hash, :expires_at, :is_used, :created_at)`, table)
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create %s token: %w", token.Kind, err)
	}
	return nil
}

// Lookup finds a token by digest and classifies it at now.
func (r *OneTimeTokenRepository) Lookup(ctx context.Context, kind models.OneTimeTokenKind, hash string, now time.Time) (models.OneTimeLookup, error) {
	table, err := oneTimeTable(kind)
	if err != nil {
		return models.OneTimeLookup{}, err
	}
	query := r.db.Rebind(fmt.Sprintf(`SELECT id, user_id, token_hash, expires_at, is_used, used_at, created_at FROM %s WHERE token_hash = ? LIMIT 1`, table))
	var token models.OneTimeToken
	if err := r.db.GetContext(ctx, &token, query, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.OneTimeLookup{State: models.TokenNotFound}, nil
		}
		return models.OneTimeLookup{}, fmt.Errorf("lookup %s token: %w", kind, err)
	}
	token.Kind = kind
	return models.OneTimeLookup{State: token.Classify(now), Token: &token}, nil
}

// Consume marks the token used. It returns false when another caller consumed
// it first.
func (r *OneTimeTokenRepository) Consume(ctx context.Context, kind models.OneTimeTokenKind, id string, now time.Time) (bool, error) {
	table, err := oneTimeTable(kind)
	if err != nil {
		return false, err
	}
	query := r.db.Rebind(fmt.Sprintf(`UPDATE %s SET is_used = TRUE, used_at = ? WHERE id = ? AND is_used = FALSE`, table))
	res, err := r.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return false, fmt.Errorf("consume %s token: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume %s token rows: %w", kind, err)
	}
	return n == 1, nil
}

// InvalidateForUser marks every unused token of the user as used, so only the
// newest issued token can be redeemed.
func (r *OneTimeTokenRepository) InvalidateForUser(ctx context.Context, kind models.OneTimeTokenKind, userID string, now time.Time) error {
	table, err := oneTimeTable(kind)
	if err != nil {
		return err
	}
	query := r.db.Rebind(fmt.Sprintf(`UPDATE %s SET is_used = TRUE, used_at = ? WHERE user_id = ? AND is_used = FALSE`, table))
	if _, err := r.db.ExecContext(ctx, query, now, userID); err != nil {
		return fmt.Errorf("invalidate %s tokens: %w", kind, err)
	}
	return nil
}
