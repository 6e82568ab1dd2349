package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bookhub-api/internal/models"
)

// ReviewRepository manages product reviews.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository constructs the repository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// ListByProduct returns the reviews of a product, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string) ([]models.Review, error) {
	var reviews []models.Review
	query := r.db.Rebind(`SELECT id, product_id, user_id, rating, comment, created_at, updated_at FROM reviews WHERE product_id = ? ORDER BY created_at DESC`)
	if err := r.db.SelectContext(ctx, &reviews, query, productID); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// FindByID returns a review or sql.ErrNoRows.
func (r *ReviewRepository) FindByID(ctx context.Context, id string) (*models.Review, error) {
	var review models.Review
	query := r.db.Rebind(`SELECT id, product_id, user_id, rating, comment, created_at, updated_at FROM reviews WHERE id = ?`)
	if err := r.db.GetContext(ctx, &review, query, id); err != nil {
		return nil, err
	}
	return &review, nil
}

// Create inserts a review. A user may review a product once.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	review.CreatedAt, review.UpdatedAt = now, now
	const query = `INSERT INTO reviews (id, product_id, user_id, rating, comment, created_at, updated_at) VALUES (:id, :product_id, :user_id, :rating, :comment, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, review); err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

// Update changes rating and comment.
func (r *ReviewRepository) Update(ctx context.Context, review *models.Review) error {
	review.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `UPDATE reviews SET rating = :rating, comment = :comment, updated_at = :updated_at WHERE id = :id`, review)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	return expectOne(res, "update review")
}

// Delete removes a review.
func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM reviews WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return expectOne(res, "delete review")
}
