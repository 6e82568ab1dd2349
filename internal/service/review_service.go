package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/dto"
	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/pkg/database"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
)

type reviewRepository interface {
	ListByProduct(ctx context.Context, productID string) ([]models.Review, error)
	FindByID(ctx context.Context, id string) (*models.Review, error)
	Create(ctx context.Context, review *models.Review) error
	Update(ctx context.Context, review *models.Review) error
	Delete(ctx context.Context, id string) error
}

// ReviewService manages product reviews.
type ReviewService struct {
	repo      reviewRepository
	products  productReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReviewService constructs a ReviewService.
func NewReviewService(repo reviewRepository, products productReader, validate *validator.Validate, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ReviewService{repo: repo, products: products, validator: validate, logger: logger}
}

// List returns the reviews of a product.
func (s *ReviewService) List(ctx context.Context, productID string) ([]models.Review, error) {
	if _, err := s.products.FindProductByID(ctx, productID); err != nil {
		return nil, notFoundOr(err, "product not found", "failed to load product")
	}
	reviews, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list reviews")
	}
	if reviews == nil {
		reviews = []models.Review{}
	}
	return reviews, nil
}

// Get returns one review.
func (s *ReviewService) Get(ctx context.Context, id string) (*models.Review, error) {
	review, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "review not found", "failed to load review")
	}
	return review, nil
}

// Create adds a review by userID. A second review of the same product
// conflicts.
func (s *ReviewService) Create(ctx context.Context, userID, productID string, req dto.ReviewRequest) (*models.Review, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	if _, err := s.products.FindProductByID(ctx, productID); err != nil {
		return nil, notFoundOr(err, "product not found", "failed to load product")
	}
	review := &models.Review{ProductID: productID, UserID: userID, Rating: req.Rating, Comment: strings.TrimSpace(req.Comment)}
	if err := s.repo.Create(ctx, review); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "product already reviewed")
		}
		return nil, appErrors.Internal(err, "failed to create review")
	}
	return review, nil
}

// Update changes a loaded review.
func (s *ReviewService) Update(ctx context.Context, review *models.Review, req dto.ReviewRequest) (*models.Review, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	review.Rating = req.Rating
	review.Comment = strings.TrimSpace(req.Comment)
	if err := s.repo.Update(ctx, review); err != nil {
		return nil, notFoundOr(err, "review not found", "failed to update review")
	}
	return review, nil
}

// Delete removes a review.
func (s *ReviewService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "review not found", "failed to delete review")
	}
	return nil
}
