package service

import (
	"context"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/dto"
	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/pkg/database"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
)

type catalogRepository interface {
	ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error)
	FindCategoryByID(ctx context.Context, id string) (*models.Category, error)
	CreateCategory(ctx context.Context, category *models.Category) error
	UpdateCategory(ctx context.Context, category *models.Category) error
	DeleteCategory(ctx context.Context, id string) error
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error)
	FindProductByID(ctx context.Context, id string) (*models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

// CatalogService manages categories and products.
type CatalogService struct {
	repo      catalogRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(repo catalogRepository, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CatalogService{repo: repo, validator: validate, logger: logger}
}

// ListCategories returns active categories.
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories, err := s.repo.ListCategories(ctx, true)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list categories")
	}
	return categories, nil
}

// GetCategory returns one category.
func (s *CatalogService) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	category, err := s.repo.FindCategoryByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "category not found", "failed to load category")
	}
	return category, nil
}

// CreateCategory adds a category.
func (s *CatalogService) CreateCategory(ctx context.Context, req dto.CategoryRequest) (*models.Category, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}
	category := &models.Category{IsActive: true}
	applyCategory(category, req)
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return nil, conflictOr(err, "category slug already exists", "failed to create category")
	}
	return category, nil
}

// UpdateCategory replaces a category's fields.
func (s *CatalogService) UpdateCategory(ctx context.Context, id string, req dto.CategoryRequest) (*models.Category, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}
	category, err := s.repo.FindCategoryByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "category not found", "failed to load category")
	}
	applyCategory(category, req)
	if err := s.repo.UpdateCategory(ctx, category); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "category slug already exists")
		}
		return nil, notFoundOr(err, "category not found", "failed to update category")
	}
	return category, nil
}

// DeleteCategory removes a category.
func (s *CatalogService) DeleteCategory(ctx context.Context, id string) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return notFoundOr(err, "category not found", "failed to delete category")
	}
	return nil
}

// ListProducts returns a page of active products.
func (s *CatalogService) ListProducts(ctx context.Context, query dto.ProductQuery) ([]models.Product, *models.Pagination, error) {
	filter := models.ProductFilter{
		CategoryID: query.CategoryID,
		Search:     strings.TrimSpace(query.Search),
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list products")
	}
	return products, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// GetProduct returns one product.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.repo.FindProductByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "product not found", "failed to load product")
	}
	return product, nil
}

// CreateProduct adds a product owned by ownerID.
func (s *CatalogService) CreateProduct(ctx context.Context, ownerID string, req dto.ProductRequest) (*models.Product, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid product payload")
	}
	if err := s.ensureCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}
	product := &models.Product{IsActive: true}
	if ownerID != "" {
		product.OwnerUserID = &ownerID
	}
	applyProduct(product, req)
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, conflictOr(err, "product slug already exists", "failed to create product")
	}
	return product, nil
}

// UpdateProduct replaces the fields of a loaded product. Ownership is never
// transferred by an update.
func (s *CatalogService) UpdateProduct(ctx context.Context, product *models.Product, req dto.ProductRequest) (*models.Product, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid product payload")
	}
	if err := s.ensureCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}
	applyProduct(product, req)
	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "product slug already exists")
		}
		return nil, notFoundOr(err, "product not found", "failed to update product")
	}
	return product, nil
}

// DeleteProduct removes a product.
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return notFoundOr(err, "product not found", "failed to delete product")
	}
	return nil
}

func (s *CatalogService) ensureCategory(ctx context.Context, id *string) error {
	if id == nil || *id == "" {
		return nil
	}
	if _, err := s.repo.FindCategoryByID(ctx, *id); err != nil {
		return notFoundOr(err, "category not found", "failed to load category")
	}
	return nil
}

func conflictOr(err error, conflict, internal string) error {
	if database.IsUniqueViolation(err) {
		return appErrors.Clone(appErrors.ErrConflict, conflict)
	}
	return appErrors.Internal(err, internal)
}

func applyCategory(c *models.Category, req dto.CategoryRequest) {
	c.Name = strings.TrimSpace(req.Name)
	c.Slug = slugOr(req.Slug, c.Name)
	c.Description = req.Description
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
}

func applyProduct(p *models.Product, req dto.ProductRequest) {
	p.Name = strings.TrimSpace(req.Name)
	p.Slug = slugOr(req.Slug, p.Name)
	p.Description = req.Description
	p.PriceCents = req.PriceCents
	p.Stock = req.Stock
	p.CategoryID = nil
	if req.CategoryID != nil && *req.CategoryID != "" {
		id := *req.CategoryID
		p.CategoryID = &id
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
}

// slugOr returns slug when set, otherwise a slug derived from name.
func slugOr(slug, name string) string {
	if s := strings.TrimSpace(slug); s != "" {
		return strings.ToLower(s)
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
