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

const productColumns = `id, name, slug, description, price_cents, stock, category_id, owner_id, is_active, created_at, updated_at`

// CatalogRepository manages categories and products.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListCategories returns categories ordered by name.
func (r *CatalogRepository) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	query := `SELECT id, name, slug, description, is_active, created_at FROM categories`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name`
	var categories []models.Category
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// FindCategoryByID returns a category or sql.ErrNoRows.
func (r *CatalogRepository) FindCategoryByID(ctx context.Context, id string) (*models.Category, error) {
	var category models.Category
	if err := r.db.GetContext(ctx, &category, r.db.Rebind(`SELECT id, name, slug, description, is_active, created_at FROM categories WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return &category, nil
}

// CreateCategory inserts a category.
func (r *CatalogRepository) CreateCategory(ctx context.Context, category *models.Category) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, `INSERT INTO categories (id, name, slug, description, is_active, created_at) VALUES (:id, :name, :slug, :description, :is_active, :created_at)`, category); err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// UpdateCategory updates a category.
func (r *CatalogRepository) UpdateCategory(ctx context.Context, category *models.Category) error {
	res, err := r.db.NamedExecContext(ctx, `UPDATE categories SET name = :name, slug = :slug, description = :description, is_active = :is_active WHERE id = :id`, category)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return expectOne(res, "update category")
}

// DeleteCategory removes a category. Products keep existing without one.
func (r *CatalogRepository) DeleteCategory(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM categories WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return expectOne(res, "delete category")
}

// ListProducts returns active products matching filter and the total count.
func (r *CatalogRepository) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error) {
	conditions := []string{"is_active = TRUE"}
	var args []interface{}
	if filter.CategoryID != "" {
		conditions = append(conditions, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.Search != "" {
		conditions = append(conditions, "(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)")
		term := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, term, term)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	page := models.NewPagination(filter.Page, filter.PageSize, 0)
	offset := (page.Page - 1) * page.PageSize
	listQuery := fmt.Sprintf("SELECT %s FROM products%s ORDER BY name ASC LIMIT %d OFFSET %d", productColumns, where, page.PageSize, offset)

	var products []models.Product
	if err := r.db.SelectContext(ctx, &products, r.db.Rebind(listQuery), args...); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) FROM products"+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	return products, total, nil
}

// FindProductByID returns a product or sql.ErrNoRows.
func (r *CatalogRepository) FindProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.GetContext(ctx, &product, r.db.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateProduct inserts a product.
func (r *CatalogRepository) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	product.CreatedAt, product.UpdatedAt = now, now
	const query = `INSERT INTO products (id, name, slug, description, price_cents, stock, category_id, owner_id, is_active, created_at, updated_at) VALUES (:id, :name, :slug, :description, :price_cents, :stock, :category_id, :owner_id, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, product); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// UpdateProduct updates a product.
func (r *CatalogRepository) UpdateProduct(ctx context.Context, product *models.Product) error {
	product.UpdatedAt = time.Now().UTC()
	const query = `UPDATE products SET name = :name, slug = :slug, description = :description, price_cents = :price_cents, stock = :stock, category_id = :category_id, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, product)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return expectOne(res, "update product")
}

// DeleteProduct removes a product.
func (r *CatalogRepository) DeleteProduct(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM products WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return expectOne(res, "delete product")
}
