package dto

// CategoryRequest creates or updates a category.
type CategoryRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Slug        string `json:"slug" validate:"omitempty,max=140"`
	Description string `json:"description" validate:"max=2000"`
	IsActive    *bool  `json:"is_active"`
}

// ProductRequest creates or updates a product.
type ProductRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Slug        string  `json:"slug" validate:"omitempty,max=220"`
	Description string  `json:"description" validate:"max=5000"`
	PriceCents  int64   `json:"price_cents" validate:"gte=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
	CategoryID  *string `json:"category_id" validate:"omitempty"`
	IsActive    *bool   `json:"is_active"`
}

// ProductQuery is the query string of the product listing.
type ProductQuery struct {
	CategoryID string `form:"category_id"`
	Search     string `form:"search"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}
