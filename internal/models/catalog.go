package models

import "time"

// Category groups products.
type Category struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Slug        string    `db:"slug" json:"slug"`
	Description string    `db:"description" json:"description"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Product is a book on sale. OwnerUserID is the listing staff member, if any.
type Product struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Slug        string    `db:"slug" json:"slug"`
	Description string    `db:"description" json:"description"`
	PriceCents  int64     `db:"price_cents" json:"price_cents"`
	Stock       int       `db:"stock" json:"stock"`
	CategoryID  *string   `db:"category_id" json:"category_id,omitempty"`
	OwnerUserID *string   `db:"owner_id" json:"owner_id,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// OwnerID implements Ownable.
func (p *Product) OwnerID() (string, bool) {
	if p == nil || p.OwnerUserID == nil || *p.OwnerUserID == "" {
		return "", false
	}
	return *p.OwnerUserID, true
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	CategoryID string
	Search     string
	Page       int
	PageSize   int
}

// Review is a customer's rating of a product.
type Review struct {
	ID        string    `db:"id" json:"id"`
	ProductID string    `db:"product_id" json:"product_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   string    `db:"comment" json:"comment"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// OwnerID implements Ownable.
func (r *Review) OwnerID() (string, bool) {
	if r == nil || r.UserID == "" {
		return "", false
	}
	return r.UserID, true
}
