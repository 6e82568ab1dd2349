package models

import "time"

// Order statuses.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusCancelled = "cancelled"
)

// CartItem is one product line in a user's cart.
type CartItem struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	ProductID  string    `db:"product_id" json:"product_id"`
	Quantity   int       `db:"quantity" json:"quantity"`
	PriceCents int64     `db:"price_cents" json:"price_cents"`
	AddedAt    time.Time `db:"added_at" json:"added_at"`
}

// OwnerID implements Ownable.
func (c *CartItem) OwnerID() (string, bool) {
	if c == nil || c.UserID == "" {
		return "", false
	}
	return c.UserID, true
}

// Order is a checked-out cart.
type Order struct {
	ID         string      `db:"id" json:"id"`
	CustomerID string      `db:"customer_id" json:"customer_id"`
	Status     string      `db:"status" json:"status"`
	TotalCents int64       `db:"total_cents" json:"total_cents"`
	Address    string      `db:"shipping_address" json:"shipping_address"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
	Items      []OrderItem `db:"-" json:"items,omitempty"`
}

// OwnerID implements Ownable.
func (o *Order) OwnerID() (string, bool) {
	if o == nil || o.CustomerID == "" {
		return "", false
	}
	return o.CustomerID, true
}

// OrderItem is a priced line of an order.
type OrderItem struct {
	ID         string `db:"id" json:"id"`
	OrderID    string `db:"order_id" json:"order_id"`
	ProductID  string `db:"product_id" json:"product_id"`
	Quantity   int    `db:"quantity" json:"quantity"`
	PriceCents int64  `db:"price_cents" json:"price_cents"`
}
