package dto

// AddCartItemRequest puts a product into the cart.
type AddCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=99"`
}

// UpdateCartItemRequest sets the quantity of a cart line.
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=99"`
}

// CheckoutRequest converts the cart into an order.
type CheckoutRequest struct {
	ShippingAddress string `json:"shipping_address" validate:"required,max=500"`
}

// UpdateOrderStatusRequest moves an order through its lifecycle.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid shipped cancelled"`
}

// CartView is the cart with its computed total.
type CartView struct {
	Items      interface{} `json:"items"`
	TotalCents int64       `json:"total_cents"`
}
