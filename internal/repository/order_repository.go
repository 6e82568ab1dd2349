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

var (
	// ErrCartEmpty is returned by Checkout when the user has nothing to order.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrOutOfStock is returned by Checkout when a product cannot cover the quantity.
	ErrOutOfStock = errors.New("insufficient stock")
)

const orderColumns = `id, customer_id, status, total_cents, shipping_address, created_at, updated_at`

// OrderRepository manages carts and orders.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository constructs the repository.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// ListCartItems returns the cart lines of a user.
func (r *OrderRepository) ListCartItems(ctx context.Context, userID string) ([]models.CartItem, error) {
	var items []models.CartItem
	query := r.db.Rebind(`SELECT id, user_id, product_id, quantity, price_cents, added_at FROM cart_items WHERE user_id = ? ORDER BY added_at`)
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	return items, nil
}

// FindCartItem returns a cart line or sql.ErrNoRows.
func (r *OrderRepository) FindCartItem(ctx context.Context, id string) (*models.CartItem, error) {
	var item models.CartItem
	query := r.db.Rebind(`SELECT id, user_id, product_id, quantity, price_cents, added_at FROM cart_items WHERE id = ?`)
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// AddCartItem inserts a cart line or increases the quantity of the existing
// line for the same product.
func (r *OrderRepository) AddCartItem(ctx context.Context, item *models.CartItem) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add cart item: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existing models.CartItem
	err = tx.GetContext(ctx, &existing, tx.Rebind(`SELECT id, user_id, product_id, quantity, price_cents, added_at FROM cart_items WHERE user_id = ? AND product_id = ?`), item.UserID, item.ProductID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.AddedAt = time.Now().UTC()
		if _, err = sqlx.NamedExecContext(ctx, tx, `INSERT INTO cart_items (id, user_id, product_id, quantity, price_cents, added_at) VALUES (:id, :user_id, :product_id, :quantity, :price_cents, :added_at)`, item); err != nil {
			return fmt.Errorf("create cart item: %w", err)
		}
	case err != nil:
		return fmt.Errorf("find cart item: %w", err)
	default:
		item.ID = existing.ID
		item.AddedAt = existing.AddedAt
		item.Quantity += existing.Quantity
		if _, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE cart_items SET quantity = ?, price_cents = ? WHERE id = ?`), item.Quantity, item.PriceCents, item.ID); err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit add cart item: %w", err)
	}
	return nil
}

// UpdateCartItemQuantity sets the quantity of a cart line.
func (r *OrderRepository) UpdateCartItemQuantity(ctx context.Context, id string, quantity int) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE cart_items SET quantity = ? WHERE id = ?`), quantity, id)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return expectOne(res, "update cart item")
}

// DeleteCartItem removes a cart line.
func (r *OrderRepository) DeleteCartItem(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM cart_items WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return expectOne(res, "delete cart item")
}

// Checkout converts the user's cart into a pending order. Stock reservation,
// order and item creation, and clearing the cart commit together or not at all.
func (r *OrderRepository) Checkout(ctx context.Context, userID, address string) (order *models.Order, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin checkout: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var items []models.CartItem
	if err = tx.SelectContext(ctx, &items, tx.Rebind(`SELECT id, user_id, product_id, quantity, price_cents, added_at FROM cart_items WHERE user_id = ? ORDER BY added_at`), userID); err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(items) == 0 {
		err = ErrCartEmpty
		return nil, err
	}

	now := time.Now().UTC()
	order = &models.Order{
		ID:         uuid.NewString(),
		CustomerID: userID,
		Status:     models.OrderStatusPending,
		Address:    address,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, item := range items {
		var res sql.Result
		res, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ? AND is_active = TRUE`), item.Quantity, now, item.ProductID, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("reserve stock: %w", err)
		}
		if err = expectOne(res, "reserve stock"); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = fmt.Errorf("product %s: %w", item.ProductID, ErrOutOfStock)
			}
			return nil, err
		}
		order.TotalCents += item.PriceCents * int64(item.Quantity)
		order.Items = append(order.Items, models.OrderItem{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
		})
	}

	if _, err = sqlx.NamedExecContext(ctx, tx, `INSERT INTO orders (id, customer_id, status, total_cents, shipping_address, created_at, updated_at) VALUES (:id, :customer_id, :status, :total_cents, :shipping_address, :created_at, :updated_at)`, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	for i := range order.Items {
		if _, err = sqlx.NamedExecContext(ctx, tx, `INSERT INTO order_items (id, order_id, product_id, quantity, price_cents) VALUES (:id, :order_id, :product_id, :quantity, :price_cents)`, &order.Items[i]); err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cart_items WHERE user_id = ?`), userID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit checkout: %w", err)
	}
	return order, nil
}

// ListOrders returns orders newest first. An empty customerID lists every order.
func (r *OrderRepository) ListOrders(ctx context.Context, customerID string, page, size int) ([]models.Order, int, error) {
	where := ""
	var args []interface{}
	if customerID != "" {
		where = " WHERE customer_id = ?"
		args = append(args, customerID)
	}
	p := models.NewPagination(page, size, 0)
	query := fmt.Sprintf("SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT %d OFFSET %d", orderColumns, where, p.PageSize, (p.Page-1)*p.PageSize)

	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) FROM orders"+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	return orders, total, nil
}

// FindOrder returns an order with its items or sql.ErrNoRows.
func (r *OrderRepository) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.GetContext(ctx, &order, r.db.Rebind(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), id); err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &order.Items, r.db.Rebind(`SELECT id, order_id, product_id, quantity, price_cents FROM order_items WHERE order_id = ?`), id); err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	return &order, nil
}

// UpdateOrderStatus changes an order's status.
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`), status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return expectOne(res, "update order status")
}

// DeleteOrder removes an order and its items.
func (r *OrderRepository) DeleteOrder(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete order: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM order_items WHERE order_id = ?`), id); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM orders WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if err = expectOne(res, "delete order"); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete order: %w", err)
	}
	return nil
}
