package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/dto"
	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/internal/repository"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
)

type orderRepository interface {
	ListCartItems(ctx context.Context, userID string) ([]models.CartItem, error)
	FindCartItem(ctx context.Context, id string) (*models.CartItem, error)
	AddCartItem(ctx context.Context, item *models.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, id string, quantity int) error
	DeleteCartItem(ctx context.Context, id string) error
	Checkout(ctx context.Context, userID, address string) (*models.Order, error)
	ListOrders(ctx context.Context, customerID string, page, size int) ([]models.Order, int, error)
	FindOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id, status string) error
	DeleteOrder(ctx context.Context, id string) error
}

type productReader interface {
	FindProductByID(ctx context.Context, id string) (*models.Product, error)
}

// OrderService manages carts, checkout and orders.
type OrderService struct {
	repo      orderRepository
	products  productReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewOrderService constructs an OrderService.
func NewOrderService(repo orderRepository, products productReader, validate *validator.Validate, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &OrderService{repo: repo, products: products, validator: validate, logger: logger}
}

// Cart returns the cart of userID and its total.
func (s *OrderService) Cart(ctx context.Context, userID string) (*dto.CartView, error) {
	items, err := s.repo.ListCartItems(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load cart")
	}
	if items == nil {
		items = []models.CartItem{}
	}
	view := &dto.CartView{Items: items}
	for _, item := range items {
		view.TotalCents += item.PriceCents * int64(item.Quantity)
	}
	return view, nil
}

// AddToCart puts a product into the cart at its current price.
func (s *OrderService) AddToCart(ctx context.Context, userID string, req dto.AddCartItemRequest) (*models.CartItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cart payload")
	}
	product, err := s.products.FindProductByID(ctx, req.ProductID)
	if err != nil {
		return nil, notFoundOr(err, "product not found", "failed to load product")
	}
	if !product.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
	}
	item := &models.CartItem{UserID: userID, ProductID: product.ID, Quantity: req.Quantity, PriceCents: product.PriceCents}
	if err := s.repo.AddCartItem(ctx, item); err != nil {
		return nil, appErrors.Internal(err, "failed to add cart item")
	}
	return item, nil
}

// LoadCartItem returns a cart line for object-level authorization.
func (s *OrderService) LoadCartItem(ctx context.Context, id string) (*models.CartItem, error) {
	item, err := s.repo.FindCartItem(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "cart item not found", "failed to load cart item")
	}
	return item, nil
}

// UpdateCartItem sets the quantity of a loaded cart line.
func (s *OrderService) UpdateCartItem(ctx context.Context, item *models.CartItem, req dto.UpdateCartItemRequest) (*models.CartItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cart payload")
	}
	if err := s.repo.UpdateCartItemQuantity(ctx, item.ID, req.Quantity); err != nil {
		return nil, notFoundOr(err, "cart item not found", "failed to update cart item")
	}
	item.Quantity = req.Quantity
	return item, nil
}

// RemoveCartItem deletes a cart line.
func (s *OrderService) RemoveCartItem(ctx context.Context, id string) error {
	if err := s.repo.DeleteCartItem(ctx, id); err != nil {
		return notFoundOr(err, "cart item not found", "failed to remove cart item")
	}
	return nil
}

// Checkout converts the cart of userID into an order.
func (s *OrderService) Checkout(ctx context.Context, userID string, req dto.CheckoutRequest) (*models.Order, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checkout payload")
	}
	order, err := s.repo.Checkout(ctx, userID, req.ShippingAddress)
	switch {
	case errors.Is(err, repository.ErrCartEmpty):
		return nil, appErrors.Clone(appErrors.ErrEmptyCart, "")
	case errors.Is(err, repository.ErrOutOfStock):
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "insufficient stock")
	case err != nil:
		return nil, appErrors.Internal(err, "failed to checkout")
	}
	s.logger.Info("order placed", zap.String("order_id", order.ID), zap.String("customer_id", userID), zap.Int64("total_cents", order.TotalCents))
	return order, nil
}

// ListOrders lists orders; an empty customerID lists all of them.
func (s *OrderService) ListOrders(ctx context.Context, customerID string, page, size int) ([]models.Order, *models.Pagination, error) {
	orders, total, err := s.repo.ListOrders(ctx, customerID, page, size)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list orders")
	}
	return orders, models.NewPagination(page, size, total), nil
}

// GetOrder returns an order with its items.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "failed to load order")
	}
	return order, nil
}

// UpdateStatus moves a loaded order to a new status.
func (s *OrderService) UpdateStatus(ctx context.Context, order *models.Order, req dto.UpdateOrderStatusRequest) (*models.Order, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if order.Status == models.OrderStatusCancelled && req.Status != models.OrderStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "cancelled orders cannot be reopened")
	}
	if err := s.repo.UpdateOrderStatus(ctx, order.ID, req.Status); err != nil {
		return nil, notFoundOr(err, "order not found", "failed to update order")
	}
	order.Status = req.Status
	return order, nil
}

// DeleteOrder removes an order and its items.
func (s *OrderService) DeleteOrder(ctx context.Context, id string) error {
	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		return notFoundOr(err, "order not found", "failed to delete order")
	}
	return nil
}
