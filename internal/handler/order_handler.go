package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bookhub-api/internal/dto"
	"github.com/noah-isme/bookhub-api/internal/middleware"
	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/internal/service"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
	"github.com/noah-isme/bookhub-api/pkg/response"
)

// OrderHandler serves the cart and orders.
type OrderHandler struct {
	service *service.OrderService
	authz   accessAuthorizer
}

// NewOrderHandler constructs the handler.
func NewOrderHandler(svc *service.OrderService, authz accessAuthorizer) *OrderHandler {
	return &OrderHandler{service: svc, authz: authz}
}

// Cart godoc
// @Summary Current cart
// @Tags Orders
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /cart [get]
func (h *OrderHandler) Cart(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	cart, err := h.service.Cart(c.Request.Context(), principal.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cart, nil)
}

// AddToCart godoc
// @Summary Add product to cart
// @Tags Orders
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.AddCartItemRequest true "Cart item"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /cart/items [post]
func (h *OrderHandler) AddToCart(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	var req dto.AddCartItemRequest
	if !bindJSON(c, &req, "invalid cart payload") {
		return
	}
	item, err := h.service.AddToCart(c.Request.Context(), principal.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateCartItem godoc
// @Summary Change cart item quantity
// @Tags Orders
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Cart item ID"
// @Param payload body dto.UpdateCartItemRequest true "Quantity"
// @Success 200 {object} response.Envelope
// @Router /cart/items/{id} [patch]
func (h *OrderHandler) UpdateCartItem(c *gin.Context) {
	item, ok := h.loadCartItem(c)
	if !ok {
		return
	}
	var req dto.UpdateCartItemRequest
	if !bindJSON(c, &req, "invalid cart payload") {
		return
	}
	updated, err := h.service.UpdateCartItem(c.Request.Context(), item, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// RemoveCartItem godoc
// @Summary Remove cart item
// @Tags Orders
// @Security BearerAuth
// @Param id path string true "Cart item ID"
// @Success 204
// @Router /cart/items/{id} [delete]
func (h *OrderHandler) RemoveCartItem(c *gin.Context) {
	item, ok := h.loadCartItem(c)
	if !ok {
		return
	}
	if err := h.service.RemoveCartItem(c.Request.Context(), item.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Checkout godoc
// @Summary Place an order from the cart
// @Tags Orders
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.CheckoutRequest true "Checkout"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /cart/checkout [post]
func (h *OrderHandler) Checkout(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	var req dto.CheckoutRequest
	if !bindJSON(c, &req, "invalid checkout payload") {
		return
	}
	order, err := h.service.Checkout(c.Request.Context(), principal.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// ListOrders godoc
// @Summary List orders
// @Description Callers with read_all see every order, others only their own
// @Tags Orders
// @Security BearerAuth
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	all, err := middleware.AllowsAll(c, h.authz)
	if err != nil {
		response.Error(c, err)
		return
	}
	customerID := principal.UserID
	if all {
		customerID = ""
	}
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	orders, pagination, err := h.service.ListOrders(c.Request.Context(), customerID, page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, orders, pagination)
}

// GetOrder godoc
// @Summary Get order
// @Tags Orders
// @Security BearerAuth
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// UpdateOrderStatus godoc
// @Summary Change order status
// @Description Without update_all an order can only be cancelled
// @Tags Orders
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body dto.UpdateOrderStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /orders/{id}/status [patch]
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}
	var req dto.UpdateOrderStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	if req.Status != models.OrderStatusCancelled {
		all, err := middleware.AllowsAll(c, h.authz)
		if err != nil {
			response.Error(c, err)
			return
		}
		if !all {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions to change order status"))
			return
		}
	}
	updated, err := h.service.UpdateStatus(c.Request.Context(), order, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// DeleteOrder godoc
// @Summary Delete order
// @Tags Orders
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Success 204
// @Router /orders/{id} [delete]
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}
	if err := h.service.DeleteOrder(c.Request.Context(), order.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *OrderHandler) loadOrder(c *gin.Context) (*models.Order, bool) {
	order, err := h.service.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if !middleware.AuthorizeObject(c, h.authz, order) {
		return nil, false
	}
	return order, true
}

func (h *OrderHandler) loadCartItem(c *gin.Context) (*models.CartItem, bool) {
	item, err := h.service.LoadCartItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if !middleware.AuthorizeObject(c, h.authz, item) {
		return nil, false
	}
	return item, true
}
