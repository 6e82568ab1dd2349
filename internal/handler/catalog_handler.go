package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bookhub-api/internal/dto"
	"github.com/noah-isme/bookhub-api/internal/middleware"
	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/internal/service"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
	"github.com/noah-isme/bookhub-api/pkg/response"
)

// CatalogHandler serves categories and products.
type CatalogHandler struct {
	service *service.CatalogService
	authz   accessAuthorizer
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(svc *service.CatalogService, authz accessAuthorizer) *CatalogHandler {
	return &CatalogHandler{service: svc, authz: authz}
}

// ListCategories godoc
// @Summary List categories
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /categories [get]
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.service.ListCategories(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, categories, nil)
}

// GetCategory godoc
// @Summary Get category
// @Tags Catalog
// @Produce json
// @Param id path string true "Category ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /categories/{id} [get]
func (h *CatalogHandler) GetCategory(c *gin.Context) {
	category, err := h.service.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, category, nil)
}

// CreateCategory godoc
// @Summary Create category
// @Tags Catalog
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.CategoryRequest true "Category"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /categories [post]
func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var req dto.CategoryRequest
	if !bindJSON(c, &req, "invalid category payload") {
		return
	}
	category, err := h.service.CreateCategory(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, category)
}

// UpdateCategory godoc
// @Summary Update category
// @Tags Catalog
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Category ID"
// @Param payload body dto.CategoryRequest true "Category"
// @Success 200 {object} response.Envelope
// @Router /categories/{id} [put]
func (h *CatalogHandler) UpdateCategory(c *gin.Context) {
	var req dto.CategoryRequest
	if !bindJSON(c, &req, "invalid category payload") {
		return
	}
	category, err := h.service.UpdateCategory(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, category, nil)
}

// DeleteCategory godoc
// @Summary Delete category
// @Tags Catalog
// @Security BearerAuth
// @Param id path string true "Category ID"
// @Success 204
// @Router /categories/{id} [delete]
func (h *CatalogHandler) DeleteCategory(c *gin.Context) {
	if err := h.service.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListProducts godoc
// @Summary List products
// @Tags Catalog
// @Produce json
// @Param category_id query string false "Category"
// @Param search query string false "Search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /products [get]
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	var query dto.ProductQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	products, pagination, err := h.service.ListProducts(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, products, pagination)
}

// GetProduct godoc
// @Summary Get product
// @Tags Catalog
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /products/{id} [get]
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	product, err := h.service.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}

// CreateProduct godoc
// @Summary Create product
// @Description The caller becomes the owner of the product
// @Tags Catalog
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.ProductRequest true "Product"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /products [post]
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	var req dto.ProductRequest
	if !bindJSON(c, &req, "invalid product payload") {
		return
	}
	product, err := h.service.CreateProduct(c.Request.Context(), principal.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, product)
}

// UpdateProduct godoc
// @Summary Update product
// @Description Owners need update; everyone else needs update_all
// @Tags Catalog
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param payload body dto.ProductRequest true "Product"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /products/{id} [put]
func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	product, ok := h.loadProduct(c)
	if !ok {
		return
	}
	var req dto.ProductRequest
	if !bindJSON(c, &req, "invalid product payload") {
		return
	}
	updated, err := h.service.UpdateProduct(c.Request.Context(), product, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// DeleteProduct godoc
// @Summary Delete product
// @Description Owners need delete; everyone else needs delete_all
// @Tags Catalog
// @Security BearerAuth
// @Param id path string true "Product ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /products/{id} [delete]
func (h *CatalogHandler) DeleteProduct(c *gin.Context) {
	product, ok := h.loadProduct(c)
	if !ok {
		return
	}
	if err := h.service.DeleteProduct(c.Request.Context(), product.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *CatalogHandler) loadProduct(c *gin.Context) (*models.Product, bool) {
	product, err := h.service.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if !middleware.AuthorizeObject(c, h.authz, product) {
		return nil, false
	}
	return product, true
}
