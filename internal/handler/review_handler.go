package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bookhub-api/internal/dto"
	"github.com/noah-isme/bookhub-api/internal/middleware"
	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/internal/service"
	"github.com/noah-isme/bookhub-api/pkg/response"
)

// ReviewHandler serves product reviews.
type ReviewHandler struct {
	service *service.ReviewService
	authz   accessAuthorizer
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(svc *service.ReviewService, authz accessAuthorizer) *ReviewHandler {
	return &ReviewHandler{service: svc, authz: authz}
}

// List godoc
// @Summary List reviews of a product
// @Tags Reviews
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} response.Envelope
// @Router /products/{id}/reviews [get]
func (h *ReviewHandler) List(c *gin.Context) {
	reviews, err := h.service.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviews, nil)
}

// Create godoc
// @Summary Review a product
// @Tags Reviews
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param payload body dto.ReviewRequest true "Review"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /products/{id}/reviews [post]
func (h *ReviewHandler) Create(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	var req dto.ReviewRequest
	if !bindJSON(c, &req, "invalid review payload") {
		return
	}
	review, err := h.service.Create(c.Request.Context(), principal.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, review)
}

// Update godoc
// @Summary Edit a review
// @Tags Reviews
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Review ID"
// @Param payload body dto.ReviewRequest true "Review"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /reviews/{id} [put]
func (h *ReviewHandler) Update(c *gin.Context) {
	review, ok := h.load(c)
	if !ok {
		return
	}
	var req dto.ReviewRequest
	if !bindJSON(c, &req, "invalid review payload") {
		return
	}
	updated, err := h.service.Update(c.Request.Context(), review, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Delete godoc
// @Summary Delete a review
// @Tags Reviews
// @Security BearerAuth
// @Param id path string true "Review ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /reviews/{id} [delete]
func (h *ReviewHandler) Delete(c *gin.Context) {
	review, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), review.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *ReviewHandler) load(c *gin.Context) (*models.Review, bool) {
	review, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if !middleware.AuthorizeObject(c, h.authz, review) {
		return nil, false
	}
	return review, true
}
