package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bookhub-api/internal/dto"
	"github.com/noah-isme/bookhub-api/internal/middleware"
	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/internal/service"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
	"github.com/noah-isme/bookhub-api/pkg/response"
)

type accessAuthorizer interface {
	Authorize(ctx context.Context, req models.AccessRequest) error
}

// UserHandler manages user endpoints.
type UserHandler struct {
	service *service.UserService
	authz   accessAuthorizer
}

// NewUserHandler constructs the handler.
func NewUserHandler(svc *service.UserService, authz accessAuthorizer) *UserHandler {
	return &UserHandler{service: svc, authz: authz}
}

// List godoc
// @Summary List users
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param search query string false "Search by email, username or name"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	var query dto.UserQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	users, pagination, err := h.service.List(c.Request.Context(), models.UserFilter{
		Active:    query.Active,
		Search:    query.Search,
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// Get godoc
// @Summary Get user
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Update user
// @Description Profile fields need update on the caller's own record; account fields need update_all
// @Tags Users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body service.UpdateUserRequest true "User payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/{id} [patch]
func (h *UserHandler) Update(c *gin.Context) {
	user, ok := h.load(c)
	if !ok {
		return
	}
	var req service.UpdateUserRequest
	if !bindJSON(c, &req, "invalid user payload") {
		return
	}
	canManage, err := middleware.AllowsAll(c, h.authz)
	if err != nil {
		response.Error(c, err)
		return
	}
	updated, err := h.service.Update(c.Request.Context(), user.ID, req, actorFrom(c), canManage)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Delete godoc
// @Summary Soft delete user
// @Tags Users
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	user, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.service.SoftDelete(c.Request.Context(), user.ID, actorFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Restore godoc
// @Summary Restore a soft-deleted user
// @Tags Users
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id}/restore [post]
func (h *UserHandler) Restore(c *gin.Context) {
	user, err := h.service.Restore(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

func (h *UserHandler) load(c *gin.Context) (*models.User, bool) {
	user, err := h.service.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if user.DeletedAt != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "user not found"))
		return nil, false
	}
	if !middleware.AuthorizeObject(c, h.authz, user) {
		return nil, false
	}
	return user, true
}
