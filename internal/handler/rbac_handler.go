package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bookhub-api/internal/models"
	"github.com/noah-isme/bookhub-api/internal/repository"
	"github.com/noah-isme/bookhub-api/internal/service"
	"github.com/noah-isme/bookhub-api/pkg/response"
)

// RBACHandler exposes policy administration.
type RBACHandler struct {
	service *service.PolicyService
}

// NewRBACHandler constructs the handler.
func NewRBACHandler(svc *service.PolicyService) *RBACHandler {
	return &RBACHandler{service: svc}
}

// ListRoles godoc
// @Summary List roles
// @Tags RBAC
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/rbac/roles [get]
func (h *RBACHandler) ListRoles(c *gin.Context) {
	roles, err := h.service.ListRoles(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roles, nil)
}

// CreateRole godoc
// @Summary Create role
// @Tags RBAC
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body models.RoleInput true "Role"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/rbac/roles [post]
func (h *RBACHandler) CreateRole(c *gin.Context) {
	var input models.RoleInput
	if !bindJSON(c, &input, "invalid role payload") {
		return
	}
	role, err := h.service.CreateRole(c.Request.Context(), input, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, role)
}

// UpdateRole godoc
// @Summary Update role
// @Tags RBAC
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Role ID"
// @Param payload body models.RoleInput true "Role"
// @Success 200 {object} response.Envelope
// @Router /admin/rbac/roles/{id} [put]
func (h *RBACHandler) UpdateRole(c *gin.Context) {
	var input models.RoleInput
	if !bindJSON(c, &input, "invalid role payload") {
		return
	}
	role, err := h.service.UpdateRole(c.Request.Context(), c.Param("id"), input, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, role, nil)
}

// DeleteRole godoc
// @Summary Delete role
// @Description Removes the role with its rules and assignments; the guest role is protected
// @Tags RBAC
// @Security BearerAuth
// @Param id path string true "Role ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /admin/rbac/roles/{id} [delete]
func (h *RBACHandler) DeleteRole(c *gin.Context) {
	if err := h.service.DeleteRole(c.Request.Context(), c.Param("id"), actorFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListElements godoc
// @Summary List business elements
// @Tags RBAC
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/rbac/elements [get]
func (h *RBACHandler) ListElements(c *gin.Context) {
	elements, err := h.service.ListElements(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, elements, nil)
}

// CreateElement godoc
// @Summary Create business element
// @Tags RBAC
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body models.ElementInput true "Element"
// @Success 201 {object} response.Envelope
// @Router /admin/rbac/elements [post]
func (h *RBACHandler) CreateElement(c *gin.Context) {
	var input models.ElementInput
	if !bindJSON(c, &input, "invalid element payload") {
		return
	}
	element, err := h.service.CreateElement(c.Request.Context(), input, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, element)
}

// UpdateElement godoc
// @Summary Update business element
// @Tags RBAC
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Element ID"
// @Param payload body models.ElementInput true "Element"
// @Success 200 {object} response.Envelope
// @Router /admin/rbac/elements/{id} [put]
func (h *RBACHandler) UpdateElement(c *gin.Context) {
	var input models.ElementInput
	if !bindJSON(c, &input, "invalid element payload") {
		return
	}
	element, err := h.service.UpdateElement(c.Request.Context(), c.Param("id"), input, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, element, nil)
}

// DeleteElement godoc
// @Summary Delete business element
// @Tags RBAC
// @Security BearerAuth
// @Param id path string true "Element ID"
// @Success 204
// @Router /admin/rbac/elements/{id} [delete]
func (h *RBACHandler) DeleteElement(c *gin.Context) {
	if err := h.service.DeleteElement(c.Request.Context(), c.Param("id"), actorFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListRules godoc
// @Summary List access rules
// @Tags RBAC
// @Security BearerAuth
// @Produce json
// @Param role_id query string false "Role"
// @Param element_id query string false "Element"
// @Success 200 {object} response.Envelope
// @Router /admin/rbac/rules [get]
func (h *RBACHandler) ListRules(c *gin.Context) {
	rules, err := h.service.ListRules(c.Request.Context(), repository.RuleFilter{
		RoleID:    c.Query("role_id"),
		ElementID: c.Query("element_id"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// PutRule godoc
// @Summary Create or replace an access rule
// @Tags RBAC
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body models.RuleInput true "Rule"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Router /admin/rbac/rules [put]
func (h *RBACHandler) PutRule(c *gin.Context) {
	var input models.RuleInput
	if !bindJSON(c, &input, "invalid rule payload") {
		return
	}
	rule, created, err := h.service.PutRule(c.Request.Context(), input, actorFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if created {
		response.Created(c, rule)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// DeleteRule godoc
// @Summary Delete an access rule
// @Tags RBAC
// @Security BearerAuth
// @Param id path string true "Rule ID"
// @Success 204
// @Router /admin/rbac/rules/{id} [delete]
func (h *RBACHandler) DeleteRule(c *gin.Context) {
	if err := h.service.DeleteRule(c.Request.Context(), c.Param("id"), actorFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Summary godoc
// @Summary Role by element permission matrix
// @Tags RBAC
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/rbac/summary [get]
func (h *RBACHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// UserRoles godoc
// @Summary Roles of a user
// @Tags RBAC
// @Security BearerAuth
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /admin/rbac/users/{id}/roles [get]
func (h *RBACHandler) UserRoles(c *gin.Context) {
	roles, err := h.service.UserRoles(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roles, nil)
}

// AssignRole godoc
// @Summary Assign a role to a user
// @Tags RBAC
// @Security BearerAuth
// @Accept json
// @Param id path string true "User ID"
// @Param payload body models.AssignRoleInput true "Role"
// @Success 204
// @Router /admin/rbac/users/{id}/roles [post]
func (h *RBACHandler) AssignRole(c *gin.Context) {
	var input models.AssignRoleInput
	if !bindJSON(c, &input, "invalid role assignment") {
		return
	}
	if err := h.service.AssignRole(c.Request.Context(), c.Param("id"), input, actorFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RevokeRole godoc
// @Summary Revoke a role from a user
// @Tags RBAC
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param roleId path string true "Role ID"
// @Success 204
// @Router /admin/rbac/users/{id}/roles/{roleId} [delete]
func (h *RBACHandler) RevokeRole(c *gin.Context) {
	if err := h.service.RevokeRole(c.Request.Context(), c.Param("id"), c.Param("roleId"), actorFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
