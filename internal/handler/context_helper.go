package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bookhub-api/internal/middleware"
	"github.com/noah-isme/bookhub-api/internal/models"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
	"github.com/noah-isme/bookhub-api/pkg/response"
)

// currentPrincipal returns the principal or renders 401.
func currentPrincipal(c *gin.Context) (*models.Principal, bool) {
	principal := middleware.PrincipalFrom(c)
	if principal == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthenticated, ""))
		return nil, false
	}
	return principal, true
}

func requestMeta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

func actorFrom(c *gin.Context) models.Actor {
	actor := models.Actor{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if principal := middleware.PrincipalFrom(c); principal != nil {
		actor.UserID = principal.UserID
	}
	return actor
}

// bindJSON decodes the body or renders a validation error.
func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message))
		return false
	}
	return true
}
