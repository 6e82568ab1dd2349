package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bookhub-api/internal/models"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
	"github.com/noah-isme/bookhub-api/pkg/response"
)

// ContextAccessKey stores the route's access request template.
const ContextAccessKey = "rbacAccess"

type accessAuthorizer interface {
	Authorize(ctx context.Context, req models.AccessRequest) error
}

// PermissionOption adjusts the access request a route declares.
type PermissionOption func(*models.AccessRequest)

// PublicRead lets anonymous callers through on read methods.
func PublicRead() PermissionOption {
	return func(r *models.AccessRequest) { r.PublicRead = true }
}

// RequireAll demands the "_all" flag regardless of ownership.
func RequireAll() PermissionOption {
	return func(r *models.AccessRequest) { r.RequireAll = true }
}

// ListAction marks collection listings, which read every record.
func ListAction() PermissionOption {
	return func(r *models.AccessRequest) { r.ListAction = true }
}

// RequirePermission runs the collection-level check for element. Object
// routes follow up with AuthorizeObject once the target is loaded.
func RequirePermission(authz accessAuthorizer, element string, opts ...PermissionOption) gin.HandlerFunc {
	template := models.AccessRequest{Element: element}
	for _, opt := range opts {
		opt(&template)
	}
	return func(c *gin.Context) {
		req := template
		req.Principal = PrincipalFrom(c)
		req.Method = c.Request.Method
		if err := authz.Authorize(c.Request.Context(), req); err != nil {
			response.Abort(c, err)
			return
		}
		c.Set(ContextAccessKey, template)
		c.Next()
	}
}

// AuthorizeObject checks the caller against a loaded target using the
// element the route declared. It renders the error and returns false on deny.
func AuthorizeObject(c *gin.Context, authz accessAuthorizer, target models.Ownable) bool {
	req := routeAccess(c)
	req.ListAction = false
	req.Principal = PrincipalFrom(c)
	req.Method = c.Request.Method
	req.Target = target
	if err := authz.Authorize(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return false
	}
	return true
}

// AllowsAll reports whether the caller may read every record of the route's
// element. Handlers use it to scope listings to the caller's own records.
func AllowsAll(c *gin.Context, authz accessAuthorizer) (bool, error) {
	req := routeAccess(c)
	req.Principal = PrincipalFrom(c)
	req.Method = c.Request.Method
	req.PublicRead = false
	req.RequireAll = true
	err := authz.Authorize(c.Request.Context(), req)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, appErrors.ErrForbidden), errors.Is(err, appErrors.ErrUnauthenticated):
		return false, nil
	default:
		return false, err
	}
}

func routeAccess(c *gin.Context) models.AccessRequest {
	if value, ok := c.Get(ContextAccessKey); ok {
		if req, ok := value.(models.AccessRequest); ok {
			return req
		}
	}
	return models.AccessRequest{}
}
