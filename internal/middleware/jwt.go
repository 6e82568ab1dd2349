package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/models"
	appErrors "github.com/noah-isme/bookhub-api/pkg/errors"
	"github.com/noah-isme/bookhub-api/pkg/logger"
	"github.com/noah-isme/bookhub-api/pkg/response"
)

// ContextPrincipalKey is the gin context key storing the verified principal.
const ContextPrincipalKey = "principal"

type principalVerifier interface {
	Verify(ctx context.Context, raw string) (*models.Principal, error)
}

type activityRecorder interface {
	TouchLastActive(ctx context.Context, id string, ts time.Time) error
}

// Authenticate protects routes by requiring a valid access token.
func Authenticate(verifier principalVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			msg := "missing bearer token"
			if c.GetHeader("Authorization") != "" {
				msg = "invalid authorization header"
			}
			response.Abort(c, appErrors.Clone(appErrors.ErrUnauthenticated, msg))
			return
		}

		principal, err := verifier.Verify(c.Request.Context(), raw)
		if err != nil {
			response.Abort(c, err)
			return
		}

		setPrincipal(c, principal)
		c.Next()
	}
}

// OptionalAuth attaches the principal when a valid token is present. Invalid
// or expired tokens leave the request anonymous.
func OptionalAuth(verifier principalVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}
		if principal, err := verifier.Verify(c.Request.Context(), raw); err == nil {
			setPrincipal(c, principal)
		}
		c.Next()
	}
}

// TrackActivity stamps last_active_at for authenticated requests.
func TrackActivity(recorder activityRecorder, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()
		principal := PrincipalFrom(c)
		if principal == nil {
			return
		}
		if err := recorder.TouchLastActive(c.Request.Context(), principal.UserID, time.Now().UTC()); err != nil {
			log.Warn("failed to record user activity", zap.String("user_id", principal.UserID), zap.Error(err))
		}
	}
}

// PrincipalFrom returns the authenticated principal or nil.
func PrincipalFrom(c *gin.Context) *models.Principal {
	value, exists := c.Get(ContextPrincipalKey)
	if !exists {
		return nil
	}
	principal, _ := value.(*models.Principal)
	return principal
}

func setPrincipal(c *gin.Context, principal *models.Principal) {
	c.Set(ContextPrincipalKey, principal)
	c.Set(logger.UserIDKey, principal.UserID)
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
