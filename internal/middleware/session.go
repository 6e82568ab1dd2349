package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/internal/models"
)

// SessionHeader carries a remember-me session key for clients without cookies.
const SessionHeader = "X-Session-Key"

// ContextSessionKey stores the live session of the request, if any.
const ContextSessionKey = "session"

type sessionToucher interface {
	Touch(ctx context.Context, rawKey string) (models.SessionLookup, error)
}

// SessionActivity refreshes the remember-me session presented by the client.
// Unknown and expired keys are ignored; authentication stays token based.
func SessionActivity(sessions sessionToucher, cookieName string, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		key := c.GetHeader(SessionHeader)
		if key == "" && cookieName != "" {
			key, _ = c.Cookie(cookieName)
		}
		if key != "" {
			lookup, err := sessions.Touch(c.Request.Context(), key)
			switch {
			case err != nil:
				log.Warn("session lookup failed", zap.Error(err))
			case lookup.State == models.TokenValid:
				c.Set(ContextSessionKey, lookup.Session)
			}
		}
		c.Next()
	}
}

// SessionFrom returns the session attached by SessionActivity.
func SessionFrom(c *gin.Context) *models.Session {
	value, ok := c.Get(ContextSessionKey)
	if !ok {
		return nil
	}
	session, _ := value.(*models.Session)
	return session
}
