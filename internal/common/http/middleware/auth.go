package middleware

import (
	"context"
	"strings"

	pkgerrors "ctfoj/pkg/errors"
	"ctfoj/pkg/utils/contextkey"
	"ctfoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated uid.
const UserIDKey = "user_id"

// Authenticator verifies a bearer token and returns the uid it was issued to.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (string, error)
}

// AuthMiddleware enforces bearer token validation and publishes the uid to
// both the gin context and the request context.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil {
			response.AbortWithError(c, pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("auth service unavailable"))
			return
		}

		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			response.AbortWithError(c, pkgerrors.New(pkgerrors.TokenInvalid))
			return
		}
		uid, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		c.Set(UserIDKey, uid)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), contextkey.UserID, uid))
		c.Next()
	}
}

// CurrentUser returns the uid set by AuthMiddleware.
func CurrentUser(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
