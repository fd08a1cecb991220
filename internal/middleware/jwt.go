package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/metakgp/iqps-backend/internal/models"
	appErrors "github.com/metakgp/iqps-backend/pkg/errors"
	"github.com/metakgp/iqps-backend/pkg/response"
)

const (
	// ContextUserKey is the gin context key storing the admin's JWT claims.
	ContextUserKey = "currentAdmin"
	// ContextTokenKey is the gin context key storing the raw bearer token.
	ContextTokenKey = "currentToken"
)

type tokenValidator interface {
	ValidateToken(token string) (*models.AdminClaims, error)
}

// JWT protects admin routes by requiring a valid bearer token. Only admins are ever
// issued tokens, so a valid token is sufficient.
func JWT(validator tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(ContextTokenKey, token)
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "authorization header is required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// Claims returns the admin claims set by JWT, or nil on public routes.
func Claims(c *gin.Context) *models.AdminClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.AdminClaims)
	return claims
}
