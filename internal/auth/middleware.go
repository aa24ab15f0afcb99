package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const principalKey = "gigroom.principal"

// Middleware rejects requests without a valid token and stores the
// principal on the gin context.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := a.Authenticate(c.Request.Context(), TokenFromRequest(c.Request))
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided or are invalid."})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// FromContext returns the principal stored by Middleware, or nil.
func FromContext(c *gin.Context) *Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*Principal)
	return p
}
