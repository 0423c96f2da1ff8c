package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const identityContextKey = "auth_identity"

// Identity is the caller resolved by Middleware.
type Identity struct {
	UserID string
	Token  string
	// Bearer is true when the token came from the Authorization header
	// rather than the auth cookie. Bearer callers skip CSRF checks.
	Bearer bool
}

// Middleware resolves the caller's token to a user and stores the Identity
// in the context. Requests without a valid token get 401.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.credential(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		userID, err := s.ValidateToken(c.Request.Context(), id.Token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		id.UserID = userID
		c.Set(identityContextKey, id)
		c.Next()
	}
}

// IdentityFromContext returns the Identity set by Middleware.
func IdentityFromContext(c *gin.Context) (Identity, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := val.(Identity)
	return id, ok && id.UserID != ""
}

// UserIDFromContext returns the authenticated user's id.
func UserIDFromContext(c *gin.Context) (string, bool) {
	id, ok := IdentityFromContext(c)
	return id.UserID, ok
}

// credential picks the token from the Authorization header, falling back to
// the auth cookie. UserID is left empty.
func (s *Service) credential(r *http.Request) (Identity, bool) {
	if scheme, token, found := strings.Cut(r.Header.Get(s.headerName), " "); found && strings.EqualFold(scheme, "bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return Identity{Token: token, Bearer: true}, true
		}
	}
	if cookie, err := r.Cookie(s.cookieName); err == nil && cookie.Value != "" {
		return Identity{Token: cookie.Value}, true
	}
	return Identity{}, false
}
