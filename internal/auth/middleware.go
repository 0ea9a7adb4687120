package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskproxy/internal/account"
	"github.com/mbd888/riskproxy/internal/logging"
)

const (
	// ContextKeyAPIKey is the key for storing API key in gin context
	ContextKeyAPIKey = "apiKey"
	// ContextKeyCaller is the key for storing the authenticated account
	ContextKeyCaller = "authCaller"
	// ContextKeyMethod records how the caller authenticated ("api_key" or "bearer")
	ContextKeyMethod = "authMethod"
)

const (
	MethodAPIKey = "api_key"
	MethodBearer = "bearer"
)

// Middleware resolves the caller from the request credentials. It never
// rejects: invalid credentials simply leave the request anonymous, and
// RequireAuth decides whether that is acceptable.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			raw = c.GetHeader("X-API-Key")
		}
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))

		switch {
		case raw == "":
		case strings.HasPrefix(raw, "sk_"):
			if key, err := m.ValidateKey(c.Request.Context(), raw); err == nil {
				c.Set(ContextKeyAPIKey, key)
				setCaller(c, key.Account, MethodAPIKey)
			}
		case m.tokens != nil:
			if id, err := m.tokens.Verify(raw); err == nil {
				setCaller(c, id, MethodBearer)
			}
		}

		c.Next()
	}
}

func setCaller(c *gin.Context, id account.ID, method string) {
	c.Set(ContextKeyCaller, id)
	c.Set(ContextKeyMethod, method)
	c.Request = c.Request.WithContext(logging.WithCaller(c.Request.Context(), id.String()))
}

// RequireAuth middleware rejects requests without an authenticated caller
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetCaller(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Credentials required. Include 'Authorization: Bearer sk_...' or a signed bearer token.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin checks the X-Admin-Secret header against secret. An empty
// secret disables the admin surface entirely.
func RequireAdmin(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "admin_disabled",
				"message": "Admin endpoints are disabled (ADMIN_SECRET not set).",
			})
			return
		}

		got := c.GetHeader("X-Admin-Secret")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Valid X-Admin-Secret header required.",
			})
			return
		}
		c.Next()
	}
}

// GetAPIKey returns the API key from context (if authenticated by key)
func GetAPIKey(c *gin.Context) (*APIKey, bool) {
	key, exists := c.Get(ContextKeyAPIKey)
	if !exists {
		return nil, false
	}
	k, ok := key.(*APIKey)
	return k, ok
}

// GetCaller returns the authenticated account
func GetCaller(c *gin.Context) (account.ID, bool) {
	v, exists := c.Get(ContextKeyCaller)
	if !exists {
		return "", false
	}
	id, ok := v.(account.ID)
	return id, ok && !id.IsZero()
}

// IsAuthenticated checks if the request is authenticated
func IsAuthenticated(c *gin.Context) bool {
	_, ok := GetCaller(c)
	return ok
}
