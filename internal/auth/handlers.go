package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskproxy/internal/account"
	"github.com/mbd888/riskproxy/internal/logging"
	"github.com/mbd888/riskproxy/internal/validation"
)

// Handler provides HTTP endpoints for auth management
type Handler struct {
	manager *Manager
}

// NewHandler creates a new auth handler
func NewHandler(m *Manager) *Handler {
	return &Handler{manager: m}
}

// RegisterRoutes sets up the self-service routes. The group must already
// run Middleware and RequireAuth.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/auth/me", h.GetCurrentCaller)
	r.GET("/auth/keys", h.ListKeys)
	r.POST("/auth/keys", h.CreateKey)
	r.DELETE("/auth/keys/:keyId", h.RevokeKey)
}

// RegisterAdminRoutes sets up key issuance. The group must already run
// RequireAdmin.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/keys", h.AdminCreateKey)
	r.POST("/tokens", h.AdminIssueToken)
}

// Info returns auth configuration info
func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"type":         "api_key",
		"header":       "Authorization: Bearer sk_...",
		"altHeader":    "X-API-Key: sk_...",
		"bearerTokens": h.manager.tokens != nil,
		"publicEndpoints": []string{
			"GET /v1/owner",
			"GET /v1/reporters/:account",
			"GET /v1/reporters/:account/status",
			"GET /v1/addresses/:address",
			"GET /v1/categories",
		},
		"protectedEndpoints": []string{
			"PUT /v1/owner",
			"POST /v1/reporters",
			"PUT /v1/reporters/:account",
			"POST /v1/addresses",
			"PUT /v1/addresses/:address",
		},
	})
}

// GetCurrentCaller returns info about the authenticated account
func (h *Handler) GetCurrentCaller(c *gin.Context) {
	caller, ok := GetCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	resp := gin.H{
		"account": caller,
		"method":  c.GetString(ContextKeyMethod),
	}
	if key, ok := GetAPIKey(c); ok {
		resp["keyId"] = key.ID
		resp["keyName"] = key.Name
		resp["createdAt"] = key.CreatedAt
	}
	c.JSON(http.StatusOK, resp)
}

// ListKeys returns API keys for the authenticated account
func (h *Handler) ListKeys(c *gin.Context) {
	caller, ok := GetCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	keys, err := h.manager.ListKeys(c.Request.Context(), caller)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list keys", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list keys",
		})
		return
	}

	// Don't expose hashes
	safeKeys := make([]gin.H, len(keys))
	for i, k := range keys {
		safeKeys[i] = gin.H{
			"id":        k.ID,
			"name":      k.Name,
			"createdAt": k.CreatedAt,
			"lastUsed":  k.LastUsed,
			"revoked":   k.Revoked,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"keys":  safeKeys,
		"count": len(safeKeys),
	})
}

// CreateKeyRequest is the request body for creating a key
type CreateKeyRequest struct {
	Name string `json:"name"`
}

// CreateKey creates another API key for the authenticated account
func (h *Handler) CreateKey(c *gin.Context) {
	caller, ok := GetCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req CreateKeyRequest
	_ = c.ShouldBindJSON(&req)
	if req.Name == "" {
		req.Name = "Additional key"
	}

	h.issueKey(c, caller, req.Name)
}

// RevokeKey revokes one of the caller's API keys
func (h *Handler) RevokeKey(c *gin.Context) {
	caller, ok := GetCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	keyID := c.Param("keyId")

	if key, ok := GetAPIKey(c); ok && keyID == key.ID {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "cannot_revoke_current",
			"message": "Cannot revoke the key you're using",
		})
		return
	}

	if err := h.manager.RevokeKey(c.Request.Context(), keyID, caller); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "key_not_found",
			"message": "Key not found or already revoked",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Key revoked",
		"keyId":   keyID,
	})
}

// AdminCreateKeyRequest is the body of POST /v1/admin/keys
type AdminCreateKeyRequest struct {
	Account string `json:"account" binding:"required"`
	Name    string `json:"name"`
}

// AdminCreateKey issues a key for any account
func (h *Handler) AdminCreateKey(c *gin.Context) {
	var req AdminCreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	id, err := account.Parse(req.Account)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_account",
			"message": err.Error(),
		})
		return
	}
	if req.Name == "" {
		req.Name = "Admin-issued key"
	}

	h.issueKey(c, id, req.Name)
}

// AdminIssueTokenRequest is the body of POST /v1/admin/tokens
type AdminIssueTokenRequest struct {
	Account string `json:"account" binding:"required"`
	TTL     string `json:"ttl"` // Go duration, e.g. "30m"
}

// AdminIssueToken signs a bearer token for any account
func (h *Handler) AdminIssueToken(c *gin.Context) {
	if h.manager.tokens == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "tokens_disabled",
			"message": "Bearer tokens are disabled (AUTH_JWT_SECRET not set).",
		})
		return
	}

	var req AdminIssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	id, err := account.Parse(req.Account)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_account",
			"message": err.Error(),
		})
		return
	}

	var ttl time.Duration
	if req.TTL != "" {
		if ttl, err = time.ParseDuration(req.TTL); err != nil || ttl <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_ttl",
				"message": "ttl must be a positive duration such as 30m",
			})
			return
		}
	}

	token, expires, err := h.manager.tokens.Issue(id, ttl)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to issue token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to issue token",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":     token,
		"account":   id,
		"expiresAt": expires,
	})
}

func (h *Handler) issueKey(c *gin.Context, id account.ID, name string) {
	name = validation.SanitizeString(name, validation.MaxNameLength)
	rawKey, key, err := h.manager.GenerateKey(c.Request.Context(), id, name)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to create key", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to create API key",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"apiKey":  rawKey,
		"keyId":   key.ID,
		"account": key.Account,
		"name":    key.Name,
		"warning": "Store this key securely. It will not be shown again.",
	})
}
