package proxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskproxy/internal/account"
	"github.com/mbd888/riskproxy/internal/auth"
	"github.com/mbd888/riskproxy/internal/authority"
	"github.com/mbd888/riskproxy/internal/registry"
	"github.com/mbd888/riskproxy/internal/validation"
)

// Handler provides HTTP endpoints for registry operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new registry handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) registry routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/owner", h.GetOwner)
	r.GET("/reporters/:account", validation.AccountParamMiddleware("account"), h.GetReporter)
	r.GET("/reporters/:account/status", validation.AccountParamMiddleware("account"), h.GetReporterStatus)
	r.GET("/addresses/:address", validation.AccountParamMiddleware("address"), h.GetAddress)
	r.GET("/categories", h.ListCategories)
	r.GET("/stats", h.GetStats)
}

// RegisterProtectedRoutes sets up routes that need an authenticated caller.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.PUT("/owner", h.ChangeOwner)
	r.POST("/reporters", h.CreateReporter)
	r.PUT("/reporters/:account", validation.AccountParamMiddleware("account"), h.UpdateReporter)
	r.POST("/addresses", h.CreateAddress)
	r.PUT("/addresses/:address", validation.AccountParamMiddleware("address"), h.UpdateAddress)
}

// RegisterAdminRoutes sets up routes guarded by the admin secret.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/initialize", h.Initialize)
}

// OwnerRequest is the body of PUT /v1/owner and POST /v1/admin/initialize.
type OwnerRequest struct {
	Owner string `json:"owner" binding:"required"`
}

// CreateReporterRequest is the body of POST /v1/reporters.
type CreateReporterRequest struct {
	Account string         `json:"account" binding:"required"`
	Role    authority.Role `json:"role"`
}

// UpdateReporterRequest is the body of PUT /v1/reporters/:account.
type UpdateReporterRequest struct {
	Role authority.Role `json:"role"`
}

// AddressRequest is the body of POST /v1/addresses and PUT /v1/addresses/:address.
// Address is ignored on PUT.
type AddressRequest struct {
	Address  string          `json:"address"`
	Category json.RawMessage `json:"category"`
	Risk     *int            `json:"risk"`
}

// category decodes the raw category. Anything that is not a known category
// becomes an invalid value so the registry rejects it in its own check order.
func (r AddressRequest) category() registry.Category {
	var c registry.Category
	if len(r.Category) == 0 {
		return registry.None
	}
	if err := json.Unmarshal(r.Category, &c); err != nil {
		return registry.Category(255)
	}
	return c
}

// Initialize handles POST /v1/admin/initialize
func (h *Handler) Initialize(c *gin.Context) {
	var req OwnerRequest
	if !bindJSON(c, &req) {
		return
	}
	owner, ok := parseField(c, "owner", req.Owner)
	if !ok {
		return
	}

	if err := h.service.Initialize(c.Request.Context(), owner); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"owner": owner})
}

// GetOwner handles GET /v1/owner
func (h *Handler) GetOwner(c *gin.Context) {
	owner, err := h.service.Owner(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": owner})
}

// ChangeOwner handles PUT /v1/owner
func (h *Handler) ChangeOwner(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req OwnerRequest
	if !bindJSON(c, &req) {
		return
	}
	newOwner, ok := parseField(c, "owner", req.Owner)
	if !ok {
		return
	}

	if err := h.service.ChangeOwner(c.Request.Context(), caller, newOwner); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": newOwner})
}

// CreateReporter handles POST /v1/reporters
func (h *Handler) CreateReporter(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req CreateReporterRequest
	if !bindJSON(c, &req) {
		return
	}
	target, ok := parseField(c, "account", req.Account)
	if !ok {
		return
	}

	if err := h.service.CreateReporter(c.Request.Context(), caller, target, req.Role); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"account": target, "role": req.Role})
}

// UpdateReporter handles PUT /v1/reporters/:account
func (h *Handler) UpdateReporter(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	target, ok := pathAccount(c, "account")
	if !ok {
		return
	}
	var req UpdateReporterRequest
	if !bindJSON(c, &req) {
		return
	}

	previous, err := h.service.UpdateReporter(c.Request.Context(), caller, target, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": target, "role": req.Role, "previousRole": previous})
}

// GetReporter handles GET /v1/reporters/:account
func (h *Handler) GetReporter(c *gin.Context) {
	target, ok := pathAccount(c, "account")
	if !ok {
		return
	}

	role, err := h.service.GetRole(c.Request.Context(), target)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": target, "role": role, "roleName": role.String()})
}

// GetReporterStatus handles GET /v1/reporters/:account/status
func (h *Handler) GetReporterStatus(c *gin.Context) {
	target, ok := pathAccount(c, "account")
	if !ok {
		return
	}

	isReporter, err := h.service.IsReporter(c.Request.Context(), target)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": target, "isReporter": isReporter})
}

// CreateAddress handles POST /v1/addresses
func (h *Handler) CreateAddress(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req AddressRequest
	if !bindJSON(c, &req) {
		return
	}
	if !requireRisk(c, req) {
		return
	}
	target, ok := parseField(c, "address", req.Address)
	if !ok {
		return
	}

	category := req.category()
	if err := h.service.CreateAddress(c.Request.Context(), caller, target, category, *req.Risk); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"address": target, "category": category, "risk": *req.Risk, "flagged": true})
}

// UpdateAddress handles PUT /v1/addresses/:address
func (h *Handler) UpdateAddress(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	target, ok := pathAccount(c, "address")
	if !ok {
		return
	}
	var req AddressRequest
	if !bindJSON(c, &req) {
		return
	}
	if !requireRisk(c, req) {
		return
	}

	category := req.category()
	if err := h.service.UpdateAddress(c.Request.Context(), caller, target, category, *req.Risk); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": target, "category": category, "risk": *req.Risk, "flagged": true})
}

// GetAddress handles GET /v1/addresses/:address
func (h *Handler) GetAddress(c *gin.Context) {
	target, ok := pathAccount(c, "address")
	if !ok {
		return
	}

	view, err := h.service.GetAddress(c.Request.Context(), target)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":  target,
		"category": view.Category,
		"risk":     view.Risk,
		"flagged":  view.Flagged,
	})
}

// ListCategories handles GET /v1/categories
func (h *Handler) ListCategories(c *gin.Context) {
	type entry struct {
		ID   uint8  `json:"id"`
		Name string `json:"name"`
	}
	cats := registry.Categories()
	out := make([]entry, 0, len(cats))
	for _, cat := range cats {
		out = append(out, entry{ID: uint8(cat), Name: cat.String()})
	}
	c.JSON(http.StatusOK, gin.H{"categories": out, "count": len(out)})
}

// GetStats handles GET /v1/stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return false
	}
	return true
}

func requireCaller(c *gin.Context) (account.ID, bool) {
	caller, ok := auth.GetCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Authentication required",
		})
		return "", false
	}
	return caller, true
}

func requireRisk(c *gin.Context, req AddressRequest) bool {
	if req.Risk == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "risk: is required",
		})
		return false
	}
	return true
}

func parseField(c *gin.Context, field, raw string) (account.ID, bool) {
	if errs := validation.Validate(
		validation.Required(field, raw),
		validation.ValidAccount(field, raw),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_account",
			"message": errs.Error(),
			"details": errs,
		})
		return "", false
	}
	id, _ := account.Parse(raw)
	return id, true
}

func pathAccount(c *gin.Context, param string) (account.ID, bool) {
	id, err := validation.AccountParam(c, param)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_account",
			"message": err.Error(),
		})
		return "", false
	}
	return id, true
}

// respondError maps a registry error to its HTTP status. The message is the
// error text unchanged.
func respondError(c *gin.Context, err error) {
	code := Outcome(err)
	status := http.StatusInternalServerError
	switch code {
	case OutcomeUnauthorized:
		status = http.StatusForbidden
	case OutcomeInvalidRole, OutcomeInvalidRisk, OutcomeInvalidCategory, OutcomeInvalidArgument:
		status = http.StatusBadRequest
	case OutcomeAlreadyExists, OutcomeNotInitialized:
		status = http.StatusConflict
	case OutcomeNotFound:
		status = http.StatusNotFound
	}

	if errors.Is(err, authority.ErrAlreadyInitialized) {
		code = "already_initialized"
	}
	if status == http.StatusInternalServerError {
		code = "internal_error"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
