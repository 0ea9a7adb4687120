// Package validation provides input validation helpers and middleware for
// the registry API.
package validation

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskproxy/internal/account"
)

// MaxRequestSize is the maximum request body size (64KB). No registry
// request carries more than a few fields.
const MaxRequestSize = 64 << 10

// MaxNameLength is the maximum length for free-text names (API key labels).
const MaxNameLength = 255

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// SanitizeString trims whitespace, removes null bytes and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects their errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAccount checks that a field is a well-formed account identifier
func ValidAccount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if _, err := account.Parse(value); err != nil {
			return &ValidationError{Field: field, Message: "must be a 0x address or a lower-case account name"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

const paramKeyPrefix = "account_param:"

// AccountParamMiddleware parses the named URL parameters as account
// identifiers and rejects the request if any is malformed. Parsed values are
// available through AccountParam.
func AccountParamMiddleware(params ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, name := range params {
			raw := c.Param(name)
			if raw == "" {
				continue
			}
			id, err := account.Parse(raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":   "invalid_account",
					"message": name + " must be a 0x address or a lower-case account name",
				})
				return
			}
			c.Set(paramKeyPrefix+name, id)
		}
		c.Next()
	}
}

// AccountParam returns a parameter parsed by AccountParamMiddleware, parsing
// it on the spot if the middleware did not run.
func AccountParam(c *gin.Context, name string) (account.ID, error) {
	if v, ok := c.Get(paramKeyPrefix + name); ok {
		if id, ok := v.(account.ID); ok {
			return id, nil
		}
	}
	return account.Parse(c.Param(name))
}
