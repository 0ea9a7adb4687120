package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(h gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	router := gin.New()
	router.Use(h)
	router.Any("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHeadersMiddleware(t *testing.T) {
	w := serve(HeadersMiddleware(false), httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	w = serve(HeadersMiddleware(true), httptest.NewRequest("GET", "/test", nil))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		origin      string
		wantOrigin  string
		wantCreds   string
		preflight   bool
		wantPreCode int
	}{
		{name: "listed origin", allowed: []string{"https://console.example.com"}, origin: "https://console.example.com",
			wantOrigin: "https://console.example.com", wantCreds: "true"},
		{name: "unlisted origin", allowed: []string{"https://console.example.com"}, origin: "https://evil.example.com"},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://any.example.com", wantOrigin: "*"},
		{name: "empty list", allowed: nil, origin: "https://any.example.com"},
		{name: "preflight allowed", allowed: []string{"*"}, origin: "https://a.example.com", wantOrigin: "*",
			preflight: true, wantPreCode: http.StatusNoContent},
		{name: "preflight refused", allowed: nil, origin: "https://a.example.com",
			preflight: true, wantPreCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := "GET"
			if tt.preflight {
				method = "OPTIONS"
			}
			req := httptest.NewRequest(method, "/test", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}

			w := serve(CORSMiddleware(tt.allowed), req)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, w.Header().Get("Access-Control-Allow-Credentials"))
			if tt.preflight {
				assert.Equal(t, tt.wantPreCode, w.Code)
			} else {
				assert.Equal(t, http.StatusOK, w.Code)
			}
		})
	}
}

func TestNormalizeOrigins(t *testing.T) {
	got := NormalizeOrigins([]string{" https://a.example.com/ ", "", "*"})
	assert.Equal(t, []string{"https://a.example.com", "*"}, got)
}
