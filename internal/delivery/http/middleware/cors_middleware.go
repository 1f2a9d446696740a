package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowHeaders = "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID, apikey, x-client-info"
	corsAllowMethods = "POST, GET, OPTIONS"
)

// CORSMiddleware adds CORS headers for cross-origin requests.
// Storage webhooks and browser clients call the scan endpoint directly,
// so with no configured origins any origin is allowed ("*").
// With an allow-list only listed origins get CORS headers and the
// preflight of any other origin is rejected with 403.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAny := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAny = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		isAllowed := allowAny || origin == "" || allowed[origin]

		if isAllowed {
			if allowAny {
				c.Header("Access-Control-Allow-Origin", "*")
			} else if origin != "" {
				c.Header("Access-Control-Allow-Origin", origin)
				// Vary header to ensure caches differentiate by Origin
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
			c.Header("Access-Control-Allow-Methods", corsAllowMethods)
			c.Header("Access-Control-Max-Age", "86400") // 24 hours
		}

		// Preflight: no body
		if c.Request.Method == http.MethodOptions {
			if isAllowed {
				c.AbortWithStatus(http.StatusNoContent)
			} else {
				c.AbortWithStatus(http.StatusForbidden)
			}
			return
		}

		c.Next()
	}
}
