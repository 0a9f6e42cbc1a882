package serve

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowHeaders = "Authorization, Content-Type, X-Device-ID"
	corsAllowMethods = "GET, POST, PATCH, DELETE, OPTIONS"
)

// corsMiddleware reflects the request origin when it is on the allow list.
// An empty list means any origin. Preflight requests are answered directly
// with 204 and never reach the sync handlers.
func corsMiddleware(originsCSV string) gin.HandlerFunc {
	allowed := map[string]bool{}
	for _, part := range strings.Split(originsCSV, ",") {
		if v := strings.TrimSpace(part); v != "" {
			allowed[v] = true
		}
	}
	allowAny := len(allowed) == 0 || allowed["*"]

	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if origin != "" && (allowAny || allowed[origin]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		}
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
