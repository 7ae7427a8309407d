package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"finmodel/pkg/utils"
)

// AdminOnly lets through callers whose token email matches adminEmail. It
// must run after JWTAuthMiddleware. An empty adminEmail closes the route.
func AdminOnly(adminEmail string) gin.HandlerFunc {
	admin := strings.ToLower(strings.TrimSpace(adminEmail))
	return func(c *gin.Context) {
		email := strings.ToLower(strings.TrimSpace(c.GetString(CtxEmail)))
		if admin == "" || email != admin {
			utils.RespondError(c, http.StatusForbidden, "Admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}
