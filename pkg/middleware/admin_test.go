package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finmodel/pkg/utils"
)

func TestAdminOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	issuer := utils.NewTokenIssuer("test-secret")

	newRouter := func(adminEmail string) *gin.Engine {
		r := gin.New()
		r.GET("/admin", JWTAuthMiddleware(issuer), AdminOnly(adminEmail), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		return r
	}
	call := func(r *gin.Engine, email string) int {
		token, err := issuer.CreateToken(uuid.New(), uuid.New(), email)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call(newRouter("Ops@Example.com"), "ops@example.com"))
	assert.Equal(t, http.StatusForbidden, call(newRouter("ops@example.com"), "owner@example.com"))
	assert.Equal(t, http.StatusForbidden, call(newRouter(""), "ops@example.com"))
}
