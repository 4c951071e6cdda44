package middlewares

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/metraware/qhse_backend/utils"
)

// AuthMiddleware trusts the identity headers set by the API gateway in
// front of this service. Requests without X-User-Id are rejected for
// mutating methods; reads pass through anonymously.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if raw := c.Request.Header.Get("X-User-Id"); raw != "" {
			userId, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid X-User-Id header"})
				c.Abort()
				return
			}
			ctx = utils.SetUserIdInContext(ctx, userId)
			if name := c.Request.Header.Get("X-User-Name"); name != "" {
				ctx = utils.SetUserNameInContext(ctx, name)
			}
			if c.Request.Header.Get("X-Is-Admin") == "true" {
				ctx = utils.SetIsAdminInContext(ctx, true)
			}
		} else if c.Request.Method != http.MethodGet {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CorrelationIdMiddleware propagates the caller's correlation id, or
// mints one, so every log line of a request can be tied together.
func CorrelationIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.Request.Header.Get("X-Correlation-Id")
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Correlation-Id", cid)
		c.Next()
	}
}
