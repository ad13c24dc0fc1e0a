package middlewares

import (
	"net/http"

	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware resolves the calling business from the X-Business-Id
// header set by the gateway. Authentication happens upstream; this service
// only scopes data access. Write endpoints reject requests without a business.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId := c.Request.Header.Get("X-Business-Id")
		if businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "X-Business-Id header is required"})
			c.Abort()
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		if userName := c.Request.Header.Get("X-User-Name"); userName != "" {
			ctx = utils.SetUserNameInContext(ctx, userName)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
